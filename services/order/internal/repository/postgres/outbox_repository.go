package postgres

import (
	"context"

	"github.com/kyungseok/retail-fulfillment/services/order/internal/repository"
)

type outboxRepository struct {
	q DBTX
}

// Insert Outbox 이벤트 삽입 (트랜잭션 레포지토리에서 호출하면 주문과 함께 커밋)
func (r *outboxRepository) Insert(ctx context.Context, event *repository.OutboxEvent) error {
	query := `
		INSERT INTO outbox_events (aggregate_type, aggregate_id, event_type, payload, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`

	err := r.q.QueryRowContext(
		ctx,
		query,
		event.AggregateType,
		event.AggregateID,
		event.EventType,
		[]byte(event.Payload),
		event.Status,
		event.CreatedAt,
	).Scan(&event.ID)
	if err != nil {
		return translate("failed to insert outbox event", err)
	}

	return nil
}

// FindPending 전송 대기 중인 이벤트 조회
func (r *outboxRepository) FindPending(ctx context.Context, limit int) ([]*repository.OutboxEvent, error) {
	query := `
		SELECT id, aggregate_type, aggregate_id, event_type, payload, status, created_at
		FROM outbox_events
		WHERE status = 'PENDING'
		ORDER BY created_at ASC, id ASC
		LIMIT $1
	`

	rows, err := r.q.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, translate("failed to find pending events", err)
	}
	defer rows.Close()

	var events []*repository.OutboxEvent
	for rows.Next() {
		event := &repository.OutboxEvent{}
		var payload []byte
		err := rows.Scan(
			&event.ID,
			&event.AggregateType,
			&event.AggregateID,
			&event.EventType,
			&payload,
			&event.Status,
			&event.CreatedAt,
		)
		if err != nil {
			return nil, translate("failed to scan outbox event", err)
		}
		event.Payload = payload
		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, translate("failed to find pending events", err)
	}
	return events, nil
}

// MarkSent 이벤트를 전송 완료로 표시
func (r *outboxRepository) MarkSent(ctx context.Context, id int64) error {
	query := `
		UPDATE outbox_events
		SET status = 'SENT', sent_at = NOW()
		WHERE id = $1
	`

	if _, err := r.q.ExecContext(ctx, query, id); err != nil {
		return translate("failed to mark event as sent", err)
	}
	return nil
}
