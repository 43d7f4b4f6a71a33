package worker

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/kyungseok/retail-fulfillment/common/messaging"
	"github.com/kyungseok/retail-fulfillment/services/order/internal/repository"
)

// Recorder 릴레이 결과 기록
type Recorder interface {
	RecordOutboxPublish(eventType string, err error)
}

type nopRecorder struct{}

func (nopRecorder) RecordOutboxPublish(string, error) {}

// OutboxWorker 커밋된 outbox 이벤트를 브로커로 릴레이
//
// 발행 후 전송 표시 전에 종료되면 이벤트가 다시 발행될 수 있다 (at-least-once).
type OutboxWorker struct {
	outboxRepo repository.OutboxRepository
	publisher  messaging.Publisher
	recorder   Recorder
	logger     *zap.Logger
	interval   time.Duration
	batchSize  int
}

// NewOutboxWorker Outbox 워커 생성
func NewOutboxWorker(
	outboxRepo repository.OutboxRepository,
	publisher messaging.Publisher,
	recorder Recorder,
	logger *zap.Logger,
	interval time.Duration,
	batchSize int,
) *OutboxWorker {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	return &OutboxWorker{
		outboxRepo: outboxRepo,
		publisher:  publisher,
		recorder:   recorder,
		logger:     logger,
		interval:   interval,
		batchSize:  batchSize,
	}
}

// Start ctx 가 취소될 때까지 주기적으로 릴레이
func (w *OutboxWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("outbox worker started",
		zap.Duration("interval", w.interval),
		zap.Int("batchSize", w.batchSize))

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("outbox worker stopped")
			return
		case <-ticker.C:
			if _, err := w.ProcessOnce(ctx); err != nil {
				w.logger.Error("failed to process outbox events", zap.Error(err))
			}
		}
	}
}

// ProcessOnce 대기 중인 이벤트 한 배치 발행, 전송 완료된 수 반환
//
// 발행에 실패한 이벤트는 대기 상태로 남아 다음 주기에 재시도된다.
func (w *OutboxWorker) ProcessOnce(ctx context.Context) (int, error) {
	events, err := w.outboxRepo.FindPending(ctx, w.batchSize)
	if err != nil {
		return 0, err
	}
	if len(events) == 0 {
		return 0, nil
	}

	w.logger.Debug("processing outbox events", zap.Int("count", len(events)))

	sent := 0
	for _, event := range events {
		err := messaging.PublishWithOrderID(ctx, w.publisher, event.EventType, event.AggregateID, json.RawMessage(event.Payload))
		w.recorder.RecordOutboxPublish(event.EventType, err)
		if err != nil {
			w.logger.Error("failed to publish event",
				zap.Int64("eventId", event.ID),
				zap.String("eventType", event.EventType),
				zap.Error(err))
			continue
		}

		if err := w.outboxRepo.MarkSent(ctx, event.ID); err != nil {
			w.logger.Error("failed to mark event as sent",
				zap.Int64("eventId", event.ID),
				zap.Error(err))
			continue
		}
		sent++
	}

	return sent, nil
}
