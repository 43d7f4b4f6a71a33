package postgres

import (
	"context"
	"database/sql"

	"github.com/lib/pq"

	"github.com/kyungseok/retail-fulfillment/services/order/internal/domain"
	"github.com/kyungseok/retail-fulfillment/services/order/internal/repository"
)

const orderColumns = `id, user_id, status, payment_status, total_amount, discount, tax,
		tracking_number, shipping_address, idempotency_key, created_at, updated_at`

type orderRepository struct {
	q DBTX
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanOrder(row rowScanner) (*domain.Order, error) {
	order := &domain.Order{}
	var idempotencyKey sql.NullString

	err := row.Scan(
		&order.ID,
		&order.UserID,
		&order.Status,
		&order.PaymentStatus,
		&order.TotalAmount,
		&order.Discount,
		&order.Tax,
		&order.TrackingNumber,
		&order.ShippingAddress,
		&idempotencyKey,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if idempotencyKey.Valid {
		order.IdempotencyKey = idempotencyKey.String
	}
	return order, nil
}

// Create 주문과 주문 상품을 함께 저장
func (r *orderRepository) Create(ctx context.Context, order *domain.Order) error {
	query := `
		INSERT INTO orders (user_id, status, payment_status, total_amount, discount, tax,
			tracking_number, shipping_address, idempotency_key, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id
	`

	idempotencyKey := sql.NullString{String: order.IdempotencyKey, Valid: order.IdempotencyKey != ""}

	err := r.q.QueryRowContext(
		ctx,
		query,
		order.UserID,
		order.Status,
		order.PaymentStatus,
		order.TotalAmount,
		order.Discount,
		order.Tax,
		order.TrackingNumber,
		order.ShippingAddress,
		idempotencyKey,
		order.CreatedAt,
		order.UpdatedAt,
	).Scan(&order.ID)
	if err != nil {
		return translate("failed to create order", err)
	}

	itemQuery := `
		INSERT INTO order_items (order_id, product_id, product_name, quantity, unit_price, total_price,
			selected_size, selected_color)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`

	for i := range order.Items {
		item := &order.Items[i]
		item.OrderID = order.ID

		err := r.q.QueryRowContext(
			ctx,
			itemQuery,
			item.OrderID,
			item.ProductID,
			item.ProductName,
			item.Quantity,
			item.UnitPrice,
			item.TotalPrice,
			item.SelectedSize,
			item.SelectedColor,
		).Scan(&item.ID)
		if err != nil {
			return translate("failed to create order item", err)
		}
	}

	return nil
}

// FindByID ID로 주문 조회
func (r *orderRepository) FindByID(ctx context.Context, id int64) (*domain.Order, error) {
	return r.findOne(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
}

// FindByIDForUpdate 행 잠금과 함께 주문 조회
func (r *orderRepository) FindByIDForUpdate(ctx context.Context, id int64) (*domain.Order, error) {
	return r.findOne(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, id)
}

// FindByIdempotencyKey 멱등성 키로 주문 조회
func (r *orderRepository) FindByIdempotencyKey(ctx context.Context, userID int64, key string) (*domain.Order, error) {
	return r.findOne(ctx, `SELECT `+orderColumns+` FROM orders WHERE user_id = $1 AND idempotency_key = $2`, userID, key)
}

// FindByTrackingNumber 송장번호로 주문 조회
func (r *orderRepository) FindByTrackingNumber(ctx context.Context, trackingNumber string) (*domain.Order, error) {
	return r.findOne(ctx, `
		SELECT `+orderColumns+` FROM orders
		WHERE tracking_number = $1
		ORDER BY created_at DESC
		LIMIT 1
	`, trackingNumber)
}

// ListByUser 사용자 주문 목록 (최신순)
func (r *orderRepository) ListByUser(ctx context.Context, userID int64, page repository.Page) ([]*domain.Order, error) {
	page = page.Normalize()
	return r.findMany(ctx, `
		SELECT `+orderColumns+` FROM orders
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`, userID, page.Size, page.Offset())
}

// ListAll 전체 주문 목록 (최신순)
func (r *orderRepository) ListAll(ctx context.Context, page repository.Page) ([]*domain.Order, error) {
	page = page.Normalize()
	return r.findMany(ctx, `
		SELECT `+orderColumns+` FROM orders
		ORDER BY created_at DESC, id DESC
		LIMIT $1 OFFSET $2
	`, page.Size, page.Offset())
}

// ListByStatus 상태별 주문 목록
func (r *orderRepository) ListByStatus(ctx context.Context, status domain.OrderStatus) ([]*domain.Order, error) {
	return r.findMany(ctx, `
		SELECT `+orderColumns+` FROM orders
		WHERE status = $1
		ORDER BY created_at DESC, id DESC
	`, status)
}

// Update 주문 상태 갱신
func (r *orderRepository) Update(ctx context.Context, order *domain.Order) error {
	query := `
		UPDATE orders
		SET status = $1, payment_status = $2, tracking_number = $3, updated_at = $4
		WHERE id = $5
	`

	result, err := r.q.ExecContext(ctx, query,
		order.Status, order.PaymentStatus, order.TrackingNumber, order.UpdatedAt, order.ID)
	if err != nil {
		return translate("failed to update order", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return translate("failed to get rows affected", err)
	}
	if affected == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// CountByStatus 상태별 주문 수 집계
func (r *orderRepository) CountByStatus(ctx context.Context) (domain.StatusCounts, error) {
	counts := domain.StatusCounts{ByStatus: make(map[domain.OrderStatus]int64, len(domain.OrderStatuses))}
	for _, status := range domain.OrderStatuses {
		counts.ByStatus[status] = 0
	}

	rows, err := r.q.QueryContext(ctx, `SELECT status, COUNT(*) FROM orders GROUP BY status`)
	if err != nil {
		return counts, translate("failed to count orders", err)
	}
	defer rows.Close()

	for rows.Next() {
		var status domain.OrderStatus
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return counts, translate("failed to scan order count", err)
		}
		counts.ByStatus[status] = count
		counts.Total += count
	}

	if err := rows.Err(); err != nil {
		return counts, translate("failed to count orders", err)
	}
	return counts, nil
}

func (r *orderRepository) findOne(ctx context.Context, query string, args ...interface{}) (*domain.Order, error) {
	order, err := scanOrder(r.q.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, translate("failed to find order", err)
	}

	if err := r.loadItems(ctx, []*domain.Order{order}); err != nil {
		return nil, err
	}
	return order, nil
}

func (r *orderRepository) findMany(ctx context.Context, query string, args ...interface{}) ([]*domain.Order, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, translate("failed to list orders", err)
	}
	defer rows.Close()

	orders := []*domain.Order{}
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, translate("failed to scan order", err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, translate("failed to list orders", err)
	}

	if err := r.loadItems(ctx, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// loadItems 주문 상품을 한 번의 쿼리로 적재
func (r *orderRepository) loadItems(ctx context.Context, orders []*domain.Order) error {
	if len(orders) == 0 {
		return nil
	}

	ids := make([]int64, 0, len(orders))
	byID := make(map[int64]*domain.Order, len(orders))
	for _, order := range orders {
		ids = append(ids, order.ID)
		byID[order.ID] = order
		order.Items = []domain.OrderItem{}
	}

	rows, err := r.q.QueryContext(ctx, `
		SELECT id, order_id, product_id, product_name, quantity, unit_price, total_price,
			selected_size, selected_color
		FROM order_items
		WHERE order_id = ANY($1)
		ORDER BY order_id, id
	`, pq.Array(ids))
	if err != nil {
		return translate("failed to load order items", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item domain.OrderItem
		if err := rows.Scan(
			&item.ID,
			&item.OrderID,
			&item.ProductID,
			&item.ProductName,
			&item.Quantity,
			&item.UnitPrice,
			&item.TotalPrice,
			&item.SelectedSize,
			&item.SelectedColor,
		); err != nil {
			return translate("failed to scan order item", err)
		}
		if order, ok := byID[item.OrderID]; ok {
			order.Items = append(order.Items, item)
		}
	}

	if err := rows.Err(); err != nil {
		return translate("failed to load order items", err)
	}
	return nil
}
