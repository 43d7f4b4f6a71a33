package postgres

import (
	"context"
	"database/sql"

	"github.com/kyungseok/retail-fulfillment/services/order/internal/domain"
	"github.com/kyungseok/retail-fulfillment/services/order/internal/repository"
)

type productRepository struct {
	q DBTX
}

// FindByID ID로 상품 조회
func (r *productRepository) FindByID(ctx context.Context, id int64) (*domain.Product, error) {
	query := `
		SELECT id, name, price, sale_price, stock, is_active, updated_at
		FROM products
		WHERE id = $1
	`

	product := &domain.Product{}
	err := r.q.QueryRowContext(ctx, query, id).Scan(
		&product.ID,
		&product.Name,
		&product.Price,
		&product.SalePrice,
		&product.Stock,
		&product.Active,
		&product.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, translate("failed to find product", err)
	}

	return product, nil
}

// Reserve 조건부 재고 차감
//
// 재고 확인과 차감이 하나의 UPDATE 문으로 수행되므로 동시 요청이 마지막 재고를
// 중복 차감할 수 없다. 영향받은 행이 없으면 재고 부족(또는 상품 없음)이다.
func (r *productRepository) Reserve(ctx context.Context, id int64, quantity int) (bool, error) {
	query := `
		UPDATE products
		SET stock = stock - $1, updated_at = NOW()
		WHERE id = $2 AND stock >= $1
	`

	result, err := r.q.ExecContext(ctx, query, quantity, id)
	if err != nil {
		return false, translate("failed to reserve stock", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, translate("failed to get rows affected", err)
	}

	return affected == 1, nil
}

// Release 재고 복구
func (r *productRepository) Release(ctx context.Context, id int64, quantity int) (bool, error) {
	query := `
		UPDATE products
		SET stock = stock + $1, updated_at = NOW()
		WHERE id = $2
	`

	result, err := r.q.ExecContext(ctx, query, quantity, id)
	if err != nil {
		return false, translate("failed to release stock", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, translate("failed to get rows affected", err)
	}

	return affected == 1, nil
}
