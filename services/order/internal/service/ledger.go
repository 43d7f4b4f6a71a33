package service

import (
	"context"
	stderrors "errors"

	"go.uber.org/zap"

	"github.com/kyungseok/retail-fulfillment/common/errors"
	"github.com/kyungseok/retail-fulfillment/services/order/internal/domain"
	"github.com/kyungseok/retail-fulfillment/services/order/internal/repository"
)

// Ledger 재고 원장
//
// 재고 변경은 이 타입을 통해서만 이루어지며, 실제 차감/복구는 저장소의 조건부
// 갱신 한 번으로 수행된다. 트랜잭션 레포지토리로 생성하면 예약은 트랜잭션
// 롤백과 함께 되돌려진다.
type Ledger struct {
	products repository.ProductRepository
	logger   *zap.Logger
}

// NewLedger 재고 원장 생성
func NewLedger(products repository.ProductRepository, logger *zap.Logger) *Ledger {
	return &Ledger{
		products: products,
		logger:   logger,
	}
}

// Reserve 재고 예약 (원자적 확인 및 차감)
func (l *Ledger) Reserve(ctx context.Context, productID int64, quantity int) error {
	if quantity <= 0 {
		return errors.Newf(errors.ErrCodeInvalidOrder, "quantity must be positive for product %d", productID)
	}
	if quantity > domain.MaxLineQuantity {
		return errors.Newf(errors.ErrCodeInvalidOrder,
			"quantity must not exceed %d for product %d", domain.MaxLineQuantity, productID)
	}

	reserved, err := l.products.Reserve(ctx, productID, quantity)
	if err != nil {
		return dbError("failed to reserve stock", err)
	}
	if reserved {
		return nil
	}

	// 실패 경로에서만 원인 구분
	product, err := l.products.FindByID(ctx, productID)
	if stderrors.Is(err, repository.ErrNotFound) {
		return errors.Newf(errors.ErrCodeProductNotFound, "product not found with ID: %d", productID)
	}
	if err != nil {
		return dbError("failed to find product", err)
	}

	l.logger.Warn("insufficient stock",
		zap.Int64("productId", productID),
		zap.Int("requested", quantity),
		zap.Int("available", product.Stock))

	return errors.Newf(errors.ErrCodeInsufficientStock,
		"insufficient stock for product: %s (id=%d)", product.Name, productID)
}

// Release 재고 복구 (취소된 주문에 한해 호출)
//
// 상품이 삭제된 경우에는 경고만 남기고 계속 진행한다.
func (l *Ledger) Release(ctx context.Context, productID int64, quantity int) error {
	released, err := l.products.Release(ctx, productID, quantity)
	if err != nil {
		return dbError("failed to release stock", err)
	}
	if !released {
		l.logger.Warn("product missing on release, skipping restock",
			zap.Int64("productId", productID),
			zap.Int("quantity", quantity))
		return nil
	}

	l.logger.Info("stock released",
		zap.Int64("productId", productID),
		zap.Int("quantity", quantity))
	return nil
}
