package service

import (
	"context"
	stderrors "errors"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/kyungseok/retail-fulfillment/common/errors"
	"github.com/kyungseok/retail-fulfillment/services/order/internal/domain"
	"github.com/kyungseok/retail-fulfillment/services/order/internal/repository"
)

// Assembler 장바구니 라인을 주문 상품으로 변환
type Assembler struct {
	products repository.ProductRepository
	ledger   *Ledger
	logger   *zap.Logger
}

// NewAssembler 주문 조립기 생성
func NewAssembler(products repository.ProductRepository, ledger *Ledger, logger *zap.Logger) *Assembler {
	return &Assembler{
		products: products,
		ledger:   ledger,
		logger:   logger,
	}
}

// Assemble 라인 순서대로 상품 조회, 재고 예약, 가격 스냅샷, 합계 누적
//
// 첫 번째 실패에서 즉시 중단한다. 앞선 라인의 예약은 호출자의 트랜잭션
// 롤백으로 되돌려야 한다.
func (a *Assembler) Assemble(ctx context.Context, userID int64, lines []domain.CartLine) ([]domain.OrderItem, decimal.Decimal, error) {
	if len(lines) == 0 {
		return nil, decimal.Zero, errors.New(errors.ErrCodeEmptyOrder, "order must contain at least one item")
	}

	items := make([]domain.OrderItem, 0, len(lines))
	total := decimal.Zero

	for i, line := range lines {
		if line.Quantity <= 0 {
			return nil, decimal.Zero, errors.Newf(errors.ErrCodeInvalidOrder,
				"line %d: quantity must be positive, got %d", i+1, line.Quantity)
		}
		if line.Quantity > domain.MaxLineQuantity {
			return nil, decimal.Zero, errors.Newf(errors.ErrCodeInvalidOrder,
				"line %d: quantity must not exceed %d, got %d", i+1, domain.MaxLineQuantity, line.Quantity)
		}

		product, err := a.products.FindByID(ctx, line.ProductID)
		if stderrors.Is(err, repository.ErrNotFound) {
			return nil, decimal.Zero, errors.Newf(errors.ErrCodeProductNotFound,
				"product not found with ID: %d", line.ProductID)
		}
		if err != nil {
			return nil, decimal.Zero, dbError("failed to find product", err)
		}
		if !product.Active {
			return nil, decimal.Zero, errors.Newf(errors.ErrCodeProductUnavailable,
				"product is not available: %s (id=%d)", product.Name, product.ID)
		}

		item := line.Snapshot(product)
		if item.TotalPrice.GreaterThan(domain.MaxAmount) || total.Add(item.TotalPrice).GreaterThan(domain.MaxAmount) {
			return nil, decimal.Zero, errors.Newf(errors.ErrCodeInvalidOrder,
				"line %d: order amount exceeds %s", i+1, domain.MaxAmount.StringFixed(2))
		}

		if err := a.ledger.Reserve(ctx, product.ID, line.Quantity); err != nil {
			return nil, decimal.Zero, err
		}

		items = append(items, item)
		total = total.Add(item.TotalPrice)
	}

	a.logger.Debug("cart assembled",
		zap.Int64("userId", userID),
		zap.Int("lines", len(items)),
		zap.String("total", total.StringFixed(2)))

	return items, total, nil
}
