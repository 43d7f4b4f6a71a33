package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// MaxLineQuantity 한 라인에서 주문 가능한 최대 수량
const MaxLineQuantity = 10000

// MaxAmount 금액 컬럼 NUMERIC(10,2) 의 최대값
var MaxAmount = decimal.RequireFromString("99999999.99")

// Product 상품 (주문 처리에 필요한 필드만)
type Product struct {
	ID        int64
	Name      string
	Price     decimal.Decimal
	SalePrice decimal.NullDecimal
	Stock     int
	Active    bool
	UpdatedAt time.Time
}

// CartLine 장바구니 라인 (영속화되지 않는 입력)
type CartLine struct {
	ProductID     int64   `json:"productId"`
	Quantity      int     `json:"quantity"`
	SelectedSize  *string `json:"selectedSize,omitempty"`
	SelectedColor *string `json:"selectedColor,omitempty"`
}

// EffectivePrice 유효 단가 결정 (할인가가 있으면 할인가, 없으면 정가)
func EffectivePrice(p *Product) decimal.Decimal {
	if p.SalePrice.Valid {
		return p.SalePrice.Decimal
	}
	return p.Price
}

// Snapshot 구매 시점 가격으로 주문 상품 생성
func (l CartLine) Snapshot(p *Product) OrderItem {
	unitPrice := EffectivePrice(p)
	return OrderItem{
		ProductID:     p.ID,
		ProductName:   p.Name,
		Quantity:      l.Quantity,
		UnitPrice:     unitPrice,
		TotalPrice:    unitPrice.Mul(decimal.NewFromInt(int64(l.Quantity))),
		SelectedSize:  l.SelectedSize,
		SelectedColor: l.SelectedColor,
	}
}
