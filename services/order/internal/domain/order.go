package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kyungseok/retail-fulfillment/common/errors"
)

// OrderStatus 주문 상태
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusConfirmed OrderStatus = "CONFIRMED"
	OrderStatusShipped   OrderStatus = "SHIPPED"
	OrderStatusDelivered OrderStatus = "DELIVERED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
)

// OrderStatuses 정의된 주문 상태 (라이프사이클 순서)
var OrderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusConfirmed,
	OrderStatusShipped,
	OrderStatusDelivered,
	OrderStatusCancelled,
}

// ParseOrderStatus 외부 입력 문자열을 주문 상태로 변환
func ParseOrderStatus(s string) (OrderStatus, error) {
	candidate := OrderStatus(strings.ToUpper(strings.TrimSpace(s)))
	for _, status := range OrderStatuses {
		if status == candidate {
			return status, nil
		}
	}
	return "", errors.Newf(errors.ErrCodeInvalidStatus, "invalid order status: %q", s)
}

// IsTerminal 종료 상태 여부
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCancelled
}

// PaymentStatus 결제 상태
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "PENDING"
	PaymentStatusCompleted PaymentStatus = "COMPLETED"
	PaymentStatusFailed    PaymentStatus = "FAILED"
	PaymentStatusRefunded  PaymentStatus = "REFUNDED"
)

var paymentStatuses = []PaymentStatus{
	PaymentStatusPending,
	PaymentStatusCompleted,
	PaymentStatusFailed,
	PaymentStatusRefunded,
}

// ParsePaymentStatus 외부 입력 문자열을 결제 상태로 변환
func ParsePaymentStatus(s string) (PaymentStatus, error) {
	candidate := PaymentStatus(strings.ToUpper(strings.TrimSpace(s)))
	for _, status := range paymentStatuses {
		if status == candidate {
			return status, nil
		}
	}
	return "", errors.Newf(errors.ErrCodeInvalidStatus, "invalid payment status: %q", s)
}

// Order 주문 도메인 모델
type Order struct {
	ID              int64               `json:"id"`
	UserID          int64               `json:"userId"`
	Status          OrderStatus         `json:"status"`
	PaymentStatus   PaymentStatus       `json:"paymentStatus"`
	Items           []OrderItem         `json:"items"`
	TotalAmount     decimal.Decimal     `json:"totalAmount"`
	Discount        decimal.NullDecimal `json:"discount"`
	Tax             decimal.NullDecimal `json:"tax"`
	TrackingNumber  *string             `json:"trackingNumber,omitempty"`
	ShippingAddress string              `json:"shippingAddress"`
	IdempotencyKey  string              `json:"-"`
	CreatedAt       time.Time           `json:"createdAt"`
	UpdatedAt       time.Time           `json:"updatedAt"`
}

// OrderItem 주문 상품 (구매 시점 가격 스냅샷)
type OrderItem struct {
	ID            int64           `json:"id"`
	OrderID       int64           `json:"orderId"`
	ProductID     int64           `json:"productId"`
	ProductName   string          `json:"productName"`
	Quantity      int             `json:"quantity"`
	UnitPrice     decimal.Decimal `json:"unitPrice"`
	TotalPrice    decimal.Decimal `json:"totalPrice"`
	SelectedSize  *string         `json:"selectedSize,omitempty"`
	SelectedColor *string         `json:"selectedColor,omitempty"`
}

// ItemsTotal 주문 상품 합계
func (o *Order) ItemsTotal() decimal.Decimal {
	total := decimal.Zero
	for _, item := range o.Items {
		total = total.Add(item.TotalPrice)
	}
	return total
}

// IsOwnedBy 주문 소유자 확인
func (o *Order) IsOwnedBy(userID int64) bool {
	return o.UserID == userID
}

// StatusCounts 주문 상태별 집계
type StatusCounts struct {
	Total    int64                 `json:"totalOrders"`
	ByStatus map[OrderStatus]int64 `json:"byStatus"`
}
