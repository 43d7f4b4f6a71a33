package events

import (
	"time"

	"github.com/google/uuid"
)

// EventType 이벤트 타입 정의
type EventType string

const (
	// Order Events
	EventOrderCreated       EventType = "order.created.v1"
	EventOrderStatusChanged EventType = "order.status_changed.v1"
	EventOrderCanceled      EventType = "order.canceled.v1"

	// Payment Events
	EventPaymentCompleted EventType = "payment.completed.v1"
	EventPaymentFailed    EventType = "payment.failed.v1"
	EventPaymentRefunded  EventType = "payment.refunded.v1"
)

// PaymentTopics 주문 서비스가 구독하는 결제 토픽
var PaymentTopics = []string{
	string(EventPaymentCompleted),
	string(EventPaymentFailed),
	string(EventPaymentRefunded),
}

// BaseEvent 모든 이벤트의 기본 구조
type BaseEvent struct {
	EventID       string    `json:"eventId"`
	EventType     EventType `json:"eventType"`
	SchemaVersion int       `json:"schemaVersion"`
	OccurredAt    time.Time `json:"occurredAt"`
	CorrelationID string    `json:"correlationId"`
}

// NewBaseEvent 새 이벤트 ID 로 기본 구조 생성
func NewBaseEvent(eventType EventType, correlationID string, occurredAt time.Time) BaseEvent {
	if correlationID == "" {
		correlationID = uuid.New().String()
	}
	return BaseEvent{
		EventID:       uuid.New().String(),
		EventType:     eventType,
		SchemaVersion: 1,
		OccurredAt:    occurredAt,
		CorrelationID: correlationID,
	}
}

// OrderLine 이벤트에 포함되는 주문 상품
type OrderLine struct {
	ProductID  int64  `json:"productId"`
	Quantity   int    `json:"quantity"`
	UnitPrice  string `json:"unitPrice"`
	TotalPrice string `json:"totalPrice"`
}

// OrderCreatedEvent 주문 생성 이벤트
type OrderCreatedEvent struct {
	BaseEvent
	OrderID     int64       `json:"orderId"`
	UserID      int64       `json:"userId"`
	TotalAmount string      `json:"totalAmount"`
	Items       []OrderLine `json:"items"`
}

// OrderStatusChangedEvent 주문 상태 변경 이벤트
type OrderStatusChangedEvent struct {
	BaseEvent
	OrderID        int64   `json:"orderId"`
	From           string  `json:"from"`
	To             string  `json:"to"`
	TrackingNumber *string `json:"trackingNumber,omitempty"`
}

// OrderCanceledEvent 주문 취소 이벤트 (재고 복구 내역 포함)
type OrderCanceledEvent struct {
	BaseEvent
	OrderID  int64       `json:"orderId"`
	From     string      `json:"from"`
	Restocks []OrderLine `json:"restocks"`
}

// PaymentCompletedEvent 결제 완료 이벤트
type PaymentCompletedEvent struct {
	BaseEvent
	OrderID     int64  `json:"orderId"`
	PaymentID   int64  `json:"paymentId"`
	Amount      string `json:"amount"`
	PaymentType string `json:"paymentType"`
}

// PaymentFailedEvent 결제 실패 이벤트
type PaymentFailedEvent struct {
	BaseEvent
	OrderID int64  `json:"orderId"`
	Reason  string `json:"reason"`
}

// PaymentRefundedEvent 결제 환불 이벤트
type PaymentRefundedEvent struct {
	BaseEvent
	OrderID   int64  `json:"orderId"`
	PaymentID int64  `json:"paymentId"`
	Amount    string `json:"amount"`
}
