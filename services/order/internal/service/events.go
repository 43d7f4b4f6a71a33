package service

import (
	"github.com/kyungseok/retail-fulfillment/common/errors"
	"github.com/kyungseok/retail-fulfillment/common/events"
	"github.com/kyungseok/retail-fulfillment/services/order/internal/domain"
)

func newOrderCreatedEvent(order *domain.Order) events.OrderCreatedEvent {
	lines := make([]events.OrderLine, 0, len(order.Items))
	for _, item := range order.Items {
		lines = append(lines, orderLine(item))
	}

	return events.OrderCreatedEvent{
		BaseEvent:   events.NewBaseEvent(events.EventOrderCreated, order.IdempotencyKey, order.CreatedAt),
		OrderID:     order.ID,
		UserID:      order.UserID,
		TotalAmount: order.TotalAmount.StringFixed(2),
		Items:       lines,
	}
}

func orderLine(item domain.OrderItem) events.OrderLine {
	return events.OrderLine{
		ProductID:  item.ProductID,
		Quantity:   item.Quantity,
		UnitPrice:  item.UnitPrice.StringFixed(2),
		TotalPrice: item.TotalPrice.StringFixed(2),
	}
}

func eventTypeOf(event interface{}) (events.EventType, error) {
	switch e := event.(type) {
	case events.OrderCreatedEvent:
		return e.EventType, nil
	case events.OrderStatusChangedEvent:
		return e.EventType, nil
	case events.OrderCanceledEvent:
		return e.EventType, nil
	default:
		return "", errors.Newf(errors.ErrCodeSerializationError, "unsupported outbox event: %T", event)
	}
}
