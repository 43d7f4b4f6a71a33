package handler

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/kyungseok/retail-fulfillment/common/errors"
	"github.com/kyungseok/retail-fulfillment/common/events"
	"github.com/kyungseok/retail-fulfillment/common/idempotency"
	"github.com/kyungseok/retail-fulfillment/common/messaging"
	"github.com/kyungseok/retail-fulfillment/common/retry"
	"github.com/kyungseok/retail-fulfillment/services/order/internal/domain"
	"github.com/kyungseok/retail-fulfillment/services/order/internal/service"
)

const processedEventTTL = 24 * time.Hour

// 처리 결과 라벨
const (
	resultApplied   = "applied"
	resultDuplicate = "duplicate"
	resultRejected  = "rejected"
	resultFailed    = "failed"
	resultIgnored   = "ignored"
)

// EventRecorder 결제 이벤트 처리 결과 기록
type EventRecorder interface {
	RecordPaymentEvent(eventType, result string)
}

type nopEventRecorder struct{}

func (nopEventRecorder) RecordPaymentEvent(string, string) {}

// EventHandler 결제 이벤트를 주문 결제 상태에 반영
type EventHandler struct {
	orderService service.OrderService
	idemStore    idempotency.Store
	recorder     EventRecorder
	retryConfig  retry.Config
	logger       *zap.Logger
}

// NewEventHandler 이벤트 핸들러 생성
func NewEventHandler(
	orderService service.OrderService,
	idemStore idempotency.Store,
	recorder EventRecorder,
	logger *zap.Logger,
) *EventHandler {
	if recorder == nil {
		recorder = nopEventRecorder{}
	}
	return &EventHandler{
		orderService: orderService,
		idemStore:    idemStore,
		recorder:     recorder,
		retryConfig:  retry.EventConfig("apply payment event", errors.IsRetryable),
		logger:       logger,
	}
}

// paymentEvent 결제 이벤트 공통 필드
type paymentEvent struct {
	events.BaseEvent
	OrderID int64 `json:"orderId"`
}

// HandleMessage 메시지 처리
func (h *EventHandler) HandleMessage(ctx context.Context, msg *messaging.Message) error {
	eventType := events.EventType(msg.Topic)
	if header, ok := msg.Headers[messaging.HeaderEventType]; ok && header != "" {
		eventType = events.EventType(header)
	}

	var status domain.PaymentStatus
	switch eventType {
	case events.EventPaymentCompleted:
		status = domain.PaymentStatusCompleted
	case events.EventPaymentFailed:
		status = domain.PaymentStatusFailed
	case events.EventPaymentRefunded:
		status = domain.PaymentStatusRefunded
	default:
		h.logger.Warn("unknown event type", zap.String("eventType", string(eventType)))
		h.recorder.RecordPaymentEvent(string(eventType), resultIgnored)
		return nil
	}

	var evt paymentEvent
	if err := json.Unmarshal(msg.Value, &evt); err != nil {
		h.recorder.RecordPaymentEvent(string(eventType), resultRejected)
		return errors.Wrap(errors.ErrCodeSerializationError, "failed to decode payment event", err)
	}
	if evt.EventID == "" || evt.OrderID == 0 {
		h.logger.Warn("payment event missing identifiers",
			zap.String("eventType", string(eventType)),
			zap.Int64("offset", msg.Offset))
		h.recorder.RecordPaymentEvent(string(eventType), resultRejected)
		return nil
	}

	return h.apply(ctx, eventType, evt, status)
}

func (h *EventHandler) apply(ctx context.Context, eventType events.EventType, evt paymentEvent, status domain.PaymentStatus) error {
	// 멱등성 체크
	reserved, err := h.idemStore.Reserve(ctx, evt.EventID, processedEventTTL)
	if err != nil {
		h.recorder.RecordPaymentEvent(string(eventType), resultFailed)
		return errors.Wrap(errors.ErrCodeNetworkError, "failed to reserve event", err)
	}
	if !reserved {
		h.logger.Info("event already processed", zap.String("eventId", evt.EventID))
		h.recorder.RecordPaymentEvent(string(eventType), resultDuplicate)
		return nil
	}

	err = retry.Do(ctx, h.retryConfig, h.logger, func() error {
		_, err := h.orderService.UpdatePaymentStatus(ctx, evt.OrderID, string(status))
		return err
	})
	switch {
	case err == nil:
		h.logger.Info("payment status applied",
			zap.String("eventId", evt.EventID),
			zap.Int64("orderId", evt.OrderID),
			zap.String("paymentStatus", string(status)))
		h.recorder.RecordPaymentEvent(string(eventType), resultApplied)

	case errors.IsBusinessError(err):
		// 재전송해도 결과가 같으므로 처리 완료로 기록
		h.logger.Warn("payment event rejected",
			zap.String("eventId", evt.EventID),
			zap.Int64("orderId", evt.OrderID),
			zap.Error(err))
		h.recorder.RecordPaymentEvent(string(eventType), resultRejected)

	default:
		if releaseErr := h.idemStore.Release(ctx, evt.EventID); releaseErr != nil {
			h.logger.Error("failed to release event key",
				zap.String("eventId", evt.EventID),
				zap.Error(releaseErr))
		}
		h.recorder.RecordPaymentEvent(string(eventType), resultFailed)
		return err
	}

	// 처리 완료 표시
	if err := h.idemStore.Complete(ctx, evt.EventID, processedEventTTL); err != nil {
		h.logger.Error("failed to complete event key",
			zap.String("eventId", evt.EventID),
			zap.Error(err))
	}
	return nil
}
