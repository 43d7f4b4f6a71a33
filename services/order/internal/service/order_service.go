package service

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kyungseok/retail-fulfillment/common/errors"
	"github.com/kyungseok/retail-fulfillment/common/events"
	"github.com/kyungseok/retail-fulfillment/services/order/internal/domain"
	"github.com/kyungseok/retail-fulfillment/services/order/internal/repository"
)

// CreateOrderCommand 주문 생성 커맨드
type CreateOrderCommand struct {
	UserID          int64
	ShippingAddress string
	Lines           []domain.CartLine
	IdempotencyKey  string
}

// UpdateStatusCommand 주문 상태 변경 커맨드
type UpdateStatusCommand struct {
	OrderID        int64
	Status         string
	TrackingNumber *string
}

// OrderService 주문 서비스 인터페이스
type OrderService interface {
	CreateOrder(ctx context.Context, cmd CreateOrderCommand) (*domain.Order, error)
	UpdateStatus(ctx context.Context, cmd UpdateStatusCommand) (*domain.Order, error)
	CancelOrder(ctx context.Context, orderID int64) (*domain.Order, error)
	UpdatePaymentStatus(ctx context.Context, orderID int64, status string) (*domain.Order, error)
	GetOrder(ctx context.Context, orderID int64) (*domain.Order, error)
	ListOrdersForUser(ctx context.Context, userID int64, page repository.Page) ([]*domain.Order, error)
	ListAll(ctx context.Context, page repository.Page) ([]*domain.Order, error)
	ListByStatus(ctx context.Context, status string) ([]*domain.Order, error)
	GetByTrackingNumber(ctx context.Context, trackingNumber string) (*domain.Order, error)
	GetStatusCounts(ctx context.Context) (domain.StatusCounts, error)
}

type orderService struct {
	store  repository.Store
	policy domain.TransitionPolicy
	logger *zap.Logger
	now    func() time.Time
}

// Option 주문 서비스 옵션
type Option func(*orderService)

// WithClock 시각 공급자 지정 (테스트용)
func WithClock(now func() time.Time) Option {
	return func(s *orderService) {
		s.now = now
	}
}

// NewOrderService 주문 서비스 생성
func NewOrderService(
	store repository.Store,
	policy domain.TransitionPolicy,
	logger *zap.Logger,
	opts ...Option,
) OrderService {
	s := &orderService{
		store:  store,
		policy: policy,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateOrder 주문 생성
//
// 재고 예약, 주문/주문 상품 저장, outbox 이벤트가 하나의 트랜잭션으로 커밋된다.
// 어떤 라인이라도 실패하면 트랜잭션 전체가 롤백되어 재고 변경과 주문이 남지 않는다.
func (s *orderService) CreateOrder(ctx context.Context, cmd CreateOrderCommand) (*domain.Order, error) {
	// 멱등성 체크
	if cmd.IdempotencyKey != "" {
		existing, err := s.store.Repositories().Orders.FindByIdempotencyKey(ctx, cmd.UserID, cmd.IdempotencyKey)
		if err == nil {
			s.logger.Info("order already exists with idempotency key",
				zap.String("idempotencyKey", cmd.IdempotencyKey),
				zap.Int64("orderId", existing.ID))
			return existing, nil
		}
		if !stderrors.Is(err, repository.ErrNotFound) {
			return nil, dbError("failed to check idempotency key", err)
		}
	}

	// 입력 검증 (예약 시도 전)
	if len(cmd.Lines) == 0 {
		return nil, errors.New(errors.ErrCodeEmptyOrder, "order must contain at least one item")
	}
	if strings.TrimSpace(cmd.ShippingAddress) == "" {
		return nil, errors.New(errors.ErrCodeInvalidOrder, "shipping address cannot be blank")
	}

	var order *domain.Order
	err := s.store.RunInTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		exists, err := repos.Users.Exists(ctx, cmd.UserID)
		if err != nil {
			return dbError("failed to find user", err)
		}
		if !exists {
			return errors.Newf(errors.ErrCodeUserNotFound, "user not found with ID: %d", cmd.UserID)
		}

		ledger := NewLedger(repos.Products, s.logger)
		items, total, err := NewAssembler(repos.Products, ledger, s.logger).Assemble(ctx, cmd.UserID, cmd.Lines)
		if err != nil {
			return err
		}

		now := s.now()
		order = &domain.Order{
			UserID:          cmd.UserID,
			Status:          domain.OrderStatusPending,
			PaymentStatus:   domain.PaymentStatusPending,
			Items:           items,
			TotalAmount:     total,
			ShippingAddress: strings.TrimSpace(cmd.ShippingAddress),
			IdempotencyKey:  cmd.IdempotencyKey,
			CreatedAt:       now,
			UpdatedAt:       now,
		}

		if err := repos.Orders.Create(ctx, order); err != nil {
			return err
		}

		return s.appendOutbox(ctx, repos.Outbox, order.ID, newOrderCreatedEvent(order))
	})

	if err != nil {
		// 동일 키 동시 요청: 먼저 커밋된 주문 반환
		if stderrors.Is(err, repository.ErrDuplicate) && cmd.IdempotencyKey != "" {
			existing, findErr := s.store.Repositories().Orders.FindByIdempotencyKey(ctx, cmd.UserID, cmd.IdempotencyKey)
			if findErr == nil {
				return existing, nil
			}
		}

		s.logFailure("failed to create order", err, zap.Int64("userId", cmd.UserID))
		return nil, dbError("failed to create order", err)
	}

	s.logger.Info("order created successfully",
		zap.Int64("orderId", order.ID),
		zap.Int64("userId", order.UserID),
		zap.Int("items", len(order.Items)),
		zap.String("totalAmount", order.TotalAmount.StringFixed(2)))

	return order, nil
}

// UpdateStatus 주문 상태 변경 (관리자)
//
// CANCELLED 로의 변경은 취소 경로를 거쳐 재고가 복구된다.
func (s *orderService) UpdateStatus(ctx context.Context, cmd UpdateStatusCommand) (*domain.Order, error) {
	newStatus, err := domain.ParseOrderStatus(cmd.Status)
	if err != nil {
		return nil, err
	}

	var order *domain.Order
	err = s.store.RunInTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		order, err = findForUpdate(ctx, repos.Orders, cmd.OrderID)
		if err != nil {
			return err
		}

		now := s.now()
		previous := order.Status
		changed := false

		if newStatus == domain.OrderStatusCancelled {
			changed, err = s.cancelInTx(ctx, repos, order, now)
			if err != nil {
				return err
			}
		} else {
			if err := order.TransitionTo(s.policy, newStatus, now); err != nil {
				return err
			}
			changed = previous != newStatus
		}

		trackingChanged := applyTrackingNumber(order, cmd.TrackingNumber, now)
		if !changed && !trackingChanged {
			return nil
		}

		if err := repos.Orders.Update(ctx, order); err != nil {
			return dbError("failed to update order", err)
		}

		if newStatus == domain.OrderStatusCancelled && !trackingChanged {
			return nil
		}
		return s.appendOutbox(ctx, repos.Outbox, order.ID, events.OrderStatusChangedEvent{
			BaseEvent:      events.NewBaseEvent(events.EventOrderStatusChanged, "", now),
			OrderID:        order.ID,
			From:           string(previous),
			To:             string(order.Status),
			TrackingNumber: order.TrackingNumber,
		})
	})
	if err != nil {
		s.logFailure("failed to update order status", err,
			zap.Int64("orderId", cmd.OrderID),
			zap.String("status", cmd.Status))
		return nil, dbError("failed to update order status", err)
	}

	s.logger.Info("order status updated",
		zap.Int64("orderId", order.ID),
		zap.String("status", string(order.Status)))
	return order, nil
}

// CancelOrder 주문 취소 및 재고 복구
//
// 이미 취소된 주문은 아무 변경 없이 그대로 반환한다.
func (s *orderService) CancelOrder(ctx context.Context, orderID int64) (*domain.Order, error) {
	var order *domain.Order
	err := s.store.RunInTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		var err error
		order, err = findForUpdate(ctx, repos.Orders, orderID)
		if err != nil {
			return err
		}

		changed, err := s.cancelInTx(ctx, repos, order, s.now())
		if err != nil || !changed {
			return err
		}

		if err := repos.Orders.Update(ctx, order); err != nil {
			return dbError("failed to update order", err)
		}
		return nil
	})
	if err != nil {
		s.logFailure("failed to cancel order", err, zap.Int64("orderId", orderID))
		return nil, dbError("failed to cancel order", err)
	}

	s.logger.Info("order cancelled", zap.Int64("orderId", order.ID))
	return order, nil
}

// cancelInTx 상태 전이, 재고 복구, 취소 이벤트 기록 (주문 저장은 호출자 담당)
func (s *orderService) cancelInTx(
	ctx context.Context,
	repos repository.Repositories,
	order *domain.Order,
	now time.Time,
) (bool, error) {
	if order.Status == domain.OrderStatusCancelled {
		s.logger.Info("order already cancelled, skipping restock", zap.Int64("orderId", order.ID))
		return false, nil
	}

	previous := order.Status
	if err := order.TransitionTo(s.policy, domain.OrderStatusCancelled, now); err != nil {
		return false, err
	}

	ledger := NewLedger(repos.Products, s.logger)
	restocks := make([]events.OrderLine, 0, len(order.Items))
	for _, item := range order.Items {
		if err := ledger.Release(ctx, item.ProductID, item.Quantity); err != nil {
			return false, err
		}
		restocks = append(restocks, orderLine(item))
	}

	err := s.appendOutbox(ctx, repos.Outbox, order.ID, events.OrderCanceledEvent{
		BaseEvent: events.NewBaseEvent(events.EventOrderCanceled, "", now),
		OrderID:   order.ID,
		From:      string(previous),
		Restocks:  restocks,
	})
	return err == nil, err
}

// UpdatePaymentStatus 결제 상태 변경
func (s *orderService) UpdatePaymentStatus(ctx context.Context, orderID int64, status string) (*domain.Order, error) {
	paymentStatus, err := domain.ParsePaymentStatus(status)
	if err != nil {
		return nil, err
	}

	var order *domain.Order
	err = s.store.RunInTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		order, err = findForUpdate(ctx, repos.Orders, orderID)
		if err != nil {
			return err
		}
		if order.PaymentStatus == paymentStatus {
			return nil
		}

		order.PaymentStatus = paymentStatus
		order.UpdatedAt = s.now()
		if err := repos.Orders.Update(ctx, order); err != nil {
			return dbError("failed to update payment status", err)
		}
		return nil
	})
	if err != nil {
		s.logFailure("failed to update payment status", err, zap.Int64("orderId", orderID))
		return nil, dbError("failed to update payment status", err)
	}

	s.logger.Info("payment status updated",
		zap.Int64("orderId", orderID),
		zap.String("paymentStatus", string(paymentStatus)))
	return order, nil
}

// GetOrder 주문 조회
func (s *orderService) GetOrder(ctx context.Context, orderID int64) (*domain.Order, error) {
	order, err := s.store.Repositories().Orders.FindByID(ctx, orderID)
	if stderrors.Is(err, repository.ErrNotFound) {
		return nil, errors.Newf(errors.ErrCodeOrderNotFound, "order not found with ID: %d", orderID)
	}
	if err != nil {
		return nil, dbError("failed to find order", err)
	}
	return order, nil
}

// ListOrdersForUser 사용자 주문 목록
func (s *orderService) ListOrdersForUser(ctx context.Context, userID int64, page repository.Page) ([]*domain.Order, error) {
	orders, err := s.store.Repositories().Orders.ListByUser(ctx, userID, page)
	if err != nil {
		return nil, dbError("failed to list user orders", err)
	}
	return orders, nil
}

// ListAll 전체 주문 목록
func (s *orderService) ListAll(ctx context.Context, page repository.Page) ([]*domain.Order, error) {
	orders, err := s.store.Repositories().Orders.ListAll(ctx, page)
	if err != nil {
		return nil, dbError("failed to list orders", err)
	}
	return orders, nil
}

// ListByStatus 상태별 주문 목록
func (s *orderService) ListByStatus(ctx context.Context, status string) ([]*domain.Order, error) {
	orderStatus, err := domain.ParseOrderStatus(status)
	if err != nil {
		return nil, err
	}

	orders, err := s.store.Repositories().Orders.ListByStatus(ctx, orderStatus)
	if err != nil {
		return nil, dbError("failed to list orders by status", err)
	}
	return orders, nil
}

// GetByTrackingNumber 송장번호로 주문 조회
func (s *orderService) GetByTrackingNumber(ctx context.Context, trackingNumber string) (*domain.Order, error) {
	order, err := s.store.Repositories().Orders.FindByTrackingNumber(ctx, strings.TrimSpace(trackingNumber))
	if stderrors.Is(err, repository.ErrNotFound) {
		return nil, errors.Newf(errors.ErrCodeOrderNotFound, "order not found with tracking number: %s", trackingNumber)
	}
	if err != nil {
		return nil, dbError("failed to find order", err)
	}
	return order, nil
}

// GetStatusCounts 상태별 주문 통계
func (s *orderService) GetStatusCounts(ctx context.Context) (domain.StatusCounts, error) {
	counts, err := s.store.Repositories().Orders.CountByStatus(ctx)
	if err != nil {
		return counts, dbError("failed to count orders", err)
	}
	return counts, nil
}

func (s *orderService) appendOutbox(ctx context.Context, outbox repository.OutboxRepository, orderID int64, event interface{}) error {
	eventType, err := eventTypeOf(event)
	if err != nil {
		return err
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return errors.Wrap(errors.ErrCodeSerializationError, "failed to marshal event", err)
	}

	// Outbox에 이벤트 저장 (트랜잭션과 함께 커밋)
	outboxEvent := &repository.OutboxEvent{
		AggregateType: "order",
		AggregateID:   orderID,
		EventType:     string(eventType),
		Payload:       payload,
		Status:        repository.OutboxStatusPending,
		CreatedAt:     s.now(),
	}
	if err := outbox.Insert(ctx, outboxEvent); err != nil {
		return dbError("failed to insert outbox event", err)
	}
	return nil
}

func (s *orderService) logFailure(message string, err error, fields ...zap.Field) {
	fields = append(fields, zap.Error(err))
	if errors.IsBusinessError(err) {
		s.logger.Warn(message, fields...)
		return
	}
	s.logger.Error(message, fields...)
}

func findForUpdate(ctx context.Context, orders repository.OrderRepository, orderID int64) (*domain.Order, error) {
	order, err := orders.FindByIDForUpdate(ctx, orderID)
	if stderrors.Is(err, repository.ErrNotFound) {
		return nil, errors.Newf(errors.ErrCodeOrderNotFound, "order not found with ID: %d", orderID)
	}
	if err != nil {
		return nil, dbError("failed to find order", err)
	}
	return order, nil
}

// applyTrackingNumber 송장번호 설정 (빈 문자열은 삭제), 변경 여부 반환
func applyTrackingNumber(order *domain.Order, trackingNumber *string, now time.Time) bool {
	if trackingNumber == nil {
		return false
	}

	var next *string
	if trimmed := strings.TrimSpace(*trackingNumber); trimmed != "" {
		next = &trimmed
	}

	if equalStringPtr(order.TrackingNumber, next) {
		return false
	}
	order.TrackingNumber = next
	order.UpdatedAt = now
	return true
}

func equalStringPtr(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// dbError 도메인 에러는 그대로, 그 외 에러는 DATABASE_ERROR 로 래핑
func dbError(message string, err error) error {
	if errors.CodeOf(err) != errors.ErrCodeUnknownError {
		return err
	}
	return errors.Wrap(errors.ErrCodeDatabaseError, message, err)
}
