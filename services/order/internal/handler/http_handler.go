package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kyungseok/retail-fulfillment/common/errors"
	"github.com/kyungseok/retail-fulfillment/services/order/internal/domain"
	"github.com/kyungseok/retail-fulfillment/services/order/internal/repository"
	"github.com/kyungseok/retail-fulfillment/services/order/internal/service"
)

// OperationRecorder 주문 작업 결과 기록
type OperationRecorder interface {
	RecordOrderOperation(operation string, err error)
}

type nopOperationRecorder struct{}

func (nopOperationRecorder) RecordOrderOperation(string, error) {}

// Pinger 저장소 연결 확인
type Pinger interface {
	Ping(ctx context.Context) error
}

// HTTPHandler HTTP 핸들러
type HTTPHandler struct {
	orderService service.OrderService
	health       Pinger
	recorder     OperationRecorder
	auth         Authenticator
	logger       *zap.Logger
}

// Option HTTP 핸들러 옵션
type Option func(*HTTPHandler)

// WithAuthenticator 호출자 인증 방식 지정 (기본값: 게이트웨이 헤더)
func WithAuthenticator(auth Authenticator) Option {
	return func(h *HTTPHandler) {
		h.auth = auth
	}
}

// NewHTTPHandler HTTP 핸들러 생성
func NewHTTPHandler(
	orderService service.OrderService,
	health Pinger,
	recorder OperationRecorder,
	logger *zap.Logger,
	opts ...Option,
) *HTTPHandler {
	if recorder == nil {
		recorder = nopOperationRecorder{}
	}
	h := &HTTPHandler{
		orderService: orderService,
		health:       health,
		recorder:     recorder,
		auth:         HeaderAuthenticator{},
		logger:       logger,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register 라우트 등록
func (h *HTTPHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.HealthCheck)

	mux.Handle("POST /orders", h.authenticated(h.CreateOrder))
	mux.Handle("GET /orders", h.authenticated(h.ListAll))
	mux.Handle("GET /orders/{id}", h.authenticated(h.GetOrder))
	mux.Handle("GET /orders/statistics", h.authenticated(h.GetStatistics))
	mux.Handle("GET /orders/status/{status}", h.authenticated(h.ListByStatus))
	mux.Handle("GET /orders/track/{trackingNumber}", h.authenticated(h.TrackOrder))
	mux.Handle("PUT /orders/{id}/status", h.authenticated(h.UpdateStatus))
	mux.Handle("PUT /orders/{id}/payment-status", h.authenticated(h.UpdatePaymentStatus))
	mux.Handle("POST /orders/{id}/cancel", h.authenticated(h.CancelOrder))
	mux.Handle("GET /users/{userId}/orders", h.authenticated(h.ListUserOrders))
}

// CartLineRequest 주문 상품 요청
type CartLineRequest struct {
	ProductID     int64   `json:"productId"`
	Quantity      int     `json:"quantity"`
	SelectedSize  *string `json:"selectedSize,omitempty"`
	SelectedColor *string `json:"selectedColor,omitempty"`
}

// CreateOrderRequest 주문 생성 요청
type CreateOrderRequest struct {
	ShippingAddress string            `json:"shippingAddress"`
	Items           []CartLineRequest `json:"items"`
	IdempotencyKey  string            `json:"idempotencyKey,omitempty"`
}

// UpdateStatusRequest 주문 상태 변경 요청
type UpdateStatusRequest struct {
	Status         string  `json:"status"`
	TrackingNumber *string `json:"trackingNumber,omitempty"`
}

// UpdatePaymentStatusRequest 결제 상태 변경 요청
type UpdatePaymentStatusRequest struct {
	PaymentStatus string `json:"paymentStatus"`
}

// StatisticsResponse 주문 통계 응답
type StatisticsResponse struct {
	TotalOrders int64                        `json:"totalOrders"`
	ByStatus    map[domain.OrderStatus]int64 `json:"byStatus"`
}

// ErrorResponse 에러 응답
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

type principalHandler func(w http.ResponseWriter, r *http.Request, p Principal)

// authenticated 인증되지 않은 요청 거부
func (h *HTTPHandler) authenticated(next principalHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, err := h.auth.Authenticate(r)
		if err != nil {
			h.respondErr(w, err)
			return
		}
		next(w, r.WithContext(withPrincipal(r.Context(), p)), p)
	})
}

// CreateOrder 주문 생성 API
func (h *HTTPHandler) CreateOrder(w http.ResponseWriter, r *http.Request, p Principal) {
	if err := authorize(p, RoleCustomer); err != nil {
		h.respondErr(w, err)
		return
	}

	var req CreateOrderRequest
	if err := decodeJSON(r, &req); err != nil {
		h.respondErr(w, err)
		return
	}

	key := strings.TrimSpace(r.Header.Get(HeaderIdempotencyKey))
	if key == "" {
		key = strings.TrimSpace(req.IdempotencyKey)
	}
	// IdempotencyKey가 없으면 생성
	if key == "" {
		key = uuid.New().String()
	}

	lines := make([]domain.CartLine, 0, len(req.Items))
	for _, item := range req.Items {
		lines = append(lines, domain.CartLine{
			ProductID:     item.ProductID,
			Quantity:      item.Quantity,
			SelectedSize:  item.SelectedSize,
			SelectedColor: item.SelectedColor,
		})
	}

	order, err := h.orderService.CreateOrder(r.Context(), service.CreateOrderCommand{
		UserID:          p.UserID,
		ShippingAddress: req.ShippingAddress,
		Lines:           lines,
		IdempotencyKey:  key,
	})
	h.recorder.RecordOrderOperation("create", err)
	if err != nil {
		h.respondErr(w, err)
		return
	}

	h.respondJSON(w, http.StatusCreated, order)
}

// GetOrder 주문 조회 API
func (h *HTTPHandler) GetOrder(w http.ResponseWriter, r *http.Request, p Principal) {
	orderID, err := pathID(r, "id")
	if err != nil {
		h.respondErr(w, err)
		return
	}

	order, err := h.orderService.GetOrder(r.Context(), orderID)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	if err := authorizeOwner(p, order.UserID); err != nil {
		h.respondErr(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, order)
}

// ListAll 전체 주문 목록 API (관리자)
func (h *HTTPHandler) ListAll(w http.ResponseWriter, r *http.Request, p Principal) {
	if err := authorize(p, RoleAdmin); err != nil {
		h.respondErr(w, err)
		return
	}

	page, err := pageFromQuery(r)
	if err != nil {
		h.respondErr(w, err)
		return
	}

	orders, err := h.orderService.ListAll(r.Context(), page)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, orders)
}

// ListUserOrders 사용자 주문 목록 API
func (h *HTTPHandler) ListUserOrders(w http.ResponseWriter, r *http.Request, p Principal) {
	userID, err := pathID(r, "userId")
	if err != nil {
		h.respondErr(w, err)
		return
	}
	if err := authorizeOwner(p, userID); err != nil {
		h.respondErr(w, err)
		return
	}

	page, err := pageFromQuery(r)
	if err != nil {
		h.respondErr(w, err)
		return
	}

	orders, err := h.orderService.ListOrdersForUser(r.Context(), userID, page)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, orders)
}

// ListByStatus 상태별 주문 목록 API (관리자)
func (h *HTTPHandler) ListByStatus(w http.ResponseWriter, r *http.Request, p Principal) {
	if err := authorize(p, RoleAdmin); err != nil {
		h.respondErr(w, err)
		return
	}

	orders, err := h.orderService.ListByStatus(r.Context(), r.PathValue("status"))
	if err != nil {
		h.respondErr(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, orders)
}

// UpdateStatus 주문 상태 변경 API (관리자)
func (h *HTTPHandler) UpdateStatus(w http.ResponseWriter, r *http.Request, p Principal) {
	if err := authorize(p, RoleAdmin); err != nil {
		h.respondErr(w, err)
		return
	}

	orderID, err := pathID(r, "id")
	if err != nil {
		h.respondErr(w, err)
		return
	}

	var req UpdateStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		h.respondErr(w, err)
		return
	}

	order, err := h.orderService.UpdateStatus(r.Context(), service.UpdateStatusCommand{
		OrderID:        orderID,
		Status:         req.Status,
		TrackingNumber: req.TrackingNumber,
	})
	h.recorder.RecordOrderOperation("update_status", err)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, order)
}

// UpdatePaymentStatus 결제 상태 변경 API (관리자)
func (h *HTTPHandler) UpdatePaymentStatus(w http.ResponseWriter, r *http.Request, p Principal) {
	if err := authorize(p, RoleAdmin); err != nil {
		h.respondErr(w, err)
		return
	}

	orderID, err := pathID(r, "id")
	if err != nil {
		h.respondErr(w, err)
		return
	}

	var req UpdatePaymentStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		h.respondErr(w, err)
		return
	}

	order, err := h.orderService.UpdatePaymentStatus(r.Context(), orderID, req.PaymentStatus)
	h.recorder.RecordOrderOperation("update_payment_status", err)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, order)
}

// CancelOrder 주문 취소 API (소유자 또는 관리자)
func (h *HTTPHandler) CancelOrder(w http.ResponseWriter, r *http.Request, p Principal) {
	orderID, err := pathID(r, "id")
	if err != nil {
		h.respondErr(w, err)
		return
	}

	order, err := h.orderService.GetOrder(r.Context(), orderID)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	if err := authorizeOwner(p, order.UserID); err != nil {
		h.respondErr(w, err)
		return
	}

	order, err = h.orderService.CancelOrder(r.Context(), orderID)
	h.recorder.RecordOrderOperation("cancel", err)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, order)
}

// TrackOrder 송장번호 조회 API
func (h *HTTPHandler) TrackOrder(w http.ResponseWriter, r *http.Request, p Principal) {
	order, err := h.orderService.GetByTrackingNumber(r.Context(), r.PathValue("trackingNumber"))
	if err != nil {
		h.respondErr(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, order)
}

// GetStatistics 주문 통계 API (관리자)
func (h *HTTPHandler) GetStatistics(w http.ResponseWriter, r *http.Request, p Principal) {
	if err := authorize(p, RoleAdmin); err != nil {
		h.respondErr(w, err)
		return
	}

	counts, err := h.orderService.GetStatusCounts(r.Context())
	if err != nil {
		h.respondErr(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, StatisticsResponse{
		TotalOrders: counts.Total,
		ByStatus:    counts.ByStatus,
	})
}

// HealthCheck 헬스 체크 API
func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	if err := h.health.Ping(r.Context()); err != nil {
		h.logger.Warn("health check failed", zap.Error(err))
		h.respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func pathID(r *http.Request, name string) (int64, error) {
	raw := r.PathValue(name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.Newf(errors.ErrCodeInvalidRequest, "invalid %s: %s", name, raw)
	}
	return id, nil
}

func pageFromQuery(r *http.Request) (repository.Page, error) {
	var page repository.Page
	query := r.URL.Query()

	if raw := query.Get("page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return page, errors.Newf(errors.ErrCodeInvalidRequest, "invalid page: %s", raw)
		}
		page.Number = n
	}
	if raw := query.Get("pageSize"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return page, errors.Newf(errors.ErrCodeInvalidRequest, "invalid pageSize: %s", raw)
		}
		page.Size = n
	}
	return page.Normalize(), nil
}

func decodeJSON(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidRequest, "invalid request body", err)
	}
	return nil
}

// statusFor 에러 코드를 HTTP 상태로 변환
func statusFor(err error) int {
	switch code := errors.CodeOf(err); {
	case errors.IsNotFound(err):
		return http.StatusNotFound
	case errors.IsValidation(err):
		return http.StatusBadRequest
	case code == errors.ErrCodeUnauthenticated:
		return http.StatusUnauthorized
	case code == errors.ErrCodeForbidden:
		return http.StatusForbidden
	case code == errors.ErrCodeConcurrencyConflict, code == errors.ErrCodeNetworkError, code == errors.ErrCodeTimeoutError:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *HTTPHandler) respondErr(w http.ResponseWriter, err error) {
	status := statusFor(err)
	code := errors.CodeOf(err)

	// 인프라 에러는 원인을 노출하지 않음
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", zap.String("code", string(code)), zap.Error(err))
		message := "internal server error"
		if status == http.StatusServiceUnavailable {
			message = "service temporarily unavailable, please retry"
		}
		h.respondError(w, status, message, string(code))
		return
	}

	h.respondError(w, status, errors.MessageOf(err), string(code))
}

func (h *HTTPHandler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", zap.Error(err))
	}
}

func (h *HTTPHandler) respondError(w http.ResponseWriter, status int, message string, code string) {
	h.respondJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}
