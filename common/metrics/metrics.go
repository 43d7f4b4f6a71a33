package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 주문 서비스 지표
type Metrics struct {
	registry *prometheus.Registry

	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
	orderOperations *prometheus.CounterVec
	outboxPublished *prometheus.CounterVec
	paymentEvents   *prometheus.CounterVec
}

// New 지표 생성 및 전용 레지스트리 등록
func New(service string) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fulfillment",
			Subsystem: service,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"method", "path", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "fulfillment",
			Subsystem: service,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"method", "path"}),
		orderOperations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fulfillment",
			Subsystem: service,
			Name:      "order_operations_total",
			Help:      "Total number of order operations by outcome.",
		}, []string{"operation", "outcome"}),
		outboxPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fulfillment",
			Subsystem: service,
			Name:      "outbox_events_total",
			Help:      "Outbox events relayed to the broker.",
		}, []string{"event_type", "outcome"}),
		paymentEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fulfillment",
			Subsystem: service,
			Name:      "payment_events_total",
			Help:      "Consumed payment events by outcome.",
		}, []string{"event_type", "outcome"}),
	}

	m.registry.MustRegister(
		m.httpRequests,
		m.httpDuration,
		m.orderOperations,
		m.outboxPublished,
		m.paymentEvents,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler /metrics 핸들러
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Middleware HTTP 요청 수와 지연 시간 수집
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		path := r.Pattern
		if path == "" {
			path = "unmatched"
		}
		m.httpRequests.WithLabelValues(r.Method, path, strconv.Itoa(rec.status)).Inc()
		m.httpDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

// RecordOrderOperation 주문 작업 결과 기록
func (m *Metrics) RecordOrderOperation(operation string, err error) {
	m.orderOperations.WithLabelValues(operation, outcome(err)).Inc()
}

// RecordOutboxPublish outbox 릴레이 결과 기록
func (m *Metrics) RecordOutboxPublish(eventType string, err error) {
	m.outboxPublished.WithLabelValues(eventType, outcome(err)).Inc()
}

// RecordPaymentEvent 결제 이벤트 처리 결과 기록
func (m *Metrics) RecordPaymentEvent(eventType, result string) {
	m.paymentEvents.WithLabelValues(eventType, result).Inc()
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
