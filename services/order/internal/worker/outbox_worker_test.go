package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kyungseok/retail-fulfillment/services/order/internal/repository"
	"github.com/kyungseok/retail-fulfillment/services/order/internal/repository/memory"
)

type published struct {
	topic   string
	key     string
	payload string
}

type fakePublisher struct {
	mu       sync.Mutex
	messages []published
	failOn   string
}

func (p *fakePublisher) Publish(ctx context.Context, topic string, key string, event interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if topic == p.failOn {
		return errors.New("broker unavailable")
	}
	raw, _ := event.(json.RawMessage)
	p.messages = append(p.messages, published{topic: topic, key: key, payload: string(raw)})
	return nil
}

func (p *fakePublisher) Close() error { return nil }

func (p *fakePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.messages)
}

type countingRecorder struct {
	mu      sync.Mutex
	results map[string]int
}

func (r *countingRecorder) RecordOutboxPublish(eventType string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.results == nil {
		r.results = map[string]int{}
	}
	outcome := "ok"
	if err != nil {
		outcome = "err"
	}
	r.results[eventType+":"+outcome]++
}

func seedOutbox(t *testing.T, store *memory.Store, orderID int64, eventType string) {
	t.Helper()
	err := store.Repositories().Outbox.Insert(context.Background(), &repository.OutboxEvent{
		AggregateType: "order",
		AggregateID:   orderID,
		EventType:     eventType,
		Payload:       json.RawMessage(`{"orderId":` + jsonInt(orderID) + `}`),
		Status:        repository.OutboxStatusPending,
		CreatedAt:     time.Now(),
	})
	require.NoError(t, err)
}

func jsonInt(v int64) string {
	b, _ := json.Marshal(v)
	return string(b)
}

func TestProcessOnce_PublishesAndMarksSent(t *testing.T) {
	store := memory.NewStore()
	seedOutbox(t, store, 1234, "order.created.v1")
	seedOutbox(t, store, 99, "order.canceled.v1")

	publisher := &fakePublisher{}
	recorder := &countingRecorder{}
	w := NewOutboxWorker(store.Repositories().Outbox, publisher, recorder, zap.NewNop(), time.Second, 10)

	sent, err := w.ProcessOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, sent)

	require.Len(t, publisher.messages, 2)
	assert.Equal(t, "order.created.v1", publisher.messages[0].topic)
	assert.Equal(t, "1234", publisher.messages[0].key)
	assert.JSONEq(t, `{"orderId":1234}`, publisher.messages[0].payload)
	assert.Equal(t, "99", publisher.messages[1].key)
	assert.Equal(t, 1, recorder.results["order.created.v1:ok"])

	sent, err = w.ProcessOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, sent)
	for _, e := range store.OutboxEvents() {
		assert.Equal(t, repository.OutboxStatusSent, e.Status)
		assert.NotNil(t, e.SentAt)
	}
}

func TestProcessOnce_FailedEventStaysPending(t *testing.T) {
	store := memory.NewStore()
	seedOutbox(t, store, 1, "order.created.v1")
	seedOutbox(t, store, 1, "order.status_changed.v1")

	publisher := &fakePublisher{failOn: "order.created.v1"}
	recorder := &countingRecorder{}
	w := NewOutboxWorker(store.Repositories().Outbox, publisher, recorder, zap.NewNop(), time.Second, 0)

	sent, err := w.ProcessOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	assert.Equal(t, 1, recorder.results["order.created.v1:err"])

	pending, err := store.Repositories().Outbox.FindPending(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "order.created.v1", pending[0].EventType)

	publisher.failOn = ""
	sent, err = w.ProcessOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
}

func TestStart_StopsOnCancel(t *testing.T) {
	store := memory.NewStore()
	seedOutbox(t, store, 5, "order.created.v1")
	publisher := &fakePublisher{}
	w := NewOutboxWorker(store.Repositories().Outbox, publisher, nil, zap.NewNop(), 5*time.Millisecond, 10)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return publisher.count() == 1 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}
