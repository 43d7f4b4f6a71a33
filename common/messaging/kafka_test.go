package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	apperrors "github.com/kyungseok/retail-fulfillment/common/errors"
)

func TestKafkaPublisher_PublishRawPayload(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	payload := json.RawMessage(`{"orderId":7}`)

	producer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		if string(val) != string(payload) {
			return errors.New("payload was re-encoded")
		}
		return nil
	})

	publisher := NewKafkaPublisherWithProducer(producer, zap.NewNop())
	require.NoError(t, PublishWithOrderID(context.Background(), publisher, "order.created.v1", 7, payload))
	require.NoError(t, publisher.Close())
}

func TestKafkaPublisher_PublishStruct(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		key, _ := msg.Key.Encode()
		if string(key) != "42" {
			return errors.New("unexpected key " + string(key))
		}
		if len(msg.Headers) != 1 || string(msg.Headers[0].Value) != "order.canceled.v1" {
			return errors.New("missing event type header")
		}
		return nil
	})

	publisher := NewKafkaPublisherWithProducer(producer, zap.NewNop())
	err := publisher.Publish(context.Background(), "order.canceled.v1", "42", map[string]int{"orderId": 42})
	require.NoError(t, err)
	require.NoError(t, publisher.Close())
}

func TestKafkaPublisher_SendFailure(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	publisher := NewKafkaPublisherWithProducer(producer, zap.NewNop())
	err := publisher.Publish(context.Background(), "order.created.v1", "1", json.RawMessage(`{}`))
	assert.ErrorIs(t, err, sarama.ErrOutOfBrokers)
	require.NoError(t, publisher.Close())
}

func TestKafkaPublisher_CancelledContext(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	publisher := NewKafkaPublisherWithProducer(producer, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := publisher.Publish(ctx, "order.created.v1", "1", json.RawMessage(`{}`))
	assert.ErrorIs(t, err, context.Canceled)
	require.NoError(t, publisher.Close())
}

func TestToMessage_CopiesHeaders(t *testing.T) {
	msg := toMessage(&sarama.ConsumerMessage{
		Topic:     "payment.completed.v1",
		Partition: 2,
		Offset:    11,
		Key:       []byte("5"),
		Value:     []byte(`{}`),
		Headers: []*sarama.RecordHeader{
			{Key: []byte(HeaderEventType), Value: []byte("payment.completed.v1")},
			nil,
		},
	})

	assert.Equal(t, "payment.completed.v1", msg.Topic)
	assert.Equal(t, int32(2), msg.Partition)
	assert.Equal(t, int64(11), msg.Offset)
	assert.Equal(t, "payment.completed.v1", msg.Headers[HeaderEventType])
}

// fakeSession 커밋된 오프셋 기록
type fakeSession struct {
	ctx context.Context

	mu     sync.Mutex
	marked []int64
}

func (s *fakeSession) Claims() map[string][]int32               { return nil }
func (s *fakeSession) MemberID() string                         { return "member-1" }
func (s *fakeSession) GenerationID() int32                      { return 1 }
func (s *fakeSession) MarkOffset(string, int32, int64, string)  {}
func (s *fakeSession) Commit()                                  {}
func (s *fakeSession) ResetOffset(string, int32, int64, string) {}
func (s *fakeSession) Context() context.Context                 { return s.ctx }
func (s *fakeSession) MarkMessage(msg *sarama.ConsumerMessage, metadata string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.marked = append(s.marked, msg.Offset)
}

type fakeClaim struct {
	messages chan *sarama.ConsumerMessage
}

func newFakeClaim(offsets ...int64) *fakeClaim {
	c := &fakeClaim{messages: make(chan *sarama.ConsumerMessage, len(offsets))}
	for _, offset := range offsets {
		c.messages <- &sarama.ConsumerMessage{Topic: "payment.completed.v1", Offset: offset, Value: []byte(`{}`)}
	}
	close(c.messages)
	return c
}

func (c *fakeClaim) Topic() string                            { return "payment.completed.v1" }
func (c *fakeClaim) Partition() int32                         { return 0 }
func (c *fakeClaim) InitialOffset() int64                     { return 0 }
func (c *fakeClaim) HighWaterMarkOffset() int64               { return 0 }
func (c *fakeClaim) Messages() <-chan *sarama.ConsumerMessage { return c.messages }

func newTestConsumer(handler MessageHandler) *consumerGroupHandler {
	return &consumerGroupHandler{consumer: &KafkaConsumer{
		handler:         handler,
		logger:          zap.NewNop(),
		redeliver:       apperrors.IsRetryable,
		redeliveryDelay: time.Millisecond,
	}}
}

func TestConsumeClaim_MarksHandledMessages(t *testing.T) {
	session := &fakeSession{ctx: context.Background()}
	h := newTestConsumer(func(ctx context.Context, msg *Message) error { return nil })

	require.NoError(t, h.ConsumeClaim(session, newFakeClaim(1, 2, 3)))
	assert.Equal(t, []int64{1, 2, 3}, session.marked)
}

func TestConsumeClaim_RetryableFailureIsNotMarked(t *testing.T) {
	session := &fakeSession{ctx: context.Background()}
	var seen []int64
	h := newTestConsumer(func(ctx context.Context, msg *Message) error {
		seen = append(seen, msg.Offset)
		if msg.Offset == 2 {
			return apperrors.Wrap(apperrors.ErrCodeNetworkError, "redis unavailable", errors.New("dial tcp: connection refused"))
		}
		return nil
	})

	err := h.ConsumeClaim(session, newFakeClaim(1, 2, 3))
	require.Error(t, err)
	assert.True(t, apperrors.IsRetryable(err))

	// 실패 이후 메시지는 처리하지 않고 오프셋도 커밋하지 않는다
	assert.Equal(t, []int64{1, 2}, seen)
	assert.Equal(t, []int64{1}, session.marked)
}

func TestConsumeClaim_PermanentFailureIsSkipped(t *testing.T) {
	session := &fakeSession{ctx: context.Background()}
	h := newTestConsumer(func(ctx context.Context, msg *Message) error {
		if msg.Offset == 2 {
			return apperrors.New(apperrors.ErrCodeSerializationError, "malformed payload")
		}
		return nil
	})

	require.NoError(t, h.ConsumeClaim(session, newFakeClaim(1, 2, 3)))
	assert.Equal(t, []int64{1, 2, 3}, session.marked)
}

func TestConsumeClaim_ShutdownLeavesMessageUncommitted(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	session := &fakeSession{ctx: ctx}
	h := newTestConsumer(func(ctx context.Context, msg *Message) error {
		cancel()
		return ctx.Err()
	})

	require.NoError(t, h.ConsumeClaim(session, newFakeClaim(1, 2)))
	assert.Empty(t, session.marked)
}
