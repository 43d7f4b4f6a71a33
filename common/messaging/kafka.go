package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	apperrors "github.com/kyungseok/retail-fulfillment/common/errors"
)

// defaultRedeliveryDelay 재처리 대상 메시지를 다시 읽기 전 대기 시간
const defaultRedeliveryDelay = 5 * time.Second

// HeaderEventType 이벤트 타입 헤더 이름
const HeaderEventType = "event-type"

// Publisher 이벤트 발행 인터페이스
type Publisher interface {
	Publish(ctx context.Context, topic string, key string, event interface{}) error
	Close() error
}

// Consumer 이벤트 구독 인터페이스
type Consumer interface {
	Subscribe(ctx context.Context, topics []string, handler MessageHandler) error
	Close() error
}

// MessageHandler 메시지 핸들러 함수 타입
type MessageHandler func(ctx context.Context, msg *Message) error

// Message 메시지 구조체
type Message struct {
	Topic     string
	Partition int32
	Offset    int64
	Key       []byte
	Value     []byte
	Headers   map[string]string
}

// KafkaPublisher Kafka 기반 이벤트 발행자
type KafkaPublisher struct {
	producer sarama.SyncProducer
	logger   *zap.Logger
}

// NewKafkaPublisher Kafka 발행자 생성
func NewKafkaPublisher(brokers []string, logger *zap.Logger) (*KafkaPublisher, error) {
	config := sarama.NewConfig()
	config.Producer.Return.Successes = true
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Idempotent = true
	config.Net.MaxOpenRequests = 1

	producer, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	return NewKafkaPublisherWithProducer(producer, logger), nil
}

// NewKafkaPublisherWithProducer 기존 producer 로 발행자 생성
func NewKafkaPublisherWithProducer(producer sarama.SyncProducer, logger *zap.Logger) *KafkaPublisher {
	return &KafkaPublisher{
		producer: producer,
		logger:   logger,
	}
}

// Publish 이벤트 발행
//
// event 가 이미 직렬화된 json.RawMessage 이면 그대로 전송한다.
func (p *KafkaPublisher) Publish(ctx context.Context, topic string, key string, event interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var payload []byte
	switch v := event.(type) {
	case json.RawMessage:
		payload = v
	default:
		var err error
		payload, err = json.Marshal(event)
		if err != nil {
			return fmt.Errorf("failed to marshal event: %w", err)
		}
	}

	msg := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(payload),
		Headers: []sarama.RecordHeader{
			{Key: []byte(HeaderEventType), Value: []byte(topic)},
		},
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		p.logger.Error("failed to send message",
			zap.Error(err),
			zap.String("topic", topic),
			zap.String("key", key))
		return fmt.Errorf("failed to send message: %w", err)
	}

	p.logger.Debug("message sent",
		zap.String("topic", topic),
		zap.String("key", key),
		zap.Int32("partition", partition),
		zap.Int64("offset", offset))

	return nil
}

// Close 발행자 종료
func (p *KafkaPublisher) Close() error {
	return p.producer.Close()
}

// KafkaConsumer Kafka 기반 이벤트 구독자
type KafkaConsumer struct {
	consumerGroup sarama.ConsumerGroup
	handler       MessageHandler
	logger        *zap.Logger

	// redeliver true 면 오프셋을 커밋하지 않고 세션을 재시작해 같은 메시지를 다시 받는다
	redeliver       func(error) bool
	redeliveryDelay time.Duration

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewKafkaConsumer Kafka 구독자 생성
func NewKafkaConsumer(brokers []string, groupID string, logger *zap.Logger) (*KafkaConsumer, error) {
	config := sarama.NewConfig()
	config.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	config.Consumer.Offsets.Initial = sarama.OffsetOldest
	config.Consumer.Return.Errors = true

	consumerGroup, err := sarama.NewConsumerGroup(brokers, groupID, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer group: %w", err)
	}

	return &KafkaConsumer{
		consumerGroup:   consumerGroup,
		logger:          logger,
		redeliver:       apperrors.IsRetryable,
		redeliveryDelay: defaultRedeliveryDelay,
	}, nil
}

// Subscribe 토픽 구독 (ctx 취소 또는 Close 시 중단)
func (c *KafkaConsumer) Subscribe(ctx context.Context, topics []string, handler MessageHandler) error {
	c.handler = handler

	ctx, c.cancel = context.WithCancel(ctx)
	consumerHandler := &consumerGroupHandler{
		consumer: c,
	}

	c.wg.Add(2)
	go func() {
		defer c.wg.Done()
		for {
			if err := c.consumerGroup.Consume(ctx, topics, consumerHandler); err != nil {
				c.logger.Error("error from consumer", zap.Error(err))
			}

			if ctx.Err() != nil {
				return
			}
		}
	}()

	go func() {
		defer c.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case err, ok := <-c.consumerGroup.Errors():
				if !ok {
					return
				}
				c.logger.Error("consumer group error", zap.Error(err))
			}
		}
	}()

	return nil
}

// Close 구독자 종료
func (c *KafkaConsumer) Close() error {
	if c.cancel != nil {
		c.cancel()
	}
	err := c.consumerGroup.Close()
	c.wg.Wait()
	return err
}

// consumerGroupHandler Kafka 컨슈머 그룹 핸들러
type consumerGroupHandler struct {
	consumer *KafkaConsumer
}

func (h *consumerGroupHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h *consumerGroupHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

// ConsumeClaim 메시지 처리 후 오프셋 커밋
//
// 일시적 장애로 실패한 메시지는 커밋하지 않고 에러를 반환한다.
// 세션이 종료되고 재참여 시 마지막 커밋 오프셋부터 다시 전달된다.
func (h *consumerGroupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	c := h.consumer
	for message := range claim.Messages() {
		c.logger.Debug("message received",
			zap.String("topic", message.Topic),
			zap.Int32("partition", message.Partition),
			zap.Int64("offset", message.Offset),
			zap.String("key", string(message.Key)))

		err := c.handler(session.Context(), toMessage(message))
		if err != nil {
			fields := []zap.Field{
				zap.Error(err),
				zap.String("topic", message.Topic),
				zap.Int32("partition", message.Partition),
				zap.Int64("offset", message.Offset),
			}

			// 종료 중 중단된 메시지는 다음 세션에서 처리
			if session.Context().Err() != nil {
				c.logger.Warn("message interrupted by shutdown", fields...)
				return nil
			}

			if c.redeliver != nil && c.redeliver(err) {
				c.logger.Error("failed to handle message, will redeliver", fields...)
				select {
				case <-session.Context().Done():
				case <-time.After(c.redeliveryDelay):
				}
				return fmt.Errorf("message %s/%d/%d not committed: %w",
					message.Topic, message.Partition, message.Offset, err)
			}

			// 재처리해도 결과가 같은 메시지는 건너뛴다
			c.logger.Error("failed to handle message, skipping", fields...)
		}

		session.MarkMessage(message, "")
	}

	return nil
}

func toMessage(message *sarama.ConsumerMessage) *Message {
	headers := make(map[string]string, len(message.Headers))
	for _, h := range message.Headers {
		if h == nil {
			continue
		}
		headers[string(h.Key)] = string(h.Value)
	}

	return &Message{
		Topic:     message.Topic,
		Partition: message.Partition,
		Offset:    message.Offset,
		Key:       message.Key,
		Value:     message.Value,
		Headers:   headers,
	}
}

// PublishWithOrderID 주문 ID 를 파티션 키로 사용하여 발행
func PublishWithOrderID(ctx context.Context, publisher Publisher, topic string, orderID int64, event interface{}) error {
	key := strconv.FormatInt(orderID, 10)
	return publisher.Publish(ctx, topic, key, event)
}
