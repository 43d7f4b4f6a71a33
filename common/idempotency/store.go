package idempotency

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	stateProcessing = "processing"
	stateDone       = "done"
)

// Store 소비한 이벤트의 중복 처리 방지 저장소
type Store interface {
	// Reserve 키를 처리 중으로 선점 (이미 존재하면 false)
	Reserve(ctx context.Context, key string, ttl time.Duration) (bool, error)
	// Complete 처리 완료 표시
	Complete(ctx context.Context, key string, ttl time.Duration) error
	// IsProcessed 처리 완료된 키인지 확인
	IsProcessed(ctx context.Context, key string) (bool, error)
	// Release 처리 실패 시 선점 해제
	Release(ctx context.Context, key string) error
}

// RedisStore Redis 기반 멱등성 저장소
type RedisStore struct {
	client redis.Cmdable
	prefix string
}

// NewRedisStore Redis 기반 멱등성 저장소 생성
func NewRedisStore(client redis.Cmdable, prefix string) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: prefix,
	}
}

// Reserve SETNX 로 키 선점
func (s *RedisStore) Reserve(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, s.fullKey(key), stateProcessing, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to reserve idempotency key: %w", err)
	}
	return ok, nil
}

// Complete 처리 완료로 덮어씀
func (s *RedisStore) Complete(ctx context.Context, key string, ttl time.Duration) error {
	if err := s.client.Set(ctx, s.fullKey(key), stateDone, ttl).Err(); err != nil {
		return fmt.Errorf("failed to complete idempotency key: %w", err)
	}
	return nil
}

// IsProcessed 처리 완료 여부 확인
func (s *RedisStore) IsProcessed(ctx context.Context, key string) (bool, error) {
	value, err := s.client.Get(ctx, s.fullKey(key)).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check idempotency key: %w", err)
	}
	return value == stateDone, nil
}

// Release 선점 해제
func (s *RedisStore) Release(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.fullKey(key)).Err(); err != nil {
		return fmt.Errorf("failed to release idempotency key: %w", err)
	}
	return nil
}

func (s *RedisStore) fullKey(key string) string {
	return fmt.Sprintf("%s:%s", s.prefix, key)
}
