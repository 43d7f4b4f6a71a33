package retry

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Config 재시도 설정
type Config struct {
	// Operation 로그에 남길 작업 이름
	Operation          string
	MaxAttempts        int
	InitialInterval    time.Duration
	MaxInterval        time.Duration
	BackoffCoefficient float64
	// MaxElapsedTime 0 이면 제한 없음
	MaxElapsedTime time.Duration
	// Retryable 재시도 여부 판단 (nil 이면 모든 에러 재시도)
	Retryable func(error) bool
}

// StartupConfig 기동 시 의존 인프라(PostgreSQL, Kafka) 대기용
//
// 컨테이너가 함께 뜨는 환경에서 DB 가 늦게 준비되는 경우를 견딘다.
func StartupConfig(operation string) Config {
	return Config{
		Operation:          operation,
		MaxAttempts:        10,
		InitialInterval:    500 * time.Millisecond,
		MaxInterval:        10 * time.Second,
		BackoffCoefficient: 2.0,
		MaxElapsedTime:     2 * time.Minute,
	}
}

// EventConfig 이벤트 처리 중 일시적 저장소 오류용 짧은 재시도
//
// 소진되면 호출자는 메시지를 커밋하지 않고 재전달에 맡긴다.
func EventConfig(operation string, retryable func(error) bool) Config {
	return Config{
		Operation:          operation,
		MaxAttempts:        3,
		InitialInterval:    100 * time.Millisecond,
		MaxInterval:        time.Second,
		BackoffCoefficient: 2.0,
		Retryable:          retryable,
	}
}

// Do 재시도 실행
func Do(ctx context.Context, config Config, logger *zap.Logger, fn func() error) error {
	_, err := DoWithResult(ctx, config, logger, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// DoWithResult 재시도 실행 (결과 반환)
func DoWithResult[T any](ctx context.Context, config Config, logger *zap.Logger, fn func() (T, error)) (T, error) {
	var zero T
	var lastErr error
	interval := config.InitialInterval
	startTime := time.Now()

	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		if config.MaxElapsedTime > 0 && time.Since(startTime) > config.MaxElapsedTime {
			return zero, fmt.Errorf("%s: max elapsed time exceeded: %w", config.name(), lastErr)
		}

		value, err := fn()
		if err == nil {
			if attempt > 1 {
				logger.Info("retry succeeded",
					zap.String("operation", config.name()),
					zap.Int("attempt", attempt))
			}
			return value, nil
		}

		lastErr = err
		if config.Retryable != nil && !config.Retryable(err) {
			return zero, err
		}

		logger.Warn("retry attempt failed",
			zap.String("operation", config.name()),
			zap.Int("attempt", attempt),
			zap.Int("maxAttempts", config.MaxAttempts),
			zap.Duration("nextInterval", interval),
			zap.Error(err))

		if attempt == config.MaxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(interval):
		}
		interval = config.next(interval)
	}

	return zero, fmt.Errorf("%s: max attempts reached: %w", config.name(), lastErr)
}

// next exponential backoff, MaxInterval 상한
func (c Config) next(interval time.Duration) time.Duration {
	next := time.Duration(float64(interval) * c.BackoffCoefficient)
	if c.MaxInterval > 0 && next > c.MaxInterval {
		return c.MaxInterval
	}
	return next
}

func (c Config) name() string {
	if c.Operation == "" {
		return "operation"
	}
	return c.Operation
}
