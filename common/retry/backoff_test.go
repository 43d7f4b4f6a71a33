package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func fastConfig() Config {
	return Config{
		Operation:          "connect",
		MaxAttempts:        3,
		InitialInterval:    time.Millisecond,
		MaxInterval:        2 * time.Millisecond,
		BackoffCoefficient: 2.0,
		MaxElapsedTime:     time.Second,
	}
}

func TestDo_SucceedsAfterFailures(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastConfig(), zap.NewNop(), func() error {
		calls++
		if calls < 3 {
			return errors.New("connection refused")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_GivesUpAfterMaxAttempts(t *testing.T) {
	cause := errors.New("connection refused")
	calls := 0
	err := Do(context.Background(), fastConfig(), zap.NewNop(), func() error {
		calls++
		return cause
	})

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "max attempts reached")
	assert.Equal(t, 3, calls)
}

func TestDo_StopsOnNonRetryableError(t *testing.T) {
	cfg := fastConfig()
	permanent := errors.New("bad credentials")
	cfg.Retryable = func(err error) bool { return !errors.Is(err, permanent) }

	calls := 0
	err := Do(context.Background(), cfg, zap.NewNop(), func() error {
		calls++
		return permanent
	})

	assert.Equal(t, permanent, err)
	assert.Equal(t, 1, calls)
}

func TestDo_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Do(ctx, fastConfig(), zap.NewNop(), func() error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDoWithResult_ReturnsValue(t *testing.T) {
	calls := 0
	value, err := DoWithResult(context.Background(), fastConfig(), zap.NewNop(), func() (string, error) {
		calls++
		if calls == 1 {
			return "", errors.New("timeout")
		}
		return "connected", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "connected", value)
}

func TestPresets(t *testing.T) {
	startup := StartupConfig("postgres ping")
	assert.Equal(t, "postgres ping", startup.Operation)
	assert.Nil(t, startup.Retryable)
	assert.Positive(t, startup.MaxElapsedTime)

	retryable := func(error) bool { return true }
	event := EventConfig("apply payment event", retryable)
	assert.Equal(t, 3, event.MaxAttempts)
	assert.NotNil(t, event.Retryable)
	assert.Zero(t, event.MaxElapsedTime)
}

func TestConfig_NextIsCapped(t *testing.T) {
	cfg := Config{BackoffCoefficient: 2.0, MaxInterval: 3 * time.Second}

	assert.Equal(t, 2*time.Second, cfg.next(time.Second))
	assert.Equal(t, 3*time.Second, cfg.next(2*time.Second))
}

func TestDo_ErrorNamesOperation(t *testing.T) {
	err := Do(context.Background(), fastConfig(), zap.NewNop(), func() error {
		return errors.New("connection refused")
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "connect: max attempts reached")
}
