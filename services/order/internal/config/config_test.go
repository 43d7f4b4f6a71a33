package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kyungseok/retail-fulfillment/services/order/internal/domain"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "order-service", cfg.ServiceName)
	assert.Equal(t, "8001", cfg.ServicePort)
	assert.Equal(t, "9001", cfg.GRPCPort)
	assert.True(t, cfg.Development)
	assert.Equal(t, StoreDriverPostgres, cfg.StoreDriver)
	assert.Equal(t, 25, cfg.DBMaxOpenConns)
	assert.Equal(t, 10, cfg.DBMaxIdleConns)
	assert.Equal(t, []string{"localhost:9093"}, cfg.KafkaBrokers)
	assert.True(t, cfg.KafkaEnabled())
	assert.Equal(t, time.Second, cfg.OutboxInterval)
	assert.Equal(t, 100, cfg.OutboxBatchSize)
	assert.Equal(t, domain.PolicyStrict, cfg.StatusPolicy)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("SERVICE_PORT", "9000")
	t.Setenv("DEVELOPMENT", "false")
	t.Setenv("STORE_DRIVER", "MEMORY")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("OUTBOX_INTERVAL", "250ms")
	t.Setenv("OUTBOX_BATCH_SIZE", "20")
	t.Setenv("ORDER_STATUS_POLICY", "Permissive")
	t.Setenv("LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.ServicePort)
	assert.False(t, cfg.Development)
	assert.Equal(t, StoreDriverMemory, cfg.StoreDriver)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 250*time.Millisecond, cfg.OutboxInterval)
	assert.Equal(t, 20, cfg.OutboxBatchSize)
	assert.Equal(t, domain.PolicyPermissive, cfg.StatusPolicy)
	assert.Equal(t, "warn", cfg.LogLevel)
}

func TestLoad_EmptyBrokersDisablesKafka(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.False(t, cfg.KafkaEnabled())
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		key   string
		value string
	}{
		{"DB_MAX_OPEN_CONNS", "many"},
		{"DEVELOPMENT", "sometimes"},
		{"OUTBOX_INTERVAL", "soon"},
		{"OUTBOX_BATCH_SIZE", "0"},
		{"ORDER_STATUS_POLICY", "lenient"},
		{"STORE_DRIVER", "mongo"},
		{"JWT_SECRET", "short"},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
