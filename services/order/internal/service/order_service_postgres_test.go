package service

import (
	"context"
	"database/sql"
	"os"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kyungseok/retail-fulfillment/common/errors"
	"github.com/kyungseok/retail-fulfillment/services/order/internal/domain"
	"github.com/kyungseok/retail-fulfillment/services/order/internal/repository/postgres"
)

// postgresDSNEnv 설정된 경우에만 실제 PostgreSQL 로 실행
const postgresDSNEnv = "ORDER_TEST_POSTGRES_DSN"

func openTestPostgres(t *testing.T) *sql.DB {
	t.Helper()

	dsn := os.Getenv(postgresDSNEnv)
	if dsn == "" {
		t.Skipf("%s not set", postgresDSNEnv)
	}

	db, err := sql.Open("postgres", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	require.NoError(t, db.PingContext(ctx))
	require.NoError(t, postgres.Migrate(ctx, db))
	return db
}

func TestCreateOrder_PostgresNoOversellUnderConcurrency(t *testing.T) {
	db := openTestPostgres(t)
	ctx := context.Background()

	const stock = 3
	var userID, productID int64
	require.NoError(t, db.QueryRowContext(ctx,
		`INSERT INTO users (email) VALUES ($1) RETURNING id`, uuid.NewString()+"@example.com").Scan(&userID))
	require.NoError(t, db.QueryRowContext(ctx,
		`INSERT INTO products (name, price, stock) VALUES ('Last Units', 9.00, $1) RETURNING id`, stock).Scan(&productID))

	svc := NewOrderService(postgres.NewStore(db), domain.PolicyStrict, zap.NewNop())

	const n = 20
	var (
		wg         sync.WaitGroup
		mu         sync.Mutex
		succeeded  int
		rejected   int
		unexpected []error
	)
	start := make(chan struct{})

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := svc.CreateOrder(ctx, CreateOrderCommand{
				UserID:          userID,
				ShippingAddress: "1 Main St",
				Lines:           []domain.CartLine{{ProductID: productID, Quantity: 1}},
			})

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, errors.ErrCodeInsufficientStock):
				rejected++
			default:
				unexpected = append(unexpected, err)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Empty(t, unexpected)
	assert.Equal(t, stock, succeeded)
	assert.Equal(t, n-stock, rejected)

	var remaining, orders int
	require.NoError(t, db.QueryRowContext(ctx, `SELECT stock FROM products WHERE id = $1`, productID).Scan(&remaining))
	require.NoError(t, db.QueryRowContext(ctx, `SELECT COUNT(*) FROM orders WHERE user_id = $1`, userID).Scan(&orders))
	assert.Equal(t, 0, remaining)
	assert.Equal(t, stock, orders)
}
