package main

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/kyungseok/retail-fulfillment/common/events"
	"github.com/kyungseok/retail-fulfillment/common/idempotency"
	"github.com/kyungseok/retail-fulfillment/common/logger"
	"github.com/kyungseok/retail-fulfillment/common/messaging"
	"github.com/kyungseok/retail-fulfillment/common/metrics"
	"github.com/kyungseok/retail-fulfillment/common/retry"
	"github.com/kyungseok/retail-fulfillment/services/order/internal/config"
	"github.com/kyungseok/retail-fulfillment/services/order/internal/domain"
	"github.com/kyungseok/retail-fulfillment/services/order/internal/handler"
	"github.com/kyungseok/retail-fulfillment/services/order/internal/repository"
	"github.com/kyungseok/retail-fulfillment/services/order/internal/repository/memory"
	"github.com/kyungseok/retail-fulfillment/services/order/internal/repository/postgres"
	"github.com/kyungseok/retail-fulfillment/services/order/internal/service"
	"github.com/kyungseok/retail-fulfillment/services/order/internal/worker"
)

func main() {
	// Config 로드
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	// Logger 초기화
	log, err := logger.NewLogger(cfg.ServiceName, cfg.Development, cfg.LogLevel)
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer log.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 저장소 초기화
	store, err := openStore(ctx, cfg, log)
	if err != nil {
		log.Fatal("failed to open store", zap.Error(err))
	}
	defer store.Close()

	m := metrics.New("order")

	// Service 초기화
	orderService := service.NewOrderService(store, cfg.StatusPolicy, log)
	log.Info("order service initialized", zap.String("statusPolicy", string(cfg.StatusPolicy)))

	// Kafka (브로커 미설정 시 비활성화)
	if cfg.KafkaEnabled() {
		stopMessaging, err := startMessaging(ctx, cfg, store, orderService, m, log)
		if err != nil {
			log.Fatal("failed to start messaging", zap.Error(err))
		}
		defer stopMessaging()
	} else {
		log.Warn("kafka disabled, outbox events will stay pending")
	}

	// gRPC 헬스 체크 서버
	healthServer := health.NewServer()
	grpcServer := grpc.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus(cfg.ServiceName, healthpb.HealthCheckResponse_SERVING)

	grpcListener, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		log.Fatal("failed to listen for grpc", zap.Error(err))
	}
	go func() {
		log.Info("grpc health server starting", zap.String("port", cfg.GRPCPort))
		if err := grpcServer.Serve(grpcListener); err != nil {
			log.Error("grpc server failed", zap.Error(err))
		}
	}()

	// HTTP Server 시작
	var handlerOpts []handler.Option
	if cfg.JWTSecret != "" {
		handlerOpts = append(handlerOpts, handler.WithAuthenticator(handler.NewJWTAuthenticator(cfg.JWTSecret)))
		log.Info("bearer token authentication enabled")
	}

	mux := http.NewServeMux()
	handler.NewHTTPHandler(orderService, store, m, log, handlerOpts...).Register(mux)
	mux.Handle("GET /metrics", m.Handler())

	server := &http.Server{
		Addr:              ":" + cfg.ServicePort,
		Handler:           m.Middleware(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info("http server starting", zap.String("port", cfg.ServicePort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("http server failed", zap.Error(err))
		}
	}()

	// Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")
	healthServer.Shutdown()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}
	grpcServer.GracefulStop()

	cancel() // outbox worker, consumer 종료
	log.Info("server stopped")
}

func openStore(ctx context.Context, cfg config.Config, log *zap.Logger) (repository.Store, error) {
	if cfg.StoreDriver == config.StoreDriverMemory {
		store := memory.NewStore()
		seedDemoCatalog(store)
		log.Warn("using in-memory store, data is not persisted")
		return store, nil
	}

	// PostgreSQL 연결
	db, err := sql.Open("postgres", cfg.DBDSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.DBMaxOpenConns)
	db.SetMaxIdleConns(cfg.DBMaxIdleConns)
	db.SetConnMaxLifetime(5 * time.Minute)

	// DB 기동 대기
	err = retry.Do(ctx, retry.StartupConfig("postgres ping"), log, func() error {
		return db.PingContext(ctx)
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	log.Info("connected to database")

	if err := postgres.Migrate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	return postgres.NewStore(db), nil
}

// startMessaging outbox 릴레이와 결제 이벤트 구독 시작, 종료 함수 반환
func startMessaging(
	ctx context.Context,
	cfg config.Config,
	store repository.Store,
	orderService service.OrderService,
	m *metrics.Metrics,
	log *zap.Logger,
) (func(), error) {
	// Redis 연결
	redisClient := redis.NewClient(&redis.Options{
		Addr: cfg.RedisAddr,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		redisClient.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	log.Info("connected to redis")

	// Kafka Producer 초기화
	publisher, err := retry.DoWithResult(ctx, retry.StartupConfig("kafka producer"), log, func() (*messaging.KafkaPublisher, error) {
		return messaging.NewKafkaPublisher(cfg.KafkaBrokers, log)
	})
	if err != nil {
		redisClient.Close()
		return nil, err
	}
	log.Info("kafka publisher initialized")

	// Kafka Consumer 초기화
	consumer, err := messaging.NewKafkaConsumer(cfg.KafkaBrokers, cfg.KafkaConsumerGroup, log)
	if err != nil {
		publisher.Close()
		redisClient.Close()
		return nil, err
	}

	idemStore := idempotency.NewRedisStore(redisClient, cfg.ServiceName+":payment-events")
	eventHandler := handler.NewEventHandler(orderService, idemStore, m, log)

	if err := consumer.Subscribe(ctx, events.PaymentTopics, eventHandler.HandleMessage); err != nil {
		consumer.Close()
		publisher.Close()
		redisClient.Close()
		return nil, err
	}
	log.Info("subscribed to kafka topics", zap.Strings("topics", events.PaymentTopics))

	// Outbox Worker 시작
	outboxWorker := worker.NewOutboxWorker(
		store.Repositories().Outbox,
		publisher,
		m,
		log,
		cfg.OutboxInterval,
		cfg.OutboxBatchSize,
	)
	go outboxWorker.Start(ctx)

	return func() {
		if err := consumer.Close(); err != nil {
			log.Error("failed to close consumer", zap.Error(err))
		}
		if err := publisher.Close(); err != nil {
			log.Error("failed to close publisher", zap.Error(err))
		}
		if err := redisClient.Close(); err != nil {
			log.Error("failed to close redis", zap.Error(err))
		}
	}, nil
}

// seedDemoCatalog 메모리 저장소용 샘플 데이터
func seedDemoCatalog(store *memory.Store) {
	store.PutUser(1)
	store.PutUser(2)
	store.PutProduct(domain.Product{
		ID:     1,
		Name:   "Basic Tee",
		Price:  decimal.RequireFromString("20.00"),
		Stock:  50,
		Active: true,
	})
	store.PutProduct(domain.Product{
		ID:        2,
		Name:      "Denim Jacket",
		Price:     decimal.RequireFromString("50.00"),
		SalePrice: decimal.NewNullDecimal(decimal.RequireFromString("40.00")),
		Stock:     10,
		Active:    true,
	})
}
