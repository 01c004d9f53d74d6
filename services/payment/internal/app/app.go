package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/unimarket/UniMarketGo/pkg/database"
	"github.com/unimarket/UniMarketGo/pkg/health"
	"github.com/unimarket/UniMarketGo/pkg/httpclient"
	pkgkafka "github.com/unimarket/UniMarketGo/pkg/kafka"
	"github.com/unimarket/UniMarketGo/pkg/tracing"
	"github.com/unimarket/UniMarketGo/services/payment/internal/config"
	"github.com/unimarket/UniMarketGo/services/payment/internal/event"
	handler "github.com/unimarket/UniMarketGo/services/payment/internal/handler/http"
	"github.com/unimarket/UniMarketGo/services/payment/internal/provider"
	"github.com/unimarket/UniMarketGo/services/payment/internal/provider/gateway"
	"github.com/unimarket/UniMarketGo/services/payment/internal/provider/mock"
	"github.com/unimarket/UniMarketGo/services/payment/internal/repository/postgres"
	"github.com/unimarket/UniMarketGo/services/payment/internal/service"
	"github.com/unimarket/UniMarketGo/services/payment/migrations"
)

const groupOrderCreated = "payment-service-order-created"

// App wires together all dependencies and runs the payment service.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	pool           *pgxpool.Pool
	redis          *redis.Client
	producer       *pkgkafka.Producer
	httpServer     *http.Server
	orderCreated   *pkgkafka.Consumer
	tracerShutdown func(context.Context) error
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	tracerShutdown, err := tracing.InitTracer(ctx, tracing.Config{
		ServiceName:    "payment",
		ServiceVersion: "0.1.0",
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTELEndpoint,
		SampleRate:     cfg.OTELSampleRate,
		Enabled:        cfg.OTELEnabled,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}

	pgCfg := database.PostgresConfig{
		Host:            cfg.PostgresHost,
		Port:            cfg.PostgresPort,
		User:            cfg.PostgresUser,
		Password:        cfg.PostgresPass,
		DBName:          cfg.PostgresDB,
		SSLMode:         cfg.PostgresSSL,
		MaxConns:        cfg.DBMaxConns,
		MinConns:        cfg.DBMinConns,
		MaxConnLifetime: time.Duration(cfg.DBMaxConnLifetimeMins) * time.Minute,
		MaxConnIdleTime: time.Duration(cfg.DBMaxConnIdleTimeMins) * time.Minute,
	}

	pool, err := database.NewPostgresPoolWithLogger(ctx, &pgCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	logger.Info("connected to PostgreSQL",
		slog.String("host", cfg.PostgresHost),
		slog.String("database", cfg.PostgresDB),
	)
	database.RegisterPoolMetrics(pool, "payment")

	if err := database.RunMigrations(ctx, pool, migrations.FS, logger); err != nil {
		pool.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	logger.Info("database migrations completed")

	producer := pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers), logger)
	if err := pingKafkaWithRetry(ctx, producer, logger); err != nil {
		logger.Warn("kafka ping failed after retries, continuing in degraded mode",
			slog.String("error", err.Error()),
		)
	}

	paymentProvider := buildProvider(cfg, logger)
	logger.Info("payment provider selected", slog.String("provider", paymentProvider.Name()))

	paymentRepo := postgres.NewPaymentRepository(pool)
	eventProducer := event.NewProducer(producer, logger)
	paymentService := service.NewPaymentService(pool, paymentRepo, paymentProvider, eventProducer, cfg.ChargeTimeout, logger)

	var redisClient *redis.Client
	var idempotencyStore pkgkafka.IdempotencyStore
	if cfg.IdempotencyStore == "redis" {
		redisClient, err = database.NewRedisClient(ctx, database.RedisConfig{
			Host:     cfg.RedisHost,
			Port:     cfg.RedisPort,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		idempotencyStore = pkgkafka.NewRedisIdempotencyStore(redisClient, "payment", 24*time.Hour)
	} else {
		idempotencyStore = pkgkafka.NewMemoryIdempotencyStore(24 * time.Hour)
	}

	eventConsumer := event.NewConsumer(paymentService, logger)

	orderCreatedConsumer := pkgkafka.NewConsumer(pkgkafka.ConsumerConfig{
		Brokers:   cfg.KafkaBrokers,
		GroupID:   groupOrderCreated,
		Topic:     event.TopicOrderCreated,
		MinBytes:  1,
		MaxBytes:  10e6,
		EnableDLQ: true,
	}, pkgkafka.IdempotentHandler(idempotencyStore, eventConsumer.HandleOrderCreated, logger), logger)

	healthHandler := health.NewHandler()
	healthHandler.RegisterCritical("postgres", func(ctx context.Context) error {
		return pool.Ping(ctx)
	})
	healthHandler.RegisterNonCritical("kafka", func(ctx context.Context) error {
		return producer.Ping(ctx)
	})
	if redisClient != nil {
		healthHandler.RegisterNonCritical("redis", func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		})
	}

	router := handler.NewRouter(paymentService, healthHandler, logger)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return &App{
		cfg:            cfg,
		logger:         logger,
		pool:           pool,
		redis:          redisClient,
		producer:       producer,
		httpServer:     httpServer,
		orderCreated:   orderCreatedConsumer,
		tracerShutdown: tracerShutdown,
	}, nil
}

func buildProvider(cfg *config.Config, logger *slog.Logger) provider.Provider {
	if cfg.Provider == "gateway" {
		client := httpclient.New(httpclient.Config{
			Timeout:        cfg.ChargeTimeout,
			MaxRetries:     2,
			RetryWaitMin:   200 * time.Millisecond,
			RetryWaitMax:   time.Second,
			MaxConnections: 50,
		})
		return gateway.NewProvider(cfg.GatewayBaseURL, client, logger)
	}
	return mock.NewProvider(cfg.SuccessRate, cfg.MockLatency)
}

// Run starts the HTTP server and the order.created consumer, then blocks
// until the context is canceled or a component fails.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 2)

	go func() {
		a.logger.Info("starting HTTP server", slog.String("addr", a.httpServer.Addr))
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	go func() {
		if err := a.orderCreated.Start(ctx); err != nil {
			errCh <- fmt.Errorf("order created consumer: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
		return nil
	case err := <-errCh:
		return err
	}
}

// Shutdown gracefully stops all components.
func (a *App) Shutdown(ctx context.Context) error {
	var errs []error

	if err := a.httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http server shutdown: %w", err))
	}
	if err := a.orderCreated.Close(); err != nil {
		errs = append(errs, fmt.Errorf("order created consumer close: %w", err))
	}
	if err := a.producer.Close(); err != nil {
		errs = append(errs, fmt.Errorf("producer close: %w", err))
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis close: %w", err))
		}
	}
	if err := a.tracerShutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("tracer shutdown: %w", err))
	}
	a.pool.Close()

	a.logger.Info("payment service stopped")
	return errors.Join(errs...)
}

func pingKafkaWithRetry(ctx context.Context, producer *pkgkafka.Producer, logger *slog.Logger) error {
	var lastErr error
	for attempt := 1; attempt <= 3; attempt++ {
		if lastErr = producer.Ping(ctx); lastErr == nil {
			logger.Info("kafka producer initialized")
			return nil
		}
		logger.Warn("kafka ping failed, retrying",
			slog.Int("attempt", attempt),
			slog.String("error", lastErr.Error()),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * time.Second):
		}
	}
	return lastErr
}
