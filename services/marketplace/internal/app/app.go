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
	pkgkafka "github.com/unimarket/UniMarketGo/pkg/kafka"
	"github.com/unimarket/UniMarketGo/pkg/tracing"
	"github.com/unimarket/UniMarketGo/services/marketplace/internal/config"
	"github.com/unimarket/UniMarketGo/services/marketplace/internal/event"
	handler "github.com/unimarket/UniMarketGo/services/marketplace/internal/handler/http"
	"github.com/unimarket/UniMarketGo/services/marketplace/internal/repository/postgres"
	"github.com/unimarket/UniMarketGo/services/marketplace/internal/service"
	"github.com/unimarket/UniMarketGo/services/marketplace/migrations"
)

// Consumer group IDs. One group per payment result topic so each result type
// is a separate durable queue binding.
const (
	groupPaymentCompleted = "marketplace-payment-completed"
	groupPaymentFailed    = "marketplace-payment-failed"
)

// App wires together all dependencies and runs the marketplace service.
type App struct {
	cfg              *config.Config
	logger           *slog.Logger
	pool             *pgxpool.Pool
	redis            *redis.Client
	producer         *pkgkafka.Producer
	httpServer       *http.Server
	paymentCompleted *pkgkafka.Consumer
	paymentFailed    *pkgkafka.Consumer
	tracerShutdown   func(context.Context) error
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	tracerShutdown, err := tracing.InitTracer(ctx, tracing.Config{
		ServiceName:    "marketplace",
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
	database.RegisterPoolMetrics(pool, "marketplace")

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

	orderRepo := postgres.NewOrderRepository(pool)
	productRepo := postgres.NewProductRepository(pool)
	eventProducer := event.NewProducer(producer, logger)
	orderService := service.NewOrderService(pool, orderRepo, productRepo, eventProducer, logger)
	productService := service.NewProductService(pool, productRepo, logger)

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
		idempotencyStore = pkgkafka.NewRedisIdempotencyStore(redisClient, "marketplace", 24*time.Hour)
	} else {
		idempotencyStore = pkgkafka.NewMemoryIdempotencyStore(24 * time.Hour)
	}

	eventConsumer := event.NewConsumer(orderService, logger)

	paymentCompletedConsumer := pkgkafka.NewConsumer(pkgkafka.ConsumerConfig{
		Brokers:   cfg.KafkaBrokers,
		GroupID:   groupPaymentCompleted,
		Topic:     event.TopicPaymentCompleted,
		MinBytes:  1,
		MaxBytes:  10e6,
		EnableDLQ: true,
	}, pkgkafka.IdempotentHandler(idempotencyStore, eventConsumer.HandlePaymentCompleted, logger), logger)

	paymentFailedConsumer := pkgkafka.NewConsumer(pkgkafka.ConsumerConfig{
		Brokers:   cfg.KafkaBrokers,
		GroupID:   groupPaymentFailed,
		Topic:     event.TopicPaymentFailed,
		MinBytes:  1,
		MaxBytes:  10e6,
		EnableDLQ: true,
	}, pkgkafka.IdempotentHandler(idempotencyStore, eventConsumer.HandlePaymentFailed, logger), logger)

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

	router := handler.NewRouter(orderService, productService, healthHandler, logger)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return &App{
		cfg:              cfg,
		logger:           logger,
		pool:             pool,
		redis:            redisClient,
		producer:         producer,
		httpServer:       httpServer,
		paymentCompleted: paymentCompletedConsumer,
		paymentFailed:    paymentFailedConsumer,
		tracerShutdown:   tracerShutdown,
	}, nil
}

// Run starts the HTTP server and Kafka consumers, then blocks until the
// context is canceled or a component fails.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 3)

	go func() {
		a.logger.Info("starting HTTP server", slog.String("addr", a.httpServer.Addr))
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	go func() {
		if err := a.paymentCompleted.Start(ctx); err != nil {
			errCh <- fmt.Errorf("payment completed consumer: %w", err)
		}
	}()

	go func() {
		if err := a.paymentFailed.Start(ctx); err != nil {
			errCh <- fmt.Errorf("payment failed consumer: %w", err)
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
	if err := a.paymentCompleted.Close(); err != nil {
		errs = append(errs, fmt.Errorf("payment completed consumer close: %w", err))
	}
	if err := a.paymentFailed.Close(); err != nil {
		errs = append(errs, fmt.Errorf("payment failed consumer close: %w", err))
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

	a.logger.Info("marketplace service stopped")
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
