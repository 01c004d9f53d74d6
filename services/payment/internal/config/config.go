package config

import (
	"fmt"
	"time"

	pkgconfig "github.com/unimarket/UniMarketGo/pkg/config"
)

// Config holds all configuration for the payment service.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// HTTP server
	HTTPPort int `env:"PAYMENT_HTTP_PORT" envDefault:"8082"`

	// PostgreSQL
	PostgresHost          string `env:"POSTGRES_HOST" envDefault:"localhost"`
	PostgresPort          int    `env:"POSTGRES_PORT" envDefault:"5432"`
	PostgresUser          string `env:"POSTGRES_USER" envDefault:"unimarket"`
	PostgresPass          string `env:"POSTGRES_PASSWORD" envDefault:"unimarket_secret"`
	PostgresDB            string `env:"PAYMENT_DB_NAME" envDefault:"payment_db"`
	PostgresSSL           string `env:"POSTGRES_SSL_MODE" envDefault:"disable"`
	DBMaxConns            int32  `env:"PAYMENT_DB_MAX_CONNS" envDefault:"25"`
	DBMinConns            int32  `env:"PAYMENT_DB_MIN_CONNS" envDefault:"5"`
	DBMaxConnLifetimeMins int    `env:"PAYMENT_DB_MAX_CONN_LIFETIME_MINS" envDefault:"60"`
	DBMaxConnIdleTimeMins int    `env:"PAYMENT_DB_MAX_CONN_IDLE_MINS" envDefault:"30"`

	// Kafka
	KafkaBrokers []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`

	// Payment provider: "mock" or "gateway".
	Provider       string        `env:"PAYMENT_PROVIDER" envDefault:"mock"`
	ChargeTimeout  time.Duration `env:"PAYMENT_CHARGE_TIMEOUT" envDefault:"5s"`
	SuccessRate    float64       `env:"PAYMENT_SUCCESS_RATE" envDefault:"0.9"`
	MockLatency    time.Duration `env:"PAYMENT_MOCK_LATENCY" envDefault:"50ms"`
	GatewayBaseURL string        `env:"PAYMENT_GATEWAY_URL" envDefault:"http://localhost:9090"`

	// Consumer idempotency store: "memory" or "redis".
	IdempotencyStore string `env:"IDEMPOTENCY_STORE" envDefault:"memory"`
	RedisHost        string `env:"REDIS_HOST" envDefault:"localhost"`
	RedisPort        int    `env:"REDIS_PORT" envDefault:"6379"`
	RedisPassword    string `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB          int    `env:"REDIS_DB" envDefault:"0"`

	// OpenTelemetry
	OTELEnabled    bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTELEndpoint   string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4318"`
	OTELSampleRate float64 `env:"OTEL_SAMPLE_RATE" envDefault:"1.0"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load payment config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	if c.Provider != "mock" && c.Provider != "gateway" {
		return fmt.Errorf("invalid payment provider %q, must be mock or gateway", c.Provider)
	}
	if c.ChargeTimeout <= 0 {
		return fmt.Errorf("charge timeout must be positive, got %s", c.ChargeTimeout)
	}
	if c.SuccessRate < 0 || c.SuccessRate > 1 {
		return fmt.Errorf("success rate must be in [0, 1], got %g", c.SuccessRate)
	}
	if c.IdempotencyStore != "memory" && c.IdempotencyStore != "redis" {
		return fmt.Errorf("invalid idempotency store %q, must be memory or redis", c.IdempotencyStore)
	}
	if len(c.KafkaBrokers) == 0 {
		return fmt.Errorf("at least one kafka broker is required")
	}
	return nil
}

// PostgresDSN returns the PostgreSQL connection string.
func (c *Config) PostgresDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.PostgresUser, c.PostgresPass, c.PostgresHost, c.PostgresPort, c.PostgresDB, c.PostgresSSL,
	)
}
