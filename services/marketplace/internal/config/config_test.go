package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8081, cfg.HTTPPort)
	assert.Equal(t, "marketplace_db", cfg.PostgresDB)
	assert.Equal(t, []string{"localhost:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "memory", cfg.IdempotencyStore)
	assert.False(t, cfg.OTELEnabled)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("MARKETPLACE_HTTP_PORT", "9999")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092,kafka-2:9092")
	t.Setenv("IDEMPOTENCY_STORE", "redis")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.HTTPPort)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "redis", cfg.IdempotencyStore)
}

func TestLoad_RejectsBadIdempotencyStore(t *testing.T) {
	t.Setenv("IDEMPOTENCY_STORE", "etcd")

	_, err := Load()
	assert.Error(t, err)
}

func TestPostgresDSN(t *testing.T) {
	cfg := &Config{
		PostgresHost: "db", PostgresPort: 5433, PostgresUser: "u",
		PostgresPass: "p", PostgresDB: "marketplace_db", PostgresSSL: "disable",
	}
	assert.Equal(t, "postgres://u:p@db:5433/marketplace_db?sslmode=disable", cfg.PostgresDSN())
}
