package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/linemk/bookstore/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestMustLoadByPath_Success(t *testing.T) {
	// Устанавливаем обязательные переменные окружения
	t.Setenv("DB_PASSWORD", "mypassword")
	t.Setenv("JWT_SECRET", "mysecret")

	path := writeConfig(t, `
env: "local"
http_server:
  address: "localhost:8080"
  timeout: "4s"
  idle_timeout: "60s"
database:
  host: "localhost"
  port: 5432
  user: "postgres"
  name: "bookstore"
  max_open_conns: 20
jwt:
  token_ttl: 60
migrations:
  path: "./migrations"
kafka:
  brokers: ["kafka-1:9092", "kafka-2:9092"]
  topic: "orders"
telemetry:
  metrics_enabled: false
  otlp_endpoint: "otel-collector:4317"
`)

	cfg := config.MustLoadByPath(path)

	assert.Equal(t, "local", cfg.Env)
	assert.Equal(t, "localhost:8080", cfg.HTTPServer.Address)
	assert.Equal(t, 4*time.Second, cfg.HTTPServer.Timeout)
	assert.Equal(t, 60*time.Second, cfg.HTTPServer.IdleTimeout)
	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "postgres", cfg.Database.User)
	assert.Equal(t, "bookstore", cfg.Database.Name)
	assert.Equal(t, "mypassword", cfg.Database.Password)
	assert.Equal(t, 20, cfg.Database.MaxOpenConns)
	assert.Equal(t, "mysecret", cfg.JWT.Secret)
	assert.Equal(t, 60, cfg.JWT.TokenTTL)
	assert.Equal(t, "./migrations", cfg.Migrations.Path)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "orders", cfg.Kafka.Topic)
	assert.True(t, cfg.Kafka.Enabled())
	assert.False(t, cfg.Telemetry.MetricsEnabled)
	assert.Equal(t, "/metrics", cfg.Telemetry.MetricsPath)
	assert.Equal(t, "otel-collector:4317", cfg.Telemetry.OTLPEndpoint)
}

func TestMustLoadByPath_Defaults(t *testing.T) {
	t.Setenv("DB_PASSWORD", "mypassword")
	t.Setenv("JWT_SECRET", "mysecret")

	path := writeConfig(t, `
database:
  user: "postgres"
  name: "bookstore"
`)

	cfg := config.MustLoadByPath(path)

	assert.Equal(t, "development", cfg.Env)
	assert.Equal(t, 10, cfg.Database.MaxOpenConns)
	assert.Equal(t, "bookstore.orders", cfg.Kafka.Topic)
	assert.False(t, cfg.Kafka.Enabled())
	assert.False(t, cfg.Telemetry.MetricsEnabled)
	assert.Equal(t, "/metrics", cfg.Telemetry.MetricsPath)
}

func TestMustLoadByPath_MetricsFromYAML(t *testing.T) {
	t.Setenv("DB_PASSWORD", "mypassword")
	t.Setenv("JWT_SECRET", "mysecret")

	enabled := config.MustLoadByPath(writeConfig(t, `
database:
  user: "postgres"
  name: "bookstore"
telemetry:
  metrics_enabled: true
`))
	assert.True(t, enabled.Telemetry.MetricsEnabled)

	disabled := config.MustLoadByPath(writeConfig(t, `
database:
  user: "postgres"
  name: "bookstore"
telemetry:
  metrics_enabled: false
`))
	assert.False(t, disabled.Telemetry.MetricsEnabled)
}

func TestMustLoadByPath_MetricsFromEnv(t *testing.T) {
	t.Setenv("DB_PASSWORD", "mypassword")
	t.Setenv("JWT_SECRET", "mysecret")
	t.Setenv("METRICS_ENABLED", "true")

	cfg := config.MustLoadByPath(writeConfig(t, `
database:
  user: "postgres"
  name: "bookstore"
telemetry:
  metrics_enabled: false
`))
	assert.True(t, cfg.Telemetry.MetricsEnabled)
}

func TestMustLoadByPath_KafkaBrokersFromEnv(t *testing.T) {
	t.Setenv("DB_PASSWORD", "mypassword")
	t.Setenv("JWT_SECRET", "mysecret")
	t.Setenv("KAFKA_BROKERS", "localhost:9092,localhost:9093")

	path := writeConfig(t, `
database:
  user: "postgres"
  name: "bookstore"
`)

	cfg := config.MustLoadByPath(path)
	assert.Equal(t, []string{"localhost:9092", "localhost:9093"}, cfg.Kafka.Brokers)
}

func TestDatabaseConfig_DSN(t *testing.T) {
	cfg := config.DatabaseConfig{Host: "db", Port: 5433, User: "shop", Password: "p@ss word", Name: "bookstore"}
	assert.Equal(t, "postgres://shop:p%40ss%20word@db:5433/bookstore?sslmode=disable", cfg.DSN())
}

func TestMustLoadByPath_FileNotFound(t *testing.T) {
	// Ожидаем панику, если файла не существует
	assert.Panics(t, func() {
		config.MustLoadByPath("non_existent_config.yaml")
	})
}
