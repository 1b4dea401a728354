package bootstrap

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfigLayersFileAndEnv(t *testing.T) {
	path := writeConfig(t, `
service:
  http_port: 8181
dependencies:
  postgres_url: postgres://file/db
  kafka_brokers: [kafka-1:9092]
seats:
  activation_grace_period: 48h
outbox:
  batch_size: 25
`)
	t.Setenv("HTTP_PORT", "9191")
	t.Setenv("REDIS_URL", "redis://env:6379/1")
	t.Setenv("OUTBOX_CLAIM_TTL", "45s")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 9191, cfg.HTTPPort)
	assert.Equal(t, "postgres://file/db", cfg.DatabaseURL)
	assert.Equal(t, "redis://env:6379/1", cfg.RedisURL)
	assert.Equal(t, []string{"kafka-1:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 48*time.Hour, cfg.ActivationGracePeriod)
	assert.Equal(t, 25, cfg.OutboxBatchSize)
	assert.Equal(t, 45*time.Second, cfg.OutboxClaimTTL)
	assert.Equal(t, 9090, cfg.GRPCPort)
	assert.Equal(t, 10, cfg.ActivationRateLimit)
	assert.Equal(t, 24*time.Hour, cfg.ActivationRateWindow)
}

func TestLoadConfigActivationRateLimit(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, `
dependencies:
  postgres_url: postgres://file/db
seats:
  activation_rate_limit: 0
`))
	require.NoError(t, err)
	assert.Zero(t, cfg.ActivationRateLimit, "an explicit zero disables the cap")

	t.Setenv("ACTIVATION_RATE_LIMIT", "5")
	t.Setenv("ACTIVATION_RATE_WINDOW", "1h")
	cfg, err = LoadConfig(writeConfig(t, "dependencies:\n  postgres_url: x\n"))
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.ActivationRateLimit)
	assert.Equal(t, time.Hour, cfg.ActivationRateWindow)

	t.Setenv("ACTIVATION_RATE_WINDOW", "0s")
	_, err = LoadConfig(writeConfig(t, "dependencies:\n  postgres_url: x\n"))
	require.ErrorContains(t, err, "activation rate window")
}

func TestLoadConfigEnvBrokerList(t *testing.T) {
	t.Setenv("DB_URL", "postgres://env/db")
	t.Setenv("KAFKA_BROKERS", "a:9092, ,b:9092")

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "M91-License-Service", cfg.ServiceID)
}

func TestLoadConfigRequiresDatabase(t *testing.T) {
	t.Setenv("DB_URL", "")
	t.Setenv("POSTGRES_URL", "")
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorContains(t, err, "DB_URL")
}

func TestLoadConfigRejectsBadValues(t *testing.T) {
	cases := map[string]string{
		"duration": "dependencies:\n  postgres_url: x\nseats:\n  expiry_sweep_interval: soon\n",
		"exporter": "dependencies:\n  postgres_url: x\ntelemetry:\n  trace_exporter: jaeger\n",
		"yaml":     "service: [",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, body))
			require.Error(t, err)
		})
	}
}

func TestLoadConfigDisallowsEphemeralJWTWithoutKey(t *testing.T) {
	t.Setenv("DB_URL", "postgres://env/db")
	t.Setenv("JWT_ALLOW_EPHEMERAL", "false")
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorContains(t, err, "JWT_PRIVATE_KEY_PEM")
}
