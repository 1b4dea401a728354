package bootstrap

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Config is the resolved runtime configuration for M91.
// Resolution order is defaults, then configs/default.yaml, then environment.
type Config struct {
	ServiceID   string `envconfig:"SERVICE_ID"`
	Environment string `envconfig:"ENVIRONMENT"`
	Version     string `envconfig:"SERVICE_VERSION"`

	HTTPPort int `envconfig:"HTTP_PORT"`
	GRPCPort int `envconfig:"GRPC_PORT"`

	DatabaseURL      string   `envconfig:"DB_URL"`
	MaxDBConns       int32    `envconfig:"DB_MAX_CONNS"`
	AutoMigrate      bool     `envconfig:"DB_AUTO_MIGRATE"`
	RedisURL         string   `envconfig:"REDIS_URL"`
	KafkaBrokers     []string `envconfig:"KAFKA_BROKERS"`
	KafkaTopicPrefix string   `envconfig:"KAFKA_TOPIC_PREFIX"`

	JWTPrivateKeyPEM  string        `envconfig:"JWT_PRIVATE_KEY_PEM"`
	JWTKeyID          string        `envconfig:"JWT_KEY_ID"`
	JWTIssuer         string        `envconfig:"JWT_ISSUER"`
	AllowEphemeralJWT bool          `envconfig:"JWT_ALLOW_EPHEMERAL"`
	AccessTokenTTL    time.Duration `envconfig:"ACCESS_TOKEN_TTL"`

	BcryptCost         int           `envconfig:"BCRYPT_ROUNDS"`
	CredentialCacheTTL time.Duration `envconfig:"CREDENTIAL_CACHE_TTL"`
	IdempotencyTTL     time.Duration `envconfig:"IDEMPOTENCY_TTL"`

	RateLimitRPS   float64 `envconfig:"RATE_LIMIT_RPS"`
	RateLimitBurst int     `envconfig:"RATE_LIMIT_BURST"`

	ActivationRateLimit  int           `envconfig:"ACTIVATION_RATE_LIMIT"`
	ActivationRateWindow time.Duration `envconfig:"ACTIVATION_RATE_WINDOW"`

	ActivationGracePeriod time.Duration `envconfig:"ACTIVATION_GRACE_PERIOD"`
	ExpirySweepInterval   time.Duration `envconfig:"EXPIRY_SWEEP_INTERVAL"`
	ExpirySweepBatch      int           `envconfig:"EXPIRY_SWEEP_BATCH"`

	OutboxPollInterval time.Duration `envconfig:"OUTBOX_POLL_INTERVAL"`
	OutboxBatchSize    int           `envconfig:"OUTBOX_BATCH_SIZE"`
	OutboxClaimTTL     time.Duration `envconfig:"OUTBOX_CLAIM_TTL"`
	OutboxMaxRetries   int           `envconfig:"OUTBOX_MAX_RETRIES"`

	TraceExporter    string  `envconfig:"OTEL_TRACES_EXPORTER"`
	TraceSampleRatio float64 `envconfig:"OTEL_TRACES_SAMPLE_RATIO"`
	LogLevel         string  `envconfig:"LOG_LEVEL"`
}

// configFile mirrors the YAML schema used by configs/default.yaml.
type configFile struct {
	Service struct {
		ID          string `yaml:"id"`
		Environment string `yaml:"environment"`
		HTTPPort    int    `yaml:"http_port"`
		GRPCPort    int    `yaml:"grpc_port"`
		LogLevel    string `yaml:"log_level"`
	} `yaml:"service"`
	Dependencies struct {
		PostgresURL      string   `yaml:"postgres_url"`
		RedisURL         string   `yaml:"redis_url"`
		KafkaBrokers     []string `yaml:"kafka_brokers"`
		KafkaTopicPrefix string   `yaml:"kafka_topic_prefix"`
	} `yaml:"dependencies"`
	Seats struct {
		ActivationGracePeriod string `yaml:"activation_grace_period"`
		ExpirySweepInterval   string `yaml:"expiry_sweep_interval"`
		ExpirySweepBatch      int    `yaml:"expiry_sweep_batch"`
		ActivationRateLimit   *int   `yaml:"activation_rate_limit"`
		ActivationRateWindow  string `yaml:"activation_rate_window"`
	} `yaml:"seats"`
	RateLimit struct {
		RPS   float64 `yaml:"rps"`
		Burst int     `yaml:"burst"`
	} `yaml:"rate_limit"`
	Outbox struct {
		PollInterval string `yaml:"poll_interval"`
		BatchSize    int    `yaml:"batch_size"`
		MaxRetries   int    `yaml:"max_retries"`
	} `yaml:"outbox"`
	Telemetry struct {
		TraceExporter string  `yaml:"trace_exporter"`
		SampleRatio   float64 `yaml:"sample_ratio"`
	} `yaml:"telemetry"`
}

func defaultConfig() Config {
	return Config{
		ServiceID:             "M91-License-Service",
		Environment:           "development",
		Version:               "dev",
		HTTPPort:              8080,
		GRPCPort:              9090,
		MaxDBConns:            20,
		AutoMigrate:           true,
		KafkaTopicPrefix:      "m91",
		JWTKeyID:              "m91-license-key-1",
		JWTIssuer:             "m91-license-service",
		AllowEphemeralJWT:     true,
		AccessTokenTTL:        time.Hour,
		BcryptCost:            12,
		CredentialCacheTTL:    5 * time.Minute,
		IdempotencyTTL:        7 * 24 * time.Hour,
		RateLimitRPS:          50,
		RateLimitBurst:        100,
		ActivationRateLimit:   10,
		ActivationRateWindow:  24 * time.Hour,
		ActivationGracePeriod: 24 * time.Hour,
		ExpirySweepInterval:   5 * time.Minute,
		ExpirySweepBatch:      100,
		OutboxPollInterval:    2 * time.Second,
		OutboxBatchSize:       100,
		OutboxClaimTTL:        30 * time.Second,
		OutboxMaxRetries:      5,
		TraceExporter:         "none",
		TraceSampleRatio:      1,
		LogLevel:              "info",
	}
}

// LoadConfig resolves configuration in priority order: defaults -> file -> env.
// A missing file is not an error; a malformed one is.
func LoadConfig(path string) (Config, error) {
	cfg := defaultConfig()

	raw, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := applyFile(&cfg, raw); err != nil {
			return Config{}, err
		}
	case !errors.Is(err, fs.ErrNotExist):
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("process env: %w", err)
	}
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = os.Getenv("POSTGRES_URL")
	}
	cfg.KafkaBrokers = compact(cfg.KafkaBrokers)
	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyFile(cfg *Config, raw []byte) error {
	var f configFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	if f.Service.ID != "" {
		cfg.ServiceID = f.Service.ID
	}
	if f.Service.Environment != "" {
		cfg.Environment = f.Service.Environment
	}
	if f.Service.HTTPPort > 0 {
		cfg.HTTPPort = f.Service.HTTPPort
	}
	if f.Service.GRPCPort > 0 {
		cfg.GRPCPort = f.Service.GRPCPort
	}
	if f.Service.LogLevel != "" {
		cfg.LogLevel = f.Service.LogLevel
	}
	if f.Dependencies.PostgresURL != "" {
		cfg.DatabaseURL = f.Dependencies.PostgresURL
	}
	if f.Dependencies.RedisURL != "" {
		cfg.RedisURL = f.Dependencies.RedisURL
	}
	if len(f.Dependencies.KafkaBrokers) > 0 {
		cfg.KafkaBrokers = f.Dependencies.KafkaBrokers
	}
	if f.Dependencies.KafkaTopicPrefix != "" {
		cfg.KafkaTopicPrefix = f.Dependencies.KafkaTopicPrefix
	}
	if f.Seats.ExpirySweepBatch > 0 {
		cfg.ExpirySweepBatch = f.Seats.ExpirySweepBatch
	}
	if f.Seats.ActivationRateLimit != nil {
		cfg.ActivationRateLimit = *f.Seats.ActivationRateLimit
	}
	if f.RateLimit.RPS > 0 {
		cfg.RateLimitRPS = f.RateLimit.RPS
	}
	if f.RateLimit.Burst > 0 {
		cfg.RateLimitBurst = f.RateLimit.Burst
	}
	if f.Outbox.BatchSize > 0 {
		cfg.OutboxBatchSize = f.Outbox.BatchSize
	}
	if f.Outbox.MaxRetries > 0 {
		cfg.OutboxMaxRetries = f.Outbox.MaxRetries
	}
	if f.Telemetry.TraceExporter != "" {
		cfg.TraceExporter = f.Telemetry.TraceExporter
	}
	if f.Telemetry.SampleRatio > 0 {
		cfg.TraceSampleRatio = f.Telemetry.SampleRatio
	}

	durations := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"seats.activation_grace_period", f.Seats.ActivationGracePeriod, &cfg.ActivationGracePeriod},
		{"seats.expiry_sweep_interval", f.Seats.ExpirySweepInterval, &cfg.ExpirySweepInterval},
		{"seats.activation_rate_window", f.Seats.ActivationRateWindow, &cfg.ActivationRateWindow},
		{"outbox.poll_interval", f.Outbox.PollInterval, &cfg.OutboxPollInterval},
	}
	for _, d := range durations {
		if d.raw == "" {
			continue
		}
		parsed, err := time.ParseDuration(d.raw)
		if err != nil {
			return fmt.Errorf("parse %s: %w", d.name, err)
		}
		*d.dst = parsed
	}
	return nil
}

func (c Config) validate() error {
	if c.DatabaseURL == "" {
		return errors.New("missing DB_URL/POSTGRES_URL")
	}
	if c.JWTPrivateKeyPEM == "" && !c.AllowEphemeralJWT {
		return errors.New("missing JWT_PRIVATE_KEY_PEM")
	}
	if c.ActivationGracePeriod < 0 {
		return errors.New("activation grace period must not be negative")
	}
	if c.RateLimitRPS < 0 || c.RateLimitBurst < 0 {
		return errors.New("rate limit must not be negative")
	}
	if c.ActivationRateLimit < 0 {
		return errors.New("activation rate limit must not be negative")
	}
	if c.ActivationRateLimit > 0 && c.ActivationRateWindow <= 0 {
		return errors.New("activation rate window must be positive")
	}
	switch c.TraceExporter {
	case "none", "stdout":
	default:
		return fmt.Errorf("unsupported trace exporter %q", c.TraceExporter)
	}
	return nil
}

func compact(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
