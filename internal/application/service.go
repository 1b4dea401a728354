package application

import (
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/ports"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

type Service struct {
	cfg         Config
	brands      ports.BrandRepository
	products    ports.ProductRepository
	keys        ports.LicenseKeyRepository
	licenses    ports.LicenseRepository
	seats       ports.SeatLedger
	customers   ports.CustomerReadRepository
	outbox      ports.OutboxRepository
	idempotency ports.IdempotencyRepository
	cache       ports.Cache
	throttle    ports.RateLimiter
	hasher      ports.SecretHasher
	signer      ports.TokenSigner
	tokens      ports.TokenGenerator
	metrics     ports.EngineMetrics
	logger      *slog.Logger
	tracer      trace.Tracer
	validate    *validator.Validate
	nowFn       func() time.Time
}

type Dependencies struct {
	Config      Config
	Brands      ports.BrandRepository
	Products    ports.ProductRepository
	LicenseKeys ports.LicenseKeyRepository
	Licenses    ports.LicenseRepository
	Seats       ports.SeatLedger
	Customers   ports.CustomerReadRepository
	Outbox      ports.OutboxRepository
	Idempotency ports.IdempotencyRepository
	Cache       ports.Cache
	// ActivationLimiter caps activation attempts per license key; nil
	// disables the cap.
	ActivationLimiter ports.RateLimiter
	Hasher            ports.SecretHasher
	Signer            ports.TokenSigner
	Tokens            ports.TokenGenerator
	Metrics           ports.EngineMetrics
	Logger            *slog.Logger
	Clock             func() time.Time
}

func NewService(deps Dependencies) *Service {
	cfg := deps.Config
	if cfg.ServiceName == "" {
		cfg.ServiceName = "M91-License-Service"
	}
	if cfg.IdempotencyTTL <= 0 {
		cfg.IdempotencyTTL = 7 * 24 * time.Hour
	}
	if cfg.CredentialCacheTTL <= 0 {
		cfg.CredentialCacheTTL = time.Minute
	}
	if cfg.AccessTokenTTL <= 0 {
		cfg.AccessTokenTTL = time.Hour
	}
	if cfg.ExpirySweepBatch <= 0 {
		cfg.ExpirySweepBatch = 500
	}
	metrics := deps.Metrics
	if metrics == nil {
		metrics = ports.NoopMetrics{}
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	nowFn := deps.Clock
	if nowFn == nil {
		nowFn = func() time.Time { return time.Now().UTC() }
	}

	return &Service{
		cfg:         cfg,
		brands:      deps.Brands,
		products:    deps.Products,
		keys:        deps.LicenseKeys,
		licenses:    deps.Licenses,
		seats:       deps.Seats,
		customers:   deps.Customers,
		outbox:      deps.Outbox,
		idempotency: deps.Idempotency,
		cache:       deps.Cache,
		throttle:    deps.ActivationLimiter,
		hasher:      deps.Hasher,
		signer:      deps.Signer,
		tokens:      deps.Tokens,
		metrics:     metrics,
		logger:      logger.With("module", "application", "layer", "application"),
		tracer:      otel.Tracer("m91-license-service/application"),
		validate:    newValidator(),
		nowFn:       nowFn,
	}
}
