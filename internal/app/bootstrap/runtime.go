package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"gorm.io/gorm"

	cacheadapter "github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/adapters/cache"
	eventadapter "github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/adapters/events"
	httpadapter "github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/adapters/http"
	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/adapters/postgres"
	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/adapters/security"
	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/adapters/telemetry"
	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/application"
	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/ports"
)

// Core holds the wired service and the connections it owns.
type Core struct {
	Config    Config
	Logger    *slog.Logger
	DB        *gorm.DB
	Repos     postgres.Repositories
	Service   *application.Service
	Telemetry *telemetry.Providers

	redis       *redis.Client
	limiter     ports.RateLimiter
	local       *cacheadapter.LocalRateLimiter
	activations *cacheadapter.LocalWindowLimiter
}

type CoreOption func(*Config)

// SkipMigrations leaves schema changes to an explicit migrate command.
func SkipMigrations() CoreOption {
	return func(cfg *Config) { cfg.AutoMigrate = false }
}

// NewCore connects storage and builds the application service. Redis is
// optional: without it credentials and rate limits stay process-local.
func NewCore(ctx context.Context, configPath string, opts ...CoreOption) (*Core, error) {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	logger := newLogger(cfg)
	slog.SetDefault(logger)

	providers, err := telemetry.Setup(ctx, telemetry.Config{
		ServiceName:   cfg.ServiceID,
		Version:       cfg.Version,
		Environment:   cfg.Environment,
		TraceExporter: cfg.TraceExporter,
		SampleRatio:   cfg.TraceSampleRatio,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("setup telemetry: %w", err)
	}
	engineMetrics, err := telemetry.NewEngineMetrics(providers.Meter)
	if err != nil {
		return nil, fmt.Errorf("init engine metrics: %w", err)
	}

	db, err := postgres.Connect(ctx, cfg.DatabaseURL, cfg.MaxDBConns)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if cfg.AutoMigrate {
		applied, err := postgres.RunMigrations(ctx, db)
		if err != nil {
			closeDB(db)
			return nil, fmt.Errorf("run migrations: %w", err)
		}
		if len(applied) > 0 {
			logger.Info("migrations applied", "operation", "migrate", "outcome", "success", "files", applied)
		}
	}

	core := &Core{Config: cfg, Logger: logger, DB: db, Repos: postgres.NewRepositories(db), Telemetry: providers}

	var credentialCache ports.Cache = cacheadapter.NewLocalCache()
	core.local = cacheadapter.NewLocalRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	core.limiter = core.local
	var activationLimiter ports.RateLimiter
	if cfg.ActivationRateLimit > 0 {
		core.activations = cacheadapter.NewLocalWindowLimiter(cfg.ActivationRateLimit, cfg.ActivationRateWindow)
		activationLimiter = core.activations
	}
	if cfg.RedisURL != "" {
		client, err := cacheadapter.Connect(ctx, cfg.RedisURL)
		if err == nil {
			err = client.Ping(ctx).Err()
		}
		if err != nil {
			logger.Warn("redis unavailable, using process-local cache and rate limiter",
				"operation", "connect_redis",
				"outcome", "degraded",
				"error", err.Error(),
			)
		} else {
			core.redis = client
			credentialCache = cacheadapter.NewRedisCache(client, "m91:")
			core.limiter = cacheadapter.NewRedisRateLimiter(client, cfg.RateLimitRPS, cfg.RateLimitBurst)
			core.local = nil
			if core.activations != nil {
				activationLimiter = cacheadapter.NewRedisWindowLimiter(client, cfg.ActivationRateLimit, cfg.ActivationRateWindow)
				core.activations = nil
			}
		}
	}

	signer, err := newTokenSigner(cfg, logger)
	if err != nil {
		core.Close(ctx)
		return nil, err
	}

	core.Service = application.NewService(application.Dependencies{
		Config: application.Config{
			ServiceName:           cfg.ServiceID,
			IdempotencyTTL:        cfg.IdempotencyTTL,
			CredentialCacheTTL:    cfg.CredentialCacheTTL,
			AccessTokenTTL:        cfg.AccessTokenTTL,
			ActivationGracePeriod: cfg.ActivationGracePeriod,
			ExpirySweepBatch:      cfg.ExpirySweepBatch,
		},
		Brands:            core.Repos.Brands,
		Products:          core.Repos.Products,
		LicenseKeys:       core.Repos.LicenseKeys,
		Licenses:          core.Repos.Licenses,
		Seats:             core.Repos.Seats,
		Customers:         core.Repos.Customers,
		Outbox:            core.Repos.Outbox,
		Idempotency:       core.Repos.Idempotency,
		Cache:             credentialCache,
		ActivationLimiter: activationLimiter,
		Hasher:            security.NewBcryptHasher(cfg.BcryptCost),
		Signer:            signer,
		Tokens:            security.NewTokenGenerator(),
		Metrics:           engineMetrics,
		Logger:            logger,
	})
	return core, nil
}

func newTokenSigner(cfg Config, logger *slog.Logger) (*security.JWTSigner, error) {
	if cfg.JWTPrivateKeyPEM != "" {
		signer, err := security.NewJWTSigner(cfg.JWTKeyID, cfg.JWTIssuer, cfg.JWTPrivateKeyPEM)
		if err == nil || !cfg.AllowEphemeralJWT {
			if err != nil {
				return nil, fmt.Errorf("init jwt signer: %w", err)
			}
			return signer, nil
		}
		logger.Warn("invalid JWT private key, falling back to ephemeral keys", "error", err.Error())
	}
	if !cfg.AllowEphemeralJWT {
		return nil, errors.New("init jwt signer: missing private key")
	}
	logger.Warn("using ephemeral JWT keys; access tokens will not survive a restart")
	signer, err := security.NewEphemeralJWTSigner(cfg.JWTKeyID, cfg.JWTIssuer)
	if err != nil {
		return nil, fmt.Errorf("init ephemeral jwt signer: %w", err)
	}
	return signer, nil
}

func newLogger(cfg Config) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})).
		With("service", cfg.ServiceID)
}

// Ready pings the database and, when configured, Redis.
func (c *Core) Ready(ctx context.Context) error {
	if err := postgres.Ping(ctx, c.DB); err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	if c.redis != nil {
		if err := c.redis.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	return nil
}

func (c *Core) Close(ctx context.Context) {
	if c.redis != nil {
		_ = c.redis.Close()
	}
	if c.Telemetry != nil {
		if err := c.Telemetry.Shutdown(ctx); err != nil {
			c.Logger.Warn("telemetry shutdown failed", "error", err.Error())
		}
	}
	closeDB(c.DB)
}

func closeDB(db *gorm.DB) {
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

type Runtime struct {
	core       *Core
	logger     *slog.Logger
	httpServer *http.Server
	grpcServer *grpc.Server
	grpcHealth *health.Server
	outbox     *eventadapter.OutboxWorker
	expiry     *eventadapter.ExpiryWorker
	publisher  ports.EventPublisher
}

func NewRuntime(ctx context.Context, configPath string) (*Runtime, error) {
	core, err := NewCore(ctx, configPath)
	if err != nil {
		return nil, err
	}
	cfg := core.Config
	logger := core.Logger
	logger.Info("bootstrapping m91 license service", "http_port", cfg.HTTPPort, "grpc_port", cfg.GRPCPort)

	httpMetrics, err := telemetry.NewHTTPMetrics(core.Telemetry.Meter)
	if err != nil {
		core.Close(ctx)
		return nil, fmt.Errorf("init http metrics: %w", err)
	}
	handler := httpadapter.NewHandler(core.Service, httpadapter.Options{
		RateLimiter:    core.limiter,
		Metrics:        httpMetrics,
		MetricsHandler: core.Telemetry.Handler,
		Ready:          core.Ready,
	})
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           httpadapter.NewRouter(handler),
		ReadHeaderTimeout: 5 * time.Second,
	}

	grpcServer := grpc.NewServer()
	healthSrv := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthSrv)
	healthSrv.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	var publisher ports.EventPublisher = eventadapter.NewLoggingPublisher(logger)
	if len(cfg.KafkaBrokers) > 0 {
		kafkaPublisher, err := eventadapter.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopicPrefix, nil)
		if err != nil {
			core.Close(ctx)
			return nil, fmt.Errorf("init kafka publisher: %w", err)
		}
		publisher = kafkaPublisher
	} else {
		logger.Warn("KAFKA_BROKERS not set, outbox events will only be logged")
	}

	return &Runtime{
		core:       core,
		logger:     logger,
		httpServer: httpServer,
		grpcServer: grpcServer,
		grpcHealth: healthSrv,
		outbox: eventadapter.NewOutboxWorker(
			logger,
			core.Repos.Outbox,
			publisher,
			cfg.OutboxPollInterval,
			cfg.OutboxBatchSize,
			cfg.OutboxClaimTTL,
			cfg.OutboxMaxRetries,
		),
		expiry:    eventadapter.NewExpiryWorker(logger, core.Service, cfg.ExpirySweepInterval),
		publisher: publisher,
	}, nil
}

func (r *Runtime) RunAPI(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", r.core.Config.GRPCPort))
	if err != nil {
		r.close(ctx)
		return fmt.Errorf("listen gRPC: %w", err)
	}

	errCh := make(chan error, 2)
	go func() {
		r.logger.Info("http server started", "addr", r.httpServer.Addr)
		if err := r.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()
	go func() {
		r.logger.Info("grpc server started", "addr", lis.Addr().String())
		if err := r.grpcServer.Serve(lis); err != nil {
			errCh <- fmt.Errorf("grpc server: %w", err)
		}
	}()
	if r.core.local != nil || r.core.activations != nil {
		go r.sweepLocalLimiters(ctx)
	}

	var runErr error
	select {
	case <-ctx.Done():
		r.logger.Info("shutdown signal received")
	case runErr = <-errCh:
		r.logger.Error("server failure", "error", runErr)
	}

	r.grpcHealth.Shutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = r.httpServer.Shutdown(shutdownCtx)
	r.grpcServer.GracefulStop()
	r.close(shutdownCtx)
	return runErr
}

func (r *Runtime) sweepLocalLimiters(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if r.core.local != nil {
				if n := r.core.local.Sweep(); n > 0 {
					r.logger.Debug("rate limiter visitors evicted", "operation", "rate_limit_sweep", "count", n)
				}
			}
			if r.core.activations != nil {
				if n := r.core.activations.Sweep(); n > 0 {
					r.logger.Debug("activation windows evicted", "operation", "rate_limit_sweep", "count", n)
				}
			}
		}
	}
}

// RunWorker drives the outbox publisher and the activation expiry sweeper
// until the context is cancelled or one of them fails.
func (r *Runtime) RunWorker(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	r.logger.Info("worker started", "operation", "worker_start")
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return r.outbox.Run(gctx) })
	g.Go(func() error { return r.expiry.Run(gctx) })
	err := g.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	r.close(shutdownCtx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func (r *Runtime) close(ctx context.Context) {
	if closer, ok := r.publisher.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			r.logger.Warn("event publisher close failed", "error", err.Error())
		}
	}
	r.core.Close(ctx)
}
