package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/arklim/invoice-auth/internal/core/port"
	"github.com/arklim/invoice-auth/internal/infra/config"
	"github.com/arklim/invoice-auth/internal/infra/database"
	kafkainfra "github.com/arklim/invoice-auth/internal/infra/kafka"
	"github.com/arklim/invoice-auth/internal/infra/logger"
	redisinfra "github.com/arklim/invoice-auth/internal/infra/redis"
	"github.com/arklim/invoice-auth/internal/infra/security"
	"github.com/arklim/invoice-auth/internal/infra/telemetry"
	"github.com/arklim/invoice-auth/internal/repository/memory"
	postgresrepo "github.com/arklim/invoice-auth/internal/repository/postgres"
	redisrepo "github.com/arklim/invoice-auth/internal/repository/redis"
	"github.com/arklim/invoice-auth/internal/transport/http/middleware"
	"github.com/arklim/invoice-auth/internal/transport/http/routes"
	"github.com/arklim/invoice-auth/internal/usecase"
)

// Application owns every long-lived resource of the auth process.
type Application struct {
	cfg      *config.AppConfig
	engine   *gin.Engine
	logger   *zap.Logger
	auth     *usecase.AuthService
	tracer   *telemetry.TracerProvider
	pool     *pgxpool.Pool
	redis    *redisinfra.Client
	producer *kafkainfra.Producer
}

// New wires the auth core with its stores and the ops HTTP surface.
// Resources opened before a failure are released before returning.
func New(ctx context.Context, cfg *config.AppConfig, version string) (_ *Application, err error) {
	log, err := logger.New(cfg.App.Env)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	a := &Application{cfg: cfg, logger: log}
	defer func() {
		if err != nil {
			a.close(context.Background())
		}
	}()

	a.tracer, err = telemetry.NewTracerProvider(ctx, cfg.Telemetry, version, log)
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}

	accounts, err := a.accountStore(ctx)
	if err != nil {
		return nil, err
	}

	rateLimits, err := a.rateLimitStore(ctx)
	if err != nil {
		return nil, err
	}

	hasher, err := security.NewPasswordHasher(security.Argon2Config{
		Memory:      cfg.Argon2.Memory,
		Iterations:  cfg.Argon2.Iterations,
		Parallelism: cfg.Argon2.Parallelism,
		SaltLength:  cfg.Argon2.SaltLength,
		KeyLength:   cfg.Argon2.KeyLength,
	})
	if err != nil {
		return nil, fmt.Errorf("init password hasher: %w", err)
	}

	codec, err := security.NewTokenCodec(security.TokenCodecConfig{
		Issuer:          cfg.JWT.Issuer,
		AccessSecret:    []byte(cfg.JWT.AccessSecret),
		RefreshSecret:   []byte(cfg.JWT.RefreshSecret),
		ChallengeSecret: []byte(cfg.JWT.ChallengeSecret),
		AccessTTL:       cfg.JWT.AccessTokenTTL,
		RefreshTTL:      cfg.JWT.RefreshTokenTTL,
		ChallengeTTL:    cfg.JWT.ChallengeTTL,
	})
	if err != nil {
		return nil, fmt.Errorf("init token codec: %w", err)
	}

	mfa := security.NewMfaManager(security.MfaConfig{
		Issuer:     cfg.MFA.Issuer,
		Period:     cfg.MFA.Period,
		Skew:       cfg.MFA.Skew,
		Digits:     cfg.MFA.Digits,
		SecretSize: cfg.MFA.SecretSize,
		QRSize:     cfg.MFA.QRSize,
	})

	registry := prometheus.NewRegistry()
	authMetrics, err := telemetry.NewAuthMetrics(telemetry.AuthMetricsOptions{Registerer: registry})
	if err != nil {
		return nil, fmt.Errorf("init auth metrics: %w", err)
	}
	httpMetrics, err := middleware.NewHTTPMetrics(middleware.HTTPMetricsOptions{Registerer: registry})
	if err != nil {
		return nil, fmt.Errorf("init http metrics: %w", err)
	}

	a.auth, err = usecase.NewAuthService(cfg, usecase.AuthDependencies{
		Accounts:   accounts,
		Hasher:     hasher,
		Codec:      codec,
		Mfa:        mfa,
		Events:     a.eventPublisher(),
		Metrics:    authMetrics,
		RateLimits: rateLimits,
		Logger:     log,
	})
	if err != nil {
		return nil, fmt.Errorf("init auth service: %w", err)
	}

	deps := routes.Dependencies{
		Config:   cfg,
		Logger:   log,
		Metrics:  httpMetrics,
		Gatherer: registry,
	}
	if a.pool != nil {
		deps.Database = a.pool
	}
	if a.redis != nil {
		deps.Cache = a.redis
	}
	a.engine = routes.Register(deps)

	return a, nil
}

// Auth exposes the authentication core to in-process callers.
func (a *Application) Auth() *usecase.AuthService {
	return a.auth
}

func (a *Application) accountStore(ctx context.Context) (port.AccountStore, error) {
	if a.cfg.Store.Driver == "memory" {
		a.logger.Warn("using in-memory account store; accounts are not persisted")
		return memory.NewAccountStore(), nil
	}

	pool, err := database.NewPostgresPool(ctx, a.cfg.Postgres, a.logger)
	if err != nil {
		return nil, fmt.Errorf("init postgres: %w", err)
	}
	a.pool = pool
	return postgresrepo.NewAccountRepository(pool, a.cfg.Postgres.Schema), nil
}

// rateLimitStore returns nil when the throttle is off, which disables it.
func (a *Application) rateLimitStore(ctx context.Context) (port.RateLimitStore, error) {
	if !a.cfg.RateLimit.Enabled {
		return nil, nil
	}
	if !a.cfg.Redis.Enabled {
		a.logger.Warn("login throttle enabled but redis is disabled; throttle is off")
		return nil, nil
	}

	client, err := redisinfra.NewClient(ctx, a.cfg.Redis, a.logger)
	if err != nil {
		return nil, fmt.Errorf("init redis: %w", err)
	}
	a.redis = client

	window := a.cfg.RateLimit.WindowDuration
	if window <= 0 {
		window = 15 * time.Minute
	}
	return redisrepo.NewRateLimitRepository(client.Client(), redisrepo.SlidingWindowConfig{
		KeyPrefix: a.cfg.RateLimit.KeyPrefix,
		TTL:       2 * window,
	}), nil
}

func (a *Application) eventPublisher() port.EventPublisher {
	if len(a.cfg.Kafka.Brokers) == 0 {
		a.logger.Info("kafka brokers not configured, using stub publisher")
		return kafkainfra.NewStubPublisher(a.logger)
	}

	producer, err := kafkainfra.NewProducer(a.cfg.Kafka, a.logger)
	if err != nil {
		a.logger.Warn("failed to init kafka producer, using stub publisher", zap.Error(err))
		return kafkainfra.NewStubPublisher(a.logger)
	}
	a.producer = producer
	a.logger.Info("kafka event publisher initialized", zap.Strings("brokers", a.cfg.Kafka.Brokers))
	return kafkainfra.NewEventPublisher(producer, a.cfg.App, a.logger)
}

// Run serves the ops endpoints until ctx is cancelled, then drains.
func (a *Application) Run(ctx context.Context) error {
	defer a.close(context.Background())

	srv := &http.Server{
		Addr:              net.JoinHostPort(a.cfg.App.Host, strconv.Itoa(a.cfg.App.Port)),
		Handler:           a.engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	a.logger.Info("starting invoice auth",
		zap.String("env", a.cfg.App.Env),
		zap.String("address", srv.Addr),
		zap.String("store", a.cfg.Store.Driver),
	)

	serverErrCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- fmt.Errorf("run server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown server: %w", err)
		}
		return nil
	case err := <-serverErrCh:
		return err
	}
}

func (a *Application) close(ctx context.Context) {
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Warn("close kafka producer", zap.Error(err))
		}
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.pool != nil {
		a.pool.Close()
	}
	if a.tracer != nil {
		if err := a.tracer.Shutdown(ctx); err != nil {
			a.logger.Warn("shutdown tracer provider", zap.Error(err))
		}
	}
	_ = a.logger.Sync()
}
