package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/machoalfa/eclesia-access/internal/core/domain"
	"github.com/machoalfa/eclesia-access/internal/core/port"
	"github.com/machoalfa/eclesia-access/internal/infra/config"
	"github.com/machoalfa/eclesia-access/internal/infra/database"
	kafkainfra "github.com/machoalfa/eclesia-access/internal/infra/kafka"
	"github.com/machoalfa/eclesia-access/internal/infra/logger"
	redisinfra "github.com/machoalfa/eclesia-access/internal/infra/redis"
	"github.com/machoalfa/eclesia-access/internal/infra/security"
	"github.com/machoalfa/eclesia-access/internal/infra/telemetry"
	"github.com/machoalfa/eclesia-access/internal/provider"
	memoryrepo "github.com/machoalfa/eclesia-access/internal/repository/memory"
	postgresrepo "github.com/machoalfa/eclesia-access/internal/repository/postgres"
	redisrepo "github.com/machoalfa/eclesia-access/internal/repository/redis"
	"github.com/machoalfa/eclesia-access/internal/transport/http/middleware"
	"github.com/machoalfa/eclesia-access/internal/transport/http/routes"
	"github.com/machoalfa/eclesia-access/internal/usecase"
)

// Application owns the wired object graph and the HTTP server lifecycle.
type Application struct {
	cfg      *config.AppConfig
	engine   *gin.Engine
	logger   *zap.Logger
	pool     *pgxpool.Pool
	redis    *redisinfra.Client
	producer *kafkainfra.Producer
}

// New wires the access core from configuration.
func New(ctx context.Context, cfg *config.AppConfig) (*Application, error) {
	log, err := logger.New(cfg.App.Env)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	metrics := telemetry.New(nil)

	app := &Application{cfg: cfg, logger: log}

	var redisClient *redisinfra.Client
	needsRedis := cfg.Audit.Backend == "redis" || cfg.RateLimit.LoginMaxAttempts > 0
	if needsRedis {
		redisClient, err = redisinfra.NewClient(cfg.Redis, log)
		if err != nil {
			if cfg.Audit.Backend == "redis" {
				return nil, fmt.Errorf("init redis: %w", err)
			}
			log.Warn("redis unavailable, login rate limiting disabled", zap.Error(err))
			redisClient = nil
		}
	}
	app.redis = redisClient

	var auditStore port.AuditStore
	switch cfg.Audit.Backend {
	case "redis":
		auditStore = redisrepo.NewAuditRepository(redisClient.Client(), redisrepo.AuditConfig{
			Key:        cfg.Redis.AuditKey,
			MaxRecords: cfg.Audit.MaxRecords,
		})
	default:
		auditStore = memoryrepo.NewAuditLog(cfg.Audit.MaxRecords)
	}

	var eventPublisher port.SecurityEventPublisher
	if cfg.Kafka.Enabled && len(cfg.Kafka.Brokers) > 0 {
		producer, err := kafkainfra.NewProducer(cfg.Kafka, log)
		if err != nil {
			log.Warn("failed to init kafka producer, using stub publisher", zap.Error(err))
			eventPublisher = kafkainfra.NewStubPublisher(log)
		} else {
			app.producer = producer
			eventPublisher = kafkainfra.NewEventPublisher(producer, cfg.App, log)
			log.Info("kafka event publisher initialized", zap.Strings("brokers", cfg.Kafka.Brokers))
		}
	} else {
		log.Info("kafka disabled, using stub publisher")
		eventPublisher = kafkainfra.NewStubPublisher(log)
	}

	auditTrail := usecase.NewAuditTrail(cfg.Audit, auditStore, eventPublisher, log, metrics)

	identity, profiles, err := app.buildIdentity(ctx, log)
	if err != nil {
		app.closeInfra()
		return nil, err
	}

	sessionStore := usecase.NewSessionStore()
	authService := usecase.NewAuthService(cfg, identity, profiles, sessionStore, auditTrail, log, metrics)
	securityContext := usecase.NewSecurityContext(sessionStore)
	securityMiddleware := usecase.NewSecurityMiddleware(cfg.Security, securityContext, sessionStore, auditTrail, log, metrics)
	routeGuard := usecase.NewRouteGuard(authService, securityContext, cfg.Auth.LoginPath)

	tokenManager, err := security.NewSessionTokenManager(cfg.Token.Secret, cfg.Token.Issuer)
	if err != nil {
		app.closeInfra()
		return nil, fmt.Errorf("init session tokens: %w", err)
	}

	var rateLimiter *middleware.LoginRateLimiter
	if redisClient != nil {
		rateLimitStore := redisrepo.NewRateLimitRepository(redisClient.Client(), redisrepo.RateLimitConfig{
			KeyPrefix: cfg.Redis.RateLimitPrefix,
			TTL:       cfg.Redis.RateLimitTTL,
		})
		rateLimiter = middleware.NewLoginRateLimiter(rateLimitStore, log)
	}

	deps := routes.Dependencies{
		Config:       cfg,
		Logger:       log,
		Metrics:      metrics,
		RateLimiter:  rateLimiter,
		TokenManager: tokenManager,
		Services: routes.ServiceSet{
			Auth:     authService,
			Trail:    auditTrail,
			Store:    sessionStore,
			Security: securityMiddleware,
			Guard:    routeGuard,
		},
	}

	if app.pool != nil {
		deps.Database = app.pool
	}
	if redisClient != nil {
		deps.Cache = redisClient
	}

	app.engine = routes.Register(deps)

	return app, nil
}

// buildIdentity selects the identity provider and profile store per config.
// Hosted mode pairs the REST provider with the Postgres profile store; local
// mode keeps everything in process for development.
func (a *Application) buildIdentity(ctx context.Context, log *zap.Logger) (port.IdentityProvider, port.ProfileStore, error) {
	switch a.cfg.Provider.Mode {
	case "hosted":
		pool, err := database.NewPostgresPool(ctx, a.cfg.Postgres, log)
		if err != nil {
			return nil, nil, fmt.Errorf("init postgres: %w", err)
		}
		a.pool = pool
		return provider.NewHostedProvider(a.cfg.Provider), postgresrepo.NewProfileRepository(pool), nil
	case "local":
		local := provider.NewLocalProvider()
		profiles := memoryrepo.NewProfileStore()
		if a.cfg.App.Env != "production" {
			seedLocalAccounts(local, profiles, log)
		}
		return local, profiles, nil
	default:
		return nil, nil, fmt.Errorf("unknown provider mode %q", a.cfg.Provider.Mode)
	}
}

// seedLocalAccounts registers a development admin so a fresh checkout can log
// in without any external services.
func seedLocalAccounts(local *provider.LocalProvider, profiles *memoryrepo.ProfileStore, log *zap.Logger) {
	const (
		subjectID = "admin-local"
		email     = "admin@local"
		password  = "admin-local-dev"
	)

	if err := local.Register(subjectID, email, password); err != nil {
		log.Warn("failed to seed local admin", zap.Error(err))
		return
	}

	profiles.Put(domain.Profile{
		SubjectID: subjectID,
		Email:     email,
		Role:      string(domain.RoleAdmin),
		Active:    true,
	})

	log.Warn("seeded development admin account",
		zap.String("email", email),
		zap.String("password", password),
	)
}

// Run serves HTTP until the context is cancelled.
func (a *Application) Run(ctx context.Context) error {
	defer func() {
		_ = a.logger.Sync()
	}()
	defer a.closeInfra()

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", a.cfg.App.Host, a.cfg.App.Port),
		Handler:           a.engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	a.logger.Info("starting access API",
		zap.String("env", a.cfg.App.Env),
		zap.String("address", srv.Addr),
	)

	serverErrCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
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

func (a *Application) closeInfra() {
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Warn("failed to close kafka producer", zap.Error(err))
		}
		a.producer = nil
	}
	if a.pool != nil {
		a.pool.Close()
		a.pool = nil
	}
	if a.redis != nil {
		_ = a.redis.Close()
		a.redis = nil
	}
}
