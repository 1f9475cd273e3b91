package routes

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/machoalfa/eclesia-access/internal/core/domain"
	"github.com/machoalfa/eclesia-access/internal/infra/config"
	"github.com/machoalfa/eclesia-access/internal/infra/security"
	"github.com/machoalfa/eclesia-access/internal/infra/telemetry"
	"github.com/machoalfa/eclesia-access/internal/transport/http/handlers"
	"github.com/machoalfa/eclesia-access/internal/transport/http/middleware"
	"github.com/machoalfa/eclesia-access/internal/usecase"
)

// ServiceSet groups the services the HTTP layer depends on.
type ServiceSet struct {
	Auth     *usecase.AuthService
	Trail    *usecase.AuditTrail
	Store    *usecase.SessionStore
	Security *usecase.SecurityMiddleware
	Guard    *usecase.RouteGuard
}

// Dependencies encapsulates the objects required to register routes.
type Dependencies struct {
	Config       *config.AppConfig
	Logger       *zap.Logger
	Metrics      *telemetry.Metrics
	RateLimiter  *middleware.LoginRateLimiter
	Services     ServiceSet
	TokenManager *security.SessionTokenManager
	Database     DatabaseChecker
	Cache        CacheChecker
}

// DatabaseChecker exposes readiness behaviour for database connections.
type DatabaseChecker interface {
	Ping(ctx context.Context) error
}

// CacheChecker exposes readiness behaviour for cache backends.
type CacheChecker interface {
	HealthCheck(ctx context.Context) error
}

// Register configures the Gin engine with routes and middleware.
func Register(deps Dependencies) *gin.Engine {
	if deps.Config.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.EnrichContext())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(deps.Logger))
	r.Use(middleware.Metrics(deps.Metrics))

	sessionMiddleware := middleware.RequireSession(deps.TokenManager, deps.Services.Store)

	healthOptions := make([]handlers.HealthOption, 0, 2)

	if deps.Database != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("database", deps.Database.Ping))
	}

	if deps.Cache != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("redis", deps.Cache.HealthCheck))
	}

	healthHandler := handlers.NewHealthHandler(healthOptions...)

	r.GET("/healthz", healthHandler.Status)
	r.GET("/readyz", healthHandler.Readiness)

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api/v1")
	{
		authGroup := api.Group("/auth")
		authHandler := handlers.NewAuthHandler(deps.Services.Auth, deps.Services.Store, deps.TokenManager)
		authHandler.RegisterRoutes(authGroup, sessionMiddleware, buildLoginMiddlewares(deps)...)

		auditGroup := api.Group("/audit")
		auditGroup.Use(sessionMiddleware)
		auditGroup.Use(middleware.RequirePermissions(usecase.GateAll, domain.PermissionLogsView))
		auditHandler := handlers.NewAuditHandler(deps.Services.Trail)
		auditHandler.RegisterRoutes(auditGroup)

		accessGroup := api.Group("/access")
		accessHandler := handlers.NewAccessHandler(deps.Services.Security, deps.Services.Guard)
		accessHandler.RegisterRoutes(accessGroup, sessionMiddleware)
	}

	return r
}

func buildLoginMiddlewares(deps Dependencies) []gin.HandlerFunc {
	if deps.RateLimiter == nil || deps.Config == nil {
		return nil
	}

	limit := deps.Config.RateLimit.LoginMaxAttempts
	window := deps.Config.RateLimit.WindowDuration
	if limit <= 0 || window <= 0 {
		return nil
	}

	return []gin.HandlerFunc{deps.RateLimiter.Throttle(limit, window)}
}
