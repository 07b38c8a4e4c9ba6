package v1

import (
	"context"
	"net/http"
	"time"

	"go-interview-backend/config"
	"go-interview-backend/internal/delivery/http/middleware"
	"go-interview-backend/internal/delivery/http/response"
	"go-interview-backend/internal/domain"
	"go-interview-backend/internal/usecase"
	"go-interview-backend/pkg/auth"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

type RouterDeps struct {
	AuthUC         domain.AuthUsecase
	SchedulingUC   domain.SchedulingUsecase
	StatsUC        domain.StatsUsecase
	CalendarAuthUC domain.CalendarAuthUsecase
	WebhookUC      domain.WebhookUsecase
	Reconciler     domain.SyncReconciler
	JWKSProvider   *auth.Provider
	Config         *config.Config
	// HealthChecks are probed by /health; a failing check reports 503.
	HealthChecks map[string]func(context.Context) error
	// Authenticate overrides the JWT middleware (tests).
	Authenticate gin.HandlerFunc
}

func NewRouter(deps RouterDeps) *gin.Engine {
	cfg := deps.Config
	r := gin.New()

	r.Use(middleware.CORSMiddleware([]string{cfg.FrontendURL}, cfg.IsProduction()))
	r.Use(middleware.SecurityHeadersMiddleware(cfg.IsProduction()))
	r.Use(gin.Recovery())
	r.Use(gin.Logger())
	r.Use(middleware.RequestID())
	r.Use(middleware.ErrorHandler())

	window := time.Duration(cfg.RateLimitWindowSeconds) * time.Second
	r.Use(middleware.RateLimitMiddleware(middleware.DefaultRateLimitConfig(cfg.RateLimitGlobalThreshold, window)))
	oauthLimit := middleware.RateLimitMiddleware(middleware.OAuthRateLimitConfig(cfg.RateLimitOAuthThreshold, window))
	webhookLimit := middleware.RateLimitMiddleware(middleware.WebhookRateLimitConfig(cfg.RateLimitGlobalThreshold, window))

	v1 := r.Group("/v1")

	health := usecase.NewHealthUsecase(deps.HealthChecks)
	v1.GET("/health", func(c *gin.Context) {
		checks, healthy := health.Check(c.Request.Context())
		if !healthy {
			response.Error(c, http.StatusServiceUnavailable, "System degraded", checks)
			return
		}
		response.Success(c, http.StatusOK, "System operational", checks)
	})

	v1.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	authenticate := deps.Authenticate
	if authenticate == nil {
		authenticate = middleware.AuthMiddleware(deps.JWKSProvider, cfg, deps.AuthUC)
	}
	protected := v1.Group("")
	protected.Use(authenticate)
	{
		NewAuthHandler(protected, deps.AuthUC)
		NewCalendarHandler(v1, protected, deps.CalendarAuthUC, deps.WebhookUC, calendarRedirect(cfg), oauthLimit)
		NewInterviewHandler(protected, deps.SchedulingUC, deps.Reconciler)
		NewStatsHandler(protected, deps.StatsUC)
	}
	NewWebhookHandler(v1, deps.WebhookUC, webhookLimit)

	return r
}

func calendarRedirect(cfg *config.Config) string {
	if cfg.FrontendURL == "" {
		return ""
	}
	return cfg.FrontendURL + "/settings/calendar"
}
