package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go-interview-backend/config"
	_ "go-interview-backend/docs" // Important for Swagger
	"go-interview-backend/internal/calendar"
	"go-interview-backend/internal/calendar/google"
	v1 "go-interview-backend/internal/delivery/http/v1"
	"go-interview-backend/internal/domain"
	"go-interview-backend/internal/eventbus"
	"go-interview-backend/internal/repository/postgres"
	redisrepo "go-interview-backend/internal/repository/redis"
	"go-interview-backend/internal/usecase"
	"go-interview-backend/pkg/audit"
	"go-interview-backend/pkg/auth"
	"go-interview-backend/pkg/database"
	"go-interview-backend/pkg/email"
	"go-interview-backend/pkg/logger"
	"go-interview-backend/pkg/redis"
	"go-interview-backend/pkg/validation"
	"go-interview-backend/pkg/vault"
)

// @title           Interview Scheduling API
// @version         1.0
// @description     Interview scheduling with external calendar synchronization.
// @host            localhost:8080
// @BasePath        /v1
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	// 1. Load Config
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 2. Setup Logger
	logger.Init(cfg.LogLevel)
	logger.Log.Info("Starting interview backend", "port", cfg.Port, "env", cfg.Environment)
	auditLog := audit.New("interview-backend", cfg.Environment)
	defer auditLog.Sync()

	rootCtx, stop := context.WithCancel(context.Background())
	defer stop()

	// 3. Setup Database
	dbPool, err := database.NewPostgresConnection(rootCtx, cfg.DBUrl)
	if err != nil {
		logger.Log.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer dbPool.Close()

	healthChecks := map[string]func(context.Context) error{
		"database": dbPool.Ping,
	}

	// 4. Setup Redis (optional)
	var (
		statsCache domain.StatsCache
		dedup      usecase.NotificationDeduper
	)
	if err := redis.Initialize(redis.Config{URL: cfg.UpstashRedisURL, Password: cfg.UpstashRedisPassword}); err != nil {
		logger.Log.Warn("Redis unavailable, stats cache and webhook dedup disabled", "error", err)
	} else {
		defer redis.Close()
		statsCache = redisrepo.NewStatsCache(redis.Client(), cfg.StatsCacheTTL)
		dedup = redisrepo.NewNotificationDeduper(redis.Client())
		healthChecks["redis"] = redis.HealthCheck
	}

	// 5. Secrets
	sealer, err := newSealer(cfg.TokenEncryptionKey)
	if err != nil {
		logger.Log.Error("Invalid TOKEN_ENCRYPTION_KEY", "error", err)
		os.Exit(1)
	}
	stateSigner := auth.NewStateSigner([]byte(secretOrDev(cfg.StateSecret)))

	// 6. Setup Repositories
	userRepo := postgres.NewUserRepository(dbPool)
	interviewRepo := postgres.NewInterviewRepository(dbPool)
	credentialRepo := postgres.NewCredentialRepository(dbPool, sealer)

	// 7. Calendar providers
	registry := calendar.NewRegistry(calendar.RetryPolicy{
		MaxAttempts: cfg.RetryMaxAttempts,
		BaseDelay:   200 * time.Millisecond,
		MaxDelay:    5 * time.Second,
	}, logger.Log)
	if cfg.GoogleClientID != "" {
		googleProvider := google.New(google.Config{
			ClientID:         cfg.GoogleClientID,
			ClientSecret:     cfg.GoogleClientSecret,
			RedirectURL:      cfg.GoogleRedirectURL,
			CreateConference: true,
		})
		registry.Register(googleProvider, googleProvider)
	} else {
		logger.Log.Warn("GOOGLE_CLIENT_ID not configured - Google Calendar sync unavailable")
	}

	// 8. Event bus; stats invalidation runs inline ahead of it
	bus := eventbus.New(cfg.EventBufferSize, logger.Log)
	var events domain.EventPublisher = bus
	if statsCache != nil {
		events = usecase.NewStatsCacheInvalidator(statsCache, bus, logger.Log)
	}

	// 9. Setup Email Service
	emailService := email.NewEmailService(email.Config{
		Host:      cfg.SMTPHost,
		Port:      cfg.SMTPPort,
		Username:  cfg.SMTPUsername,
		Password:  cfg.SMTPPassword,
		FromEmail: cfg.SMTPFromEmail,
	})
	if !emailService.IsConfigured() {
		logger.Log.Warn("Email service not fully configured - interview notifications disabled")
	}

	// 10. Setup UseCases
	credentialStore := usecase.NewCredentialStore(credentialRepo, registry, usecase.CredentialStoreConfig{
		RefreshSkew:     cfg.TokenRefreshSkew,
		ProviderTimeout: cfg.ProviderTimeout,
		Auditor:         auditLog,
	}, logger.Log)
	access := usecase.NewMeetingAccessGenerator(cfg.MeetingBaseURL, []byte(secretOrDev(cfg.MeetingSecret)))

	authUC := usecase.NewAuthUsecase(userRepo)
	schedulingUC := usecase.NewSchedulingUsecase(
		interviewRepo, credentialStore, registry, access, events, validation.New(),
		usecase.SchedulingConfig{ProviderTimeout: cfg.ProviderTimeout},
		logger.Log,
	)
	statsUC := usecase.NewStatsUsecase(interviewRepo, statsCache, usecase.StatsConfig{
		Policy: usecase.ReschedulePolicy(cfg.StatsReschedulePolicy),
	}, logger.Log)
	reconciler := usecase.NewReconciler(interviewRepo, credentialStore, registry, events, usecase.ReconcilerConfig{
		Interval:        cfg.ReconcileInterval,
		RatePerSecond:   cfg.ReconcileRatePerSec,
		CompleteGrace:   cfg.AutoCompleteGrace,
		Lookback:        cfg.ReconcileLookback,
		ProviderTimeout: cfg.ProviderTimeout,
	}, logger.Log)
	calendarAuthUC := usecase.NewCalendarAuthUsecase(registry, credentialStore, stateSigner, auditLog, cfg.ProviderTimeout, logger.Log)
	webhookUC := usecase.NewWebhookUsecase(stateSigner, dedup, reconciler, logger.Log)

	bus.Subscribe("audit", auditLog)
	bus.Subscribe("reconciler", reconciler)
	bus.Subscribe("notifier", usecase.NewNotifier(interviewRepo, userRepo, emailService, logger.Log))

	reconcileDone := make(chan struct{})
	go func() {
		defer close(reconcileDone)
		if err := reconciler.Run(rootCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Log.Error("Reconciler stopped", "error", err)
		}
	}()

	// 11. Setup Auth Provider (JWKS)
	jwksURL := cfg.SupabaseUrl + "/auth/v1/.well-known/jwks.json"
	jwksProvider := auth.NewProvider(jwksURL)

	// 12. Setup Router
	router := v1.NewRouter(v1.RouterDeps{
		AuthUC:         authUC,
		SchedulingUC:   schedulingUC,
		StatsUC:        statsUC,
		CalendarAuthUC: calendarAuthUC,
		WebhookUC:      webhookUC,
		Reconciler:     reconciler,
		JWKSProvider:   jwksProvider,
		Config:         cfg,
		HealthChecks:   healthChecks,
	})

	// 13. Start Server
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.Error("Listen failed", "error", err)
		}
	}()

	// Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Log.Error("Server forced to shutdown", "error", err)
	}

	stop()
	<-reconcileDone
	bus.Close()

	logger.Log.Info("Server exiting")
}

// devSecret is only reachable outside production; config.LoadConfig rejects
// missing secrets when APP_ENV=production.
const devSecret = "insecure-development-secret"

func secretOrDev(secret string) string {
	if secret == "" {
		return devSecret
	}
	return secret
}

// newSealer falls back to an ephemeral key, so stored tokens do not survive a restart.
func newSealer(hexKey string) (*vault.Sealer, error) {
	if hexKey != "" {
		return vault.NewSealerFromHex(hexKey)
	}
	logger.Log.Warn("TOKEN_ENCRYPTION_KEY not configured - using an ephemeral key")
	key, err := vault.GenerateKey()
	if err != nil {
		return nil, err
	}
	return vault.NewSealerFromHex(key)
}
