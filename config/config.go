package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port              string
	Environment       string
	LogLevel          string
	DBUrl             string
	SupabaseUrl       string
	SupabaseJWTSecret string
	FrontendURL       string
	// Google Calendar OAuth client
	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string
	// Secrets: STATE_SECRET signs OAuth state and webhook channel tokens,
	// MEETING_SECRET derives meeting ids and passcodes, TOKEN_ENCRYPTION_KEY
	// (hex, 32 bytes) seals OAuth tokens at rest.
	StateSecret        string
	MeetingSecret      string
	MeetingBaseURL     string
	TokenEncryptionKey string
	// Sync behaviour
	ProviderTimeout       time.Duration
	TokenRefreshSkew      time.Duration
	ReconcileInterval     time.Duration
	ReconcileRatePerSec   float64
	ReconcileLookback     time.Duration
	AutoCompleteGrace     time.Duration
	RetryMaxAttempts      int
	EventBufferSize       int
	StatsCacheTTL         time.Duration
	StatsReschedulePolicy string
	// SMTP Configuration (Brevo)
	SMTPHost      string
	SMTPPort      string
	SMTPUsername  string
	SMTPPassword  string
	SMTPFromEmail string
	// Redis/Upstash Configuration
	UpstashRedisURL      string
	UpstashRedisPassword string
	// Rate Limiting Configuration
	RateLimitWindowSeconds   int
	RateLimitGlobalThreshold int
	RateLimitOAuthThreshold  int
}

func LoadConfig() (*Config, error) {
	// Load .env when present; production injects the environment directly.
	_ = godotenv.Load()

	cfg := &Config{
		Port:              getEnv("PORT", "8080"),
		Environment:       getEnv("APP_ENV", "development"),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		DBUrl:             getEnv("DATABASE_URL", ""),
		SupabaseUrl:       strings.TrimRight(getEnv("SUPABASE_URL", ""), "/"),
		SupabaseJWTSecret: getEnv("SUPABASE_JWT_SECRET", getEnv("SUPABASE_JWT_KEY", "")),
		FrontendURL:       strings.TrimRight(getEnv("FRONTEND_URL", "http://localhost:3000"), "/"),
		// Google
		GoogleClientID:     getEnv("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret: getEnv("GOOGLE_CLIENT_SECRET", ""),
		GoogleRedirectURL:  getEnv("GOOGLE_REDIRECT_URL", "http://localhost:8080/v1/calendar/google/callback"),
		// Secrets
		StateSecret:        getEnv("STATE_SECRET", ""),
		MeetingSecret:      getEnv("MEETING_SECRET", ""),
		MeetingBaseURL:     strings.TrimRight(getEnv("MEETING_BASE_URL", "http://localhost:3000/meet"), "/"),
		TokenEncryptionKey: getEnv("TOKEN_ENCRYPTION_KEY", ""),
		// Sync
		ProviderTimeout:       getEnvDuration("PROVIDER_TIMEOUT", 10*time.Second),
		TokenRefreshSkew:      getEnvDuration("TOKEN_REFRESH_SKEW", 5*time.Minute),
		ReconcileInterval:     getEnvDuration("RECONCILE_INTERVAL", 5*time.Minute),
		ReconcileRatePerSec:   getEnvFloat("RECONCILE_RATE_PER_SEC", 5),
		ReconcileLookback:     getEnvDuration("RECONCILE_LOOKBACK", 7*24*time.Hour),
		AutoCompleteGrace:     getEnvDuration("AUTO_COMPLETE_GRACE", 0), // disabled unless set
		RetryMaxAttempts:      getEnvInt("PROVIDER_RETRY_MAX_ATTEMPTS", 4),
		EventBufferSize:       getEnvInt("EVENT_BUFFER_SIZE", 256),
		StatsCacheTTL:         getEnvDuration("STATS_CACHE_TTL", 10*time.Minute),
		StatsReschedulePolicy: getEnv("STATS_RESCHEDULE_POLICY", "current"),
		// SMTP
		SMTPHost:      getEnv("SMTP_HOST", "smtp-relay.brevo.com"),
		SMTPPort:      getEnv("SMTP_PORT", "587"),
		SMTPUsername:  getEnv("SMTP_USERNAME", ""),
		SMTPPassword:  getEnv("SMTP_PASSWORD", ""),
		SMTPFromEmail: getEnv("SMTP_FROM_EMAIL", ""),
		// Redis/Upstash
		UpstashRedisURL:      getEnv("UPSTASH_REDIS_URL", ""),
		UpstashRedisPassword: getEnv("UPSTASH_REDIS_PASSWORD", ""),
		// Rate limiting
		RateLimitWindowSeconds:   getEnvInt("RATE_LIMIT_WINDOW_SECONDS", 60),
		RateLimitGlobalThreshold: getEnvInt("RATE_LIMIT_GLOBAL_THRESHOLD", 100),
		RateLimitOAuthThreshold:  getEnvInt("RATE_LIMIT_OAUTH_THRESHOLD", 20),
	}

	if cfg.DBUrl == "" {
		log.Println("WARNING: DATABASE_URL is missing. Application may fail to connect.")
	}
	if cfg.UpstashRedisURL == "" {
		log.Println("WARNING: UPSTASH_REDIS_URL not configured. Stats cache and webhook dedup are disabled.")
	}
	if missing := cfg.missingSecrets(); len(missing) > 0 {
		if cfg.IsProduction() {
			return nil, fmt.Errorf("missing required secrets in production: %s", strings.Join(missing, ", "))
		}
		log.Printf("WARNING: %s not configured. Using insecure development defaults.", strings.Join(missing, ", "))
	}

	return cfg, nil
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// missingSecrets lists secrets that fall back to development values when unset.
// Without them OAuth state, channel tokens and meeting passcodes are forgeable.
func (c *Config) missingSecrets() []string {
	var missing []string
	if c.StateSecret == "" {
		missing = append(missing, "STATE_SECRET")
	}
	if c.MeetingSecret == "" {
		missing = append(missing, "MEETING_SECRET")
	}
	if c.TokenEncryptionKey == "" {
		missing = append(missing, "TOKEN_ENCRYPTION_KEY")
	}
	return missing
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// getEnvInt returns an integer environment variable or fallback if not set/invalid
func getEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value, exists := os.LookupEnv(key); exists {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return fallback
}

// getEnvDuration parses Go duration syntax ("30s", "5m").
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}
