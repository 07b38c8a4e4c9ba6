// Package audit writes the scheduling audit trail as structured zap logs.
package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"go-interview-backend/internal/domain"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger records committed interview changes and calendar connection events.
type Logger struct {
	zapLogger   *zap.Logger
	serviceName string
	environment string
}

// New builds a production zap logger writing JSON to stdout.
func New(serviceName, environment string) *Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	config.EncoderConfig.LevelKey = "level"
	config.EncoderConfig.MessageKey = "message"
	config.OutputPaths = []string{"stdout"}
	config.ErrorOutputPaths = []string{"stderr"}

	logger, err := config.Build(
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel),
	)
	if err != nil {
		logger, _ = zap.NewProduction()
	}
	return NewWithZap(logger, serviceName, environment)
}

// NewWithZap wraps an existing zap logger (tests use zaptest/observer).
func NewWithZap(logger *zap.Logger, serviceName, environment string) *Logger {
	return &Logger{zapLogger: logger, serviceName: serviceName, environment: environment}
}

// Handle implements domain.EventHandler.
func (l *Logger) Handle(_ context.Context, event domain.InterviewEvent) {
	level := zapcore.InfoLevel
	if event.Type == domain.EventInterviewCancelled || event.Source == domain.EventSourceReconciler {
		level = zapcore.WarnLevel
	}

	l.zapLogger.Log(level, string(event.Type),
		zap.String("service", l.serviceName),
		zap.String("env", l.environment),
		zap.String("interview_id", event.InterviewID),
		zap.String("owner_company_id", event.OwnerCompanyID),
		zap.String("candidate", HashValue(event.CandidateID)),
		zap.String("status", string(event.Status)),
		zap.Int64("version", event.Version),
		zap.String("source", event.Source),
		zap.Time("occurred_at", event.OccurredAt),
	)
}

// CalendarConnected records a completed OAuth consent.
func (l *Logger) CalendarConnected(userID, provider string, expiresAt time.Time) {
	l.zapLogger.Info("calendar.connected",
		zap.String("service", l.serviceName),
		zap.String("env", l.environment),
		zap.String("user", HashValue(userID)),
		zap.String("provider", provider),
		zap.Time("expires_at", expiresAt),
	)
}

// CalendarDisconnected records a revoked or invalidated connection.
func (l *Logger) CalendarDisconnected(userID, provider, reason string) {
	l.zapLogger.Warn("calendar.disconnected",
		zap.String("service", l.serviceName),
		zap.String("env", l.environment),
		zap.String("user", HashValue(userID)),
		zap.String("provider", provider),
		zap.String("reason", reason),
	)
}

// Sync flushes any buffered log entries
func (l *Logger) Sync() error {
	return l.zapLogger.Sync()
}

// HashValue creates a short SHA256 digest so user ids stay out of the audit stream.
func HashValue(value string) string {
	if value == "" {
		return ""
	}
	hash := sha256.Sum256([]byte(value))
	return hex.EncodeToString(hash[:8])
}
