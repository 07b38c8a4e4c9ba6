package calendar

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"time"

	"go-interview-backend/internal/domain"
)

// RetryPolicy bounds retries of transient provider failures.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   200 * time.Millisecond,
		MaxDelay:    2 * time.Second,
	}
}

// backoff returns the jittered delay before attempt+1.
func (p RetryPolicy) backoff(attempt int) time.Duration {
	d := p.BaseDelay << (attempt - 1)
	if d <= 0 || d > p.MaxDelay {
		d = p.MaxDelay
	}
	half := d / 2
	if half <= 0 {
		return d
	}
	return half + rand.N(half)
}

// RetryingProvider retries ErrProviderTransient with exponential backoff.
// Other errors, including ErrProviderNotFound and ErrProviderRejected, pass through.
type RetryingProvider struct {
	domain.CalendarProvider
	policy RetryPolicy
	sleep  func(ctx context.Context, d time.Duration) error
	log    *slog.Logger
}

func WithRetry(p domain.CalendarProvider, policy RetryPolicy, log *slog.Logger) *RetryingProvider {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	if log == nil {
		log = slog.Default()
	}
	return &RetryingProvider{CalendarProvider: p, policy: policy, sleep: sleepCtx, log: log}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (r *RetryingProvider) do(ctx context.Context, op string, fn func() error) error {
	return retry(ctx, r.policy, r.sleep, r.log, r.Name(), op, fn)
}

func retry(ctx context.Context, policy RetryPolicy, sleep func(context.Context, time.Duration) error, log *slog.Logger, provider, op string, fn func() error) error {
	for attempt := 1; ; attempt++ {
		err := fn()
		if err == nil || !errors.Is(err, domain.ErrProviderTransient) || attempt >= policy.MaxAttempts {
			return err
		}
		delay := policy.backoff(attempt)
		log.Warn("Calendar provider call failed, retrying",
			"provider", provider, "op", op, "attempt", attempt, "delay", delay, "error", err)
		if sleep(ctx, delay) != nil {
			return err
		}
	}
}

func (r *RetryingProvider) CreateEvent(ctx context.Context, token *domain.Token, spec domain.EventSpec) (*domain.ExternalEvent, error) {
	var ev *domain.ExternalEvent
	err := r.do(ctx, "create", func() error {
		var err error
		ev, err = r.CalendarProvider.CreateEvent(ctx, token, spec)
		return err
	})
	return ev, err
}

func (r *RetryingProvider) UpdateEvent(ctx context.Context, token *domain.Token, ref string, spec domain.EventSpec) error {
	return r.do(ctx, "update", func() error {
		return r.CalendarProvider.UpdateEvent(ctx, token, ref, spec)
	})
}

func (r *RetryingProvider) CancelEvent(ctx context.Context, token *domain.Token, ref, idempotencyKey string) error {
	return r.do(ctx, "cancel", func() error {
		return r.CalendarProvider.CancelEvent(ctx, token, ref, idempotencyKey)
	})
}

func (r *RetryingProvider) GetEvent(ctx context.Context, token *domain.Token, ref string) (*domain.ExternalEvent, error) {
	var ev *domain.ExternalEvent
	err := r.do(ctx, "get", func() error {
		var err error
		ev, err = r.CalendarProvider.GetEvent(ctx, token, ref)
		return err
	})
	return ev, err
}

// RetryingTokenIssuer retries transient refresh failures. Exchange is not retried:
// an authorization code is single-use.
type RetryingTokenIssuer struct {
	domain.TokenIssuer
	name   string
	policy RetryPolicy
	sleep  func(ctx context.Context, d time.Duration) error
	log    *slog.Logger
}

func WithRefreshRetry(name string, t domain.TokenIssuer, policy RetryPolicy, log *slog.Logger) *RetryingTokenIssuer {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	if log == nil {
		log = slog.Default()
	}
	return &RetryingTokenIssuer{TokenIssuer: t, name: name, policy: policy, sleep: sleepCtx, log: log}
}

func (r *RetryingTokenIssuer) Refresh(ctx context.Context, refreshToken string) (*domain.Token, error) {
	var tok *domain.Token
	err := retry(ctx, r.policy, r.sleep, r.log, r.name, "refresh", func() error {
		var err error
		tok, err = r.TokenIssuer.Refresh(ctx, refreshToken)
		return err
	})
	return tok, err
}
