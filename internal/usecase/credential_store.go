package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"go-interview-backend/internal/domain"

	"golang.org/x/sync/singleflight"
)

const defaultRefreshSkew = 5 * time.Minute

type CredentialStoreConfig struct {
	// RefreshSkew refreshes tokens this long before they expire.
	RefreshSkew time.Duration
	// ProviderTimeout bounds a single refresh call.
	ProviderTimeout time.Duration
	// Auditor, when set, records dropped connections.
	Auditor ConnectionAuditor
}

// ConnectionAuditor records calendar connection lifecycle changes.
type ConnectionAuditor interface {
	CalendarConnected(userID, provider string, expiresAt time.Time)
	CalendarDisconnected(userID, provider, reason string)
}

type credentialStore struct {
	repo     domain.CredentialRepository
	registry domain.ProviderRegistry
	cfg      CredentialStoreConfig
	flights  singleflight.Group
	now      func() time.Time
	log      *slog.Logger
}

func NewCredentialStore(repo domain.CredentialRepository, registry domain.ProviderRegistry, cfg CredentialStoreConfig, log *slog.Logger) domain.CredentialStore {
	if cfg.RefreshSkew <= 0 {
		cfg.RefreshSkew = defaultRefreshSkew
	}
	if cfg.ProviderTimeout <= 0 {
		cfg.ProviderTimeout = defaultProviderTimeout
	}
	if log == nil {
		log = slog.Default()
	}
	return &credentialStore{repo: repo, registry: registry, cfg: cfg, now: time.Now, log: log}
}

func (s *credentialStore) fresh(tok *domain.Token) bool {
	if tok.AccessToken == "" {
		return false
	}
	// Zero expiry means the provider did not report one.
	return tok.ExpiresAt.IsZero() || s.now().Add(s.cfg.RefreshSkew).Before(tok.ExpiresAt)
}

func (s *credentialStore) load(ctx context.Context, userID, provider string) (*domain.Token, *domain.CalendarConnection, error) {
	conn, err := s.repo.Get(ctx, userID, provider)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil, fmt.Errorf("%w: %s not connected", domain.ErrUnauthenticated, provider)
	}
	if err != nil {
		return nil, nil, err
	}
	tok := conn.Token()
	if !tok.HasCalendarAccess() {
		return nil, nil, domain.ErrInsufficientScope
	}
	return tok, conn, nil
}

// GetValidToken returns a token usable for at least the refresh skew. Concurrent
// callers for the same (user, provider) share one refresh.
func (s *credentialStore) GetValidToken(ctx context.Context, userID, provider string) (*domain.Token, error) {
	tok, _, err := s.load(ctx, userID, provider)
	if err != nil {
		return nil, err
	}
	if s.fresh(tok) {
		return tok, nil
	}

	// The flight outlives any single caller: one cancelled request must not fail
	// the others waiting on the same refresh.
	flightCtx := context.WithoutCancel(ctx)
	ch := s.flights.DoChan(userID+"|"+provider, func() (any, error) {
		return s.refresh(flightCtx, userID, provider)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		shared := res.Val.(*domain.Token)
		out := *shared
		out.Scopes = slices.Clone(shared.Scopes)
		return &out, nil
	}
}

func (s *credentialStore) refresh(ctx context.Context, userID, provider string) (*domain.Token, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.ProviderTimeout)
	defer cancel()

	// Another flight may have refreshed since our first read.
	tok, conn, err := s.load(ctx, userID, provider)
	if err != nil {
		return nil, err
	}
	if s.fresh(tok) {
		return tok, nil
	}

	issuer, err := s.registry.Tokens(provider)
	if err != nil {
		return nil, err
	}

	// Transient failures were already retried by the registry. Whatever is left
	// ends the connection: a stale token is never handed out.
	refreshed, err := issuer.Refresh(ctx, conn.RefreshToken)
	if err != nil {
		reason := "refresh_failed"
		if errors.Is(err, domain.ErrUnauthenticated) {
			reason = "refresh_rejected"
		}
		s.log.Warn("calendar token refresh failed, dropping connection",
			"user_id", userID,
			"provider", provider,
			"reason", reason,
			"error", err,
		)
		if derr := s.repo.Delete(context.WithoutCancel(ctx), userID, provider); derr != nil {
			s.log.Error("failed to drop connection", "user_id", userID, "provider", provider, "error", derr)
		} else if s.cfg.Auditor != nil {
			s.cfg.Auditor.CalendarDisconnected(userID, provider, reason)
		}
		return nil, fmt.Errorf("%w: token refresh failed: %w", domain.ErrUnauthenticated, err)
	}

	if refreshed.RefreshToken == "" {
		refreshed.RefreshToken = conn.RefreshToken
	}
	if len(refreshed.Scopes) == 0 {
		refreshed.Scopes = conn.Scopes
	}
	if !refreshed.HasCalendarAccess() {
		return nil, domain.ErrInsufficientScope
	}

	conn.AccessToken = refreshed.AccessToken
	conn.RefreshToken = refreshed.RefreshToken
	conn.ExpiresAt = refreshed.ExpiresAt
	conn.Scopes = refreshed.Scopes
	if err := s.repo.Upsert(ctx, conn); err != nil {
		return nil, fmt.Errorf("failed to persist refreshed token: %w", err)
	}

	s.log.Info("calendar token refreshed", "user_id", userID, "provider", provider, "expires_at", conn.ExpiresAt)
	return conn.Token(), nil
}

// StoreToken saves a token obtained from the consent flow. A missing refresh token
// keeps the one already on file.
func (s *credentialStore) StoreToken(ctx context.Context, userID, provider string, token *domain.Token) error {
	if token == nil || token.AccessToken == "" {
		return fmt.Errorf("%w: empty token", domain.ErrInvalidInput)
	}
	if !token.HasCalendarAccess() {
		return domain.ErrInsufficientScope
	}

	conn := &domain.CalendarConnection{
		UserID:       userID,
		Provider:     provider,
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiresAt:    token.ExpiresAt,
		Scopes:       token.Scopes,
	}
	if conn.RefreshToken == "" {
		existing, err := s.repo.Get(ctx, userID, provider)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return err
		}
		if existing != nil {
			conn.RefreshToken = existing.RefreshToken
		}
	}
	return s.repo.Upsert(ctx, conn)
}

// Revoke tells the provider to drop the grant and forgets it locally. The local
// delete happens even when the provider call fails.
func (s *credentialStore) Revoke(ctx context.Context, userID, provider string) error {
	conn, err := s.repo.Get(ctx, userID, provider)
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	if issuer, ierr := s.registry.Tokens(provider); ierr == nil {
		rctx, cancel := context.WithTimeout(ctx, s.cfg.ProviderTimeout)
		if rerr := issuer.Revoke(rctx, conn.Token()); rerr != nil {
			s.log.Warn("provider revoke failed", "user_id", userID, "provider", provider, "error", rerr)
		}
		cancel()
	}

	s.flights.Forget(userID + "|" + provider)
	return s.repo.Delete(ctx, userID, provider)
}
