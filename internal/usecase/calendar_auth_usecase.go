package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go-interview-backend/internal/domain"
	"go-interview-backend/pkg/auth"
)

const defaultStateTTL = 10 * time.Minute

type calendarAuthUsecase struct {
	registry domain.ProviderRegistry
	creds    domain.CredentialStore
	signer   *auth.StateSigner
	auditor  ConnectionAuditor
	timeout  time.Duration
	log      *slog.Logger
}

// NewCalendarAuthUsecase wires the OAuth consent flow. auditor may be nil.
func NewCalendarAuthUsecase(
	registry domain.ProviderRegistry,
	creds domain.CredentialStore,
	signer *auth.StateSigner,
	auditor ConnectionAuditor,
	providerTimeout time.Duration,
	log *slog.Logger,
) domain.CalendarAuthUsecase {
	if providerTimeout <= 0 {
		providerTimeout = defaultProviderTimeout
	}
	if log == nil {
		log = slog.Default()
	}
	return &calendarAuthUsecase{
		registry: registry,
		creds:    creds,
		signer:   signer,
		auditor:  auditor,
		timeout:  providerTimeout,
		log:      log,
	}
}

func (uc *calendarAuthUsecase) AuthorizationURL(ctx context.Context, userID, provider string) (string, error) {
	cal, err := uc.registry.Calendar(provider)
	if err != nil {
		return "", err
	}
	state, err := uc.signer.Sign(userID, provider, auth.PurposeOAuth, defaultStateTTL)
	if err != nil {
		return "", fmt.Errorf("failed to sign oauth state: %w", err)
	}
	return cal.AuthorizationURL(state), nil
}

// HandleCallback completes the consent redirect and returns the connected user id.
func (uc *calendarAuthUsecase) HandleCallback(ctx context.Context, provider, code, state string) (string, error) {
	if code == "" {
		return "", fmt.Errorf("%w: missing authorization code", domain.ErrInvalidInput)
	}
	userID, err := uc.signer.Verify(state, provider, auth.PurposeOAuth)
	if err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrForbidden, err)
	}

	issuer, err := uc.registry.Tokens(provider)
	if err != nil {
		return "", err
	}

	pctx, cancel := context.WithTimeout(ctx, uc.timeout)
	token, err := issuer.Exchange(pctx, code)
	cancel()
	if err != nil {
		return "", fmt.Errorf("failed to exchange authorization code: %w", err)
	}

	if err := uc.creds.StoreToken(ctx, userID, provider, token); err != nil {
		return "", err
	}

	uc.log.Info("calendar connected", "user_id", userID, "provider", provider)
	if uc.auditor != nil {
		uc.auditor.CalendarConnected(userID, provider, token.ExpiresAt)
	}
	return userID, nil
}

func (uc *calendarAuthUsecase) Disconnect(ctx context.Context, userID, provider string) error {
	if _, err := uc.registry.Tokens(provider); err != nil {
		return err
	}
	if err := uc.creds.Revoke(ctx, userID, provider); err != nil {
		return err
	}
	if uc.auditor != nil {
		uc.auditor.CalendarDisconnected(userID, provider, "user_request")
	}
	return nil
}
