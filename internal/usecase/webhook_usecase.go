package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go-interview-backend/internal/domain"
	"go-interview-backend/pkg/auth"
)

const (
	channelTokenTTL = 7 * 24 * time.Hour
	dedupTTL        = 24 * time.Hour
)

// NotificationDeduper remembers message keys already processed.
type NotificationDeduper interface {
	// FirstSeen records key and reports whether it was new.
	FirstSeen(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// OrganizerQueue accepts organizer reconcile requests for background processing.
type OrganizerQueue interface {
	EnqueueOrganizer(userID string) bool
}

type webhookUsecase struct {
	signer *auth.StateSigner
	dedup  NotificationDeduper
	queue  OrganizerQueue
	log    *slog.Logger
}

// NewWebhookUsecase handles provider push notifications. dedup may be nil; the
// queue still merges repeated requests for the same organizer.
func NewWebhookUsecase(signer *auth.StateSigner, dedup NotificationDeduper, queue OrganizerQueue, log *slog.Logger) domain.WebhookUsecase {
	if log == nil {
		log = slog.Default()
	}
	return &webhookUsecase{signer: signer, dedup: dedup, queue: queue, log: log}
}

// ChannelToken issues the token to register on a provider watch channel for userID.
func (uc *webhookUsecase) ChannelToken(userID, provider string) (string, error) {
	return uc.signer.Sign(userID, provider, auth.PurposeWebhook, channelTokenTTL)
}

// HandleNotification verifies the channel token and queues a reconcile of the
// organizer's interviews. Duplicate deliveries are dropped.
func (uc *webhookUsecase) HandleNotification(ctx context.Context, provider string, n domain.WebhookNotification) error {
	userID, err := uc.signer.Verify(n.ChannelToken, provider, auth.PurposeWebhook)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrForbidden, err)
	}

	// The first message on a channel only confirms the subscription.
	if n.ResourceState == "sync" {
		return nil
	}

	if uc.dedup != nil && n.ChannelID != "" && n.MessageNumber != "" {
		fresh, err := uc.dedup.FirstSeen(ctx, provider+":"+n.ChannelID+":"+n.MessageNumber, dedupTTL)
		if err != nil {
			uc.log.Warn("webhook dedup unavailable", "channel_id", n.ChannelID, "error", err)
		} else if !fresh {
			return nil
		}
	}

	if !uc.queue.EnqueueOrganizer(userID) {
		uc.log.Warn("organizer queue full, relying on sweep", "user_id", userID, "provider", provider)
	}
	return nil
}
