package usecase_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"go-interview-backend/internal/domain"
	"go-interview-backend/internal/usecase"
	"go-interview-backend/pkg/auth"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingQueue struct {
	mu    sync.Mutex
	users []string
	full  bool
}

func (q *recordingQueue) EnqueueOrganizer(userID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.full {
		return false
	}
	q.users = append(q.users, userID)
	return true
}

func (q *recordingQueue) queued() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]string(nil), q.users...)
}

type memoryDeduper struct {
	mu   sync.Mutex
	seen map[string]bool
}

func (d *memoryDeduper) FirstSeen(_ context.Context, key string, _ time.Duration) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.seen[key] {
		return false, nil
	}
	d.seen[key] = true
	return true, nil
}

func TestWebhookNotifications(t *testing.T) {
	ctx := context.Background()
	signer := auth.NewStateSigner([]byte("state-secret"))
	queue := &recordingQueue{}
	uc := usecase.NewWebhookUsecase(signer, &memoryDeduper{seen: map[string]bool{}}, queue, quietLogger())

	token, err := uc.ChannelToken(organizerID, "google")
	require.NoError(t, err)

	t.Run("Invalid channel token is forbidden", func(t *testing.T) {
		err := uc.HandleNotification(ctx, "google", domain.WebhookNotification{ChannelToken: "garbage"})
		assert.ErrorIs(t, err, domain.ErrForbidden)
		assert.Empty(t, queue.queued())
	})

	t.Run("Sync handshake is acknowledged without work", func(t *testing.T) {
		err := uc.HandleNotification(ctx, "google", domain.WebhookNotification{ChannelToken: token, ResourceState: "sync"})
		require.NoError(t, err)
		assert.Empty(t, queue.queued())
	})

	t.Run("Change queues one organizer reconcile per message", func(t *testing.T) {
		n := domain.WebhookNotification{ChannelID: "ch-1", ChannelToken: token, ResourceState: "exists", MessageNumber: "7"}
		require.NoError(t, uc.HandleNotification(ctx, "google", n))
		require.NoError(t, uc.HandleNotification(ctx, "google", n))

		assert.Equal(t, []string{organizerID}, queue.queued())
	})

	t.Run("A full queue still acknowledges the message", func(t *testing.T) {
		full := &recordingQueue{full: true}
		uc := usecase.NewWebhookUsecase(signer, nil, full, quietLogger())
		n := domain.WebhookNotification{ChannelID: "ch-1", ChannelToken: token, ResourceState: "exists", MessageNumber: "8"}
		assert.NoError(t, uc.HandleNotification(ctx, "google", n))
	})
}
