package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"go-interview-backend/internal/domain"
)

type CredentialRepository struct {
	mu   sync.RWMutex
	data map[string]domain.CalendarConnection
	now  func() time.Time
}

func NewCredentialRepository() *CredentialRepository {
	return &CredentialRepository{
		data: make(map[string]domain.CalendarConnection),
		now:  time.Now,
	}
}

func credentialKey(userID, provider string) string {
	return userID + "|" + provider
}

func (r *CredentialRepository) Get(ctx context.Context, userID, provider string) (*domain.CalendarConnection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	conn, ok := r.data[credentialKey(userID, provider)]
	if !ok {
		return nil, domain.ErrNotFound
	}
	conn.Scopes = slices.Clone(conn.Scopes)
	return &conn, nil
}

func (r *CredentialRepository) Upsert(ctx context.Context, conn *domain.CalendarConnection) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := credentialKey(conn.UserID, conn.Provider)
	stored := *conn
	stored.Scopes = slices.Clone(conn.Scopes)
	now := r.now()
	if existing, ok := r.data[key]; ok {
		stored.CreatedAt = existing.CreatedAt
	} else {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now
	r.data[key] = stored
	return nil
}

func (r *CredentialRepository) Delete(ctx context.Context, userID, provider string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.data, credentialKey(userID, provider))
	return nil
}
