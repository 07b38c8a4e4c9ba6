package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go-interview-backend/internal/domain"
	"go-interview-backend/pkg/vault"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lib/pq"
)

// credentialRepo stores calendar connections with both tokens sealed at rest.
type credentialRepo struct {
	db     *pgxpool.Pool
	sealer *vault.Sealer
}

func NewCredentialRepository(db *pgxpool.Pool, sealer *vault.Sealer) domain.CredentialRepository {
	return &credentialRepo{db: db, sealer: sealer}
}

// sealBinding ties a ciphertext to its row so tokens cannot be swapped between users.
func sealBinding(userID, provider string) string {
	return userID + ":" + provider
}

func (r *credentialRepo) Get(ctx context.Context, userID, provider string) (*domain.CalendarConnection, error) {
	query := `SELECT user_id, provider, access_token, refresh_token, expires_at, scopes, created_at, updated_at
              FROM calendar_connections WHERE user_id = $1 AND provider = $2`

	var (
		conn            domain.CalendarConnection
		access, refresh string
		expiresAt       *time.Time
		scopes          []string
	)
	err := r.db.QueryRow(ctx, query, userID, provider).Scan(
		&conn.UserID, &conn.Provider, &access, &refresh, &expiresAt, pq.Array(&scopes), &conn.CreatedAt, &conn.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	binding := sealBinding(userID, provider)
	if conn.AccessToken, err = r.sealer.Open(access, binding); err != nil {
		return nil, fmt.Errorf("failed to open access token: %w", err)
	}
	if conn.RefreshToken, err = r.sealer.Open(refresh, binding); err != nil {
		return nil, fmt.Errorf("failed to open refresh token: %w", err)
	}
	if expiresAt != nil {
		conn.ExpiresAt = *expiresAt
	}
	conn.Scopes = scopes
	return &conn, nil
}

func (r *credentialRepo) Upsert(ctx context.Context, conn *domain.CalendarConnection) error {
	binding := sealBinding(conn.UserID, conn.Provider)
	access, err := r.sealer.Seal(conn.AccessToken, binding)
	if err != nil {
		return fmt.Errorf("failed to seal access token: %w", err)
	}
	refresh, err := r.sealer.Seal(conn.RefreshToken, binding)
	if err != nil {
		return fmt.Errorf("failed to seal refresh token: %w", err)
	}

	var expiresAt *time.Time
	if !conn.ExpiresAt.IsZero() {
		expiresAt = &conn.ExpiresAt
	}
	scopes := conn.Scopes
	if scopes == nil {
		scopes = []string{}
	}
	now := time.Now().UTC()

	query := `
		INSERT INTO calendar_connections (
			user_id, provider, access_token, refresh_token, expires_at, scopes, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		ON CONFLICT (user_id, provider) DO UPDATE SET
			access_token = EXCLUDED.access_token,
			refresh_token = EXCLUDED.refresh_token,
			expires_at = EXCLUDED.expires_at,
			scopes = EXCLUDED.scopes,
			updated_at = EXCLUDED.updated_at
		RETURNING created_at, updated_at`
	return r.db.QueryRow(ctx, query,
		conn.UserID, conn.Provider, access, refresh, expiresAt, pq.Array(scopes), now,
	).Scan(&conn.CreatedAt, &conn.UpdatedAt)
}

func (r *credentialRepo) Delete(ctx context.Context, userID, provider string) error {
	_, err := r.db.Exec(ctx, `DELETE FROM calendar_connections WHERE user_id = $1 AND provider = $2`, userID, provider)
	return err
}
