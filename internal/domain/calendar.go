package domain

import (
	"context"
	"slices"
	"time"
)

// Required OAuth scopes for calendar read and write.
const (
	ScopeCalendarEvents = "https://www.googleapis.com/auth/calendar.events"
	ScopeCalendar       = "https://www.googleapis.com/auth/calendar"
)

// Token is an OAuth token for a calendar provider.
type Token struct {
	AccessToken  string    `json:"-"`
	RefreshToken string    `json:"-"`
	TokenType    string    `json:"token_type"`
	ExpiresAt    time.Time `json:"expires_at"`
	Scopes       []string  `json:"scopes"`
}

// HasCalendarAccess reports whether the scopes cover event read and write.
func (t *Token) HasCalendarAccess() bool {
	return slices.Contains(t.Scopes, ScopeCalendar) || slices.Contains(t.Scopes, ScopeCalendarEvents)
}

// CalendarConnection is a user's stored link to a calendar provider.
type CalendarConnection struct {
	UserID       string    `json:"user_id"`
	Provider     string    `json:"provider"`
	AccessToken  string    `json:"-"`
	RefreshToken string    `json:"-"`
	ExpiresAt    time.Time `json:"expires_at"`
	Scopes       []string  `json:"scopes"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Token converts the connection to a Token.
func (c *CalendarConnection) Token() *Token {
	return &Token{
		AccessToken:  c.AccessToken,
		RefreshToken: c.RefreshToken,
		TokenType:    "Bearer",
		ExpiresAt:    c.ExpiresAt,
		Scopes:       slices.Clone(c.Scopes),
	}
}

// CredentialRepository persists calendar connections keyed by (userID, provider).
type CredentialRepository interface {
	Get(ctx context.Context, userID, provider string) (*CalendarConnection, error)
	Upsert(ctx context.Context, conn *CalendarConnection) error
	Delete(ctx context.Context, userID, provider string) error
}

// CredentialStore hands out valid tokens; callers never persist tokens themselves.
type CredentialStore interface {
	GetValidToken(ctx context.Context, userID, provider string) (*Token, error)
	StoreToken(ctx context.Context, userID, provider string, token *Token) error
	Revoke(ctx context.Context, userID, provider string) error
}

// EventSpec describes the external event for an interview.
type EventSpec struct {
	InterviewID    string
	IdempotencyKey string
	Title          string
	Description    string
	Start          time.Time
	End            time.Time
	Timezone       string
	Attendees      []string
	Version        int64
}

// ExternalEvent is the provider's view of an event.
type ExternalEvent struct {
	Ref       string
	Start     time.Time
	End       time.Time
	JoinURL   string
	Cancelled bool
	UpdatedAt time.Time
}

// CalendarProvider is the capability interface every calendar adapter implements.
// Mutating calls must be safe to retry with the same idempotency key.
type CalendarProvider interface {
	Name() string
	AuthorizationURL(state string) string
	CreateEvent(ctx context.Context, token *Token, spec EventSpec) (*ExternalEvent, error)
	UpdateEvent(ctx context.Context, token *Token, ref string, spec EventSpec) error
	CancelEvent(ctx context.Context, token *Token, ref, idempotencyKey string) error
	GetEvent(ctx context.Context, token *Token, ref string) (*ExternalEvent, error)
}

// TokenIssuer covers the OAuth half of a provider.
type TokenIssuer interface {
	Exchange(ctx context.Context, code string) (*Token, error)
	Refresh(ctx context.Context, refreshToken string) (*Token, error)
	Revoke(ctx context.Context, token *Token) error
}

// ProviderRegistry resolves adapters by provider name.
type ProviderRegistry interface {
	Calendar(name string) (CalendarProvider, error)
	Tokens(name string) (TokenIssuer, error)
}

// CalendarAuthUsecase drives the OAuth consent flow.
type CalendarAuthUsecase interface {
	AuthorizationURL(ctx context.Context, userID, provider string) (string, error)
	HandleCallback(ctx context.Context, provider, code, state string) (string, error)
	Disconnect(ctx context.Context, userID, provider string) error
}

// WebhookNotification is a provider push message announcing calendar changes.
type WebhookNotification struct {
	ChannelID     string
	ChannelToken  string
	ResourceState string
	MessageNumber string
}

// WebhookUsecase turns provider push messages into reconciliation work.
type WebhookUsecase interface {
	HandleNotification(ctx context.Context, provider string, n WebhookNotification) error
	ChannelToken(userID, provider string) (string, error)
}
