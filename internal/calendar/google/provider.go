// Package google adapts Google Calendar to domain.CalendarProvider and domain.TokenIssuer.
package google

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go-interview-backend/internal/domain"

	"golang.org/x/oauth2"
	googleoauth "golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const (
	Name = "google"

	defaultRevokeURL = "https://oauth2.googleapis.com/revoke"
)

// Config configures the adapter. Endpoint, OAuthEndpoint, RevokeURL and HTTPClient
// are only overridden in tests.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	CalendarID   string
	// CreateConference requests a Google Meet link for new events.
	CreateConference bool

	Endpoint      string
	OAuthEndpoint *oauth2.Endpoint
	RevokeURL     string
	HTTPClient    *http.Client
}

type Provider struct {
	oauth            *oauth2.Config
	calendarID       string
	createConference bool
	endpoint         string
	revokeURL        string
	httpClient       *http.Client
}

func New(cfg Config) *Provider {
	endpoint := googleoauth.Endpoint
	if cfg.OAuthEndpoint != nil {
		endpoint = *cfg.OAuthEndpoint
	}
	calendarID := cfg.CalendarID
	if calendarID == "" {
		calendarID = "primary"
	}
	revokeURL := cfg.RevokeURL
	if revokeURL == "" {
		revokeURL = defaultRevokeURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	return &Provider{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     endpoint,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       []string{calendar.CalendarEventsScope},
		},
		calendarID:       calendarID,
		createConference: cfg.CreateConference,
		endpoint:         cfg.Endpoint,
		revokeURL:        revokeURL,
		httpClient:       httpClient,
	}
}

func (p *Provider) Name() string { return Name }

// AuthorizationURL builds the consent redirect. Offline access plus forced consent
// guarantees a refresh token on every connect.
func (p *Provider) AuthorizationURL(state string) string {
	return p.oauth.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

func (p *Provider) clientCtx(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
}

func (p *Provider) Exchange(ctx context.Context, code string) (*domain.Token, error) {
	tok, err := p.oauth.Exchange(p.clientCtx(ctx), code)
	if err != nil {
		return nil, classifyOAuthError(err, "exchange code")
	}
	return p.fromOAuth(tok), nil
}

func (p *Provider) Refresh(ctx context.Context, refreshToken string) (*domain.Token, error) {
	if refreshToken == "" {
		return nil, fmt.Errorf("google: refresh: %w", domain.ErrUnauthenticated)
	}
	src := p.oauth.TokenSource(p.clientCtx(ctx), &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		return nil, classifyOAuthError(err, "refresh token")
	}
	return p.fromOAuth(tok), nil
}

// Revoke invalidates the grant at Google. An already-invalid token counts as revoked.
func (p *Provider) Revoke(ctx context.Context, token *domain.Token) error {
	value := token.RefreshToken
	if value == "" {
		value = token.AccessToken
	}
	if value == "" {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.revokeURL,
		strings.NewReader(url.Values{"token": {value}}.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("google: revoke: %w: %w", domain.ErrProviderTransient, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK, resp.StatusCode == http.StatusBadRequest:
		return nil
	case resp.StatusCode >= 500:
		return fmt.Errorf("google: revoke: %w: status %d", domain.ErrProviderTransient, resp.StatusCode)
	}
	return fmt.Errorf("google: revoke: %w: status %d", domain.ErrProviderRejected, resp.StatusCode)
}

func (p *Provider) fromOAuth(tok *oauth2.Token) *domain.Token {
	scopes := p.oauth.Scopes
	if raw, ok := tok.Extra("scope").(string); ok && raw != "" {
		scopes = strings.Fields(raw)
	}
	return &domain.Token{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.Type(),
		ExpiresAt:    tok.Expiry,
		Scopes:       scopes,
	}
}

func (p *Provider) service(ctx context.Context, token *domain.Token) (*calendar.Service, error) {
	if token == nil || token.AccessToken == "" {
		return nil, fmt.Errorf("google: %w", domain.ErrUnauthenticated)
	}
	ts := oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: token.AccessToken,
		TokenType:   "Bearer",
		Expiry:      token.ExpiresAt,
	})
	opts := []option.ClientOption{option.WithHTTPClient(oauth2.NewClient(p.clientCtx(ctx), ts))}
	if p.endpoint != "" {
		opts = append(opts, option.WithEndpoint(p.endpoint))
	}
	svc, err := calendar.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar service: %w", err)
	}
	return svc, nil
}

func (p *Provider) CreateEvent(ctx context.Context, token *domain.Token, spec domain.EventSpec) (*domain.ExternalEvent, error) {
	svc, err := p.service(ctx, token)
	if err != nil {
		return nil, err
	}

	ev := toGoogleEvent(spec)
	// Client-assigned id: a replay of the same create hits 409 instead of duplicating.
	ev.Id = spec.IdempotencyKey
	if p.createConference {
		ev.ConferenceData = &calendar.ConferenceData{
			CreateRequest: &calendar.CreateConferenceRequest{
				RequestId:             spec.IdempotencyKey,
				ConferenceSolutionKey: &calendar.ConferenceSolutionKey{Type: "hangoutsMeet"},
			},
		}
	}

	call := svc.Events.Insert(p.calendarID, ev).SendUpdates("all")
	if p.createConference {
		call = call.ConferenceDataVersion(1)
	}

	created, err := call.Context(ctx).Do()
	if err != nil {
		if statusCode(err) != http.StatusConflict {
			return nil, classify(err, "create event")
		}
		existing, gerr := svc.Events.Get(p.calendarID, ev.Id).Context(ctx).Do()
		if gerr != nil {
			return nil, classify(gerr, "fetch existing event")
		}
		return fromGoogleEvent(existing), nil
	}
	return fromGoogleEvent(created), nil
}

func (p *Provider) UpdateEvent(ctx context.Context, token *domain.Token, ref string, spec domain.EventSpec) error {
	svc, err := p.service(ctx, token)
	if err != nil {
		return err
	}
	_, err = svc.Events.Patch(p.calendarID, ref, toGoogleEvent(spec)).
		SendUpdates("all").
		Context(ctx).
		Do()
	if err != nil {
		return classify(err, "update event")
	}
	return nil
}

// CancelEvent deletes the event. Google has no idempotency header for deletes;
// a repeated delete answers 410 which maps to ErrProviderNotFound.
func (p *Provider) CancelEvent(ctx context.Context, token *domain.Token, ref, _ string) error {
	svc, err := p.service(ctx, token)
	if err != nil {
		return err
	}
	if err := svc.Events.Delete(p.calendarID, ref).SendUpdates("all").Context(ctx).Do(); err != nil {
		return classify(err, "cancel event")
	}
	return nil
}

func (p *Provider) GetEvent(ctx context.Context, token *domain.Token, ref string) (*domain.ExternalEvent, error) {
	svc, err := p.service(ctx, token)
	if err != nil {
		return nil, err
	}
	ev, err := svc.Events.Get(p.calendarID, ref).Context(ctx).Do()
	if err != nil {
		return nil, classify(err, "get event")
	}
	return fromGoogleEvent(ev), nil
}

func toGoogleEvent(spec domain.EventSpec) *calendar.Event {
	ev := &calendar.Event{
		Summary:     spec.Title,
		Description: spec.Description,
		Start: &calendar.EventDateTime{
			DateTime: spec.Start.Format(time.RFC3339),
			TimeZone: spec.Timezone,
		},
		End: &calendar.EventDateTime{
			DateTime: spec.End.Format(time.RFC3339),
			TimeZone: spec.Timezone,
		},
		ExtendedProperties: &calendar.EventExtendedProperties{
			Private: map[string]string{
				"interviewId":    spec.InterviewID,
				"idempotencyKey": spec.IdempotencyKey,
				"version":        strconv.FormatInt(spec.Version, 10),
			},
		},
	}
	for _, email := range spec.Attendees {
		ev.Attendees = append(ev.Attendees, &calendar.EventAttendee{Email: email})
	}
	return ev
}

func fromGoogleEvent(ev *calendar.Event) *domain.ExternalEvent {
	out := &domain.ExternalEvent{
		Ref:       ev.Id,
		Start:     parseEventTime(ev.Start),
		End:       parseEventTime(ev.End),
		JoinURL:   ev.HangoutLink,
		Cancelled: ev.Status == "cancelled",
	}
	if out.JoinURL == "" && ev.ConferenceData != nil {
		for _, ep := range ev.ConferenceData.EntryPoints {
			if ep.EntryPointType == "video" {
				out.JoinURL = ep.Uri
				break
			}
		}
	}
	if ev.Updated != "" {
		out.UpdatedAt, _ = time.Parse(time.RFC3339, ev.Updated)
	}
	return out
}

func parseEventTime(t *calendar.EventDateTime) time.Time {
	if t == nil {
		return time.Time{}
	}
	if t.DateTime != "" {
		parsed, _ := time.Parse(time.RFC3339, t.DateTime)
		return parsed
	}
	if t.Date != "" {
		parsed, _ := time.Parse(time.DateOnly, t.Date)
		return parsed
	}
	return time.Time{}
}

func statusCode(err error) int {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return gerr.Code
	}
	return 0
}

// classify maps Google API failures onto the domain error taxonomy.
func classify(err error, op string) error {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		if errors.Is(err, context.Canceled) {
			return err
		}
		return fmt.Errorf("google: %s: %w: %w", op, domain.ErrProviderTransient, err)
	}

	switch {
	case gerr.Code == http.StatusNotFound || gerr.Code == http.StatusGone:
		return fmt.Errorf("google: %s: %w", op, domain.ErrProviderNotFound)
	case gerr.Code == http.StatusUnauthorized:
		return fmt.Errorf("google: %s: %w", op, domain.ErrUnauthenticated)
	case gerr.Code == http.StatusTooManyRequests || gerr.Code >= 500 || isRateLimited(gerr):
		return fmt.Errorf("google: %s: %w: %w", op, domain.ErrProviderTransient, err)
	}
	return fmt.Errorf("google: %s: %w: %w", op, domain.ErrProviderRejected, err)
}

func isRateLimited(gerr *googleapi.Error) bool {
	if gerr.Code != http.StatusForbidden {
		return false
	}
	for _, item := range gerr.Errors {
		if item.Reason == "rateLimitExceeded" || item.Reason == "userRateLimitExceeded" {
			return true
		}
	}
	return false
}

func classifyOAuthError(err error, op string) error {
	var rerr *oauth2.RetrieveError
	if errors.As(err, &rerr) && rerr.Response != nil && rerr.Response.StatusCode < 500 {
		return fmt.Errorf("google: %s: %w: %w", op, domain.ErrUnauthenticated, err)
	}
	return fmt.Errorf("google: %s: %w: %w", op, domain.ErrProviderTransient, err)
}
