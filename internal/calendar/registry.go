package calendar

import (
	"fmt"
	"log/slog"
	"sort"

	"go-interview-backend/internal/domain"
)

// Registry resolves providers by name. Populate it at startup; lookups are read-only.
type Registry struct {
	calendars map[string]domain.CalendarProvider
	tokens    map[string]domain.TokenIssuer
	policy    RetryPolicy
	log       *slog.Logger
}

func NewRegistry(policy RetryPolicy, log *slog.Logger) *Registry {
	return &Registry{
		calendars: make(map[string]domain.CalendarProvider),
		tokens:    make(map[string]domain.TokenIssuer),
		policy:    policy,
		log:       log,
	}
}

// Register adds a provider; calendar calls and token refreshes are wrapped with
// the registry's retry policy.
func (r *Registry) Register(cal domain.CalendarProvider, tokens domain.TokenIssuer) {
	name := cal.Name()
	r.calendars[name] = WithRetry(cal, r.policy, r.log)
	if tokens != nil {
		r.tokens[name] = WithRefreshRetry(name, tokens, r.policy, r.log)
	}
}

func (r *Registry) Calendar(name string) (domain.CalendarProvider, error) {
	p, ok := r.calendars[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownProvider, name)
	}
	return p, nil
}

func (r *Registry) Tokens(name string) (domain.TokenIssuer, error) {
	t, ok := r.tokens[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownProvider, name)
	}
	return t, nil
}

// Names lists registered providers in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.calendars))
	for n := range r.calendars {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
