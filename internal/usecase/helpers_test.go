package usecase_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"go-interview-backend/internal/calendar"
	"go-interview-backend/internal/domain"
	"go-interview-backend/internal/repository/memory"
	"go-interview-backend/internal/usecase"
	"go-interview-backend/pkg/validation"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const (
	companyID   = "company-1"
	organizerID = "organizer-1"
	candidateID = "candidate-1"
)

var (
	employer  = domain.Actor{UserID: organizerID, Role: domain.RoleEmployer, CompanyID: companyID}
	candidate = domain.Actor{UserID: candidateID, Role: domain.RoleCandidate}
	outsider  = domain.Actor{UserID: "other", Role: domain.RoleEmployer, CompanyID: "company-2"}
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock(t time.Time) *testClock { return &testClock{now: t} }

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

// fakeCalendar is an in-memory calendar provider with error injection.
type fakeCalendar struct {
	mu     sync.Mutex
	events map[string]domain.ExternalEvent
	now    func() time.Time

	createErr error
	updateErr error
	cancelErr error
	getErr    error
	// beforeUpdate runs on every UpdateEvent before the fake applies it.
	beforeUpdate func()

	creates, updates, cancels, gets int
}

func newFakeCalendar(now func() time.Time) *fakeCalendar {
	return &fakeCalendar{events: make(map[string]domain.ExternalEvent), now: now}
}

func (f *fakeCalendar) Name() string { return "google" }

func (f *fakeCalendar) AuthorizationURL(state string) string {
	return "https://accounts.example.com/o/oauth2/auth?state=" + state
}

func (f *fakeCalendar) CreateEvent(_ context.Context, _ *domain.Token, spec domain.EventSpec) (*domain.ExternalEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates++
	if f.createErr != nil {
		return nil, f.createErr
	}
	if ev, ok := f.events[spec.IdempotencyKey]; ok {
		return &ev, nil
	}
	ev := domain.ExternalEvent{Ref: spec.IdempotencyKey, Start: spec.Start, End: spec.End, UpdatedAt: f.now()}
	f.events[ev.Ref] = ev
	return &ev, nil
}

func (f *fakeCalendar) UpdateEvent(_ context.Context, _ *domain.Token, ref string, spec domain.EventSpec) error {
	if f.beforeUpdate != nil {
		f.beforeUpdate()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates++
	if f.updateErr != nil {
		return f.updateErr
	}
	ev, ok := f.events[ref]
	if !ok {
		return domain.ErrProviderNotFound
	}
	ev.Start, ev.End, ev.UpdatedAt = spec.Start, spec.End, f.now()
	f.events[ref] = ev
	return nil
}

func (f *fakeCalendar) CancelEvent(_ context.Context, _ *domain.Token, ref, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancels++
	if f.cancelErr != nil {
		return f.cancelErr
	}
	if _, ok := f.events[ref]; !ok {
		return domain.ErrProviderNotFound
	}
	delete(f.events, ref)
	return nil
}

func (f *fakeCalendar) GetEvent(_ context.Context, _ *domain.Token, ref string) (*domain.ExternalEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	if f.getErr != nil {
		return nil, f.getErr
	}
	ev, ok := f.events[ref]
	if !ok {
		return nil, domain.ErrProviderNotFound
	}
	return &ev, nil
}

// set replaces the external event, simulating a change made in the calendar UI.
func (f *fakeCalendar) set(ev domain.ExternalEvent) {
	f.mu.Lock()
	f.events[ev.Ref] = ev
	f.mu.Unlock()
}

func (f *fakeCalendar) remove(ref string) {
	f.mu.Lock()
	delete(f.events, ref)
	f.mu.Unlock()
}

func (f *fakeCalendar) get(ref string) (domain.ExternalEvent, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ev, ok := f.events[ref]
	return ev, ok
}

type MockTokenIssuer struct {
	mock.Mock
}

func (m *MockTokenIssuer) Exchange(ctx context.Context, code string) (*domain.Token, error) {
	args := m.Called(ctx, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Token), args.Error(1)
}

func (m *MockTokenIssuer) Refresh(ctx context.Context, refreshToken string) (*domain.Token, error) {
	args := m.Called(ctx, refreshToken)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Token), args.Error(1)
}

func (m *MockTokenIssuer) Revoke(ctx context.Context, token *domain.Token) error {
	return m.Called(ctx, token).Error(0)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.InterviewEvent
}

func (p *recordingPublisher) Publish(_ context.Context, e domain.InterviewEvent) {
	p.mu.Lock()
	p.events = append(p.events, e)
	p.mu.Unlock()
}

func (p *recordingPublisher) types() []domain.InterviewEventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]domain.InterviewEventType, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type harness struct {
	clock     *testClock
	repo      *memory.InterviewRepository
	credRepo  *memory.CredentialRepository
	cal       *fakeCalendar
	issuer    *MockTokenIssuer
	registry  *calendar.Registry
	creds     domain.CredentialStore
	access    *usecase.MeetingAccessGenerator
	events    *recordingPublisher
	scheduler domain.SchedulingUsecase
}

func newHarness(t *testing.T, now time.Time) *harness {
	t.Helper()

	h := &harness{
		clock:    newClock(now),
		credRepo: memory.NewCredentialRepository(),
		issuer:   new(MockTokenIssuer),
		events:   &recordingPublisher{},
	}
	h.repo = memory.NewInterviewRepository().WithClock(h.clock.Now)
	h.cal = newFakeCalendar(h.clock.Now)
	h.registry = calendar.NewRegistry(calendar.RetryPolicy{MaxAttempts: 1}, quietLogger())
	h.registry.Register(h.cal, h.issuer)
	h.creds = usecase.NewCredentialStore(h.credRepo, h.registry, usecase.CredentialStoreConfig{}, quietLogger())
	h.access = usecase.NewMeetingAccessGenerator("https://meet.example.com", []byte("meeting-secret"))
	h.scheduler = usecase.NewSchedulingUsecase(
		h.repo, h.creds, h.registry, h.access, h.events, validation.New(),
		usecase.SchedulingConfig{Clock: h.clock.Now},
		quietLogger(),
	)

	h.connect(t, organizerID)
	return h
}

// connect stores a long-lived calendar grant for userID.
func (h *harness) connect(t *testing.T, userID string) {
	t.Helper()
	require.NoError(t, h.credRepo.Upsert(context.Background(), &domain.CalendarConnection{
		UserID:       userID,
		Provider:     "google",
		AccessToken:  "access-" + userID,
		RefreshToken: "refresh-" + userID,
		ExpiresAt:    time.Now().Add(24 * time.Hour),
		Scopes:       []string{domain.ScopeCalendarEvents},
	}))
}

func draftAt(start time.Time) domain.InterviewDraft {
	return domain.InterviewDraft{
		OwnerCompanyID: companyID,
		CandidateID:    candidateID,
		Provider:       "google",
		Title:          "Backend engineer interview",
		Start:          start,
		End:            start.Add(30 * time.Minute),
		Timezone:       "UTC",
		Attendees:      []string{"candidate@example.com"},
	}
}

func (h *harness) schedule(t *testing.T, start time.Time) *domain.Interview {
	t.Helper()
	iv, err := h.scheduler.ScheduleInterview(context.Background(), employer, draftAt(start))
	require.NoError(t, err)
	return iv
}
