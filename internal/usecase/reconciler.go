package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go-interview-backend/internal/calendar"
	"go-interview-backend/internal/domain"

	"golang.org/x/time/rate"
)

type ReconcilerConfig struct {
	// Interval between full sweeps of active synced interviews.
	Interval time.Duration
	// RatePerSecond caps provider reads across all reconciliations.
	RatePerSecond float64
	// CompleteGrace auto-completes interviews that ended at least this long ago. Zero disables.
	CompleteGrace time.Duration
	// Lookback limits the sweep to interviews ending after now-Lookback.
	Lookback  time.Duration
	QueueSize int
	// OrganizerQueueSize bounds distinct organizers waiting for a webhook-triggered pass.
	OrganizerQueueSize int
	ProviderTimeout    time.Duration
	Clock              func() time.Time
}

// Reconciler repairs drift between the ledger and external calendars. It runs
// alongside live traffic and relies on versioned updates instead of locks.
type Reconciler struct {
	repo     domain.InterviewRepository
	creds    domain.CredentialStore
	registry domain.ProviderRegistry
	events   domain.EventPublisher
	limiter  *rate.Limiter
	queue    chan string
	cfg      ReconcilerConfig

	organizers chan string
	pendingMu  sync.Mutex
	pending    map[string]struct{}

	now func() time.Time
	log *slog.Logger
}

func NewReconciler(
	repo domain.InterviewRepository,
	creds domain.CredentialStore,
	registry domain.ProviderRegistry,
	events domain.EventPublisher,
	cfg ReconcilerConfig,
	log *slog.Logger,
) *Reconciler {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	if cfg.RatePerSecond <= 0 {
		cfg.RatePerSecond = 5
	}
	if cfg.Lookback <= 0 {
		cfg.Lookback = 7 * 24 * time.Hour
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1024
	}
	if cfg.OrganizerQueueSize <= 0 {
		cfg.OrganizerQueueSize = 256
	}
	if cfg.ProviderTimeout <= 0 {
		cfg.ProviderTimeout = defaultProviderTimeout
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if events == nil {
		events = noopPublisher{}
	}
	if log == nil {
		log = slog.Default()
	}

	burst := max(int(cfg.RatePerSecond), 1)
	return &Reconciler{
		repo:     repo,
		creds:    creds,
		registry: registry,
		events:   events,
		limiter:  rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst),
		queue:    make(chan string, cfg.QueueSize),
		cfg:      cfg,
		now:      cfg.Clock,
		log:      log,

		organizers: make(chan string, cfg.OrganizerQueueSize),
		pending:    make(map[string]struct{}),
	}
}

func (r *Reconciler) publish(ctx context.Context, t domain.InterviewEventType, iv *domain.Interview) {
	r.events.Publish(ctx, domain.NewInterviewEvent(t, iv, domain.EventSourceReconciler, r.now()))
}

func (r *Reconciler) dueForCompletion(iv *domain.Interview) bool {
	return r.cfg.CompleteGrace > 0 && !r.now().Before(iv.ScheduledEnd.Add(r.cfg.CompleteGrace))
}

// ReconcileInterview compares one interview against its external event and applies
// the drift policy. A lost version race yields ReconcileSuperseded; the next pass
// starts from a fresh read.
func (r *Reconciler) ReconcileInterview(ctx context.Context, id string) (domain.ReconcileOutcome, error) {
	iv, err := r.repo.GetByID(ctx, id)
	if err != nil {
		return "", err
	}
	if !iv.Status.IsActive() || iv.ExternalEventRef == nil {
		return domain.ReconcileSkipped, nil
	}

	provider, err := r.registry.Calendar(iv.Provider)
	if err != nil {
		return domain.ReconcileSkipped, err
	}
	token, err := r.creds.GetValidToken(ctx, iv.OrganizerUserID, iv.Provider)
	if err != nil {
		return domain.ReconcileSkipped, fmt.Errorf("organizer token unavailable: %w", err)
	}

	if err := r.limiter.Wait(ctx); err != nil {
		return "", err
	}
	pctx, cancel := context.WithTimeout(ctx, r.cfg.ProviderTimeout)
	ext, err := provider.GetEvent(pctx, token, *iv.ExternalEventRef)
	cancel()
	missing := errors.Is(err, domain.ErrProviderNotFound)
	if err != nil && !missing {
		return "", fmt.Errorf("failed to read calendar event: %w", err)
	}

	switch {
	case missing || ext.Cancelled:
		return r.commit(ctx, iv, domain.ReconcileCancelledLocal, domain.EventInterviewCancelled, func(cur *domain.Interview) error {
			cur.Status = domain.InterviewStatusCancelled
			return nil
		})

	case r.dueForCompletion(iv):
		return r.commit(ctx, iv, domain.ReconcileCompleted, domain.EventInterviewCompleted, func(cur *domain.Interview) error {
			cur.Status = domain.InterviewStatusCompleted
			return nil
		})

	case ext.Start.Equal(iv.ScheduledStart) && ext.End.Equal(iv.ScheduledEnd):
		return domain.ReconcileInSync, nil

	case ext.UpdatedAt.After(iv.UpdatedAt) && (domain.TimeWindow{Start: ext.Start, End: ext.End}).Validate() == nil:
		return r.commit(ctx, iv, domain.ReconcileAdoptedRemote, domain.EventInterviewRescheduled, func(cur *domain.Interview) error {
			cur.ScheduledStart, cur.ScheduledEnd = ext.Start, ext.End
			cur.Status = domain.InterviewStatusRescheduled
			cur.RescheduleCount++
			return nil
		})
	}

	// Local is newer: push the ledger window back out.
	if err := r.limiter.Wait(ctx); err != nil {
		return "", err
	}
	spec := eventSpec(iv, nil, calendar.OpRepair, iv.Version)
	pctx, cancel = context.WithTimeout(ctx, r.cfg.ProviderTimeout)
	err = provider.UpdateEvent(pctx, token, *iv.ExternalEventRef, spec)
	cancel()
	if err != nil {
		return "", fmt.Errorf("failed to repair calendar event: %w", err)
	}
	r.publish(ctx, domain.EventInterviewReconciled, iv)
	return domain.ReconcilePushedLocal, nil
}

func (r *Reconciler) commit(ctx context.Context, iv *domain.Interview, outcome domain.ReconcileOutcome, event domain.InterviewEventType, mutate func(*domain.Interview) error) (domain.ReconcileOutcome, error) {
	updated, err := r.repo.UpdateWithVersion(ctx, iv.ID, iv.Version, mutate)
	if errors.Is(err, domain.ErrVersionConflict) {
		return domain.ReconcileSuperseded, nil
	}
	if err != nil {
		return "", err
	}
	r.log.Info("interview reconciled",
		"interview_id", iv.ID,
		"outcome", outcome,
		"version", updated.Version,
	)
	r.publish(ctx, event, updated)
	return outcome, nil
}

// ReconcileOrganizer reconciles every active synced interview hosted on userID's calendar.
func (r *Reconciler) ReconcileOrganizer(ctx context.Context, userID string) error {
	filter := domain.InterviewFilter{
		Role:     domain.OwnerRoleOrganizer,
		Statuses: []domain.InterviewStatus{domain.InterviewStatusScheduled, domain.InterviewStatusRescheduled},
	}
	endAfter := r.now().Add(-r.cfg.Lookback)

	var ids []string
	for iv, err := range r.repo.ListByOwner(ctx, userID, filter) {
		if err != nil {
			return err
		}
		if iv.ExternalEventRef == nil || !iv.ScheduledEnd.After(endAfter) {
			continue
		}
		ids = append(ids, iv.ID)
	}

	var errs []error
	for _, id := range ids {
		if _, err := r.ReconcileInterview(ctx, id); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			errs = append(errs, fmt.Errorf("interview %s: %w", id, err))
		}
	}
	return errors.Join(errs...)
}

// EnqueueOrganizer schedules an organizer pass without blocking. Requests for an
// organizer already waiting are merged. It reports false when the queue is full.
func (r *Reconciler) EnqueueOrganizer(userID string) bool {
	r.pendingMu.Lock()
	defer r.pendingMu.Unlock()
	if _, ok := r.pending[userID]; ok {
		return true
	}
	select {
	case r.organizers <- userID:
		r.pending[userID] = struct{}{}
		return true
	default:
		return false
	}
}

func (r *Reconciler) runOrganizer(ctx context.Context, userID string) {
	// Cleared before the pass so a change arriving mid-pass queues another one.
	r.pendingMu.Lock()
	delete(r.pending, userID)
	r.pendingMu.Unlock()

	if err := r.ReconcileOrganizer(ctx, userID); err != nil && ctx.Err() == nil {
		r.log.Warn("organizer reconcile failed", "user_id", userID, "error", err)
	}
}

// Enqueue schedules a drift check without blocking. It reports false when the queue is full.
func (r *Reconciler) Enqueue(id string) bool {
	select {
	case r.queue <- id:
		return true
	default:
		return false
	}
}

// Handle implements domain.EventHandler. The reconciler's own commits are ignored so
// a repair never triggers another check of itself.
func (r *Reconciler) Handle(_ context.Context, event domain.InterviewEvent) {
	if event.Source == domain.EventSourceReconciler || event.Status.IsTerminal() {
		return
	}
	if !r.Enqueue(event.InterviewID) {
		r.log.Warn("reconcile queue full, relying on sweep", "interview_id", event.InterviewID)
	}
}

// Sweep reconciles every candidate once and returns how many were checked.
func (r *Reconciler) Sweep(ctx context.Context) (int, error) {
	var ids []string
	for iv, err := range r.repo.ListSyncCandidates(ctx, r.now().Add(-r.cfg.Lookback)) {
		if err != nil {
			return 0, err
		}
		ids = append(ids, iv.ID)
	}

	outcomes := make(map[domain.ReconcileOutcome]int)
	for i, id := range ids {
		outcome, err := r.ReconcileInterview(ctx, id)
		if err != nil {
			if ctx.Err() != nil {
				return i, ctx.Err()
			}
			r.log.Warn("reconcile failed", "interview_id", id, "error", err)
			continue
		}
		outcomes[outcome]++
	}

	r.log.Info("reconcile sweep finished", "checked", len(ids), "outcomes", outcomes)
	return len(ids), nil
}

// Run drains the interview and organizer queues and sweeps on every interval tick
// until ctx is done.
func (r *Reconciler) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case id := <-r.queue:
			outcome, err := r.ReconcileInterview(ctx, id)
			if err != nil && ctx.Err() == nil {
				r.log.Warn("reconcile failed", "interview_id", id, "error", err)
				continue
			}
			r.log.Debug("reconciled", "interview_id", id, "outcome", outcome)
		case userID := <-r.organizers:
			r.runOrganizer(ctx, userID)
		case <-ticker.C:
			if _, err := r.Sweep(ctx); err != nil && ctx.Err() == nil {
				r.log.Error("reconcile sweep failed", "error", err)
			}
		}
	}
}
