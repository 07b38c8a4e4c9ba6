package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go-interview-backend/internal/calendar"
	"go-interview-backend/internal/domain"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

const (
	defaultProviderTimeout = 10 * time.Second
	maxCancelCommits       = 3
)

type SchedulingConfig struct {
	// ProviderTimeout bounds every single provider call.
	ProviderTimeout time.Duration
	// Clock defaults to time.Now.
	Clock func() time.Time
}

type noopPublisher struct{}

func (noopPublisher) Publish(context.Context, domain.InterviewEvent) {}

type schedulingUsecase struct {
	repo     domain.InterviewRepository
	creds    domain.CredentialStore
	registry domain.ProviderRegistry
	access   *MeetingAccessGenerator
	events   domain.EventPublisher
	validate *validator.Validate
	timeout  time.Duration
	now      func() time.Time
	log      *slog.Logger
}

// NewSchedulingUsecase creates the scheduling engine.
func NewSchedulingUsecase(
	repo domain.InterviewRepository,
	creds domain.CredentialStore,
	registry domain.ProviderRegistry,
	access *MeetingAccessGenerator,
	events domain.EventPublisher,
	validate *validator.Validate,
	cfg SchedulingConfig,
	log *slog.Logger,
) domain.SchedulingUsecase {
	if events == nil {
		events = noopPublisher{}
	}
	if cfg.ProviderTimeout <= 0 {
		cfg.ProviderTimeout = defaultProviderTimeout
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if log == nil {
		log = slog.Default()
	}
	return &schedulingUsecase{
		repo:     repo,
		creds:    creds,
		registry: registry,
		access:   access,
		events:   events,
		validate: validate,
		timeout:  cfg.ProviderTimeout,
		now:      cfg.Clock,
		log:      log,
	}
}

// checkWindow rejects inverted windows, windows in the past and unknown zones.
func (uc *schedulingUsecase) checkWindow(w domain.TimeWindow, tz string) error {
	if err := w.Validate(); err != nil {
		return err
	}
	if !w.Start.After(uc.now()) {
		return fmt.Errorf("%w: start must be in the future", domain.ErrInvalidWindow)
	}
	if _, err := time.LoadLocation(tz); err != nil || tz == "" {
		return fmt.Errorf("%w: unknown timezone %q", domain.ErrInvalidWindow, tz)
	}
	return nil
}

func (uc *schedulingUsecase) publish(ctx context.Context, t domain.InterviewEventType, iv *domain.Interview) {
	uc.events.Publish(ctx, domain.NewInterviewEvent(t, iv, domain.EventSourceEngine, uc.now()))
}

func (uc *schedulingUsecase) providerFor(ctx context.Context, name, userID string) (domain.CalendarProvider, *domain.Token, error) {
	provider, err := uc.registry.Calendar(name)
	if err != nil {
		return nil, nil, err
	}
	token, err := uc.creds.GetValidToken(ctx, userID, name)
	if err != nil {
		return nil, nil, err
	}
	return provider, token, nil
}

func (uc *schedulingUsecase) loadForManage(ctx context.Context, actor domain.Actor, id string) (*domain.Interview, error) {
	iv, err := uc.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.CanManage(iv.OwnerCompanyID) {
		return nil, domain.ErrForbidden
	}
	return iv, nil
}

func eventSpec(iv *domain.Interview, attendees []string, op calendar.Operation, version int64) domain.EventSpec {
	return domain.EventSpec{
		InterviewID:    iv.ID,
		IdempotencyKey: calendar.IdempotencyKey(iv.ID, op, version),
		Title:          iv.Title,
		Description:    iv.Description,
		Start:          iv.ScheduledStart,
		End:            iv.ScheduledEnd,
		Timezone:       iv.Timezone,
		Attendees:      attendees,
		Version:        version,
	}
}

// ScheduleInterview creates the external event first and commits the ledger record
// only when it exists. A failed commit cancels the external event again.
func (uc *schedulingUsecase) ScheduleInterview(ctx context.Context, actor domain.Actor, draft domain.InterviewDraft) (*domain.Interview, error) {
	// 1. Validate the request
	if err := uc.validate.Struct(draft); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrInvalidInput, err)
	}
	if !actor.CanManage(draft.OwnerCompanyID) {
		return nil, domain.ErrForbidden
	}
	window := domain.TimeWindow{Start: draft.Start, End: draft.End}
	if err := uc.checkWindow(window, draft.Timezone); err != nil {
		return nil, err
	}

	// 2. Resolve the interview id; a replayed request key returns the first result
	id := uuid.NewString()
	if draft.RequestKey != "" {
		id = uuid.NewSHA1(uuid.NameSpaceURL, []byte(actor.UserID+":"+draft.RequestKey)).String()
		existing, err := uc.repo.GetByID(ctx, id)
		if err == nil {
			return existing, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
	}

	// 3. Materialize the external event
	provider, token, err := uc.providerFor(ctx, draft.Provider, actor.UserID)
	if err != nil {
		return nil, err
	}

	iv := &domain.Interview{
		ID:              id,
		OwnerCompanyID:  draft.OwnerCompanyID,
		CandidateID:     draft.CandidateID,
		OrganizerUserID: actor.UserID,
		Provider:        draft.Provider,
		Title:           draft.Title,
		Description:     draft.Description,
		ScheduledStart:  draft.Start,
		ScheduledEnd:    draft.End,
		Timezone:        draft.Timezone,
		Status:          domain.InterviewStatusScheduled,
		Version:         1,
	}
	spec := eventSpec(iv, draft.Attendees, calendar.OpCreate, 1)

	pctx, cancel := context.WithTimeout(ctx, uc.timeout)
	ext, err := provider.CreateEvent(pctx, token, spec)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar event: %w", err)
	}

	// 4. Issue meeting access and commit
	access, err := uc.access.Generate(id, ext.JoinURL)
	if err != nil {
		uc.compensate(ctx, provider, token, ext.Ref, id)
		return nil, err
	}
	ref := ext.Ref
	iv.ExternalEventRef = &ref
	iv.MeetingAccess = access

	// The external event exists now; a caller hanging up must not orphan it.
	commitCtx := context.WithoutCancel(ctx)
	if err := uc.repo.Create(commitCtx, iv); err != nil {
		if errors.Is(err, domain.ErrAlreadyExists) && draft.RequestKey != "" {
			// A concurrent replay of the same request won; both share the same external event.
			return uc.repo.GetByID(commitCtx, id)
		}
		uc.compensate(ctx, provider, token, ref, id)
		return nil, fmt.Errorf("failed to save interview: %w", err)
	}

	uc.log.Info("interview scheduled",
		"interview_id", iv.ID,
		"company_id", iv.OwnerCompanyID,
		"provider", iv.Provider,
		"start", iv.ScheduledStart,
	)
	uc.publish(ctx, domain.EventInterviewScheduled, iv)
	return iv, nil
}

func (uc *schedulingUsecase) compensate(ctx context.Context, provider domain.CalendarProvider, token *domain.Token, ref, interviewID string) {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), uc.timeout)
	defer cancel()

	err := provider.CancelEvent(cctx, token, ref, calendar.IdempotencyKey(interviewID, calendar.OpCancel, 1))
	if err != nil && !errors.Is(err, domain.ErrProviderNotFound) {
		uc.log.Error("failed to roll back calendar event",
			"interview_id", interviewID,
			"event_ref", ref,
			"error", err,
		)
	}
}

func (uc *schedulingUsecase) RescheduleInterview(ctx context.Context, actor domain.Actor, id string, req domain.RescheduleRequest) (*domain.Interview, error) {
	iv, err := uc.loadForManage(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if req.ExpectedVersion != 0 && req.ExpectedVersion != iv.Version {
		return nil, fmt.Errorf("%w: expected version %d, found %d", domain.ErrVersionConflict, req.ExpectedVersion, iv.Version)
	}
	if !iv.Status.IsActive() {
		return nil, fmt.Errorf("%w: cannot reschedule a %s interview", domain.ErrInvalidTransition, iv.Status)
	}

	tz := req.Timezone
	if tz == "" {
		tz = iv.Timezone
	}
	window := domain.TimeWindow{Start: req.Start, End: req.End}
	if err := uc.checkWindow(window, tz); err != nil {
		return nil, err
	}
	if iv.ExternalEventRef == nil {
		return nil, fmt.Errorf("interview %s has no calendar event: %w", id, domain.ErrProviderNotFound)
	}

	provider, token, err := uc.providerFor(ctx, iv.Provider, iv.OrganizerUserID)
	if err != nil {
		return nil, err
	}

	target := iv.Clone()
	target.ScheduledStart, target.ScheduledEnd, target.Timezone = req.Start, req.End, tz
	nextVersion := iv.Version + 1

	pctx, cancel := context.WithTimeout(ctx, uc.timeout)
	err = provider.UpdateEvent(pctx, token, *iv.ExternalEventRef, eventSpec(target, nil, calendar.OpReschedule, nextVersion))
	cancel()
	if err != nil {
		return nil, fmt.Errorf("failed to update calendar event: %w", err)
	}

	updated, err := uc.repo.UpdateWithVersion(context.WithoutCancel(ctx), id, iv.Version, func(cur *domain.Interview) error {
		cur.ScheduledStart, cur.ScheduledEnd, cur.Timezone = req.Start, req.End, tz
		cur.Status = domain.InterviewStatusRescheduled
		cur.RescheduleCount++
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrVersionConflict) {
			uc.restoreExternal(ctx, provider, token, id)
		}
		return nil, err
	}

	uc.log.Info("interview rescheduled",
		"interview_id", id,
		"version", updated.Version,
		"start", updated.ScheduledStart,
	)
	uc.publish(ctx, domain.EventInterviewRescheduled, updated)
	return updated, nil
}

// restoreExternal pushes the winning local window back after a lost reschedule race,
// so the external event does not keep the loser's time.
func (uc *schedulingUsecase) restoreExternal(ctx context.Context, provider domain.CalendarProvider, token *domain.Token, id string) {
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), uc.timeout)
	defer cancel()

	cur, err := uc.repo.GetByID(rctx, id)
	if err != nil || cur.ExternalEventRef == nil || !cur.Status.IsActive() {
		return
	}
	spec := eventSpec(cur, nil, calendar.OpRepair, cur.Version)
	if err := provider.UpdateEvent(rctx, token, *cur.ExternalEventRef, spec); err != nil {
		uc.log.Warn("failed to restore calendar event after conflict", "interview_id", id, "error", err)
	}
}

// CancelInterview is idempotent: cancelling a cancelled interview returns it unchanged.
func (uc *schedulingUsecase) CancelInterview(ctx context.Context, actor domain.Actor, id string) (*domain.Interview, error) {
	iv, err := uc.loadForManage(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	switch iv.Status {
	case domain.InterviewStatusCancelled:
		return iv, nil
	case domain.InterviewStatusCompleted:
		return nil, fmt.Errorf("%w: interview already completed", domain.ErrInvalidTransition)
	}

	if iv.ExternalEventRef != nil {
		provider, token, err := uc.providerFor(ctx, iv.Provider, iv.OrganizerUserID)
		if err != nil {
			return nil, err
		}
		pctx, cancel := context.WithTimeout(ctx, uc.timeout)
		err = provider.CancelEvent(pctx, token, *iv.ExternalEventRef, calendar.IdempotencyKey(id, calendar.OpCancel, iv.Version+1))
		cancel()
		// Already gone at the provider is the state we want.
		if err != nil && !errors.Is(err, domain.ErrProviderNotFound) {
			return nil, fmt.Errorf("failed to cancel calendar event: %w", err)
		}
	}

	commitCtx := context.WithoutCancel(ctx)
	current := iv
	for range maxCancelCommits {
		updated, err := uc.repo.UpdateWithVersion(commitCtx, id, current.Version, func(cur *domain.Interview) error {
			cur.Status = domain.InterviewStatusCancelled
			return nil
		})
		if err == nil {
			uc.log.Info("interview cancelled", "interview_id", id, "version", updated.Version)
			uc.publish(ctx, domain.EventInterviewCancelled, updated)
			return updated, nil
		}
		if !errors.Is(err, domain.ErrVersionConflict) {
			return nil, err
		}

		// The external event is already gone, so commit against whatever won.
		current, err = uc.repo.GetByID(commitCtx, id)
		if err != nil {
			return nil, err
		}
		switch current.Status {
		case domain.InterviewStatusCancelled:
			return current, nil
		case domain.InterviewStatusCompleted:
			return nil, fmt.Errorf("%w: interview completed concurrently", domain.ErrVersionConflict)
		}
	}
	return nil, fmt.Errorf("%w: gave up cancelling after %d attempts", domain.ErrVersionConflict, maxCancelCommits)
}

// MarkCompleted is local only; the external event simply lies in the past.
func (uc *schedulingUsecase) MarkCompleted(ctx context.Context, actor domain.Actor, id string) (*domain.Interview, error) {
	iv, err := uc.loadForManage(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if !iv.Status.IsActive() {
		return nil, fmt.Errorf("%w: cannot complete a %s interview", domain.ErrInvalidTransition, iv.Status)
	}
	if uc.now().Before(iv.ScheduledEnd) {
		return nil, fmt.Errorf("%w: interview has not ended yet", domain.ErrInvalidTransition)
	}

	updated, err := uc.repo.UpdateWithVersion(ctx, id, iv.Version, func(cur *domain.Interview) error {
		cur.Status = domain.InterviewStatusCompleted
		return nil
	})
	if err != nil {
		return nil, err
	}
	uc.publish(ctx, domain.EventInterviewCompleted, updated)
	return updated, nil
}

func (uc *schedulingUsecase) GetInterview(ctx context.Context, actor domain.Actor, id string) (*domain.Interview, error) {
	iv, err := uc.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.CanRead(iv) {
		return nil, domain.ErrForbidden
	}
	return iv, nil
}

func (uc *schedulingUsecase) ListInterviews(ctx context.Context, actor domain.Actor, scope domain.OwnerScope, filter domain.InterviewFilter) ([]*domain.Interview, error) {
	if !scope.Role.Valid() || scope.OwnerID == "" {
		return nil, fmt.Errorf("%w: unknown owner scope", domain.ErrInvalidInput)
	}
	if !actor.CanReadScope(scope) {
		return nil, domain.ErrForbidden
	}

	filter.Role = scope.Role
	out := make([]*domain.Interview, 0)
	for iv, err := range uc.repo.ListByOwner(ctx, scope.OwnerID, filter) {
		if err != nil {
			return nil, err
		}
		out = append(out, iv)
	}
	return out, nil
}

func (uc *schedulingUsecase) VerifyMeetingAccess(ctx context.Context, actor domain.Actor, id, passcode string) (bool, error) {
	iv, err := uc.repo.GetByID(ctx, id)
	if err != nil {
		return false, err
	}
	if !actor.CanRead(iv) {
		return false, domain.ErrForbidden
	}
	if !iv.Status.IsActive() {
		return false, nil
	}
	return uc.access.VerifyPasscode(iv, passcode), nil
}
