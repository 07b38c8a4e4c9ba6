package usecase_test

import (
	"context"
	"iter"
	"testing"
	"time"

	"go-interview-backend/internal/domain"
	"go-interview-backend/internal/repository/memory"
	"go-interview-backend/internal/usecase"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newReconciler(h *harness, repo domain.InterviewRepository, cfg usecase.ReconcilerConfig) (*usecase.Reconciler, *recordingPublisher) {
	events := &recordingPublisher{}
	cfg.Clock = h.clock.Now
	if cfg.RatePerSecond == 0 {
		cfg.RatePerSecond = 1000
	}
	return usecase.NewReconciler(repo, h.creds, h.registry, events, cfg, quietLogger()), events
}

func TestReconcileInterview(t *testing.T) {
	ctx := context.Background()

	t.Run("Out-of-band deletion cancels locally", func(t *testing.T) {
		h := newHarness(t, jan1)
		iv := h.schedule(t, slot1)
		h.cal.remove(*iv.ExternalEventRef)
		rec, events := newReconciler(h, h.repo, usecase.ReconcilerConfig{})

		outcome, err := rec.ReconcileInterview(ctx, iv.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.ReconcileCancelledLocal, outcome)

		got, err := h.repo.GetByID(ctx, iv.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.InterviewStatusCancelled, got.Status)
		assert.Equal(t, int64(2), got.Version)

		require.Len(t, events.events, 1)
		assert.Equal(t, domain.EventInterviewCancelled, events.events[0].Type)
		assert.Equal(t, domain.EventSourceReconciler, events.events[0].Source)

		stats := usecase.NewStatsUsecase(h.repo, nil, usecase.StatsConfig{}, quietLogger())
		snap, err := stats.ComputeStats(ctx, employer, domain.OwnerScope{OwnerID: companyID, Role: domain.OwnerRoleCompany}, nil)
		require.NoError(t, err)
		assert.Equal(t, 1, snap.CancelledMeetings)
	})

	t.Run("Cancelled external event cancels locally", func(t *testing.T) {
		h := newHarness(t, jan1)
		iv := h.schedule(t, slot1)
		ext, _ := h.cal.get(*iv.ExternalEventRef)
		ext.Cancelled = true
		h.cal.set(ext)
		rec, _ := newReconciler(h, h.repo, usecase.ReconcilerConfig{})

		outcome, err := rec.ReconcileInterview(ctx, iv.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.ReconcileCancelledLocal, outcome)
	})

	t.Run("Newer external time is adopted", func(t *testing.T) {
		h := newHarness(t, jan1)
		iv := h.schedule(t, slot1)
		h.clock.Set(jan1.Add(time.Hour))
		h.cal.set(domain.ExternalEvent{
			Ref:       *iv.ExternalEventRef,
			Start:     slot2,
			End:       slot2.Add(45 * time.Minute),
			UpdatedAt: jan1.Add(time.Hour),
		})
		rec, events := newReconciler(h, h.repo, usecase.ReconcilerConfig{})

		outcome, err := rec.ReconcileInterview(ctx, iv.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.ReconcileAdoptedRemote, outcome)

		got, err := h.repo.GetByID(ctx, iv.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.InterviewStatusRescheduled, got.Status)
		assert.True(t, got.ScheduledStart.Equal(slot2))
		assert.True(t, got.ScheduledEnd.Equal(slot2.Add(45*time.Minute)))
		assert.Equal(t, 1, got.RescheduleCount)
		assert.Equal(t, []domain.InterviewEventType{domain.EventInterviewRescheduled}, events.types())
	})

	t.Run("Newer local time is pushed to the provider", func(t *testing.T) {
		h := newHarness(t, jan1)
		iv := h.schedule(t, slot1)
		h.cal.set(domain.ExternalEvent{
			Ref:       *iv.ExternalEventRef,
			Start:     slot2,
			End:       slot2.Add(30 * time.Minute),
			UpdatedAt: jan1.Add(-time.Hour),
		})
		rec, _ := newReconciler(h, h.repo, usecase.ReconcilerConfig{})

		outcome, err := rec.ReconcileInterview(ctx, iv.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.ReconcilePushedLocal, outcome)

		ext, _ := h.cal.get(*iv.ExternalEventRef)
		assert.True(t, ext.Start.Equal(slot1))
		got, _ := h.repo.GetByID(ctx, iv.ID)
		assert.Equal(t, int64(1), got.Version)
	})

	t.Run("Matching times are in sync", func(t *testing.T) {
		h := newHarness(t, jan1)
		iv := h.schedule(t, slot1)
		rec, events := newReconciler(h, h.repo, usecase.ReconcilerConfig{})

		outcome, err := rec.ReconcileInterview(ctx, iv.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.ReconcileInSync, outcome)
		assert.Empty(t, events.types())
	})

	t.Run("Terminal interviews are skipped", func(t *testing.T) {
		h := newHarness(t, jan1)
		iv := h.schedule(t, slot1)
		_, err := h.scheduler.CancelInterview(ctx, employer, iv.ID)
		require.NoError(t, err)
		rec, _ := newReconciler(h, h.repo, usecase.ReconcilerConfig{})

		outcome, err := rec.ReconcileInterview(ctx, iv.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.ReconcileSkipped, outcome)
	})

	t.Run("Ended interviews complete after the grace period", func(t *testing.T) {
		h := newHarness(t, jan1)
		iv := h.schedule(t, slot1)
		h.clock.Set(iv.ScheduledEnd.Add(2 * time.Hour))
		rec, _ := newReconciler(h, h.repo, usecase.ReconcilerConfig{CompleteGrace: time.Hour})

		outcome, err := rec.ReconcileInterview(ctx, iv.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.ReconcileCompleted, outcome)
	})

	t.Run("A concurrent local write supersedes the repair", func(t *testing.T) {
		h := newHarness(t, jan1)
		iv := h.schedule(t, slot1)
		h.cal.remove(*iv.ExternalEventRef)
		rec, events := newReconciler(h, &racingRepo{InterviewRepository: h.repo}, usecase.ReconcilerConfig{})

		outcome, err := rec.ReconcileInterview(ctx, iv.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.ReconcileSuperseded, outcome)
		assert.Empty(t, events.types())
	})

	t.Run("Missing organizer token skips", func(t *testing.T) {
		h := newHarness(t, jan1)
		iv := h.schedule(t, slot1)
		require.NoError(t, h.credRepo.Delete(ctx, organizerID, "google"))
		rec, _ := newReconciler(h, h.repo, usecase.ReconcilerConfig{})

		outcome, err := rec.ReconcileInterview(ctx, iv.ID)
		assert.ErrorIs(t, err, domain.ErrUnauthenticated)
		assert.Equal(t, domain.ReconcileSkipped, outcome)
	})
}

// racingRepo bumps the stored version right before every versioned update, as if
// the engine committed in between.
type racingRepo struct {
	*memory.InterviewRepository
}

func (r *racingRepo) UpdateWithVersion(ctx context.Context, id string, expected int64, mutate func(*domain.Interview) error) (*domain.Interview, error) {
	_, _ = r.InterviewRepository.UpdateWithVersion(ctx, id, expected, func(iv *domain.Interview) error {
		iv.Title += " (edited)"
		return nil
	})
	return r.InterviewRepository.UpdateWithVersion(ctx, id, expected, mutate)
}

func TestReconcilerQueue(t *testing.T) {
	ctx := context.Background()

	t.Run("Handle ignores its own events and terminal states", func(t *testing.T) {
		h := newHarness(t, jan1)
		rec, _ := newReconciler(h, h.repo, usecase.ReconcilerConfig{QueueSize: 1})

		rec.Handle(ctx, domain.InterviewEvent{InterviewID: "a", Source: domain.EventSourceReconciler, Status: domain.InterviewStatusRescheduled})
		rec.Handle(ctx, domain.InterviewEvent{InterviewID: "b", Source: domain.EventSourceEngine, Status: domain.InterviewStatusCancelled})
		assert.True(t, rec.Enqueue("c"), "queue still empty")
		assert.False(t, rec.Enqueue("d"), "queue of one is full")
	})

	t.Run("Run drains the queue", func(t *testing.T) {
		h := newHarness(t, jan1)
		iv := h.schedule(t, slot1)
		h.cal.remove(*iv.ExternalEventRef)
		rec, _ := newReconciler(h, h.repo, usecase.ReconcilerConfig{Interval: time.Hour})

		runCtx, cancel := context.WithCancel(ctx)
		done := make(chan error, 1)
		go func() { done <- rec.Run(runCtx) }()

		rec.Handle(ctx, domain.NewInterviewEvent(domain.EventInterviewScheduled, iv, domain.EventSourceEngine, jan1))
		require.Eventually(t, func() bool {
			got, err := h.repo.GetByID(ctx, iv.ID)
			return err == nil && got.Status == domain.InterviewStatusCancelled
		}, 2*time.Second, 10*time.Millisecond)

		cancel()
		assert.ErrorIs(t, <-done, context.Canceled)
	})

	t.Run("Sweep and organizer reconcile cover every synced interview", func(t *testing.T) {
		h := newHarness(t, jan1)
		first := h.schedule(t, slot1)
		second := h.schedule(t, slot2)
		h.cal.remove(*first.ExternalEventRef)
		rec, _ := newReconciler(h, h.repo, usecase.ReconcilerConfig{})

		require.NoError(t, rec.ReconcileOrganizer(ctx, "someone-else"))
		got, _ := h.repo.GetByID(ctx, first.ID)
		assert.Equal(t, domain.InterviewStatusScheduled, got.Status)

		checked, err := rec.Sweep(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, checked)

		got, _ = h.repo.GetByID(ctx, first.ID)
		assert.Equal(t, domain.InterviewStatusCancelled, got.Status)
		got, _ = h.repo.GetByID(ctx, second.ID)
		assert.Equal(t, domain.InterviewStatusScheduled, got.Status)
	})

	t.Run("Organizer requests are merged while waiting", func(t *testing.T) {
		h := newHarness(t, jan1)
		rec, _ := newReconciler(h, h.repo, usecase.ReconcilerConfig{OrganizerQueueSize: 1})

		assert.True(t, rec.EnqueueOrganizer(organizerID))
		assert.True(t, rec.EnqueueOrganizer(organizerID), "already pending")
		assert.False(t, rec.EnqueueOrganizer("organizer-2"), "queue of one is full")
	})

	t.Run("Run drains organizer requests", func(t *testing.T) {
		h := newHarness(t, jan1)
		iv := h.schedule(t, slot1)
		h.cal.remove(*iv.ExternalEventRef)
		rec, _ := newReconciler(h, h.repo, usecase.ReconcilerConfig{Interval: time.Hour})

		runCtx, cancel := context.WithCancel(ctx)
		done := make(chan error, 1)
		go func() { done <- rec.Run(runCtx) }()

		require.True(t, rec.EnqueueOrganizer(organizerID))
		require.Eventually(t, func() bool {
			got, err := h.repo.GetByID(ctx, iv.ID)
			return err == nil && got.Status == domain.InterviewStatusCancelled
		}, 2*time.Second, 10*time.Millisecond)

		cancel()
		assert.ErrorIs(t, <-done, context.Canceled)
	})

	t.Run("Organizer pass reads only that organizer's interviews", func(t *testing.T) {
		h := newHarness(t, jan1)
		iv := h.schedule(t, slot1)
		h.cal.remove(*iv.ExternalEventRef)
		counting := &countingRepo{InterviewRepository: h.repo}
		rec, _ := newReconciler(h, counting, usecase.ReconcilerConfig{})

		require.NoError(t, rec.ReconcileOrganizer(ctx, organizerID))
		assert.Equal(t, 0, counting.syncScans)
		assert.Equal(t, []domain.OwnerRole{domain.OwnerRoleOrganizer}, counting.ownerRoles)

		got, _ := h.repo.GetByID(ctx, iv.ID)
		assert.Equal(t, domain.InterviewStatusCancelled, got.Status)
	})
}

// countingRepo records which listing queries were issued.
type countingRepo struct {
	*memory.InterviewRepository
	syncScans  int
	ownerRoles []domain.OwnerRole
}

func (r *countingRepo) ListByOwner(ctx context.Context, ownerID string, filter domain.InterviewFilter) iter.Seq2[*domain.Interview, error] {
	r.ownerRoles = append(r.ownerRoles, filter.Role)
	return r.InterviewRepository.ListByOwner(ctx, ownerID, filter)
}

func (r *countingRepo) ListSyncCandidates(ctx context.Context, endAfter time.Time) iter.Seq2[*domain.Interview, error] {
	r.syncScans++
	return r.InterviewRepository.ListSyncCandidates(ctx, endAfter)
}
