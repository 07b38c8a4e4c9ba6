package usecase_test

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go-interview-backend/internal/domain"
	"go-interview-backend/internal/repository/memory"
	"go-interview-backend/internal/usecase"
	"go-interview-backend/pkg/validation"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	jan1  = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	slot1 = time.Date(2024, 1, 4, 10, 0, 0, 0, time.UTC)
	slot2 = time.Date(2024, 1, 4, 11, 0, 0, 0, time.UTC)
)

func TestSchedulingLifecycle(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, jan1)

	// Schedule
	iv := h.schedule(t, slot1)
	assert.Equal(t, domain.InterviewStatusScheduled, iv.Status)
	assert.Equal(t, int64(1), iv.Version)
	require.NotNil(t, iv.ExternalEventRef)
	ref := *iv.ExternalEventRef
	assert.Regexp(t, regexp.MustCompile(`^\d{11}$`), iv.MeetingAccess.MeetingID)
	assert.Regexp(t, regexp.MustCompile(`^\d{6}$`), iv.MeetingAccess.Passcode)
	assert.Equal(t, "https://meet.example.com/"+iv.MeetingAccess.MeetingID, iv.MeetingAccess.Link)
	assert.Equal(t, organizerID, iv.OrganizerUserID)
	assert.Equal(t, 1, h.cal.creates)

	// Reschedule keeps the external identity
	moved, err := h.scheduler.RescheduleInterview(ctx, employer, iv.ID, domain.RescheduleRequest{
		Start: slot2,
		End:   slot2.Add(30 * time.Minute),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.InterviewStatusRescheduled, moved.Status)
	assert.Equal(t, int64(2), moved.Version)
	assert.Equal(t, 1, moved.RescheduleCount)
	assert.Equal(t, ref, *moved.ExternalEventRef)
	assert.Equal(t, iv.MeetingAccess, moved.MeetingAccess)
	ext, ok := h.cal.get(ref)
	require.True(t, ok)
	assert.True(t, ext.Start.Equal(slot2))

	// Cancel, then cancel again
	cancelled, err := h.scheduler.CancelInterview(ctx, employer, iv.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.InterviewStatusCancelled, cancelled.Status)
	assert.Equal(t, int64(3), cancelled.Version)

	again, err := h.scheduler.CancelInterview(ctx, employer, iv.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.InterviewStatusCancelled, again.Status)
	assert.Equal(t, int64(3), again.Version)
	assert.Equal(t, 1, h.cal.cancels)

	assert.Equal(t, []domain.InterviewEventType{
		domain.EventInterviewScheduled,
		domain.EventInterviewRescheduled,
		domain.EventInterviewCancelled,
	}, h.events.types())

	// Stats reflect the final state
	current := usecase.NewStatsUsecase(h.repo, nil, usecase.StatsConfig{Clock: h.clock.Now}, quietLogger())
	snap, err := current.ComputeStats(ctx, employer, domain.OwnerScope{OwnerID: companyID, Role: domain.OwnerRoleCompany}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, snap.TotalMeetings)
	assert.Equal(t, 1, snap.CancelledMeetings)
	assert.Equal(t, 0, snap.RescheduledMeetings)

	ever := usecase.NewStatsUsecase(h.repo, nil, usecase.StatsConfig{Policy: usecase.ReschedulePolicyEver}, quietLogger())
	snap, err = ever.ComputeStats(ctx, employer, domain.OwnerScope{OwnerID: companyID, Role: domain.OwnerRoleCompany}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, snap.RescheduledMeetings)
}

func TestScheduleInterviewValidation(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, jan1)

	t.Run("End before start is an invalid window", func(t *testing.T) {
		d := draftAt(slot1)
		d.End = slot1.Add(-time.Minute)
		_, err := h.scheduler.ScheduleInterview(ctx, employer, d)
		assert.ErrorIs(t, err, domain.ErrInvalidWindow)
	})

	t.Run("Start in the past is an invalid window", func(t *testing.T) {
		_, err := h.scheduler.ScheduleInterview(ctx, employer, draftAt(jan1.Add(-time.Hour)))
		assert.ErrorIs(t, err, domain.ErrInvalidWindow)
	})

	t.Run("Unknown timezone is rejected", func(t *testing.T) {
		d := draftAt(slot1)
		d.Timezone = "Mars/Olympus"
		_, err := h.scheduler.ScheduleInterview(ctx, employer, d)
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})

	t.Run("Missing title is rejected", func(t *testing.T) {
		d := draftAt(slot1)
		d.Title = ""
		_, err := h.scheduler.ScheduleInterview(ctx, employer, d)
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})

	t.Run("Other companies cannot schedule", func(t *testing.T) {
		_, err := h.scheduler.ScheduleInterview(ctx, outsider, draftAt(slot1))
		assert.ErrorIs(t, err, domain.ErrForbidden)
	})

	t.Run("Candidates cannot schedule", func(t *testing.T) {
		_, err := h.scheduler.ScheduleInterview(ctx, candidate, draftAt(slot1))
		assert.ErrorIs(t, err, domain.ErrForbidden)
	})

	t.Run("Unknown provider", func(t *testing.T) {
		d := draftAt(slot1)
		d.Provider = "outlook"
		_, err := h.scheduler.ScheduleInterview(ctx, employer, d)
		assert.ErrorIs(t, err, domain.ErrUnknownProvider)
	})

	t.Run("Organizer without a calendar connection", func(t *testing.T) {
		unconnected := domain.Actor{UserID: "organizer-2", Role: domain.RoleEmployer, CompanyID: companyID}
		_, err := h.scheduler.ScheduleInterview(ctx, unconnected, draftAt(slot1))
		assert.ErrorIs(t, err, domain.ErrUnauthenticated)
	})

	assert.Equal(t, 0, h.cal.creates)
}

func countInterviews(t *testing.T, repo domain.InterviewRepository) int {
	t.Helper()
	n := 0
	for _, err := range repo.ListByOwner(context.Background(), companyID, domain.InterviewFilter{}) {
		require.NoError(t, err)
		n++
	}
	return n
}

func TestScheduleInterviewAtomicity(t *testing.T) {
	ctx := context.Background()

	t.Run("Provider failure persists nothing", func(t *testing.T) {
		h := newHarness(t, jan1)
		h.cal.createErr = domain.ErrProviderTransient

		_, err := h.scheduler.ScheduleInterview(ctx, employer, draftAt(slot1))
		assert.ErrorIs(t, err, domain.ErrProviderTransient)
		assert.Equal(t, 0, countInterviews(t, h.repo))
		assert.Empty(t, h.events.types())
	})

	t.Run("Local commit failure cancels the external event", func(t *testing.T) {
		h := newHarness(t, jan1)
		failing := &failingCreateRepo{InterviewRepository: h.repo, err: errors.New("disk full")}
		scheduler := usecase.NewSchedulingUsecase(
			failing, h.creds, h.registry, h.access, h.events, validation.New(),
			usecase.SchedulingConfig{Clock: h.clock.Now}, quietLogger(),
		)

		_, err := scheduler.ScheduleInterview(ctx, employer, draftAt(slot1))
		assert.Error(t, err)
		assert.Equal(t, 1, h.cal.creates)
		assert.Equal(t, 1, h.cal.cancels)
		assert.Empty(t, h.cal.events)
		assert.Equal(t, 0, countInterviews(t, h.repo))
	})

	t.Run("Replayed request key returns the first interview", func(t *testing.T) {
		h := newHarness(t, jan1)
		d := draftAt(slot1)
		d.RequestKey = "req-42"

		first, err := h.scheduler.ScheduleInterview(ctx, employer, d)
		require.NoError(t, err)
		second, err := h.scheduler.ScheduleInterview(ctx, employer, d)
		require.NoError(t, err)

		assert.Equal(t, first.ID, second.ID)
		assert.Equal(t, 1, h.cal.creates)
		assert.Equal(t, 1, countInterviews(t, h.repo))
	})
}

type failingCreateRepo struct {
	*memory.InterviewRepository
	err error
}

func (r *failingCreateRepo) Create(context.Context, *domain.Interview) error { return r.err }

func TestRescheduleInterview(t *testing.T) {
	ctx := context.Background()
	req := domain.RescheduleRequest{Start: slot2, End: slot2.Add(30 * time.Minute)}

	t.Run("Provider failure leaves the record untouched", func(t *testing.T) {
		h := newHarness(t, jan1)
		iv := h.schedule(t, slot1)
		h.cal.updateErr = domain.ErrProviderRejected

		_, err := h.scheduler.RescheduleInterview(ctx, employer, iv.ID, req)
		assert.ErrorIs(t, err, domain.ErrProviderRejected)

		got, err := h.repo.GetByID(ctx, iv.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(1), got.Version)
		assert.Equal(t, domain.InterviewStatusScheduled, got.Status)
		assert.True(t, got.ScheduledStart.Equal(slot1))
	})

	t.Run("Stale expected version conflicts before any provider call", func(t *testing.T) {
		h := newHarness(t, jan1)
		iv := h.schedule(t, slot1)

		stale := req
		stale.ExpectedVersion = 5
		_, err := h.scheduler.RescheduleInterview(ctx, employer, iv.ID, stale)
		assert.ErrorIs(t, err, domain.ErrVersionConflict)
		assert.Equal(t, 0, h.cal.updates)
	})

	t.Run("Cancelled interviews cannot be rescheduled", func(t *testing.T) {
		h := newHarness(t, jan1)
		iv := h.schedule(t, slot1)
		_, err := h.scheduler.CancelInterview(ctx, employer, iv.ID)
		require.NoError(t, err)

		_, err = h.scheduler.RescheduleInterview(ctx, employer, iv.ID, req)
		assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	})

	t.Run("Inverted window", func(t *testing.T) {
		h := newHarness(t, jan1)
		iv := h.schedule(t, slot1)

		_, err := h.scheduler.RescheduleInterview(ctx, employer, iv.ID, domain.RescheduleRequest{Start: slot2, End: slot2})
		assert.ErrorIs(t, err, domain.ErrInvalidWindow)
	})

	t.Run("Concurrent reschedules produce exactly one conflict", func(t *testing.T) {
		h := newHarness(t, jan1)
		iv := h.schedule(t, slot1)

		// Hold both provider updates until both callers have read version 1.
		var arrived atomic.Int32
		release := make(chan struct{})
		h.cal.beforeUpdate = func() {
			if arrived.Add(1) == 2 {
				close(release)
			}
			<-release
		}

		var wg sync.WaitGroup
		errs := make([]error, 2)
		for i, start := range []time.Time{slot2, slot2.Add(time.Hour)} {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, errs[i] = h.scheduler.RescheduleInterview(ctx, employer, iv.ID, domain.RescheduleRequest{
					Start: start,
					End:   start.Add(30 * time.Minute),
				})
			}()
		}
		wg.Wait()

		var ok, conflicts int
		for _, err := range errs {
			switch {
			case err == nil:
				ok++
			case errors.Is(err, domain.ErrVersionConflict):
				conflicts++
			}
		}
		assert.Equal(t, 1, ok)
		assert.Equal(t, 1, conflicts)

		got, err := h.repo.GetByID(ctx, iv.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(2), got.Version)

		// The external event ends up on the winner's window.
		ext, found := h.cal.get(*got.ExternalEventRef)
		require.True(t, found)
		assert.True(t, ext.Start.Equal(got.ScheduledStart))
	})
}

func TestCancelInterview(t *testing.T) {
	ctx := context.Background()

	t.Run("Event already gone at the provider counts as success", func(t *testing.T) {
		h := newHarness(t, jan1)
		iv := h.schedule(t, slot1)
		h.cal.remove(*iv.ExternalEventRef)

		got, err := h.scheduler.CancelInterview(ctx, employer, iv.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.InterviewStatusCancelled, got.Status)
	})

	t.Run("Other provider errors leave the status unchanged", func(t *testing.T) {
		h := newHarness(t, jan1)
		iv := h.schedule(t, slot1)
		h.cal.cancelErr = domain.ErrProviderTransient

		_, err := h.scheduler.CancelInterview(ctx, employer, iv.ID)
		assert.ErrorIs(t, err, domain.ErrProviderTransient)

		got, err := h.repo.GetByID(ctx, iv.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.InterviewStatusScheduled, got.Status)
	})

	t.Run("Completed interviews cannot be cancelled", func(t *testing.T) {
		h := newHarness(t, jan1)
		iv := h.schedule(t, slot1)
		h.clock.Set(slot1.Add(time.Hour))
		_, err := h.scheduler.MarkCompleted(ctx, employer, iv.ID)
		require.NoError(t, err)

		_, err = h.scheduler.CancelInterview(ctx, employer, iv.ID)
		assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	})

	t.Run("Cancelled count is exact", func(t *testing.T) {
		h := newHarness(t, jan1)
		var ids []string
		for i := range 5 {
			ids = append(ids, h.schedule(t, slot1.Add(time.Duration(i)*time.Hour)).ID)
		}
		for _, id := range ids[:3] {
			_, err := h.scheduler.CancelInterview(ctx, employer, id)
			require.NoError(t, err)
		}
		// Repeated cancels must not double count.
		_, err := h.scheduler.CancelInterview(ctx, employer, ids[0])
		require.NoError(t, err)

		stats := usecase.NewStatsUsecase(h.repo, nil, usecase.StatsConfig{Clock: h.clock.Now}, quietLogger())
		snap, err := stats.ComputeStats(ctx, employer, domain.OwnerScope{OwnerID: companyID, Role: domain.OwnerRoleCompany}, nil)
		require.NoError(t, err)
		assert.Equal(t, 5, snap.TotalMeetings)
		assert.Equal(t, 3, snap.CancelledMeetings)
		assert.Equal(t, 2, snap.UpcomingMeetings)
	})
}

func TestMarkCompleted(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, jan1)
	iv := h.schedule(t, slot1)

	_, err := h.scheduler.MarkCompleted(ctx, employer, iv.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition, "cannot complete before the end")

	h.clock.Set(slot1.Add(30 * time.Minute))
	done, err := h.scheduler.MarkCompleted(ctx, employer, iv.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.InterviewStatusCompleted, done.Status)
	assert.Equal(t, 0, h.cal.updates+h.cal.cancels, "completion is local only")

	_, err = h.scheduler.MarkCompleted(ctx, employer, iv.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	_, err = h.scheduler.MarkCompleted(ctx, outsider, iv.ID)
	assert.ErrorIs(t, err, domain.ErrForbidden)
}

func TestInterviewReads(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, jan1)
	iv := h.schedule(t, slot1)

	t.Run("Candidate can read their own interview", func(t *testing.T) {
		got, err := h.scheduler.GetInterview(ctx, candidate, iv.ID)
		require.NoError(t, err)
		assert.Equal(t, iv.ID, got.ID)
	})

	t.Run("Other companies cannot read", func(t *testing.T) {
		_, err := h.scheduler.GetInterview(ctx, outsider, iv.ID)
		assert.ErrorIs(t, err, domain.ErrForbidden)
	})

	t.Run("Unknown id", func(t *testing.T) {
		_, err := h.scheduler.GetInterview(ctx, employer, "missing")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("List by candidate scope", func(t *testing.T) {
		list, err := h.scheduler.ListInterviews(ctx, candidate, domain.OwnerScope{OwnerID: candidateID, Role: domain.OwnerRoleCandidate}, domain.InterviewFilter{})
		require.NoError(t, err)
		assert.Len(t, list, 1)
	})

	t.Run("Candidate cannot list a company", func(t *testing.T) {
		_, err := h.scheduler.ListInterviews(ctx, candidate, domain.OwnerScope{OwnerID: companyID, Role: domain.OwnerRoleCompany}, domain.InterviewFilter{})
		assert.ErrorIs(t, err, domain.ErrForbidden)
	})

	t.Run("Meeting passcode verification", func(t *testing.T) {
		ok, err := h.scheduler.VerifyMeetingAccess(ctx, candidate, iv.ID, iv.MeetingAccess.Passcode)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = h.scheduler.VerifyMeetingAccess(ctx, candidate, iv.ID, "000000x")
		require.NoError(t, err)
		assert.False(t, ok)
	})
}
