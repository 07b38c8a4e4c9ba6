package usecase

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"go-interview-backend/internal/domain"

	"github.com/xuri/excelize/v2"
)

// ReschedulePolicy selects what counts as a rescheduled meeting.
type ReschedulePolicy string

const (
	// ReschedulePolicyCurrent counts interviews whose current status is Rescheduled.
	ReschedulePolicyCurrent ReschedulePolicy = "current"
	// ReschedulePolicyEver counts interviews rescheduled at least once, whatever their status now.
	ReschedulePolicyEver ReschedulePolicy = "ever"
)

type StatsConfig struct {
	Policy ReschedulePolicy
	Clock  func() time.Time
}

type statsUsecase struct {
	repo   domain.InterviewRepository
	cache  domain.StatsCache
	policy ReschedulePolicy
	now    func() time.Time
	log    *slog.Logger
}

// NewStatsUsecase creates the stats aggregator. cache may be nil.
func NewStatsUsecase(repo domain.InterviewRepository, cache domain.StatsCache, cfg StatsConfig, log *slog.Logger) domain.StatsUsecase {
	if cfg.Policy != ReschedulePolicyEver {
		cfg.Policy = ReschedulePolicyCurrent
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if log == nil {
		log = slog.Default()
	}
	return &statsUsecase{repo: repo, cache: cache, policy: cfg.Policy, now: cfg.Clock, log: log}
}

func windowKey(w *domain.TimeWindow) string {
	if w == nil {
		return "all"
	}
	return fmt.Sprintf("%d-%d", w.Start.Unix(), w.End.Unix())
}

func (uc *statsUsecase) authorize(actor domain.Actor, scope domain.OwnerScope, window *domain.TimeWindow) error {
	if !scope.Role.Valid() || scope.OwnerID == "" {
		return fmt.Errorf("%w: unknown owner scope", domain.ErrInvalidInput)
	}
	if window != nil {
		if err := window.Validate(); err != nil {
			return err
		}
	}
	if !actor.CanReadScope(scope) {
		return domain.ErrForbidden
	}
	return nil
}

func (uc *statsUsecase) filter(scope domain.OwnerScope, window *domain.TimeWindow) domain.InterviewFilter {
	f := domain.InterviewFilter{Role: scope.Role}
	if window != nil {
		f.From, f.To = window.Start, window.End
	}
	return f
}

// ComputeStats derives counts from the ledger. Snapshots are cached until the next
// interview event for the scope.
func (uc *statsUsecase) ComputeStats(ctx context.Context, actor domain.Actor, scope domain.OwnerScope, window *domain.TimeWindow) (*domain.StatsSnapshot, error) {
	if err := uc.authorize(actor, scope, window); err != nil {
		return nil, err
	}

	now := uc.now()
	key := windowKey(window)
	cacheable := uc.cache != nil
	var generation int64
	if cacheable {
		entry, ok, err := uc.cache.Get(ctx, scope, key)
		if err != nil {
			uc.log.Warn("stats cache read failed", "owner_id", scope.OwnerID, "error", err)
		} else if ok && entry.Fresh(now) {
			snap := entry.Snapshot
			return &snap, nil
		}

		// Read before the scan: an invalidation during the scan makes Set a no-op.
		if generation, err = uc.cache.Generation(ctx, scope); err != nil {
			uc.log.Warn("stats cache generation read failed", "owner_id", scope.OwnerID, "error", err)
			cacheable = false
		}
	}

	snap := &domain.StatsSnapshot{
		OwnerID:     scope.OwnerID,
		Role:        scope.Role,
		Window:      window,
		GeneratedAt: now,
	}
	var nextStart time.Time
	for iv, err := range uc.repo.ListByOwner(ctx, scope.OwnerID, uc.filter(scope, window)) {
		if err != nil {
			return nil, err
		}
		if uc.count(snap, iv, now) && (nextStart.IsZero() || iv.ScheduledStart.Before(nextStart)) {
			nextStart = iv.ScheduledStart
		}
	}

	if cacheable {
		entry := &domain.StatsCacheEntry{Snapshot: *snap, StaleAt: nextStart}
		if err := uc.cache.Set(ctx, scope, key, generation, entry); err != nil {
			uc.log.Warn("stats cache write failed", "owner_id", scope.OwnerID, "error", err)
		}
	}
	return snap, nil
}

// count adds iv to snap and reports whether it was counted as upcoming.
func (uc *statsUsecase) count(snap *domain.StatsSnapshot, iv *domain.Interview, now time.Time) bool {
	snap.TotalMeetings++
	switch iv.Status {
	case domain.InterviewStatusCancelled:
		snap.CancelledMeetings++
	case domain.InterviewStatusCompleted:
		snap.CompletedMeetings++
	}
	upcoming := iv.Status.IsActive() && iv.ScheduledStart.After(now)
	if upcoming {
		snap.UpcomingMeetings++
	}

	rescheduled := iv.Status == domain.InterviewStatusRescheduled
	if uc.policy == ReschedulePolicyEver {
		rescheduled = iv.RescheduleCount > 0
	}
	if rescheduled {
		snap.RescheduledMeetings++
	}
	return upcoming
}

// StatsCacheInvalidator drops cached snapshots for every scope an event touches,
// then hands the event on. It sits in front of the event bus so invalidation
// happens on the committing goroutine and cannot be lost to a full subscriber buffer.
type StatsCacheInvalidator struct {
	cache domain.StatsCache
	next  domain.EventPublisher
	log   *slog.Logger
}

func NewStatsCacheInvalidator(cache domain.StatsCache, next domain.EventPublisher, log *slog.Logger) *StatsCacheInvalidator {
	if next == nil {
		next = noopPublisher{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &StatsCacheInvalidator{cache: cache, next: next, log: log}
}

// Publish implements domain.EventPublisher.
func (i *StatsCacheInvalidator) Publish(ctx context.Context, event domain.InterviewEvent) {
	if i.cache != nil {
		if err := i.cache.Invalidate(context.WithoutCancel(ctx), event.Scopes()...); err != nil {
			i.log.Warn("stats cache invalidation failed", "interview_id", event.InterviewID, "error", err)
		}
	}
	i.next.Publish(ctx, event)
}

var ledgerColumns = []string{
	"ID", "TITLE", "CANDIDATE", "STATUS", "START", "END", "TIMEZONE", "RESCHEDULES", "MEETING ID", "VERSION",
}

// ExportLedger writes the scope's interviews and a summary sheet as XLSX.
func (uc *statsUsecase) ExportLedger(ctx context.Context, actor domain.Actor, scope domain.OwnerScope, window *domain.TimeWindow, w io.Writer) error {
	if err := uc.authorize(actor, scope, window); err != nil {
		return err
	}

	f := excelize.NewFile()
	defer f.Close()

	sheetName := "Interviews"
	f.SetSheetName("Sheet1", sheetName)
	for i, col := range ledgerColumns {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(sheetName, cell, col)
	}

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "#FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#1E3A5F"}},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	endCell, _ := excelize.CoordinatesToCellName(len(ledgerColumns), 1)
	f.SetCellStyle(sheetName, "A1", endCell, headerStyle)

	now := uc.now()
	snap := &domain.StatsSnapshot{OwnerID: scope.OwnerID, Role: scope.Role, Window: window, GeneratedAt: now}
	row := 2
	for iv, err := range uc.repo.ListByOwner(ctx, scope.OwnerID, uc.filter(scope, window)) {
		if err != nil {
			return err
		}
		uc.count(snap, iv, now)

		values := []any{
			iv.ID,
			iv.Title,
			iv.CandidateID,
			string(iv.Status),
			iv.ScheduledStart.UTC().Format(time.RFC3339),
			iv.ScheduledEnd.UTC().Format(time.RFC3339),
			iv.Timezone,
			iv.RescheduleCount,
			iv.MeetingAccess.MeetingID,
			iv.Version,
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			f.SetCellValue(sheetName, cell, v)
		}
		row++
	}

	for i := range ledgerColumns {
		colName, _ := excelize.ColumnNumberToName(i + 1)
		f.SetColWidth(sheetName, colName, colName, 20)
	}

	summary := "Summary"
	if _, err := f.NewSheet(summary); err != nil {
		return fmt.Errorf("failed to add summary sheet: %w", err)
	}
	rows := [][]any{
		{"Owner", scope.OwnerID},
		{"Scope", string(scope.Role)},
		{"Total meetings", snap.TotalMeetings},
		{"Rescheduled meetings", snap.RescheduledMeetings},
		{"Cancelled meetings", snap.CancelledMeetings},
		{"Completed meetings", snap.CompletedMeetings},
		{"Upcoming meetings", snap.UpcomingMeetings},
		{"Generated at", now.UTC().Format(time.RFC3339)},
	}
	for i, r := range rows {
		f.SetCellValue(summary, fmt.Sprintf("A%d", i+1), r[0])
		f.SetCellValue(summary, fmt.Sprintf("B%d", i+1), r[1])
	}
	f.SetColWidth(summary, "A", "B", 24)

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write Excel file: %w", err)
	}
	return nil
}
