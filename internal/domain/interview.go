package domain

import (
	"context"
	"fmt"
	"io"
	"iter"
	"time"
)

// InterviewStatus is the lifecycle state of an interview.
type InterviewStatus string

const (
	InterviewStatusScheduled   InterviewStatus = "scheduled"
	InterviewStatusRescheduled InterviewStatus = "rescheduled"
	InterviewStatusCancelled   InterviewStatus = "cancelled"
	InterviewStatusCompleted   InterviewStatus = "completed"
)

// interviewTransitions lists the allowed next states for every persisted state.
// Scheduled → {Rescheduled, Cancelled, Completed}
// Rescheduled → {Rescheduled, Scheduled, Cancelled, Completed}
var interviewTransitions = map[InterviewStatus][]InterviewStatus{
	InterviewStatusScheduled: {
		InterviewStatusScheduled,
		InterviewStatusRescheduled,
		InterviewStatusCancelled,
		InterviewStatusCompleted,
	},
	InterviewStatusRescheduled: {
		InterviewStatusRescheduled,
		InterviewStatusScheduled,
		InterviewStatusCancelled,
		InterviewStatusCompleted,
	},
}

// IsTerminal reports whether no further transition is possible.
func (s InterviewStatus) IsTerminal() bool {
	return s == InterviewStatusCancelled || s == InterviewStatusCompleted
}

// IsActive reports whether the interview still occupies a calendar slot.
func (s InterviewStatus) IsActive() bool {
	return s == InterviewStatusScheduled || s == InterviewStatusRescheduled
}

// Valid reports whether s is a known persisted status.
func (s InterviewStatus) Valid() bool {
	switch s {
	case InterviewStatusScheduled, InterviewStatusRescheduled, InterviewStatusCancelled, InterviewStatusCompleted:
		return true
	}
	return false
}

// ValidateTransition returns ErrInvalidTransition when from → to is not allowed.
func ValidateTransition(from, to InterviewStatus) error {
	for _, next := range interviewTransitions[from] {
		if next == to {
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}

// ValidateMutation checks the invariants every committed update must keep:
// terminal records stay frozen, status moves along allowed edges, the window stays
// valid and an assigned external reference never changes.
func ValidateMutation(prev, next *Interview) error {
	if next.ID != prev.ID {
		return fmt.Errorf("%w: id cannot change", ErrInvalidInput)
	}
	if prev.Status.IsTerminal() {
		return fmt.Errorf("%w: %s is final", ErrInvalidTransition, prev.Status)
	}
	if next.Status != prev.Status {
		if err := ValidateTransition(prev.Status, next.Status); err != nil {
			return err
		}
	}
	if err := next.Window().Validate(); err != nil {
		return err
	}
	if prev.ExternalEventRef != nil {
		if next.ExternalEventRef == nil || *next.ExternalEventRef != *prev.ExternalEventRef {
			return ErrExternalRefImmutable
		}
	}
	if next.RescheduleCount < prev.RescheduleCount {
		return fmt.Errorf("%w: reschedule count cannot decrease", ErrInvalidInput)
	}
	return nil
}

// MeetingAccess lets a participant join the interview regardless of calendar provider.
type MeetingAccess struct {
	Link      string `json:"link"`
	MeetingID string `json:"meeting_id"`
	Passcode  string `json:"passcode"`
}

// Interview is the canonical ledger record.
type Interview struct {
	ID               string          `json:"id"`
	OwnerCompanyID   string          `json:"owner_company_id"`
	CandidateID      string          `json:"candidate_id"`
	OrganizerUserID  string          `json:"organizer_user_id"`
	Provider         string          `json:"provider"`
	Title            string          `json:"title"`
	Description      string          `json:"description,omitempty"`
	ScheduledStart   time.Time       `json:"scheduled_start"`
	ScheduledEnd     time.Time       `json:"scheduled_end"`
	Timezone         string          `json:"timezone"`
	Status           InterviewStatus `json:"status"`
	MeetingAccess    MeetingAccess   `json:"meeting_access"`
	ExternalEventRef *string         `json:"external_event_ref,omitempty"`
	RescheduleCount  int             `json:"reschedule_count"`
	Version          int64           `json:"version"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// Clone returns a deep copy so callers can mutate without aliasing the ledger.
func (iv *Interview) Clone() *Interview {
	if iv == nil {
		return nil
	}
	c := *iv
	if iv.ExternalEventRef != nil {
		ref := *iv.ExternalEventRef
		c.ExternalEventRef = &ref
	}
	return &c
}

// Window returns the scheduled time window.
func (iv *Interview) Window() TimeWindow {
	return TimeWindow{Start: iv.ScheduledStart, End: iv.ScheduledEnd}
}

// OwnerFor returns the owner id stored under role.
func (iv *Interview) OwnerFor(role OwnerRole) string {
	switch role {
	case OwnerRoleCompany:
		return iv.OwnerCompanyID
	case OwnerRoleCandidate:
		return iv.CandidateID
	case OwnerRoleOrganizer:
		return iv.OrganizerUserID
	}
	return ""
}

// TimeWindow is a half-open [Start, End) interval.
type TimeWindow struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Validate checks start < end.
func (w TimeWindow) Validate() error {
	if w.Start.IsZero() || w.End.IsZero() {
		return fmt.Errorf("%w: start and end are required", ErrInvalidWindow)
	}
	if !w.Start.Before(w.End) {
		return fmt.Errorf("%w: start must be before end", ErrInvalidWindow)
	}
	return nil
}

// Contains reports whether t falls inside the window. Zero bounds are open.
func (w TimeWindow) Contains(t time.Time) bool {
	if !w.Start.IsZero() && t.Before(w.Start) {
		return false
	}
	if !w.End.IsZero() && !t.Before(w.End) {
		return false
	}
	return true
}

// InterviewDraft is a scheduling request before it reaches the ledger.
type InterviewDraft struct {
	OwnerCompanyID string    `json:"owner_company_id" validate:"required"`
	CandidateID    string    `json:"candidate_id" validate:"required"`
	Provider       string    `json:"provider" validate:"required,provider_name"`
	Title          string    `json:"title" validate:"required,min=3,max=200,no_emoji"`
	Description    string    `json:"description" validate:"max=2000"`
	Start          time.Time `json:"start" validate:"required"`
	End            time.Time `json:"end" validate:"required"`
	Timezone       string    `json:"timezone" validate:"required,timezone"`
	Attendees      []string  `json:"attendees" validate:"omitempty,dive,email"`
	// RequestKey makes a retried request resolve to the same interview.
	RequestKey string `json:"request_key,omitempty" validate:"omitempty,max=128"`
}

// RescheduleRequest moves an interview to a new window.
type RescheduleRequest struct {
	Start    time.Time `json:"start" validate:"required"`
	End      time.Time `json:"end" validate:"required"`
	Timezone string    `json:"timezone" validate:"omitempty,timezone"`
	// ExpectedVersion, when non-zero, must match the current version.
	ExpectedVersion int64 `json:"expected_version,omitempty"`
}

// OwnerRole selects which ownership column a query is scoped by.
type OwnerRole string

const (
	OwnerRoleCompany   OwnerRole = "company"
	OwnerRoleCandidate OwnerRole = "candidate"
	OwnerRoleOrganizer OwnerRole = "organizer"
)

// Valid reports whether r is a known role.
func (r OwnerRole) Valid() bool {
	return r == OwnerRoleCompany || r == OwnerRoleCandidate || r == OwnerRoleOrganizer
}

// OwnerScope identifies the owner a query or statistic is computed for.
type OwnerScope struct {
	OwnerID string    `json:"owner_id"`
	Role    OwnerRole `json:"role"`
}

// InterviewFilter narrows ListByOwner. Zero values mean no restriction.
type InterviewFilter struct {
	Role     OwnerRole
	From     time.Time
	To       time.Time
	Statuses []InterviewStatus
}

// Matches applies the filter to a single record (role excluded).
func (f InterviewFilter) Matches(iv *Interview) bool {
	if !(TimeWindow{Start: f.From, End: f.To}).Contains(iv.ScheduledStart) {
		return false
	}
	if len(f.Statuses) == 0 {
		return true
	}
	for _, s := range f.Statuses {
		if iv.Status == s {
			return true
		}
	}
	return false
}

// Actor is the authenticated caller, passed explicitly into every operation.
type Actor struct {
	UserID    string
	Role      string
	CompanyID string
}

// CanRead reports whether the actor may see the interview.
func (a Actor) CanRead(iv *Interview) bool {
	switch a.Role {
	case RoleAdmin:
		return true
	case RoleCandidate:
		return a.UserID != "" && a.UserID == iv.CandidateID
	case RoleEmployer:
		return a.CompanyID != "" && a.CompanyID == iv.OwnerCompanyID
	}
	return false
}

// CanManage reports whether the actor may mutate interviews of the company.
func (a Actor) CanManage(companyID string) bool {
	switch a.Role {
	case RoleAdmin:
		return true
	case RoleEmployer:
		return a.CompanyID != "" && a.CompanyID == companyID
	}
	return false
}

// CanReadScope reports whether the actor may query the given owner scope.
func (a Actor) CanReadScope(scope OwnerScope) bool {
	switch a.Role {
	case RoleAdmin:
		return true
	case RoleCandidate:
		return scope.Role == OwnerRoleCandidate && scope.OwnerID == a.UserID
	case RoleEmployer:
		return (scope.Role == OwnerRoleCompany && scope.OwnerID == a.CompanyID) ||
			(scope.Role == OwnerRoleOrganizer && scope.OwnerID == a.UserID)
	}
	return false
}

// InterviewRepository owns the interview ledger.
type InterviewRepository interface {
	Create(ctx context.Context, iv *Interview) error
	GetByID(ctx context.Context, id string) (*Interview, error)
	// UpdateWithVersion applies mutate to a copy of the record read at expectedVersion
	// and commits it with version+1. A stale expectedVersion yields ErrVersionConflict.
	UpdateWithVersion(ctx context.Context, id string, expectedVersion int64, mutate func(*Interview) error) (*Interview, error)
	// ListByOwner yields interviews ordered by scheduled start. Each range re-runs the query.
	ListByOwner(ctx context.Context, ownerID string, filter InterviewFilter) iter.Seq2[*Interview, error]
	// ListSyncCandidates yields active, synced interviews ending after endAfter.
	ListSyncCandidates(ctx context.Context, endAfter time.Time) iter.Seq2[*Interview, error]
}

// SchedulingUsecase is the scheduling engine.
type SchedulingUsecase interface {
	ScheduleInterview(ctx context.Context, actor Actor, draft InterviewDraft) (*Interview, error)
	RescheduleInterview(ctx context.Context, actor Actor, id string, req RescheduleRequest) (*Interview, error)
	CancelInterview(ctx context.Context, actor Actor, id string) (*Interview, error)
	MarkCompleted(ctx context.Context, actor Actor, id string) (*Interview, error)
	GetInterview(ctx context.Context, actor Actor, id string) (*Interview, error)
	ListInterviews(ctx context.Context, actor Actor, scope OwnerScope, filter InterviewFilter) ([]*Interview, error)
	VerifyMeetingAccess(ctx context.Context, actor Actor, id, passcode string) (bool, error)
}

// StatsSnapshot is derived from the ledger on demand.
type StatsSnapshot struct {
	OwnerID             string      `json:"owner_id"`
	Role                OwnerRole   `json:"role"`
	Window              *TimeWindow `json:"window,omitempty"`
	TotalMeetings       int         `json:"total_meetings"`
	RescheduledMeetings int         `json:"rescheduled_meetings"`
	CancelledMeetings   int         `json:"cancelled_meetings"`
	CompletedMeetings   int         `json:"completed_meetings"`
	UpcomingMeetings    int         `json:"upcoming_meetings"`
	GeneratedAt         time.Time   `json:"generated_at"`
}

// StatsCacheEntry is a cached snapshot. UpcomingMeetings changes when the clock
// passes the next start of an active interview, so the entry is only served
// before StaleAt. A zero StaleAt never goes stale.
type StatsCacheEntry struct {
	Snapshot StatsSnapshot `json:"snapshot"`
	StaleAt  time.Time     `json:"stale_at"`
}

func (e *StatsCacheEntry) Fresh(now time.Time) bool {
	return e.StaleAt.IsZero() || now.Before(e.StaleAt)
}

// StatsCache stores snapshots between ledger changes. Every Invalidate bumps the
// scope's generation; Set stores nothing once the generation moved past the one
// read before the ledger scan.
type StatsCache interface {
	Get(ctx context.Context, scope OwnerScope, windowKey string) (*StatsCacheEntry, bool, error)
	Generation(ctx context.Context, scope OwnerScope) (int64, error)
	Set(ctx context.Context, scope OwnerScope, windowKey string, generation int64, entry *StatsCacheEntry) error
	Invalidate(ctx context.Context, scopes ...OwnerScope) error
}

// StatsUsecase aggregates interview statistics.
type StatsUsecase interface {
	ComputeStats(ctx context.Context, actor Actor, scope OwnerScope, window *TimeWindow) (*StatsSnapshot, error)
	ExportLedger(ctx context.Context, actor Actor, scope OwnerScope, window *TimeWindow, w io.Writer) error
}
