package domain

import (
	"context"
	"time"
)

// InterviewEventType names a committed ledger change.
type InterviewEventType string

const (
	EventInterviewScheduled   InterviewEventType = "interview.scheduled"
	EventInterviewRescheduled InterviewEventType = "interview.rescheduled"
	EventInterviewCancelled   InterviewEventType = "interview.cancelled"
	EventInterviewCompleted   InterviewEventType = "interview.completed"
	EventInterviewReconciled  InterviewEventType = "interview.reconciled"
)

// Event sources
const (
	EventSourceEngine     = "engine"
	EventSourceReconciler = "reconciler"
)

// InterviewEvent is emitted after every committed interview mutation.
type InterviewEvent struct {
	Type            InterviewEventType `json:"type"`
	InterviewID     string             `json:"interview_id"`
	OwnerCompanyID  string             `json:"owner_company_id"`
	CandidateID     string             `json:"candidate_id"`
	OrganizerUserID string             `json:"organizer_user_id"`
	Status          InterviewStatus    `json:"status"`
	Version         int64              `json:"version"`
	Source          string             `json:"source"`
	OccurredAt      time.Time          `json:"occurred_at"`
}

// NewInterviewEvent builds an event from the committed record.
func NewInterviewEvent(t InterviewEventType, iv *Interview, source string, at time.Time) InterviewEvent {
	return InterviewEvent{
		Type:            t,
		InterviewID:     iv.ID,
		OwnerCompanyID:  iv.OwnerCompanyID,
		CandidateID:     iv.CandidateID,
		OrganizerUserID: iv.OrganizerUserID,
		Status:          iv.Status,
		Version:         iv.Version,
		Source:          source,
		OccurredAt:      at,
	}
}

// Scopes returns the owner scopes affected by the event.
func (e InterviewEvent) Scopes() []OwnerScope {
	return []OwnerScope{
		{OwnerID: e.OwnerCompanyID, Role: OwnerRoleCompany},
		{OwnerID: e.CandidateID, Role: OwnerRoleCandidate},
		{OwnerID: e.OrganizerUserID, Role: OwnerRoleOrganizer},
	}
}

// EventPublisher emits interview events to subscribers.
type EventPublisher interface {
	Publish(ctx context.Context, event InterviewEvent)
}

// EventHandler consumes interview events.
type EventHandler interface {
	Handle(ctx context.Context, event InterviewEvent)
}

// EventHandlerFunc adapts a function to EventHandler.
type EventHandlerFunc func(ctx context.Context, event InterviewEvent)

func (f EventHandlerFunc) Handle(ctx context.Context, event InterviewEvent) { f(ctx, event) }

// ReconcileOutcome describes what a reconciliation pass did.
type ReconcileOutcome string

const (
	ReconcileInSync         ReconcileOutcome = "in_sync"
	ReconcileSkipped        ReconcileOutcome = "skipped"
	ReconcileCancelledLocal ReconcileOutcome = "cancelled_local"
	ReconcileAdoptedRemote  ReconcileOutcome = "adopted_remote"
	ReconcilePushedLocal    ReconcileOutcome = "pushed_local"
	ReconcileCompleted      ReconcileOutcome = "completed"
	ReconcileSuperseded     ReconcileOutcome = "superseded"
)

// SyncReconciler repairs drift between the ledger and external calendars.
type SyncReconciler interface {
	ReconcileInterview(ctx context.Context, id string) (ReconcileOutcome, error)
	ReconcileOrganizer(ctx context.Context, userID string) error
	Enqueue(id string) bool
}
