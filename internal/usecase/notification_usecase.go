package usecase

import (
	"context"
	"log/slog"

	"go-interview-backend/internal/domain"
	"go-interview-backend/pkg/email"
)

// InterviewMailer sends interview notifications.
type InterviewMailer interface {
	SendInterviewEmail(data email.InterviewEmailData) error
	IsConfigured() bool
}

// Notifier mails the candidate and organizer when an interview is scheduled,
// moved or cancelled.
type Notifier struct {
	repo   domain.InterviewRepository
	users  domain.UserRepository
	mailer InterviewMailer
	log    *slog.Logger
}

func NewNotifier(repo domain.InterviewRepository, users domain.UserRepository, mailer InterviewMailer, log *slog.Logger) *Notifier {
	if log == nil {
		log = slog.Default()
	}
	return &Notifier{repo: repo, users: users, mailer: mailer, log: log}
}

var notificationHeadlines = map[domain.InterviewEventType]string{
	domain.EventInterviewScheduled:   "Interview scheduled",
	domain.EventInterviewRescheduled: "Interview rescheduled",
	domain.EventInterviewCancelled:   "Interview cancelled",
}

// Handle implements domain.EventHandler.
func (n *Notifier) Handle(ctx context.Context, event domain.InterviewEvent) {
	headline, ok := notificationHeadlines[event.Type]
	if !ok || n.mailer == nil || !n.mailer.IsConfigured() {
		return
	}

	iv, err := n.repo.GetByID(ctx, event.InterviewID)
	if err != nil {
		n.log.Warn("notification skipped, interview not readable", "interview_id", event.InterviewID, "error", err)
		return
	}
	// A later change already superseded this event; its own notification follows.
	if iv.Version != event.Version {
		return
	}

	for _, userID := range []string{iv.CandidateID, iv.OrganizerUserID} {
		user, err := n.users.GetByID(ctx, userID)
		if err != nil || user.Email == "" {
			n.log.Warn("notification recipient not found", "interview_id", iv.ID, "user_id", userID)
			continue
		}

		err = n.mailer.SendInterviewEmail(email.InterviewEmailData{
			RecipientEmail: user.Email,
			Headline:       headline,
			Title:          iv.Title,
			Start:          iv.ScheduledStart,
			End:            iv.ScheduledEnd,
			Timezone:       iv.Timezone,
			MeetingLink:    iv.MeetingAccess.Link,
			MeetingID:      iv.MeetingAccess.MeetingID,
			Passcode:       iv.MeetingAccess.Passcode,
			Cancelled:      event.Type == domain.EventInterviewCancelled,
		})
		if err != nil {
			n.log.Error("failed to send interview email", "interview_id", iv.ID, "user_id", userID, "error", err)
		}
	}
}
