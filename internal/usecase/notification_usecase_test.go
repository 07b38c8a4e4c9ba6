package usecase_test

import (
	"context"
	"testing"

	"go-interview-backend/internal/domain"
	"go-interview-backend/internal/usecase"
	"go-interview-backend/pkg/email"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type MockUserRepo struct {
	mock.Mock
}

func (m *MockUserRepo) GetByID(ctx context.Context, id string) (*domain.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

type fakeMailer struct {
	configured bool
	sent       []email.InterviewEmailData
}

func (f *fakeMailer) SendInterviewEmail(data email.InterviewEmailData) error {
	f.sent = append(f.sent, data)
	return nil
}

func (f *fakeMailer) IsConfigured() bool { return f.configured }

func TestNotifier(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, jan1)
	iv := h.schedule(t, slot1)

	users := new(MockUserRepo)
	users.On("GetByID", mock.Anything, candidateID).Return(&domain.User{ID: candidateID, Email: "candidate@example.com"}, nil)
	users.On("GetByID", mock.Anything, organizerID).Return(&domain.User{ID: organizerID, Email: "recruiter@example.com"}, nil)

	t.Run("Scheduled interview mails both participants", func(t *testing.T) {
		mailer := &fakeMailer{configured: true}
		n := usecase.NewNotifier(h.repo, users, mailer, quietLogger())
		n.Handle(ctx, domain.NewInterviewEvent(domain.EventInterviewScheduled, iv, domain.EventSourceEngine, jan1))

		if assert.Len(t, mailer.sent, 2) {
			assert.Equal(t, "candidate@example.com", mailer.sent[0].RecipientEmail)
			assert.Equal(t, "recruiter@example.com", mailer.sent[1].RecipientEmail)
			assert.Equal(t, iv.MeetingAccess.Passcode, mailer.sent[0].Passcode)
			assert.False(t, mailer.sent[0].Cancelled)
		}
	})

	t.Run("Superseded events are skipped", func(t *testing.T) {
		mailer := &fakeMailer{configured: true}
		n := usecase.NewNotifier(h.repo, users, mailer, quietLogger())
		stale := domain.NewInterviewEvent(domain.EventInterviewScheduled, iv, domain.EventSourceEngine, jan1)
		stale.Version = 0
		n.Handle(ctx, stale)
		assert.Empty(t, mailer.sent)
	})

	t.Run("Unconfigured mailer sends nothing", func(t *testing.T) {
		mailer := &fakeMailer{}
		n := usecase.NewNotifier(h.repo, users, mailer, quietLogger())
		n.Handle(ctx, domain.NewInterviewEvent(domain.EventInterviewScheduled, iv, domain.EventSourceEngine, jan1))
		assert.Empty(t, mailer.sent)
	})

	t.Run("Completion is not mailed", func(t *testing.T) {
		mailer := &fakeMailer{configured: true}
		n := usecase.NewNotifier(h.repo, users, mailer, quietLogger())
		n.Handle(ctx, domain.NewInterviewEvent(domain.EventInterviewCompleted, iv, domain.EventSourceEngine, jan1))
		assert.Empty(t, mailer.sent)
	})
}
