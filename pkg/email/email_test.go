package email

import (
	"net/smtp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendInterviewEmail(t *testing.T) {
	svc := NewEmailService(Config{Host: "smtp.example.com", Port: "587", Username: "noreply@example.com", Password: "secret"})

	var gotAddr string
	var gotTo []string
	var gotMsg string
	svc.send = func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr = addr
		gotTo = to
		gotMsg = string(msg)
		assert.Equal(t, "noreply@example.com", from)
		return nil
	}

	err := svc.SendInterviewEmail(InterviewEmailData{
		RecipientEmail: "candidate@example.com",
		Headline:       "Interview scheduled",
		Title:          "Backend Engineer",
		Start:          time.Date(2024, 1, 4, 10, 0, 0, 0, time.UTC),
		End:            time.Date(2024, 1, 4, 10, 30, 0, 0, time.UTC),
		Timezone:       "Asia/Tokyo",
		MeetingLink:    "https://meet.example.com/12345678901",
		MeetingID:      "12345678901",
		Passcode:       "123456",
	})
	require.NoError(t, err)

	assert.Equal(t, "smtp.example.com:587", gotAddr)
	assert.Equal(t, []string{"candidate@example.com"}, gotTo)
	assert.Contains(t, gotMsg, "Subject: Interview scheduled: Backend Engineer")
	assert.Contains(t, gotMsg, "Thu, 04 Jan 2024 19:00 - 19:30 (Asia/Tokyo)")
	assert.Contains(t, gotMsg, "123456")
}

func TestIsConfigured(t *testing.T) {
	assert.False(t, NewEmailService(Config{}).IsConfigured())
	assert.True(t, NewEmailService(Config{Host: "h", Username: "u", Password: "p"}).IsConfigured())
}
