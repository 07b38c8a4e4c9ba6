package email

import (
	"bytes"
	"fmt"
	"html/template"
	"net/smtp"
	"time"
)

// Config holds SMTP settings.
type Config struct {
	Host      string
	Port      string
	Username  string
	Password  string
	FromEmail string
}

// EmailService handles sending emails via SMTP
type EmailService struct {
	cfg  Config
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// InterviewEmailData holds the data for interview notification emails
type InterviewEmailData struct {
	RecipientEmail string
	Headline       string
	Title          string
	Start          time.Time
	End            time.Time
	Timezone       string
	MeetingLink    string
	MeetingID      string
	Passcode       string
	Cancelled      bool
}

// NewEmailService creates a new email service
func NewEmailService(cfg Config) *EmailService {
	if cfg.FromEmail == "" {
		cfg.FromEmail = cfg.Username
	}
	return &EmailService{cfg: cfg, send: smtp.SendMail}
}

const interviewEmailTemplate = `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>{{.Headline}}</title>
    <style>
        body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; }
        .container { max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { background: #0066cc; color: white; padding: 20px; text-align: center; }
        .content { padding: 20px; background: #f9f9f9; }
        .label { font-weight: bold; color: #555; }
        .footer { text-align: center; padding: 20px; color: #888; font-size: 12px; }
    </style>
</head>
<body>
    <div class="container">
        <div class="header"><h1>{{.Headline}}</h1></div>
        <div class="content">
            <p><span class="label">Interview:</span> {{.Title}}</p>
            <p><span class="label">When:</span> {{.When}}</p>
            {{if not .Cancelled}}
            <p><span class="label">Join:</span> <a href="{{.MeetingLink}}">{{.MeetingLink}}</a></p>
            <p><span class="label">Meeting ID:</span> {{.MeetingID}}</p>
            <p><span class="label">Passcode:</span> {{.Passcode}}</p>
            {{end}}
        </div>
        <div class="footer"><p>This message was sent by the interview scheduling service.</p></div>
    </div>
</body>
</html>`

var interviewTmpl = template.Must(template.New("interview").Parse(interviewEmailTemplate))

// SendInterviewEmail renders and sends an interview notification.
func (s *EmailService) SendInterviewEmail(data InterviewEmailData) error {
	loc, err := time.LoadLocation(data.Timezone)
	if err != nil {
		loc = time.UTC
	}
	view := struct {
		InterviewEmailData
		When string
	}{
		InterviewEmailData: data,
		When: fmt.Sprintf("%s - %s (%s)",
			data.Start.In(loc).Format("Mon, 02 Jan 2006 15:04"),
			data.End.In(loc).Format("15:04"),
			loc.String()),
	}

	var body bytes.Buffer
	if err := interviewTmpl.Execute(&body, view); err != nil {
		return fmt.Errorf("failed to execute email template: %w", err)
	}

	msg := []byte(fmt.Sprintf(
		"From: %s\r\n"+
			"To: %s\r\n"+
			"Subject: %s: %s\r\n"+
			"MIME-Version: 1.0\r\n"+
			"Content-Type: text/html; charset=UTF-8\r\n"+
			"\r\n"+
			"%s",
		s.cfg.FromEmail,
		data.RecipientEmail,
		data.Headline,
		data.Title,
		body.String(),
	))

	auth := smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	addr := fmt.Sprintf("%s:%s", s.cfg.Host, s.cfg.Port)
	if err := s.send(addr, auth, s.cfg.FromEmail, []string{data.RecipientEmail}, msg); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}

// IsConfigured checks if the email service has valid SMTP configuration
func (s *EmailService) IsConfigured() bool {
	return s.cfg.Host != "" && s.cfg.Username != "" && s.cfg.Password != ""
}
