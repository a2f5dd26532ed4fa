// Package email sends moderator notices over SMTP. Optional: when SMTP
// is not configured the flag pipeline simply skips it.
package email

import (
	"bytes"
	"fmt"
	"html/template"
	"net/smtp"
	"strings"
)

// Config holds SMTP configuration
type Config struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
	FromName string
}

// Service provides email sending
type Service struct {
	config Config
	server string
	auth   smtp.Auth
}

// NewService creates a new email service
func NewService(config Config) *Service {
	auth := smtp.PlainAuth("", config.Username, config.Password, config.Host)

	return &Service{
		config: config,
		server: config.Host + ":" + config.Port,
		auth:   auth,
	}
}

// IsConfigured returns true if email is configured
func (s *Service) IsConfigured() bool {
	return s.config.Host != "" && s.config.Port != "" && s.config.From != ""
}

// SendEmail sends a plain text email
func (s *Service) SendEmail(to []string, subject, body string) error {
	if !s.IsConfigured() {
		return fmt.Errorf("email not configured")
	}

	from := s.config.From
	if s.config.FromName != "" {
		from = fmt.Sprintf("%s <%s>", s.config.FromName, s.config.From)
	}

	msg := []byte(fmt.Sprintf(
		"To: %s\r\n"+
			"From: %s\r\n"+
			"Subject: %s\r\n"+
			"Content-Type: text/plain; charset=UTF-8\r\n"+
			"\r\n"+
			"%s",
		strings.Join(to, ", "),
		from,
		subject,
		body,
	))

	return smtp.SendMail(s.server, s.auth, s.config.From, to, msg)
}

// FlagNoticeData holds data for the flagged-post notice template
type FlagNoticeData struct {
	AppName    string
	FlaggedBy  string
	PostPath   string
}

const flagNoticeTemplate = `A post was flagged on {{.AppName}}.

Flagged by: {{.FlaggedBy}}
Post: {{.PostPath}}

Please review it from the moderation queue.
`

// SendFlagNotice emails the moderator group about a flagged post
func (s *Service) SendFlagNotice(to []string, flaggedBy, postPath string) error {
	data := FlagNoticeData{
		AppName:   "Agora",
		FlaggedBy: flaggedBy,
		PostPath:  postPath,
	}

	body, err := renderTemplate(flagNoticeTemplate, data)
	if err != nil {
		return fmt.Errorf("render flag notice template: %w", err)
	}

	return s.SendEmail(to, "A post was flagged for review", body)
}

func renderTemplate(tmpl string, data interface{}) (string, error) {
	parsed, err := template.New("email").Parse(tmpl)
	if err != nil {
		return "", fmt.Errorf("parse template: %w", err)
	}
	var buf bytes.Buffer
	if err := parsed.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("execute template: %w", err)
	}
	return buf.String(), nil
}
