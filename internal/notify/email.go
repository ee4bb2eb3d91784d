// Package notify delivers the rendered digest over SMTP. It is a thin sink:
// the body arrives fully rendered and transport failures are surfaced to the
// caller, not retried.
package notify

import (
	"fmt"
	"net/smtp"
	"strings"
)

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	To       string
}

// Send delivers one plain-text message. STARTTLS is negotiated by the smtp
// package when the server advertises it.
func Send(cfg SMTPConfig, subject, body string) error {
	msg := strings.Join([]string{
		"From: " + cfg.From,
		"To: " + cfg.To,
		"Subject: " + subject,
		"MIME-Version: 1.0",
		`Content-Type: text/plain; charset="utf-8"`,
		"",
		body,
	}, "\r\n")

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	auth := smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	if err := smtp.SendMail(addr, auth, cfg.From, []string{cfg.To}, []byte(msg)); err != nil {
		return fmt.Errorf("sending digest email: %w", err)
	}
	return nil
}
