package service

import (
	"gopkg.in/gomail.v2"

	"github.com/soundvault/ms-go-auth/config"
)

// Mailer delivers outbound mail. Failures propagate to the caller; the core
// never swallows them, but tokens persisted before the send stay persisted.
type Mailer interface {
	SendMail(from, to, subject, htmlBody string) error
}

type SMTPMailer struct {
	dialer *gomail.Dialer
}

func NewSMTPMailer(cfg config.SMTPConfig) *SMTPMailer {
	return &SMTPMailer{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
	}
}

func (m *SMTPMailer) SendMail(from, to, subject, htmlBody string) error {
	msg := gomail.NewMessage()
	msg.SetHeader("From", from)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/html", htmlBody)
	return m.dialer.DialAndSend(msg)
}
