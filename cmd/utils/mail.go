package utils

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strconv"

	"gopkg.in/gomail.v2"
)

// Mailer is the outbound email boundary. Handlers hold the interface so
// tests can swap in a recorder.
type Mailer interface {
	Send(to []string, subject, body string) error
	SendWithAttachment(to []string, subject, body, filename, mimeType string, data []byte) error
}

// SMTPMailer sends through the SMTP relay configured in the environment.
type SMTPMailer struct{}

func NewSMTPMailer() *SMTPMailer {
	return &SMTPMailer{}
}

func (m *SMTPMailer) dialer() (*gomail.Dialer, string, error) {
	smtpHost := os.Getenv("SMTP_HOST")
	smtpUser := os.Getenv("SMTP_USER")
	smtpPass := os.Getenv("SMTP_PASS")

	port, err := strconv.Atoi(os.Getenv("SMTP_PORT"))
	if err != nil {
		return nil, "", fmt.Errorf("invalid SMTP port: %v", err)
	}
	return gomail.NewDialer(smtpHost, port, smtpUser, smtpPass), smtpUser, nil
}

func (m *SMTPMailer) Send(to []string, subject, body string) error {
	d, from, err := m.dialer()
	if err != nil {
		return err
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", from)
	msg.SetHeader("To", to...)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", body)

	return d.DialAndSend(msg)
}

func (m *SMTPMailer) SendWithAttachment(to []string, subject, body, filename, mimeType string, data []byte) error {
	d, from, err := m.dialer()
	if err != nil {
		return err
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", from)
	msg.SetHeader("To", to...)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", body)
	msg.Attach(filename,
		gomail.SetCopyFunc(func(w io.Writer) error {
			_, err := io.Copy(w, bytes.NewReader(data))
			return err
		}),
		gomail.SetHeader(map[string][]string{"Content-Type": {mimeType}}),
	)

	return d.DialAndSend(msg)
}
