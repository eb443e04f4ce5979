package notifier

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"

	"github.com/tidewater-labs/plantpulse/internal/models"
)

// EmailConfig holds SMTP configuration.
type EmailConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
}

// Validate validates the email configuration.
func (c *EmailConfig) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("SMTP host is required")
	}
	if c.Port == 0 {
		return fmt.Errorf("SMTP port is required")
	}
	if c.From == "" {
		return fmt.Errorf("from address is required")
	}
	return nil
}

// EmailSender delivers notification jobs over SMTP.
type EmailSender struct {
	config EmailConfig
}

// NewEmailSender creates an email sender.
func NewEmailSender(config EmailConfig) (*EmailSender, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid email config: %w", err)
	}
	return &EmailSender{config: config}, nil
}

// Channel returns email.
func (e *EmailSender) Channel() models.Channel {
	return models.ChannelEmail
}

// Send delivers the job to its recipient address.
func (e *EmailSender) Send(ctx context.Context, job *models.NotificationJob) error {
	msg := e.buildMessage(job)
	addr := net.JoinHostPort(e.config.Host, strconv.Itoa(e.config.Port))

	var auth smtp.Auth
	if e.config.Username != "" {
		auth = smtp.PlainAuth("", e.config.Username, e.config.Password, e.config.Host)
	}

	done := make(chan error, 1)
	go func() {
		done <- smtp.SendMail(addr, auth, e.config.From, []string{job.Recipient}, msg)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("smtp send to %s: %w", job.Recipient, ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("smtp send to %s: %w", job.Recipient, err)
		}
		return nil
	}
}

// Close is a no-op for the email sender.
func (e *EmailSender) Close() error {
	return nil
}

func (e *EmailSender) buildMessage(job *models.NotificationJob) []byte {
	var msg strings.Builder
	msg.WriteString(fmt.Sprintf("From: %s\r\n", e.config.From))
	msg.WriteString(fmt.Sprintf("To: %s\r\n", job.Recipient))
	msg.WriteString(fmt.Sprintf("Subject: %s\r\n", job.Subject))
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(job.Body)
	msg.WriteString("\r\n")
	return []byte(msg.String())
}
