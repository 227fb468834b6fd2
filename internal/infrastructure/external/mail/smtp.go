// Package mail delivers applicant notifications by SMTP.
package mail

import (
	"bytes"
	"context"
	"fmt"
	"time"

	gomail "github.com/wneessen/go-mail"
	"go.uber.org/zap"

	"github.com/garyjia/mutation-workflow/internal/application/port"
)

// Channel is the notification channel name of the SMTP mailer
const Channel = "smtp"

// Config holds SMTP server settings
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
	// TLS is one of "mandatory", "opportunistic" or "none"
	TLS     string
	Timeout time.Duration
}

// SMTPMailer implements port.Mailer over SMTP
type SMTPMailer struct {
	cfg    Config
	logger *zap.Logger
}

// NewSMTPMailer creates a new SMTP mailer
func NewSMTPMailer(cfg Config, logger *zap.Logger) (*SMTPMailer, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("smtp host is required")
	}
	if cfg.From == "" {
		return nil, fmt.Errorf("smtp sender address is required")
	}
	if _, err := tlsPolicy(cfg.TLS); err != nil {
		return nil, err
	}
	return &SMTPMailer{cfg: cfg, logger: logger}, nil
}

// Channel returns the channel name
func (m *SMTPMailer) Channel() string {
	return Channel
}

// Send delivers msg in a single SMTP session
func (m *SMTPMailer) Send(ctx context.Context, msg *port.Message) error {
	email, err := m.buildMessage(msg)
	if err != nil {
		return err
	}

	client, err := m.newClient()
	if err != nil {
		return err
	}

	if err := client.DialAndSendWithContext(ctx, email); err != nil {
		m.logger.Error("Failed to send email",
			zap.String("to", msg.To),
			zap.Error(err))
		return fmt.Errorf("failed to send email: %w", err)
	}

	m.logger.Info("Email sent",
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
		zap.Int("attachments", len(msg.Attachments)))
	return nil
}

func (m *SMTPMailer) buildMessage(msg *port.Message) (*gomail.Msg, error) {
	if msg == nil || msg.To == "" {
		return nil, fmt.Errorf("recipient cannot be empty")
	}

	email := gomail.NewMsg()
	if err := email.FromFormat(m.cfg.FromName, m.cfg.From); err != nil {
		return nil, fmt.Errorf("invalid sender address: %w", err)
	}
	if err := email.AddToFormat(msg.Name, msg.To); err != nil {
		return nil, fmt.Errorf("invalid recipient address: %w", err)
	}
	email.Subject(msg.Subject)
	email.SetDate()
	email.SetBodyString(gomail.TypeTextPlain, msg.Body)

	for _, att := range msg.Attachments {
		if err := email.AttachReader(att.Name, bytes.NewReader(att.Content)); err != nil {
			return nil, fmt.Errorf("failed to attach %s: %w", att.Name, err)
		}
	}
	return email, nil
}

func (m *SMTPMailer) newClient() (*gomail.Client, error) {
	policy, _ := tlsPolicy(m.cfg.TLS)
	opts := []gomail.Option{
		gomail.WithTLSPolicy(policy),
	}
	if m.cfg.Port > 0 {
		opts = append(opts, gomail.WithPort(m.cfg.Port))
	}
	if m.cfg.Timeout > 0 {
		opts = append(opts, gomail.WithTimeout(m.cfg.Timeout))
	}
	if m.cfg.Username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(m.cfg.Username),
			gomail.WithPassword(m.cfg.Password),
		)
	}

	client, err := gomail.NewClient(m.cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create smtp client: %w", err)
	}
	return client, nil
}

func tlsPolicy(name string) (gomail.TLSPolicy, error) {
	switch name {
	case "", "opportunistic":
		return gomail.TLSOpportunistic, nil
	case "mandatory":
		return gomail.TLSMandatory, nil
	case "none":
		return gomail.NoTLS, nil
	}
	return gomail.NoTLS, fmt.Errorf("unknown smtp tls policy: %s", name)
}
