package notify

import (
	"context"
	"fmt"

	"github.com/resend/resend-go/v2"

	"github.com/sumire/taskflow/internal/logging"
)

// emailSender is the subset of the Resend client used here.
type emailSender interface {
	SendWithContext(ctx context.Context, params *resend.SendEmailRequest) (*resend.SendEmailResponse, error)
}

// ResendMailer delivers email through the Resend API.
type ResendMailer struct {
	*renderer
	emails emailSender
}

// NewResendMailer creates a ResendMailer for the given API key.
func NewResendMailer(apiKey string, cfg Config) (*ResendMailer, error) {
	return newResendMailer(resend.NewClient(apiKey).Emails, cfg)
}

func newResendMailer(emails emailSender, cfg Config) (*ResendMailer, error) {
	r, err := newRenderer(cfg)
	if err != nil {
		return nil, err
	}
	return &ResendMailer{renderer: r, emails: emails}, nil
}

func (m *ResendMailer) SendVerification(ctx context.Context, to, name, token string) error {
	msg, err := m.verification(to, name, token)
	if err != nil {
		return err
	}
	return m.send(ctx, "verification", msg)
}

func (m *ResendMailer) SendWelcome(ctx context.Context, to, name string) error {
	msg, err := m.welcome(to, name)
	if err != nil {
		return err
	}
	return m.send(ctx, "welcome", msg)
}

func (m *ResendMailer) SendPasswordReset(ctx context.Context, to, name, token string) error {
	msg, err := m.passwordReset(to, name, token)
	if err != nil {
		return err
	}
	return m.send(ctx, "password_reset", msg)
}

func (m *ResendMailer) send(ctx context.Context, kind string, msg Message) error {
	resp, err := m.emails.SendWithContext(ctx, &resend.SendEmailRequest{
		From:    m.cfg.From,
		To:      []string{msg.To},
		Subject: msg.Subject,
		Html:    msg.HTML,
	})
	if err != nil {
		return fmt.Errorf("send %s email: %w", kind, err)
	}

	logging.FromContext(ctx).Info("email sent", "kind", kind, "to", msg.To, "message_id", resp.Id)
	return nil
}
