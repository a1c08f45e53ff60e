package notify

import (
	"context"
	"log/slog"

	"github.com/sumire/taskflow/internal/logging"
)

// LogMailer writes emails to the log instead of sending them. It is used
// when no email provider is configured.
type LogMailer struct {
	*renderer
	withLinks bool
}

// NewLogMailer creates a LogMailer. Links carry single-use tokens, so they
// are only written when withLinks is set, which main does in development.
func NewLogMailer(cfg Config, withLinks bool) (*LogMailer, error) {
	r, err := newRenderer(cfg)
	if err != nil {
		return nil, err
	}
	return &LogMailer{renderer: r, withLinks: withLinks}, nil
}

func (m *LogMailer) SendVerification(ctx context.Context, to, name, token string) error {
	msg, err := m.verification(to, name, token)
	if err != nil {
		return err
	}
	m.log(ctx, "verification", msg)
	return nil
}

func (m *LogMailer) SendWelcome(ctx context.Context, to, name string) error {
	msg, err := m.welcome(to, name)
	if err != nil {
		return err
	}
	m.log(ctx, "welcome", msg)
	return nil
}

func (m *LogMailer) SendPasswordReset(ctx context.Context, to, name, token string) error {
	msg, err := m.passwordReset(to, name, token)
	if err != nil {
		return err
	}
	m.log(ctx, "password_reset", msg)
	return nil
}

func (m *LogMailer) log(ctx context.Context, kind string, msg Message) {
	attrs := []slog.Attr{
		slog.String("kind", kind),
		slog.String("to", msg.To),
		slog.String("subject", msg.Subject),
	}
	if m.withLinks {
		attrs = append(attrs, slog.String("link", msg.Link))
	}
	logging.FromContext(ctx).LogAttrs(ctx, slog.LevelInfo, "email not sent, no provider configured", attrs...)
}
