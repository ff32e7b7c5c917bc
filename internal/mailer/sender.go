package mailer

import (
	"context"
	"fmt"

	"github.com/diewo77/go-procurement/internal/config"
	"github.com/diewo77/go-procurement/internal/models"
	"github.com/rs/zerolog"
	"github.com/wneessen/go-mail"
)

// SMTPSender delivers messages over SMTP.
type SMTPSender struct {
	cfg config.SMTPConfig
}

func NewSMTPSender(cfg config.SMTPConfig) *SMTPSender { return &SMTPSender{cfg: cfg} }

func (s *SMTPSender) client() (*mail.Client, error) {
	opts := []mail.Option{
		mail.WithPort(s.cfg.Port),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
	}
	if s.cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(s.cfg.Username),
			mail.WithPassword(s.cfg.Password),
		)
	}
	return mail.NewClient(s.cfg.Host, opts...)
}

func (s *SMTPSender) Send(ctx context.Context, msg models.EmailOutbox) error {
	m := mail.NewMsg()
	if err := m.From(s.cfg.From); err != nil {
		return fmt.Errorf("from %q: %w", s.cfg.From, err)
	}
	if err := m.To(msg.Recipient); err != nil {
		return fmt.Errorf("to %q: %w", msg.Recipient, err)
	}
	m.Subject(msg.Subject)
	m.SetBodyString(mail.TypeTextPlain, msg.Body)

	c, err := s.client()
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}
	return c.DialAndSendWithContext(ctx, m)
}

// LogSender writes messages to the log instead of sending them. Used when
// no SMTP host is configured.
type LogSender struct {
	Log zerolog.Logger
}

func (s LogSender) Send(_ context.Context, msg models.EmailOutbox) error {
	s.Log.Info().
		Uint("outbox_id", msg.ID).
		Str("to", msg.Recipient).
		Str("subject", msg.Subject).
		Str("reference", msg.Reference).
		Msg("email (not sent, no SMTP host)")
	return nil
}

// NewSender picks SMTP when a host is configured, the log otherwise.
func NewSender(cfg config.SMTPConfig, log zerolog.Logger) Sender {
	if cfg.Host == "" {
		return LogSender{Log: log}
	}
	return NewSMTPSender(cfg)
}
