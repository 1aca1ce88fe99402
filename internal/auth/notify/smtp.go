package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/trackr/internal/auth/domain"
	"github.com/aussiebroadwan/trackr/pkg/slogx"
	"github.com/wneessen/go-mail"
)

const defaultSMTPTimeout = 15 * time.Second

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	// Timeout bounds each connection to the relay. Zero means 15s.
	Timeout time.Duration
}

// SMTPSender delivers plain-text mail through a relay. STARTTLS is used
// whenever the relay offers it.
type SMTPSender struct {
	Config SMTPConfig
	Links  Links

	// send defaults to the relay client's DialAndSendWithContext.
	send func(ctx context.Context, msgs ...*mail.Msg) error
}

func NewSMTPSender(cfg SMTPConfig, links Links) (*SMTPSender, error) {
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultSMTPTimeout
	}

	opts := []mail.Option{
		mail.WithPort(cfg.Port),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
		mail.WithTimeout(cfg.Timeout),
	}
	if cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}

	client, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("notify: smtp client: %w", err)
	}
	return &SMTPSender{Config: cfg, Links: links, send: client.DialAndSendWithContext}, nil
}

func (s *SMTPSender) SendVerification(ctx context.Context, to string, t domain.Token) error {
	return s.deliver(ctx, verificationMessage(s.Links, to, t))
}

func (s *SMTPSender) SendPasswordReset(ctx context.Context, to string, t domain.Token) error {
	return s.deliver(ctx, resetMessage(s.Links, to, t))
}

func (s *SMTPSender) deliver(ctx context.Context, m Message) error {
	msg, err := s.compose(m)
	if err != nil {
		return err
	}

	if err := s.send(ctx, msg); err != nil {
		return fmt.Errorf("notify: send %q: %w", m.Subject, err)
	}

	slogx.FromContext(ctx).Info("notification sent",
		slog.String("subject", m.Subject),
		slog.String("smtp_host", s.Config.Host),
	)
	return nil
}

// compose rejects addresses that do not parse as a single mailbox, which
// also rules out header injection through the recipient.
func (s *SMTPSender) compose(m Message) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.From(s.Config.From); err != nil {
		return nil, fmt.Errorf("notify: invalid sender %q: %w", s.Config.From, err)
	}
	if err := msg.To(m.To); err != nil {
		return nil, fmt.Errorf("notify: invalid recipient %q: %w", m.To, err)
	}
	msg.Subject(m.Subject)
	msg.SetDate()
	msg.SetBodyString(mail.TypeTextPlain, m.Body)
	return msg, nil
}
