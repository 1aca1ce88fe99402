package notify

import (
	"context"
	"log/slog"

	"github.com/aussiebroadwan/trackr/internal/auth/domain"
	"github.com/aussiebroadwan/trackr/pkg/slogx"
)

// LogSender writes the link to the request logger instead of mailing it.
// Intended for development only: the log line contains a live token.
type LogSender struct {
	Links Links
}

func (s LogSender) SendVerification(ctx context.Context, to string, t domain.Token) error {
	s.log(ctx, verificationMessage(s.Links, to, t), t)
	return nil
}

func (s LogSender) SendPasswordReset(ctx context.Context, to string, t domain.Token) error {
	s.log(ctx, resetMessage(s.Links, to, t), t)
	return nil
}

func (s LogSender) log(ctx context.Context, m Message, t domain.Token) {
	slogx.FromContext(ctx).Info("notification",
		slog.String("to", m.To),
		slog.String("subject", m.Subject),
		slog.String("link", m.Link),
		slog.Time("expires_at", t.ExpiresAt),
	)
}
