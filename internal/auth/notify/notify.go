// Package notify delivers verification and password reset links to account
// holders.
package notify

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/aussiebroadwan/trackr/internal/auth/domain"
)

// Sender delivers out-of-band tokens. It is satisfied by LogSender and
// SMTPSender and consumed as service.Notifier.
type Sender interface {
	SendVerification(ctx context.Context, to string, t domain.Token) error
	SendPasswordReset(ctx context.Context, to string, t domain.Token) error
}

// Message is a rendered plain-text email.
type Message struct {
	To      string
	Subject string
	Body    string
	Link    string
}

// Links builds the frontend URLs a token is redeemed at.
type Links struct {
	FrontendURL string
}

func (l Links) VerifyAccount(token string) string { return l.link("verify-account", token) }
func (l Links) ResetPassword(token string) string { return l.link("reset-password", token) }

func (l Links) link(path, token string) string {
	base := strings.TrimRight(l.FrontendURL, "/")
	return base + "/" + path + "?token=" + url.QueryEscape(token)
}

func verificationMessage(l Links, to string, t domain.Token) Message {
	link := l.VerifyAccount(t.Value)
	return Message{
		To:      to,
		Subject: "Verification Email",
		Link:    link,
		Body: "To verify your account, use the link below:\n\n" + link +
			"\n\nThis link will expire in " + humanDuration(t.ExpiresAt.Sub(t.CreatedAt)) + ".\n",
	}
}

func resetMessage(l Links, to string, t domain.Token) Message {
	link := l.ResetPassword(t.Value)
	return Message{
		To:      to,
		Subject: "Password Reset Request",
		Link:    link,
		Body: "To reset your password, use the link below:\n\n" + link +
			"\n\nThis link will expire in " + humanDuration(t.ExpiresAt.Sub(t.CreatedAt)) + ".\n" +
			"If you did not ask for a reset you can ignore this email.\n",
	}
}

// humanDuration renders whole hours or minutes, e.g. "24 hours", "30 minutes".
func humanDuration(d time.Duration) string {
	plural := func(n int64, unit string) string {
		if n == 1 {
			return "1 " + unit
		}
		return fmt.Sprintf("%d %ss", n, unit)
	}
	if d >= time.Hour && d%time.Hour == 0 {
		return plural(int64(d/time.Hour), "hour")
	}
	return plural(int64(d.Round(time.Minute)/time.Minute), "minute")
}
