package notify

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"mime/quotedprintable"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/aussiebroadwan/trackr/internal/auth/domain"
	"github.com/aussiebroadwan/trackr/pkg/slogx"
	"github.com/stretchr/testify/require"
	"github.com/wneessen/go-mail"
)

var now = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func TestLinks(t *testing.T) {
	l := Links{FrontendURL: "https://trackr.example.com/auth/"}
	require.Equal(t, "https://trackr.example.com/auth/verify-account?token=abc", l.VerifyAccount("abc"))
	require.Equal(t, "https://trackr.example.com/auth/reset-password?token=a%2Bb", l.ResetPassword("a+b"))
}

func TestHumanDuration(t *testing.T) {
	require.Equal(t, "24 hours", humanDuration(24*time.Hour))
	require.Equal(t, "1 hour", humanDuration(time.Hour))
	require.Equal(t, "30 minutes", humanDuration(30*time.Minute))
	require.Equal(t, "90 minutes", humanDuration(90*time.Minute))
}

func TestMessages(t *testing.T) {
	l := Links{FrontendURL: "http://localhost:5173/auth"}

	v := verificationMessage(l, "alice@example.com", *domain.NewToken(domain.TokenVerification, "tok", "u", domain.DefaultVerificationTTL, now))
	require.Equal(t, "Verification Email", v.Subject)
	require.Contains(t, v.Body, "http://localhost:5173/auth/verify-account?token=tok")
	require.Contains(t, v.Body, "expire in 24 hours")

	r := resetMessage(l, "alice@example.com", *domain.NewToken(domain.TokenPasswordReset, "tok", "u", domain.DefaultResetTTL, now))
	require.Equal(t, "Password Reset Request", r.Subject)
	require.Contains(t, r.Body, "http://localhost:5173/auth/reset-password?token=tok")
	require.Contains(t, r.Body, "expire in 30 minutes")
}

func TestLogSender(t *testing.T) {
	var buf bytes.Buffer
	ctx := slogx.WithContext(context.Background(), slog.New(slog.NewJSONHandler(&buf, nil)))

	s := LogSender{Links: Links{FrontendURL: "http://localhost:5173/auth"}}
	tok := domain.NewToken(domain.TokenPasswordReset, "secret-value", "u", domain.DefaultResetTTL, now)
	require.NoError(t, s.SendPasswordReset(ctx, "alice@example.com", *tok))

	require.Contains(t, buf.String(), `"to":"alice@example.com"`)
	require.Contains(t, buf.String(), "reset-password?token=secret-value")
}

func newTestSMTPSender(t *testing.T, cfg SMTPConfig) (*SMTPSender, *[]*mail.Msg) {
	t.Helper()
	s, err := NewSMTPSender(cfg, Links{FrontendURL: "https://trackr.example.com"})
	require.NoError(t, err)

	var sent []*mail.Msg
	s.send = func(_ context.Context, msgs ...*mail.Msg) error {
		sent = append(sent, msgs...)
		return nil
	}
	return s, &sent
}

// messageBody renders msg and decodes its quoted-printable body.
func messageBody(t *testing.T, msg *mail.Msg) string {
	t.Helper()
	var buf bytes.Buffer
	_, err := msg.WriteTo(&buf)
	require.NoError(t, err)

	_, body, ok := strings.Cut(buf.String(), "\r\n\r\n")
	require.True(t, ok, "message has no body")
	decoded, err := io.ReadAll(quotedprintable.NewReader(strings.NewReader(body)))
	require.NoError(t, err)
	return string(decoded)
}

func TestSMTPSender(t *testing.T) {
	s, sent := newTestSMTPSender(t, SMTPConfig{
		Host:     "mail.example.com",
		Username: "trackr",
		Password: "pw",
		From:     "no-reply@example.com",
	})
	require.Equal(t, 587, s.Config.Port)

	tok := domain.NewToken(domain.TokenVerification, "tok", "u", domain.DefaultVerificationTTL, now)
	require.NoError(t, s.SendVerification(context.Background(), "alice@example.com", *tok))
	require.Len(t, *sent, 1)

	msg := (*sent)[0]
	from, err := msg.GetSender(false)
	require.NoError(t, err)
	require.Equal(t, "no-reply@example.com", from)

	rcpts, err := msg.GetRecipients()
	require.NoError(t, err)
	require.Equal(t, []string{"alice@example.com"}, rcpts)
	require.Equal(t, []string{"Verification Email"}, msg.GetGenHeader(mail.HeaderSubject))

	body := messageBody(t, msg)
	require.Contains(t, body, "https://trackr.example.com/verify-account?token=tok")
	require.Contains(t, body, "expire in 24 hours")
}

func TestSMTPSender_Errors(t *testing.T) {
	s, sent := newTestSMTPSender(t, SMTPConfig{Host: "mail.example.com", Port: 25, From: "no-reply@example.com"})
	tok := domain.NewToken(domain.TokenPasswordReset, "tok", "u", time.Minute, now)

	err := s.SendPasswordReset(context.Background(), "alice@example.com\r\nBcc: evil@example.com", *tok)
	require.Error(t, err)
	require.Empty(t, *sent)

	relayDown := errors.New("connection refused")
	s.send = func(context.Context, ...*mail.Msg) error { return relayDown }
	err = s.SendPasswordReset(context.Background(), "alice@example.com", *tok)
	require.ErrorIs(t, err, relayDown)

	_, err = NewSMTPSender(SMTPConfig{}, Links{})
	require.Error(t, err)
}

func TestSMTPSender_HonoursContext(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })
	port := ln.Addr().(*net.TCPAddr).Port

	s, err := NewSMTPSender(SMTPConfig{Host: "127.0.0.1", Port: port, From: "no-reply@example.com"}, Links{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	tok := domain.NewToken(domain.TokenVerification, "tok", "u", time.Hour, now)
	start := time.Now()
	require.Error(t, s.SendVerification(ctx, "alice@example.com", *tok))
	require.Less(t, time.Since(start), 5*time.Second)
}
