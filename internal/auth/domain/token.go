package domain

import "time"

// TokenKind selects which single-slot holder on an Account a token lives in.
type TokenKind string

const (
	TokenVerification  TokenKind = "verification"
	TokenPasswordReset TokenKind = "password_reset"
)

const (
	DefaultVerificationTTL = 24 * time.Hour
	DefaultResetTTL        = 30 * time.Minute

	// StaleVerificationWindow is the age after which an unconsumed
	// verification token, and its unverified account, are swept.
	StaleVerificationWindow = 24 * time.Hour
)

// Token is an out-of-band secret bound to exactly one account.
type Token struct {
	Kind        TokenKind
	Value       string
	AccountUUID string
	ExpiresAt   time.Time
	CreatedAt   time.Time
}

// NewToken builds a token valid for ttl from now.
func NewToken(kind TokenKind, value, accountUUID string, ttl time.Duration, now time.Time) *Token {
	now = now.UTC()
	return &Token{
		Kind:        kind,
		Value:       value,
		AccountUUID: accountUUID,
		ExpiresAt:   now.Add(ttl),
		CreatedAt:   now,
	}
}

// IsValid is true iff the token expires strictly after now.
func (t *Token) IsValid(now time.Time) bool {
	return t != nil && t.ExpiresAt.After(now)
}
