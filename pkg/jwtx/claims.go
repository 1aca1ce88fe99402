package jwtx

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Session token defaults.
const (
	DefaultIssuer     = "self"
	DefaultSessionTTL = 3 * time.Hour

	// ClaimAccountUUID carries the stable account identifier. The subject is
	// the username, which may change.
	ClaimAccountUUID = "accountUuid"
)

// Claims are the session-token claims.
type Claims struct {
	jwt.RegisteredClaims

	AccountUUID string `json:"accountUuid"`
}

// NewSessionClaims builds claims for a session issued at now.
func NewSessionClaims(issuer, subject, accountUUID string, ttl time.Duration, now time.Time) Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		AccountUUID: accountUUID,
	}
}

// ValidateSubject checks the token was minted for expected.
func (c *Claims) ValidateSubject(expected string) error {
	if c.Subject == "" || c.Subject != expected {
		return ErrSubject
	}
	return nil
}

// ValidateExpiry requires now to be strictly before exp.
func (c *Claims) ValidateExpiry(now time.Time) error {
	if c.ExpiresAt == nil || !now.Before(c.ExpiresAt.Time) {
		return ErrExpired
	}
	return nil
}

// ValidateIssuedAfter requires iat to be strictly after t. A token minted
// before the last password change fails here.
func (c *Claims) ValidateIssuedAfter(t time.Time) error {
	if c.IssuedAt == nil || !c.IssuedAt.After(t) {
		return ErrIssuedBeforeChange
	}
	return nil
}
