package jwtx

import (
	"errors"
	"time"
)

// Verifier checks a session token against the account it claims to belong
// to. Any structural or signature failure is an error.
type Verifier interface {
	// Parse checks signature, algorithm and issuer and returns the claims.
	// It does not check the account-bound conditions.
	Parse(token string) (Claims, error)

	// Verify runs Parse and then requires subject == expectedSubject, an
	// unexpired token and iat strictly after passwordChangedAt.
	Verify(token, expectedSubject string, passwordChangedAt time.Time) (Claims, error)
}

var (
	ErrMalformed          = errors.New("jwtx: malformed token")
	ErrInvalidSig         = errors.New("jwtx: invalid signature")
	ErrIssuer             = errors.New("jwtx: issuer mismatch")
	ErrSubject            = errors.New("jwtx: subject mismatch")
	ErrExpired            = errors.New("jwtx: token expired")
	ErrIssuedBeforeChange = errors.New("jwtx: token issued before last password change")
	ErrMissingClaim       = errors.New("jwtx: claim not present")
	ErrWeakSecret         = errors.New("jwtx: signing secret shorter than 256 bits")
)
