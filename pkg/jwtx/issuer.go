package jwtx

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jonboulle/clockwork"
)

// MinSecretBytes is the shortest HMAC key accepted for HS256.
const MinSecretBytes = 32

func init() {
	// iat and exp are encoded with millisecond precision. With whole seconds
	// a login in the same second as a password change would mint a token
	// that is immediately stale.
	jwt.TimePrecision = time.Millisecond
}

// HS256Issuer signs and verifies session tokens with a shared secret. The
// secret is injected once at start-up and never leaves this value.
type HS256Issuer struct {
	secret []byte
	issuer string
	ttl    time.Duration
	clock  clockwork.Clock
	parser *jwt.Parser
}

var _ Verifier = (*HS256Issuer)(nil)

// DecodeSecret accepts the configured secret in standard or URL-safe base64,
// padded or not.
func DecodeSecret(encoded string) ([]byte, error) {
	encoded = strings.TrimSpace(encoded)
	for _, enc := range []*base64.Encoding{
		base64.StdEncoding,
		base64.RawStdEncoding,
		base64.URLEncoding,
		base64.RawURLEncoding,
	} {
		if b, err := enc.DecodeString(encoded); err == nil {
			return b, nil
		}
	}
	return nil, errors.New("jwtx: secret is not valid base64")
}

// NewHS256Issuer builds an issuer. Zero ttl, empty issuer and nil clock fall
// back to DefaultSessionTTL, DefaultIssuer and the real clock.
func NewHS256Issuer(secret []byte, issuer string, ttl time.Duration, clock clockwork.Clock) (*HS256Issuer, error) {
	if len(secret) < MinSecretBytes {
		return nil, ErrWeakSecret
	}
	if issuer == "" {
		issuer = DefaultIssuer
	}
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	return &HS256Issuer{
		secret: append([]byte(nil), secret...),
		issuer: issuer,
		ttl:    ttl,
		clock:  clock,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithIssuer(issuer),
			jwt.WithExpirationRequired(),
			jwt.WithIssuedAt(),
			jwt.WithTimeFunc(clock.Now),
		),
	}, nil
}

// TTL is the lifetime given to issued tokens.
func (i *HS256Issuer) TTL() time.Duration { return i.ttl }

// Issue mints a token for subject (the username) bound to accountUUID.
func (i *HS256Issuer) Issue(subject, accountUUID string) (string, Claims, error) {
	if subject == "" || accountUUID == "" {
		return "", Claims{}, errors.New("jwtx: subject and account uuid are required")
	}

	claims := NewSessionClaims(i.issuer, subject, accountUUID, i.ttl, i.clock.Now())
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", Claims{}, fmt.Errorf("jwtx: sign: %w", err)
	}
	return signed, claims, nil
}

// Parse implements Verifier.
func (i *HS256Issuer) Parse(token string) (Claims, error) {
	var claims Claims
	if _, err := i.parser.ParseWithClaims(token, &claims, i.keyFunc); err != nil {
		return Claims{}, mapParseError(err)
	}
	return claims, nil
}

// Verify implements Verifier.
func (i *HS256Issuer) Verify(token, expectedSubject string, passwordChangedAt time.Time) (Claims, error) {
	claims, err := i.Parse(token)
	if err != nil {
		return Claims{}, err
	}

	if err := claims.ValidateSubject(expectedSubject); err != nil {
		return Claims{}, err
	}
	if err := claims.ValidateExpiry(i.clock.Now()); err != nil {
		return Claims{}, err
	}
	if err := claims.ValidateIssuedAfter(passwordChangedAt); err != nil {
		return Claims{}, err
	}
	return claims, nil
}

// Claim reads a single named claim from a token after checking its
// signature. Unverified tokens are never read.
func (i *HS256Issuer) Claim(token, name string) (any, error) {
	claims := jwt.MapClaims{}
	if _, err := i.parser.ParseWithClaims(token, claims, i.keyFunc); err != nil {
		return nil, mapParseError(err)
	}
	v, ok := claims[name]
	if !ok {
		return nil, ErrMissingClaim
	}
	return v, nil
}

func (i *HS256Issuer) keyFunc(t *jwt.Token) (any, error) {
	if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, ErrInvalidSig
	}
	return i.secret, nil
}

func mapParseError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrExpired
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return ErrIssuer
	case errors.Is(err, jwt.ErrTokenSignatureInvalid),
		errors.Is(err, jwt.ErrTokenUnverifiable),
		errors.Is(err, ErrInvalidSig):
		return fmt.Errorf("%w: %v", ErrInvalidSig, err)
	default:
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
}
