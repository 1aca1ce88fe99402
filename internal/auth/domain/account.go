package domain

import (
	"time"

	"github.com/google/uuid"
)

const (
	// MaxFailedLogins is the number of consecutive failures that locks an
	// account.
	MaxFailedLogins = 5

	// LockDuration is how long a lock holds before the next login attempt
	// clears it.
	LockDuration = 10 * time.Minute

	// PasswordValidity is the age after which credentials are reported stale.
	PasswordValidity = 90 * 24 * time.Hour
)

// Account is a user identity plus its security state. The methods below are
// the only transitions; callers persist the result.
type Account struct {
	UUID      string
	Username  string
	FirstName string
	LastName  string

	PasswordHash      string // argon2id PHC string
	PasswordChangedAt time.Time

	Enabled   bool
	Verified  bool
	Deleted   bool
	DeletedAt *time.Time

	Locked       bool
	LockedAt     *time.Time
	FailedLogins int

	VerificationToken *Token
	ResetToken        *Token

	// Version is the optimistic concurrency counter maintained by the store.
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewAccount returns a self-registered account: disabled and unverified
// until its verification token is consumed.
func NewAccount(username, firstName, lastName, passwordHash string, now time.Time) *Account {
	now = now.UTC()
	return &Account{
		UUID:              uuid.NewString(),
		Username:          username,
		FirstName:         firstName,
		LastName:          lastName,
		PasswordHash:      passwordHash,
		PasswordChangedAt: now,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

// NewVerifiedAccount returns an administratively inserted account that can
// log in immediately.
func NewVerifiedAccount(username, firstName, lastName, passwordHash string, now time.Time) *Account {
	a := NewAccount(username, firstName, lastName, passwordHash, now)
	a.Enabled = true
	a.Verified = true
	return a
}

// Usable reports whether the account may authenticate. Lock state is
// deliberately not part of this.
func (a *Account) Usable() bool {
	return a.Enabled && a.Verified && !a.Deleted
}

// CredentialsStale reports whether the password is older than
// PasswordValidity. It is advisory only.
func (a *Account) CredentialsStale(now time.Time) bool {
	return now.Sub(a.PasswordChangedAt) > PasswordValidity
}

// RecordFailedLogin bumps the failure counter, locking the account when it
// reaches MaxFailedLogins. It returns the attempts left before (or at) the
// lock, never negative.
func (a *Account) RecordFailedLogin(now time.Time) int {
	a.FailedLogins++
	if a.FailedLogins >= MaxFailedLogins {
		a.Lock(now)
	}
	return a.RemainingAttempts()
}

// RemainingAttempts is MaxFailedLogins minus the current counter, floored at 0.
func (a *Account) RemainingAttempts() int {
	return max(MaxFailedLogins-a.FailedLogins, 0)
}

// RecordSuccessfulLogin resets the failure counter. It does not unlock.
func (a *Account) RecordSuccessfulLogin() {
	a.FailedLogins = 0
}

// Lock starts a lockout at now. It lapses after LockDuration.
func (a *Account) Lock(now time.Time) {
	t := now.UTC()
	a.Locked = true
	a.LockedAt = &t
}

// Unlock clears the lock and the failure counter.
func (a *Account) Unlock() {
	a.Locked = false
	a.LockedAt = nil
	a.FailedLogins = 0
}

// IsLockExpired is true once d has elapsed since the account was locked.
func (a *Account) IsLockExpired(now time.Time, d time.Duration) bool {
	if a.LockedAt == nil {
		return false
	}
	return now.Sub(*a.LockedAt) >= d
}

// UnlocksAt is when a lock placed at LockedAt stops applying. Zero when the
// account is not locked.
func (a *Account) UnlocksAt() time.Time {
	if a.LockedAt == nil {
		return time.Time{}
	}
	return a.LockedAt.Add(LockDuration)
}

// MarkVerified completes registration. The verification slot is retired by
// the token manager, not here.
func (a *Account) MarkVerified() {
	a.Verified = true
	a.Enabled = true
}

// SetPassword replaces the hash and stamps the change time, which
// invalidates every session token issued before now.
func (a *Account) SetPassword(hash string, now time.Time) {
	a.PasswordHash = hash
	a.PasswordChangedAt = now.UTC()
}

// SoftDelete makes the account permanently unusable while keeping the
// record. Repeat calls keep the first DeletedAt.
func (a *Account) SoftDelete(now time.Time) {
	if a.DeletedAt == nil {
		t := now.UTC()
		a.DeletedAt = &t
	}
	a.Deleted = true
	a.Enabled = false
	a.Verified = false
	a.VerificationToken = nil
	a.ResetToken = nil
}

// Slot returns the token currently held for kind, or nil.
func (a *Account) Slot(kind TokenKind) *Token {
	switch kind {
	case TokenVerification:
		return a.VerificationToken
	case TokenPasswordReset:
		return a.ResetToken
	default:
		panic("domain: unknown token kind " + string(kind))
	}
}

// SetSlot stores t in the slot for its kind, replacing any previous token.
func (a *Account) SetSlot(t *Token) {
	switch t.Kind {
	case TokenVerification:
		a.VerificationToken = t
	case TokenPasswordReset:
		a.ResetToken = t
	default:
		panic("domain: unknown token kind " + string(t.Kind))
	}
}

// ClearSlot empties the slot for kind. Clearing an empty slot is a no-op.
func (a *Account) ClearSlot(kind TokenKind) {
	switch kind {
	case TokenVerification:
		a.VerificationToken = nil
	case TokenPasswordReset:
		a.ResetToken = nil
	default:
		panic("domain: unknown token kind " + string(kind))
	}
}

// Restore lifts a soft delete. Enabled and Verified stay false until set
// explicitly.
func (a *Account) Restore() {
	a.Deleted = false
	a.DeletedAt = nil
}
