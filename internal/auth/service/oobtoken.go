package service

import (
	"context"
	"errors"
	"time"

	"github.com/aussiebroadwan/trackr/internal/auth/domain"
	"github.com/aussiebroadwan/trackr/internal/auth/store"
	"github.com/aussiebroadwan/trackr/pkg/cryptox"
	"github.com/jonboulle/clockwork"
)

// TokenManager issues, resolves and retires one kind of out-of-band token.
// Verification and password reset each get their own instance.
type TokenManager struct {
	Kind  domain.TokenKind
	TTL   time.Duration
	Store store.Store
	Clock clockwork.Clock

	// Generate defaults to a 256-bit random base64url value.
	Generate func() (string, error)
}

func NewVerificationTokens(st store.Store, clock clockwork.Clock, ttl time.Duration) *TokenManager {
	if ttl <= 0 {
		ttl = domain.DefaultVerificationTTL
	}
	return &TokenManager{Kind: domain.TokenVerification, TTL: ttl, Store: st, Clock: clock}
}

func NewResetTokens(st store.Store, clock clockwork.Clock, ttl time.Duration) *TokenManager {
	if ttl <= 0 {
		ttl = domain.DefaultResetTTL
	}
	return &TokenManager{Kind: domain.TokenPasswordReset, TTL: ttl, Store: st, Clock: clock}
}

func (m *TokenManager) generate() (string, error) {
	if m.Generate != nil {
		return m.Generate()
	}
	return cryptox.GenerateToken(cryptox.TokenSize256)
}

// Attach gives a a live token of this kind without persisting it. A live
// token already in the slot is returned unchanged; an expired one is
// replaced.
func (m *TokenManager) Attach(a *domain.Account) (*domain.Token, error) {
	now := clockOrReal(m.Clock).Now()
	if t := a.Slot(m.Kind); t.IsValid(now) {
		return t, nil
	}

	value, err := m.generate()
	if err != nil {
		return nil, err
	}
	t := domain.NewToken(m.Kind, value, a.UUID, m.TTL, now)
	a.SetSlot(t)
	return t, nil
}

// IssueFor attaches a token to the stored account and persists it.
// Repeated calls return the same value until it expires or is consumed.
func (m *TokenManager) IssueFor(ctx context.Context, accountUUID string) (domain.Token, error) {
	var (
		tok    *domain.Token
		genErr error
	)
	_, err := mutateAccount(ctx, m.Store, clockOrReal(m.Clock), accountUUID, func(a *domain.Account) (bool, error) {
		before := a.Slot(m.Kind)
		tok, genErr = m.Attach(a)
		if genErr != nil {
			return false, nil
		}
		return tok != before, nil
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Token{}, notFound("User", "User with uuid %s not found", accountUUID)
		}
		return domain.Token{}, serverError(ctx, "failed to persist token", err)
	}
	if genErr != nil {
		return domain.Token{}, serverError(ctx, "failed to generate token", genErr)
	}
	return *tok, nil
}

// ResolveValid returns the account owning value. Unknown and expired
// tokens fail identically with NotFound.
func (m *TokenManager) ResolveValid(ctx context.Context, value string) (domain.Account, error) {
	if value == "" {
		return domain.Account{}, notFound("Token", "Token invalid or expired")
	}

	a, err := m.Store.Accounts().GetByToken(ctx, m.Kind, value)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Account{}, notFound("Token", "Token invalid or expired")
		}
		return domain.Account{}, serverError(ctx, "failed to resolve token", err)
	}

	t := a.Slot(m.Kind)
	if t == nil || t.Value != value || !t.IsValid(clockOrReal(m.Clock).Now()) {
		return domain.Account{}, notFound("Token", "Token invalid or expired")
	}
	return a, nil
}

// Retire empties the slot in memory. Retiring an empty slot is a no-op.
func (m *TokenManager) Retire(a *domain.Account) bool {
	if a.Slot(m.Kind) == nil {
		return false
	}
	a.ClearSlot(m.Kind)
	return true
}

// Consume retires the stored account's token so it cannot be used again.
func (m *TokenManager) Consume(ctx context.Context, accountUUID string) error {
	_, err := mutateAccount(ctx, m.Store, clockOrReal(m.Clock), accountUUID, func(a *domain.Account) (bool, error) {
		return m.Retire(a), nil
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return notFound("User", "User with uuid %s not found", accountUUID)
		}
		return serverError(ctx, "failed to consume token", err)
	}
	return nil
}

// FindStale returns accounts whose token of this kind was created before
// cutoff and never consumed.
func (m *TokenManager) FindStale(ctx context.Context, cutoff time.Time) ([]domain.Account, error) {
	accounts, err := m.Store.Accounts().ListStaleTokens(ctx, m.Kind, cutoff)
	if err != nil {
		return nil, serverError(ctx, "failed to list stale tokens", err)
	}
	return accounts, nil
}
