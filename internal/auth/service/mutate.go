package service

import (
	"context"
	"errors"
	"time"

	"github.com/aussiebroadwan/trackr/internal/auth/domain"
	"github.com/aussiebroadwan/trackr/internal/auth/store"
	"github.com/jonboulle/clockwork"
)

// maxSaveAttempts bounds retries of an account update that lost an
// optimistic version race.
const maxSaveAttempts = 3

func clockOrReal(c clockwork.Clock) clockwork.Clock {
	if c == nil {
		return clockwork.NewRealClock()
	}
	return c
}

// mutateAccount re-reads the account inside a transaction, applies fn and,
// when fn asks for it, saves the result with a version check. A lost race
// reruns the whole unit. The error fn returns is handed back after the
// transaction commits, so a failed login can persist its counter and still
// report failure.
func mutateAccount(
	ctx context.Context,
	st store.Store,
	clock clockwork.Clock,
	uuid string,
	fn func(a *domain.Account) (persist bool, outcome error),
) (domain.Account, error) {
	var (
		result  domain.Account
		outcome error
	)

	for attempt := 1; ; attempt++ {
		err := st.WithTx(ctx, func(tx store.Tx) error {
			a, err := tx.Accounts().GetByUUID(ctx, uuid)
			if err != nil {
				return err
			}

			persist, out := fn(&a)
			outcome = out
			if persist {
				a.UpdatedAt = clock.Now().UTC()
				v, err := tx.Accounts().Save(ctx, a)
				if err != nil {
					return err
				}
				a.Version = v
			}
			result = a
			return nil
		})

		if errors.Is(err, store.ErrConflict) && attempt < maxSaveAttempts {
			select {
			case <-ctx.Done():
				return domain.Account{}, ctx.Err()
			case <-time.After(time.Duration(attempt) * 5 * time.Millisecond):
			}
			continue
		}
		if err != nil {
			return domain.Account{}, err
		}
		return result, outcome
	}
}
