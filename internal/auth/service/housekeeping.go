package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/trackr/internal/auth/domain"
	"github.com/aussiebroadwan/trackr/internal/auth/store"
	"github.com/jonboulle/clockwork"
)

// HousekeepingService periodically removes registrations whose
// verification token was never used.
type HousekeepingService struct {
	Verification *TokenManager
	Logger       *slog.Logger
	Clock        clockwork.Clock
	Interval     time.Duration

	// Internal channels for lifecycle management
	stopCh chan struct{}
	doneCh chan struct{}
}

// SweepResult counts the outcome of one pass.
type SweepResult struct {
	Candidates int
	Deleted    int
	// Skipped counts candidates verified or re-sent a token mid-sweep.
	Skipped int
	Failed  int
}

// NewHousekeepingService creates a new housekeeping service with the given interval.
// If interval is 0 or negative, defaults to 1 hour.
func NewHousekeepingService(
	verification *TokenManager,
	logger *slog.Logger,
	clock clockwork.Clock,
	interval time.Duration,
) *HousekeepingService {
	if interval <= 0 {
		interval = 1 * time.Hour
	}

	return &HousekeepingService{
		Verification: verification,
		Logger:       logger,
		Clock:        clockOrReal(clock),
		Interval:     interval,
		stopCh:       make(chan struct{}),
		doneCh:       make(chan struct{}),
	}
}

// Start begins the background worker. Call Stop to shut it down.
func (s *HousekeepingService) Start() {
	go s.run()
	s.Logger.Info("housekeeping service started", "interval", s.Interval)
}

// Stop blocks until any in-progress sweep has finished.
func (s *HousekeepingService) Stop() {
	close(s.stopCh)
	<-s.doneCh
	s.Logger.Info("housekeeping service stopped")
}

func (s *HousekeepingService) run() {
	defer close(s.doneCh)

	ticker := s.Clock.NewTicker(s.Interval)
	defer ticker.Stop()

	// Run cleanup immediately on startup
	s.Sweep(context.Background())

	for {
		select {
		case <-ticker.Chan():
			s.Sweep(context.Background())
		case <-s.stopCh:
			return
		}
	}
}

// Sweep deletes unverified accounts whose verification token is older than
// domain.StaleVerificationWindow. A failure on one account is logged and
// the sweep moves on.
func (s *HousekeepingService) Sweep(ctx context.Context) SweepResult {
	var res SweepResult
	cutoff := s.Clock.Now().Add(-domain.StaleVerificationWindow)

	stale, err := s.Verification.FindStale(ctx, cutoff)
	if err != nil {
		s.Logger.Error("failed to list stale verification tokens", "error", err)
		return res
	}
	res.Candidates = len(stale)

	for _, a := range stale {
		deleted, err := s.purge(ctx, a.UUID, cutoff)
		switch {
		case err != nil:
			res.Failed++
			s.Logger.Error("failed to purge unverified account",
				slog.String("account_uuid", a.UUID), slog.Any("error", err))
		case deleted:
			res.Deleted++
		default:
			res.Skipped++
		}
	}

	s.Logger.Info("housekeeping sweep completed",
		slog.Int("candidates", res.Candidates),
		slog.Int("deleted", res.Deleted),
		slog.Int("skipped", res.Skipped),
		slog.Int("failed", res.Failed),
	)
	return res
}

// purge re-reads the account and deletes it in one transaction. An account
// that was verified or sent a fresh token since it was listed is kept.
func (s *HousekeepingService) purge(ctx context.Context, uuid string, cutoff time.Time) (bool, error) {
	var deleted bool
	err := s.Verification.Store.WithTx(ctx, func(tx store.Tx) error {
		current, err := tx.Accounts().GetByUUID(ctx, uuid)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil
			}
			return err
		}

		t := current.Slot(s.Verification.Kind)
		if current.Verified || t == nil || !t.CreatedAt.Before(cutoff) {
			return nil
		}

		err = tx.Accounts().DeleteUnverified(ctx, uuid)
		switch {
		case errors.Is(err, store.ErrNotFound):
			return nil
		case err != nil:
			return err
		}
		deleted = true
		return nil
	})
	return deleted, err
}
