package tempmedia

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"
)

// DefaultSweepTimeout bounds one sweep's wall-clock run time.
const DefaultSweepTimeout = 5 * time.Minute

// Sweeper is the cleanup engine. It reclaims expired and processed temp media
// rows together with their blobs, on demand or periodically, and is safe to
// run while uploads and transfers are in flight. Overlapping invocations are
// skipped rather than queued.
type Sweeper struct {
	lifecycle  Service
	transfers  TransferService
	repository Repository
	timeout    time.Duration
	noOverlap  bool
	now        func() time.Time
	running    atomic.Bool
}

// SweeperOption represents a functional option for configuring the sweeper
type SweeperOption func(*Sweeper)

// WithSweepTimeout bounds each sweep; zero disables the bound
func WithSweepTimeout(d time.Duration) SweeperOption {
	return func(s *Sweeper) {
		s.timeout = d
	}
}

// WithOverlapPrevention controls whether concurrent sweeps are skipped
func WithOverlapPrevention(enabled bool) SweeperOption {
	return func(s *Sweeper) {
		s.noOverlap = enabled
	}
}

// WithSweeperClock overrides the time source. Used by tests to control expiry.
func WithSweeperClock(now func() time.Time) SweeperOption {
	return func(s *Sweeper) {
		if now != nil {
			s.now = now
		}
	}
}

// NewSweeper creates a cleanup engine over the lifecycle and transfer
// services. The repository is used directly only for dry-run selection.
func NewSweeper(lifecycle Service, transfers TransferService, repo Repository, options ...SweeperOption) (*Sweeper, error) {
	if lifecycle == nil {
		return nil, errors.New("lifecycle service is required")
	}
	if transfers == nil {
		return nil, errors.New("transfer service is required")
	}
	if repo == nil {
		return nil, errors.New("repository is required")
	}

	s := &Sweeper{
		lifecycle:  lifecycle,
		transfers:  transfers,
		repository: repo,
		timeout:    DefaultSweepTimeout,
		noOverlap:  true,
		now:        func() time.Time { return time.Now().UTC() },
	}

	for _, option := range options {
		option(s)
	}

	return s, nil
}

// Sweep runs one reclamation pass. Exceeding the configured timeout aborts
// the sweep with partial progress; already-deleted records stay deleted.
// When overlap prevention is on and a previous sweep is still running, Sweep
// returns ErrSweepInProgress without touching storage.
func (s *Sweeper) Sweep(ctx context.Context, opts SweepOptions) (*SweepResult, error) {
	if s.noOverlap {
		if !s.running.CompareAndSwap(false, true) {
			return nil, ErrSweepInProgress
		}
		defer s.running.Store(false)
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	if opts.DryRun {
		return s.dryRun(ctx, opts)
	}

	result := &SweepResult{}

	if !opts.ProcessedOnly {
		count, err := s.lifecycle.CleanupExpired(ctx)
		result.ExpiredRemoved = count
		if err != nil {
			return result, err
		}
	}

	if !opts.ExpiredOnly {
		count, err := s.transfers.CleanupProcessed(ctx)
		result.ProcessedRemoved = count
		if err != nil {
			return result, err
		}
	}

	return result, nil
}

// dryRun performs the same selection a real sweep would, without mutating
// storage. Records that are both expired and processed are attributed to the
// expired pass when both passes run, matching what a real sweep would delete
// in each.
func (s *Sweeper) dryRun(ctx context.Context, opts SweepOptions) (*SweepResult, error) {
	result := &SweepResult{DryRun: true}
	now := s.now()

	if !opts.ProcessedOnly {
		expired, err := s.repository.ListExpired(ctx, now)
		if err != nil {
			return result, err
		}
		result.ExpiredRemoved = len(expired)
	}

	if !opts.ExpiredOnly {
		processed, err := s.repository.ListProcessed(ctx)
		if err != nil {
			return result, err
		}
		for _, media := range processed {
			if !opts.ProcessedOnly && media.IsExpired(now) {
				continue
			}
			result.ProcessedRemoved++
		}
	}

	return result, nil
}

// Run executes sweeps at the given interval until ctx is done. Intended to be
// started as a background goroutine when auto-cleanup is enabled.
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			result, err := s.Sweep(ctx, SweepOptions{})
			switch {
			case errors.Is(err, ErrSweepInProgress):
				slog.Warn("Skipping cleanup sweep, previous sweep still running")
			case err != nil:
				slog.Error("Cleanup sweep failed", "err", err)
			default:
				if result.TotalRemoved() > 0 {
					slog.Info("Cleanup sweep completed",
						"expired_removed", result.ExpiredRemoved,
						"processed_removed", result.ProcessedRemoved)
				}
			}
		}
	}
}
