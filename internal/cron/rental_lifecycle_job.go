package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/cinerent/cinerent-backend/internal/rentals"
	"github.com/cinerent/cinerent-backend/pkg/logger"
)

const (
	defaultPendingTTL = 24 * time.Hour
	// maxSweepRounds bounds one run; leftovers roll into the next cycle.
	maxSweepRounds = 50
)

type rentalSweeper interface {
	MarkOverdue(ctx context.Context, now time.Time) (int, error)
	CancelStale(ctx context.Context, cutoff time.Time) (int, error)
}

// RentalLifecycleJobParams configures the overdue and pending-expiry sweeps.
type RentalLifecycleJobParams struct {
	Logger     *logger.Logger
	Rentals    rentalSweeper
	PendingTTL time.Duration
}

func NewRentalLifecycleJob(params RentalLifecycleJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Rentals == nil {
		return nil, fmt.Errorf("rental service required")
	}
	ttl := params.PendingTTL
	if ttl <= 0 {
		ttl = defaultPendingTTL
	}
	return &rentalLifecycleJob{
		logg:       params.Logger,
		rentals:    params.Rentals,
		pendingTTL: ttl,
		now:        time.Now,
	}, nil
}

type rentalLifecycleJob struct {
	logg       *logger.Logger
	rentals    rentalSweeper
	pendingTTL time.Duration
	now        func() time.Time
}

func (j *rentalLifecycleJob) Name() string { return "rental-lifecycle" }

// Run cancels abandoned pending rentals first so their stock is back before
// the overdue pass; a failure in one phase does not skip the other.
func (j *rentalLifecycleJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	return multierr.Combine(
		j.sweep(ctx, "pending-expiry", func() (int, error) {
			return j.rentals.CancelStale(ctx, now.Add(-j.pendingTTL))
		}),
		j.sweep(ctx, "overdue", func() (int, error) {
			return j.rentals.MarkOverdue(ctx, now)
		}),
	)
}

func (j *rentalLifecycleJob) sweep(ctx context.Context, phase string, batch func() (int, error)) error {
	total := 0
	for round := 0; round < maxSweepRounds; round++ {
		n, err := batch()
		if err != nil {
			return fmt.Errorf("%s sweep: %w", phase, err)
		}
		total += n
		if n < rentals.SweepBatchSize {
			break
		}
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{"phase": phase, "count": total})
	j.logg.Info(logCtx, "rental sweep complete")
	return nil
}
