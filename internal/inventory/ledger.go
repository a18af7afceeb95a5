// Package inventory keeps movie stock consistent with active rentals. Stock is
// only changed inside a caller-owned transaction, after the movie row lock has
// been taken, and every change is journaled per rental.
package inventory

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/cinerent/cinerent-backend/pkg/db/models"
	"github.com/cinerent/cinerent-backend/pkg/enums"
	pkgerrors "github.com/cinerent/cinerent-backend/pkg/errors"
	"github.com/cinerent/cinerent-backend/pkg/logger"
)

// Release sources label why stock came back.
const (
	SourceReturn         = "return"
	SourcePaymentFailure = "payment_failure"
	SourcePendingExpiry  = "pending_expiry"
)

type metricsRecorder interface {
	IncReservation(outcome string)
	IncRelease(source string, applied bool)
}

// ReleaseInput identifies the reservation being returned to stock.
type ReleaseInput struct {
	MovieID   uuid.UUID
	RentalID  uuid.UUID
	Reference string
	Source    string
}

// Ledger reserves and releases single copies of a movie.
type Ledger struct {
	repo    Repository
	metrics metricsRecorder
	logg    *logger.Logger
}

// NewLedger wires the ledger. metrics and logg may be nil.
func NewLedger(repo Repository, metrics metricsRecorder, logg *logger.Logger) (*Ledger, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "inventory repository required")
	}
	return &Ledger{repo: repo, metrics: metrics, logg: logg}, nil
}

// Reserve takes one copy of movieID for rentalID and returns the locked movie
// row as read before the decrement. It fails with NotFound for an unknown movie
// and OutOfStock when no copies are left; nothing is written in either case.
func (l *Ledger) Reserve(ctx context.Context, tx *gorm.DB, movieID, rentalID uuid.UUID) (*models.Movie, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction required for inventory reserve")
	}
	repo := l.repo.WithTx(tx)

	movie, err := repo.FindMovieForUpdate(ctx, movieID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			l.recordReservation("not_found")
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "movie not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lock movie")
	}
	if movie.Stock <= 0 {
		l.recordReservation("out_of_stock")
		return nil, outOfStock(movieID)
	}

	decremented, err := repo.DecrementStock(ctx, movieID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decrement stock")
	}
	if !decremented {
		l.recordReservation("out_of_stock")
		return nil, outOfStock(movieID)
	}

	inserted, err := repo.InsertMovement(ctx, movementFor(movieID, rentalID, enums.StockMovementReserve, rentalID.String()))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "journal reservation")
	}
	if !inserted {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "rental already holds a reservation")
	}

	l.recordReservation("reserved")
	if l.logg != nil {
		logCtx := l.logg.WithFields(ctx, map[string]any{
			"movie_id":        movieID.String(),
			"rental_id":       rentalID.String(),
			"remaining_stock": movie.Stock - 1,
		})
		l.logg.Debug(logCtx, "stock reserved")
	}
	return movie, nil
}

// Release gives the rental's copy back. Only the first release per rental
// changes stock; later calls return false and leave stock untouched, whatever
// triggered them.
func (l *Ledger) Release(ctx context.Context, tx *gorm.DB, input ReleaseInput) (bool, error) {
	if tx == nil {
		return false, pkgerrors.New(pkgerrors.CodeInternal, "transaction required for inventory release")
	}
	if input.MovieID == uuid.Nil || input.RentalID == uuid.Nil {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "movie id and rental id required")
	}
	repo := l.repo.WithTx(tx)

	if _, err := repo.FindMovieForUpdate(ctx, input.MovieID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, pkgerrors.New(pkgerrors.CodeNotFound, "movie not found")
		}
		return false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lock movie")
	}

	reference := input.Reference
	if reference == "" {
		reference = input.Source
	}
	inserted, err := repo.InsertMovement(ctx, movementFor(input.MovieID, input.RentalID, enums.StockMovementRelease, reference))
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "journal release")
	}
	if !inserted {
		l.recordRelease(input.Source, false)
		if l.logg != nil {
			logCtx := l.logg.WithRentalID(ctx, input.RentalID.String())
			l.logg.Debug(logCtx, "stock already released")
		}
		return false, nil
	}

	if err := repo.IncrementStock(ctx, input.MovieID); err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "increment stock")
	}
	l.recordRelease(input.Source, true)
	if l.logg != nil {
		logCtx := l.logg.WithFields(ctx, map[string]any{
			"movie_id":  input.MovieID.String(),
			"rental_id": input.RentalID.String(),
			"source":    input.Source,
		})
		l.logg.Debug(logCtx, "stock released")
	}
	return true, nil
}

func (l *Ledger) recordReservation(outcome string) {
	if l.metrics != nil {
		l.metrics.IncReservation(outcome)
	}
}

func (l *Ledger) recordRelease(source string, applied bool) {
	if l.metrics != nil {
		l.metrics.IncRelease(source, applied)
	}
}

func outOfStock(movieID uuid.UUID) error {
	return pkgerrors.New(pkgerrors.CodeOutOfStock, "movie is out of stock").
		WithDetails(map[string]any{"movie_id": movieID.String()})
}
