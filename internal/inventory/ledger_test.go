package inventory

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/cinerent/cinerent-backend/pkg/db/dbtest"
	"github.com/cinerent/cinerent-backend/pkg/db/models"
	"github.com/cinerent/cinerent-backend/pkg/enums"
	pkgerrors "github.com/cinerent/cinerent-backend/pkg/errors"
)

type recordingMetrics struct {
	mu           sync.Mutex
	reservations map[string]int
	releases     map[bool]int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{reservations: map[string]int{}, releases: map[bool]int{}}
}

func (m *recordingMetrics) IncReservation(outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reservations[outcome]++
}

func (m *recordingMetrics) IncRelease(_ string, applied bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.releases[applied]++
}

func seedMovie(t *testing.T, db *gorm.DB, stock int) models.Movie {
	t.Helper()
	movie := models.Movie{Title: "Heat", Stock: stock, DailyRentalRate: decimal.NewFromInt(10000)}
	require.NoError(t, db.Create(&movie).Error)
	return movie
}

func stockOf(t *testing.T, db *gorm.DB, id uuid.UUID) int {
	t.Helper()
	var movie models.Movie
	require.NoError(t, db.First(&movie, "id = ?", id).Error)
	return movie.Stock
}

func newLedger(t *testing.T, db *gorm.DB) (*Ledger, *recordingMetrics) {
	t.Helper()
	metrics := newRecordingMetrics()
	ledger, err := NewLedger(NewRepository(db), metrics, nil)
	require.NoError(t, err)
	return ledger, metrics
}

func TestReserveDecrementsAndJournals(t *testing.T) {
	db := dbtest.Open(t)
	ledger, metrics := newLedger(t, db)
	movie := seedMovie(t, db, 2)
	rentalID := uuid.New()

	err := db.Transaction(func(tx *gorm.DB) error {
		_, rerr := ledger.Reserve(context.Background(), tx, movie.ID, rentalID)
		return rerr
	})
	require.NoError(t, err)

	assert.Equal(t, 1, stockOf(t, db, movie.ID))
	movements, err := NewRepository(db).ListMovements(context.Background(), rentalID)
	require.NoError(t, err)
	require.Len(t, movements, 1)
	assert.Equal(t, enums.StockMovementReserve, movements[0].Kind)
	assert.Equal(t, 1, metrics.reservations["reserved"])
}

func TestReserveOutOfStockWritesNothing(t *testing.T) {
	db := dbtest.Open(t)
	ledger, metrics := newLedger(t, db)
	movie := seedMovie(t, db, 0)
	rentalID := uuid.New()

	err := db.Transaction(func(tx *gorm.DB) error {
		_, rerr := ledger.Reserve(context.Background(), tx, movie.ID, rentalID)
		return rerr
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeOutOfStock))

	assert.Equal(t, 0, stockOf(t, db, movie.ID))
	var count int64
	require.NoError(t, db.Model(&models.StockMovement{}).Count(&count).Error)
	assert.Zero(t, count)
	assert.Equal(t, 1, metrics.reservations["out_of_stock"])
}

func TestReserveUnknownMovie(t *testing.T) {
	db := dbtest.Open(t)
	ledger, _ := newLedger(t, db)

	err := db.Transaction(func(tx *gorm.DB) error {
		_, rerr := ledger.Reserve(context.Background(), tx, uuid.New(), uuid.New())
		return rerr
	})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestConcurrentReservationsNeverOversell(t *testing.T) {
	db := dbtest.Open(t)
	ledger, _ := newLedger(t, db)
	movie := seedMovie(t, db, 1)

	const attempts = 4
	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = db.Transaction(func(tx *gorm.DB) error {
				_, rerr := ledger.Reserve(context.Background(), tx, movie.ID, uuid.New())
				return rerr
			})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeOutOfStock), "unexpected error: %v", err)
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 0, stockOf(t, db, movie.ID))
}

func TestReleaseAppliesOncePerRental(t *testing.T) {
	db := dbtest.Open(t)
	ledger, metrics := newLedger(t, db)
	movie := seedMovie(t, db, 1)
	rentalID := uuid.New()
	ctx := context.Background()

	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		_, rerr := ledger.Reserve(ctx, tx, movie.ID, rentalID)
		return rerr
	}))
	require.Equal(t, 0, stockOf(t, db, movie.ID))

	sources := []string{SourcePaymentFailure, SourceReturn, SourcePaymentFailure}
	applied := make([]bool, 0, len(sources))
	for _, source := range sources {
		var ok bool
		err := db.Transaction(func(tx *gorm.DB) error {
			var rerr error
			ok, rerr = ledger.Release(ctx, tx, ReleaseInput{
				MovieID:  movie.ID,
				RentalID: rentalID,
				Source:   source,
			})
			return rerr
		})
		require.NoError(t, err)
		applied = append(applied, ok)
	}

	assert.Equal(t, []bool{true, false, false}, applied)
	assert.Equal(t, 1, stockOf(t, db, movie.ID))
	assert.Equal(t, 1, metrics.releases[true])
	assert.Equal(t, 2, metrics.releases[false])
}

func TestReleaseRollsBackWithCallerTransaction(t *testing.T) {
	db := dbtest.Open(t)
	ledger, _ := newLedger(t, db)
	movie := seedMovie(t, db, 0)
	rentalID := uuid.New()
	ctx := context.Background()

	errAbort := pkgerrors.New(pkgerrors.CodeConflict, "abort")
	err := db.Transaction(func(tx *gorm.DB) error {
		if _, err := ledger.Release(ctx, tx, ReleaseInput{MovieID: movie.ID, RentalID: rentalID, Source: SourceReturn}); err != nil {
			return err
		}
		return errAbort
	})
	require.ErrorIs(t, err, errAbort)
	assert.Equal(t, 0, stockOf(t, db, movie.ID))

	var released bool
	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		var rerr error
		released, rerr = ledger.Release(ctx, tx, ReleaseInput{MovieID: movie.ID, RentalID: rentalID, Source: SourceReturn})
		return rerr
	}))
	assert.True(t, released)
	assert.Equal(t, 1, stockOf(t, db, movie.ID))
}

func TestLedgerRequiresTransaction(t *testing.T) {
	db := dbtest.Open(t)
	ledger, _ := newLedger(t, db)

	_, err := ledger.Reserve(context.Background(), nil, uuid.New(), uuid.New())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInternal))

	_, err = ledger.Release(context.Background(), nil, ReleaseInput{MovieID: uuid.New(), RentalID: uuid.New()})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInternal))
}
