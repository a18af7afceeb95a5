package midtranswebhook

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/cinerent/cinerent-backend/internal/inventory"
	"github.com/cinerent/cinerent-backend/internal/rentals"
	"github.com/cinerent/cinerent-backend/internal/transactions"
	"github.com/cinerent/cinerent-backend/pkg/db"
	"github.com/cinerent/cinerent-backend/pkg/db/dbtest"
	"github.com/cinerent/cinerent-backend/pkg/db/models"
	"github.com/cinerent/cinerent-backend/pkg/enums"
	pkgerrors "github.com/cinerent/cinerent-backend/pkg/errors"
	"github.com/cinerent/cinerent-backend/pkg/midtrans"
	"github.com/cinerent/cinerent-backend/pkg/outbox"
)

const testServerKey = "SB-Mid-server-test"

type countingMetrics struct {
	outcomes map[string]int
}

func (m *countingMetrics) IncWebhook(outcome string) { m.outcomes[outcome]++ }

type fixture struct {
	db      *gorm.DB
	svc     *Service
	ledger  *inventory.Ledger
	metrics *countingMetrics
	movie   models.Movie
	rental  models.Rental
	txn     models.Transaction
}

// newFixture seeds a rental holding the only copy of a movie and a pending
// bank transfer for it.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	conn := dbtest.Open(t)
	ctx := context.Background()

	user := models.User{Name: "Rina", Email: "rina@example.com", PhoneNumber: "0812", Role: enums.RoleRenter}
	require.NoError(t, conn.Create(&user).Error)
	movie := models.Movie{Title: "Heat", Stock: 1, DailyRentalRate: decimal.NewFromInt(10000)}
	require.NoError(t, conn.Create(&movie).Error)

	ledger, err := inventory.NewLedger(inventory.NewRepository(conn), nil, nil)
	require.NoError(t, err)

	now := time.Now().UTC()
	rental := models.Rental{
		UserID:        user.ID,
		MovieID:       movie.ID,
		RentalDate:    now,
		ReturnDate:    now.AddDate(0, 0, 3),
		TotalPrice:    decimal.NewFromInt(30000),
		PaymentStatus: enums.RentalPaymentPending,
		RentalStatus:  enums.RentalStatusOngoing,
		LateFee:       decimal.Zero,
	}
	require.NoError(t, conn.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&rental).Error; err != nil {
			return err
		}
		_, err := ledger.Reserve(ctx, tx, movie.ID, rental.ID)
		return err
	}))

	txn := models.Transaction{
		UserID:        user.ID,
		RentalID:      rental.ID,
		PaymentMethod: enums.PaymentMethodBankTransfer,
		OrderID:       "RENTAL-1740820200123-0011223344556677",
		GrossAmount:   decimal.NewFromInt(30000),
		Status:        enums.TransactionStatusPending,
		PaymentType:   enums.PaymentTypeRental,
	}
	require.NoError(t, conn.Create(&txn).Error)

	metrics := &countingMetrics{outcomes: map[string]int{}}
	svc, err := NewService(ServiceParams{
		ServerKey:         testServerKey,
		Transactions:      transactions.NewRepository(conn),
		Rentals:           rentals.NewRepository(conn),
		Inventory:         ledger,
		TransactionRunner: db.FromConn(conn),
		Outbox:            outbox.NewService(outbox.NewRepository(conn), nil),
		Metrics:           metrics,
	})
	require.NoError(t, err)

	return &fixture{db: conn, svc: svc, ledger: ledger, metrics: metrics, movie: movie, rental: rental, txn: txn}
}

func (f *fixture) notification(status midtrans.TransactionStatus) midtrans.Notification {
	n := midtrans.Notification{
		OrderID:           f.txn.OrderID,
		StatusCode:        "200",
		GrossAmount:       "30000.00",
		TransactionStatus: string(status),
	}
	if status != midtrans.StatusSettlement {
		n.StatusCode = "202"
	}
	n.SignatureKey = midtrans.Signature(n.OrderID, n.StatusCode, n.GrossAmount, testServerKey)
	return n
}

func (f *fixture) state(t *testing.T) (enums.TransactionStatus, enums.RentalPaymentStatus, int) {
	t.Helper()
	var txn models.Transaction
	require.NoError(t, f.db.First(&txn, "id = ?", f.txn.ID).Error)
	var rental models.Rental
	require.NoError(t, f.db.First(&rental, "id = ?", f.rental.ID).Error)
	var movie models.Movie
	require.NoError(t, f.db.First(&movie, "id = ?", f.movie.ID).Error)
	return txn.Status, rental.PaymentStatus, movie.Stock
}

func (f *fixture) events(t *testing.T) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Model(&models.OutboxEvent{}).Where("aggregate_type = ?", enums.AggregateTransaction).Count(&n).Error)
	return n
}

func TestSettlementMarksTransactionAndRentalPaid(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	outcome, err := f.svc.Handle(ctx, f.notification(midtrans.StatusSettlement))
	require.NoError(t, err)
	assert.Equal(t, OutcomeSettled, outcome)

	txnStatus, rentalStatus, stock := f.state(t)
	assert.Equal(t, enums.TransactionStatusPaid, txnStatus)
	assert.Equal(t, enums.RentalPaymentPaid, rentalStatus)
	assert.Equal(t, 0, stock)
	assert.Equal(t, int64(1), f.events(t))

	outcome, err = f.svc.Handle(ctx, f.notification(midtrans.StatusSettlement))
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoop, outcome)
	assert.Equal(t, int64(1), f.events(t))
}

func TestPaidTransactionIsNeverDowngraded(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Handle(ctx, f.notification(midtrans.StatusSettlement))
	require.NoError(t, err)

	for _, status := range []midtrans.TransactionStatus{midtrans.StatusPending, midtrans.StatusExpire, midtrans.StatusCancel} {
		outcome, err := f.svc.Handle(ctx, f.notification(status))
		require.Error(t, err, status)
		assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict), status)
		assert.Equal(t, OutcomeRejected, outcome)
	}

	txnStatus, rentalStatus, stock := f.state(t)
	assert.Equal(t, enums.TransactionStatusPaid, txnStatus)
	assert.Equal(t, enums.RentalPaymentPaid, rentalStatus)
	assert.Equal(t, 0, stock)
	assert.Equal(t, 3, f.metrics.outcomes[string(OutcomeRejected)])
}

func TestExpireReleasesStockExactlyOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	outcome, err := f.svc.Handle(ctx, f.notification(midtrans.StatusExpire))
	require.NoError(t, err)
	assert.Equal(t, OutcomeFailed, outcome)

	txnStatus, rentalStatus, stock := f.state(t)
	assert.Equal(t, enums.TransactionStatusFailed, txnStatus)
	assert.Equal(t, enums.RentalPaymentCancelled, rentalStatus)
	assert.Equal(t, 1, stock)

	outcome, err = f.svc.Handle(ctx, f.notification(midtrans.StatusExpire))
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoop, outcome)
	outcome, err = f.svc.Handle(ctx, f.notification(midtrans.StatusFailure))
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoop, outcome)

	_, _, stock = f.state(t)
	assert.Equal(t, 1, stock)

	// The copy already came back through the failure path.
	var released bool
	require.NoError(t, f.db.Transaction(func(tx *gorm.DB) error {
		var rerr error
		released, rerr = f.ledger.Release(ctx, tx, inventory.ReleaseInput{
			MovieID:  f.movie.ID,
			RentalID: f.rental.ID,
			Source:   inventory.SourceReturn,
		})
		return rerr
	}))
	assert.False(t, released)
	_, _, stock = f.state(t)
	assert.Equal(t, 1, stock)
}

func TestFailedTransactionRejectsLateSettlement(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Handle(ctx, f.notification(midtrans.StatusCancel))
	require.NoError(t, err)

	_, err = f.svc.Handle(ctx, f.notification(midtrans.StatusSettlement))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))
	_, err = f.svc.Handle(ctx, f.notification(midtrans.StatusPending))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))

	txnStatus, rentalStatus, stock := f.state(t)
	assert.Equal(t, enums.TransactionStatusFailed, txnStatus)
	assert.Equal(t, enums.RentalPaymentCancelled, rentalStatus)
	assert.Equal(t, 1, stock)
}

func TestPendingNotificationIsNoop(t *testing.T) {
	f := newFixture(t)

	outcome, err := f.svc.Handle(context.Background(), f.notification(midtrans.StatusPending))
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoop, outcome)

	txnStatus, rentalStatus, stock := f.state(t)
	assert.Equal(t, enums.TransactionStatusPending, txnStatus)
	assert.Equal(t, enums.RentalPaymentPending, rentalStatus)
	assert.Equal(t, 0, stock)
	assert.Zero(t, f.events(t))
}

func TestInvalidSignatureRejectedBeforeLookup(t *testing.T) {
	f := newFixture(t)

	n := f.notification(midtrans.StatusSettlement)
	n.SignatureKey = midtrans.Signature(n.OrderID, n.StatusCode, n.GrossAmount, "wrong-key")
	_, err := f.svc.Handle(context.Background(), n)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidSig))

	unknown := f.notification(midtrans.StatusSettlement)
	unknown.OrderID = "RENTAL-0-ffffffffffffffff"
	_, err = f.svc.Handle(context.Background(), unknown)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidSig), "signature covers the order id")

	txnStatus, _, _ := f.state(t)
	assert.Equal(t, enums.TransactionStatusPending, txnStatus)
	assert.Equal(t, 2, f.metrics.outcomes["invalid_signature"])
}

func TestUnknownOrderAndStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	missing := midtrans.Notification{OrderID: "RENTAL-0-ffffffffffffffff", StatusCode: "200", GrossAmount: "1.00", TransactionStatus: "settlement"}
	missing.SignatureKey = midtrans.Signature(missing.OrderID, missing.StatusCode, missing.GrossAmount, testServerKey)
	_, err := f.svc.Handle(ctx, missing)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	refund := f.notification("refund")
	_, err = f.svc.Handle(ctx, refund)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))

	txnStatus, rentalStatus, stock := f.state(t)
	assert.Equal(t, enums.TransactionStatusPending, txnStatus)
	assert.Equal(t, enums.RentalPaymentPending, rentalStatus)
	assert.Equal(t, 0, stock)
}

func TestMissingServerKeyIsInternal(t *testing.T) {
	f := newFixture(t)
	f.svc.serverKey = ""

	_, err := f.svc.Handle(context.Background(), f.notification(midtrans.StatusSettlement))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInternal))
}

func TestVerifyChecksSignatureOnly(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.svc.Verify(f.notification(midtrans.StatusSettlement)))

	n := f.notification(midtrans.StatusSettlement)
	n.SignatureKey = "forged"
	err := f.svc.Verify(n)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidSig))
	assert.Equal(t, 1, f.metrics.outcomes["invalid_signature"])

	txnStatus, rentalStatus, _ := f.state(t)
	assert.Equal(t, enums.TransactionStatusPending, txnStatus)
	assert.Equal(t, enums.RentalPaymentPending, rentalStatus)
}

func TestFailureForSettledRentalKeepsStockOut(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// The rental was settled at the counter while the transfer was still open.
	require.NoError(t, f.db.Model(&models.Rental{}).
		Where("id = ?", f.rental.ID).
		Update("payment_status", enums.RentalPaymentPaid).Error)

	outcome, err := f.svc.Handle(ctx, f.notification(midtrans.StatusExpire))
	require.NoError(t, err)
	assert.Equal(t, OutcomeFailed, outcome)

	txnStatus, rentalStatus, stock := f.state(t)
	assert.Equal(t, enums.TransactionStatusFailed, txnStatus)
	assert.Equal(t, enums.RentalPaymentPaid, rentalStatus)
	assert.Equal(t, 0, stock)
	assert.Equal(t, int64(1), f.events(t))

	var releases int64
	require.NoError(t, f.db.Model(&models.StockMovement{}).
		Where("rental_id = ? AND kind = ?", f.rental.ID, enums.StockMovementRelease).
		Count(&releases).Error)
	assert.Zero(t, releases)

	// The return still brings the copy back.
	var released bool
	require.NoError(t, f.db.Transaction(func(tx *gorm.DB) error {
		var rerr error
		released, rerr = f.ledger.Release(ctx, tx, inventory.ReleaseInput{
			MovieID:  f.movie.ID,
			RentalID: f.rental.ID,
			Source:   inventory.SourceReturn,
		})
		return rerr
	}))
	assert.True(t, released)
	_, _, stock = f.state(t)
	assert.Equal(t, 1, stock)
}
