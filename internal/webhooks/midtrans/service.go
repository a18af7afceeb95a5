// Package midtranswebhook reconciles gateway payment notifications with the
// stored transaction, rental and inventory state.
package midtranswebhook

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/cinerent/cinerent-backend/internal/inventory"
	"github.com/cinerent/cinerent-backend/internal/rentals"
	"github.com/cinerent/cinerent-backend/internal/transactions"
	"github.com/cinerent/cinerent-backend/pkg/db/models"
	"github.com/cinerent/cinerent-backend/pkg/enums"
	pkgerrors "github.com/cinerent/cinerent-backend/pkg/errors"
	"github.com/cinerent/cinerent-backend/pkg/logger"
	"github.com/cinerent/cinerent-backend/pkg/midtrans"
	"github.com/cinerent/cinerent-backend/pkg/outbox"
	"github.com/cinerent/cinerent-backend/pkg/outbox/payloads"
)

// Outcome describes what a notification did to local state.
type Outcome string

const (
	OutcomeSettled  Outcome = "settled"
	OutcomeFailed   Outcome = "failed"
	OutcomeNoop     Outcome = "noop"
	OutcomeRejected Outcome = "rejected"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type stockReleaser interface {
	Release(ctx context.Context, tx *gorm.DB, input inventory.ReleaseInput) (bool, error)
}

type metricsRecorder interface {
	IncWebhook(outcome string)
}

type ServiceParams struct {
	ServerKey         string
	Transactions      transactions.Repository
	Rentals           rentals.Repository
	Inventory         stockReleaser
	TransactionRunner txRunner
	Outbox            outbox.Emitter
	Metrics           metricsRecorder
	Logger            *logger.Logger
}

type Service struct {
	serverKey    string
	transactions transactions.Repository
	rentals      rentals.Repository
	inventory    stockReleaser
	txRunner     txRunner
	outbox       outbox.Emitter
	metrics      metricsRecorder
	logg         *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Transactions == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transactions repo required")
	}
	if params.Rentals == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "rentals repo required")
	}
	if params.Inventory == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "inventory ledger required")
	}
	if params.TransactionRunner == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	if params.Outbox == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "outbox emitter required")
	}
	return &Service{
		serverKey:    params.ServerKey,
		transactions: params.Transactions,
		rentals:      params.Rentals,
		inventory:    params.Inventory,
		txRunner:     params.TransactionRunner,
		outbox:       params.Outbox,
		metrics:      params.Metrics,
		logg:         params.Logger,
	}, nil
}

// Handle verifies and applies one notification. Redelivering a notification
// that was already applied is a no-op.
func (s *Service) Handle(ctx context.Context, n midtrans.Notification) (Outcome, error) {
	outcome, err := s.handle(ctx, n)
	if err != nil {
		s.recordRejection(err)
		return OutcomeRejected, err
	}
	s.record(string(outcome))
	return outcome, nil
}

// Verify checks the notification signature without touching stored state.
func (s *Service) Verify(n midtrans.Notification) error {
	if err := s.verify(n); err != nil {
		s.recordRejection(err)
		return err
	}
	return nil
}

func (s *Service) verify(n midtrans.Notification) error {
	if s.serverKey == "" {
		return pkgerrors.New(pkgerrors.CodeInternal, "gateway server key not configured")
	}
	if !midtrans.VerifySignature(n, s.serverKey) {
		return pkgerrors.New(pkgerrors.CodeInvalidSig, "invalid signature")
	}
	return nil
}

func (s *Service) handle(ctx context.Context, n midtrans.Notification) (Outcome, error) {
	if err := s.verify(n); err != nil {
		return "", err
	}
	if s.logg != nil {
		ctx = s.logg.WithOrderID(ctx, n.OrderID)
	}

	status := midtrans.TransactionStatus(n.TransactionStatus)
	var outcome Outcome
	err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		txn, err := s.transactions.WithTx(tx).FindByOrderIDForUpdate(ctx, n.OrderID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "transaction not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load transaction")
		}
		s.checkAmount(ctx, txn, n.GrossAmount)

		outcome, err = s.apply(ctx, tx, txn, status)
		return err
	})
	if err != nil {
		return "", err
	}

	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"transaction_status": n.TransactionStatus,
			"outcome":            string(outcome),
		})
		s.logg.Info(logCtx, "gateway notification reconciled")
	}
	return outcome, nil
}

func (s *Service) apply(ctx context.Context, tx *gorm.DB, txn *models.Transaction, status midtrans.TransactionStatus) (Outcome, error) {
	known := status == midtrans.StatusSettlement || status == midtrans.StatusPending || status.IsTerminalFailure()
	if !known {
		return "", pkgerrors.New(pkgerrors.CodeConflict, "unknown transaction status").
			WithDetails(map[string]any{"transaction_status": string(status)})
	}

	switch txn.Status {
	case enums.TransactionStatusPaid:
		if status == midtrans.StatusSettlement {
			return OutcomeNoop, nil
		}
		return "", pkgerrors.New(pkgerrors.CodeConflict, "cannot downgrade transaction status").
			WithDetails(map[string]any{"current": string(txn.Status), "incoming": string(status)})
	case enums.TransactionStatusFailed:
		if status.IsTerminalFailure() {
			return OutcomeNoop, nil
		}
		return "", pkgerrors.New(pkgerrors.CodeConflict, "transaction already failed").
			WithDetails(map[string]any{"current": string(txn.Status), "incoming": string(status)})
	case enums.TransactionStatusPending:
	default:
		return "", pkgerrors.New(pkgerrors.CodeInternal, "stored transaction has unknown status")
	}

	switch {
	case status == midtrans.StatusSettlement:
		return OutcomeSettled, s.settle(ctx, tx, txn, status)
	case status.IsTerminalFailure():
		return OutcomeFailed, s.fail(ctx, tx, txn, status)
	default:
		return OutcomeNoop, nil
	}
}

func (s *Service) settle(ctx context.Context, tx *gorm.DB, txn *models.Transaction, status midtrans.TransactionStatus) error {
	if err := s.transactions.WithTx(tx).UpdateStatus(ctx, txn.ID, enums.TransactionStatusPaid); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mark transaction paid")
	}
	txn.Status = enums.TransactionStatusPaid

	if txn.PaymentType == enums.PaymentTypeRental {
		rentalRepo := s.rentals.WithTx(tx)
		rental, err := rentalRepo.FindByIDForUpdate(ctx, txn.RentalID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load rental")
		}
		switch rental.PaymentStatus {
		case enums.RentalPaymentPending:
			if err := rentalRepo.Update(ctx, rental.ID, map[string]any{"payment_status": enums.RentalPaymentPaid}); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mark rental paid")
			}
		case enums.RentalPaymentCancelled:
			if s.logg != nil {
				s.logg.Warn(s.logg.WithRentalID(ctx, rental.ID.String()), "settlement received for cancelled rental")
			}
		}
	}
	return s.emit(ctx, tx, enums.EventPaymentSettled, txn, status)
}

func (s *Service) fail(ctx context.Context, tx *gorm.DB, txn *models.Transaction, status midtrans.TransactionStatus) error {
	if err := s.transactions.WithTx(tx).UpdateStatus(ctx, txn.ID, enums.TransactionStatusFailed); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mark transaction failed")
	}
	txn.Status = enums.TransactionStatusFailed

	if txn.PaymentType == enums.PaymentTypeRental {
		rentalRepo := s.rentals.WithTx(tx)
		rental, err := rentalRepo.FindByIDForUpdate(ctx, txn.RentalID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load rental")
		}
		// A rental settled through another payment keeps its copy.
		if rental.PaymentStatus != enums.RentalPaymentPending {
			if s.logg != nil {
				logCtx := s.logg.WithField(s.logg.WithRentalID(ctx, rental.ID.String()), "payment_status", string(rental.PaymentStatus))
				s.logg.Warn(logCtx, "payment failed for rental that is no longer pending")
			}
			return s.emit(ctx, tx, enums.EventPaymentFailed, txn, status)
		}
		if _, err := s.inventory.Release(ctx, tx, inventory.ReleaseInput{
			MovieID:   rental.MovieID,
			RentalID:  rental.ID,
			Reference: txn.OrderID,
			Source:    inventory.SourcePaymentFailure,
		}); err != nil {
			return err
		}
		if err := rentalRepo.Update(ctx, rental.ID, map[string]any{"payment_status": enums.RentalPaymentCancelled}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "cancel rental")
		}
	}
	return s.emit(ctx, tx, enums.EventPaymentFailed, txn, status)
}

// checkAmount warns when the signed amount differs from the stored one.
func (s *Service) checkAmount(ctx context.Context, txn *models.Transaction, raw string) {
	if s.logg == nil || raw == "" {
		return
	}
	amount, err := decimal.NewFromString(raw)
	if err != nil || !amount.Equal(txn.GrossAmount) {
		s.logg.Warn(s.logg.WithField(ctx, "gross_amount", raw), "notification amount differs from stored transaction")
	}
}

func (s *Service) emit(ctx context.Context, tx *gorm.DB, eventType enums.OutboxEventType, txn *models.Transaction, status midtrans.TransactionStatus) error {
	err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateTransaction,
		AggregateID:   txn.ID,
		Data: payloads.PaymentEvent{
			TransactionID: txn.ID,
			RentalID:      txn.RentalID,
			OrderID:       txn.OrderID,
			GrossAmount:   txn.GrossAmount,
			Status:        txn.Status,
			PaymentType:   txn.PaymentType,
			PaymentMethod: txn.PaymentMethod,
			GatewayStatus: string(status),
		},
		OccurredAt: time.Now().UTC(),
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit outbox event")
	}
	return nil
}

func (s *Service) recordRejection(err error) {
	if pkgerrors.IsCode(err, pkgerrors.CodeInvalidSig) {
		s.record("invalid_signature")
		return
	}
	s.record(string(OutcomeRejected))
}

func (s *Service) record(outcome string) {
	if s.metrics != nil {
		s.metrics.IncWebhook(outcome)
	}
}
