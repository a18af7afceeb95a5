package payments

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/cinerent/cinerent-backend/internal/rentals"
	"github.com/cinerent/cinerent-backend/internal/transactions"
	"github.com/cinerent/cinerent-backend/pkg/auth"
	"github.com/cinerent/cinerent-backend/pkg/db"
	"github.com/cinerent/cinerent-backend/pkg/db/models"
	"github.com/cinerent/cinerent-backend/pkg/enums"
	pkgerrors "github.com/cinerent/cinerent-backend/pkg/errors"
	"github.com/cinerent/cinerent-backend/pkg/logger"
	"github.com/cinerent/cinerent-backend/pkg/midtrans"
	"github.com/cinerent/cinerent-backend/pkg/outbox"
	"github.com/cinerent/cinerent-backend/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Gateway creates bank transfer charges.
type Gateway interface {
	ChargeBankTransfer(ctx context.Context, req midtrans.ChargeRequest) (*midtrans.ChargeResponse, error)
}

type userFinder interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

type movieFinder interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Movie, error)
}

type metricsRecorder interface {
	ObserveGatewayCharge(outcome string, d time.Duration)
}

// PayInput starts a bank transfer for a rental.
type PayInput struct {
	RentalID uuid.UUID
	Bank     enums.Bank
}

// LateFeeInput settles the outstanding late fee of a rental. UserID defaults
// to the rental's renter.
type LateFeeInput struct {
	RentalID      uuid.UUID
	UserID        uuid.UUID
	PaymentMethod enums.PaymentMethod
}

// Service orchestrates rental payments.
type Service interface {
	ProcessPayment(ctx context.Context, actor auth.Actor, input PayInput) (*midtrans.ChargeResponse, error)
	ProcessCashPayment(ctx context.Context, actor auth.Actor, rentalID uuid.UUID) (*models.Transaction, error)
	ProcessLateFeePayment(ctx context.Context, actor auth.Actor, input LateFeeInput) (*models.Transaction, error)
}

type ServiceParams struct {
	Rentals      rentals.Repository
	Transactions transactions.Repository
	Users        userFinder
	Movies       movieFinder
	Gateway      Gateway
	Tx           txRunner
	Outbox       outbox.Emitter
	Metrics      metricsRecorder
	Logger       *logger.Logger
	Now          func() time.Time
}

type service struct {
	rentals      rentals.Repository
	transactions transactions.Repository
	users        userFinder
	movies       movieFinder
	gateway      Gateway
	tx           txRunner
	outbox       outbox.Emitter
	metrics      metricsRecorder
	logg         *logger.Logger
	now          func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	switch {
	case params.Rentals == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "rentals repository required")
	case params.Transactions == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transactions repository required")
	case params.Users == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "users repository required")
	case params.Movies == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "movies repository required")
	case params.Gateway == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payment gateway required")
	case params.Tx == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	case params.Outbox == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "outbox emitter required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		rentals:      params.Rentals,
		transactions: params.Transactions,
		users:        params.Users,
		movies:       params.Movies,
		gateway:      params.Gateway,
		tx:           params.Tx,
		outbox:       params.Outbox,
		metrics:      params.Metrics,
		logg:         params.Logger,
		now:          now,
	}, nil
}

// ProcessPayment opens a bank transfer charge for a pending rental. The
// gateway is called outside any database transaction and the pending
// transaction row is only written once the charge succeeded, after the rental
// lock confirms no other payment was recorded in between.
func (s *service) ProcessPayment(ctx context.Context, actor auth.Actor, input PayInput) (*midtrans.ChargeResponse, error) {
	if input.RentalID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "rental id required")
	}
	if !input.Bank.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "bank must be one of bca, bni, bri")
	}

	rental, err := s.rentals.FindByID(ctx, input.RentalID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "rental not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load rental")
	}
	if !actor.CanAccess(rental.UserID) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "rental not found")
	}
	if rental.PaymentStatus != enums.RentalPaymentPending {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "payment already processed")
	}
	inFlight, err := s.transactions.HasPendingForRental(ctx, rental.ID, enums.PaymentTypeRental)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "check pending payments")
	}
	if inFlight {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "payment already in progress")
	}

	user, err := s.users.FindByID(ctx, rental.UserID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load renter")
	}
	movie, err := s.movies.FindByID(ctx, rental.MovieID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load movie")
	}

	orderID, err := NewOrderID(PrefixRental, s.now())
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate order id")
	}
	ctx = s.withOrder(ctx, rental.ID, orderID)

	amount := rental.TotalPrice.Round(0).IntPart()
	charge, err := s.charge(ctx, midtrans.ChargeRequest{
		PaymentType: "bank_transfer",
		TransactionDetails: midtrans.TransactionDetails{
			OrderID:     orderID,
			GrossAmount: amount,
		},
		ItemDetails: []midtrans.ItemDetail{{
			ID:       movie.ID.String(),
			Name:     movie.Title,
			Price:    amount,
			Quantity: 1,
		}},
		CustomerDetails: &midtrans.CustomerDetails{
			FirstName: user.Name,
			Email:     user.Email,
			Phone:     user.PhoneNumber,
		},
		BankTransfer: midtrans.BankTransfer{Bank: input.Bank.String()},
	})
	if err != nil {
		return nil, err
	}

	txn := &models.Transaction{
		UserID:        rental.UserID,
		RentalID:      rental.ID,
		PaymentMethod: enums.PaymentMethodBankTransfer,
		OrderID:       orderID,
		GrossAmount:   decimal.NewFromInt(amount),
		Status:        enums.TransactionStatusPending,
		PaymentType:   enums.PaymentTypeRental,
	}
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		txnRepo := s.transactions.WithTx(tx)

		// Concurrent requests may have charged the same rental meanwhile.
		locked, err := lockRental(ctx, s.rentals.WithTx(tx), rental.ID)
		if err != nil {
			return err
		}
		if locked.PaymentStatus != enums.RentalPaymentPending {
			return pkgerrors.New(pkgerrors.CodeConflict, "payment already processed")
		}
		inFlight, err := txnRepo.HasPendingForRental(ctx, rental.ID, enums.PaymentTypeRental)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "check pending payments")
		}
		if inFlight {
			return pkgerrors.New(pkgerrors.CodeConflict, "payment already in progress")
		}

		if _, err := txnRepo.Create(ctx, txn); err != nil {
			if db.IsUniqueViolation(err, "") {
				return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "payment already in progress")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "record payment")
		}
		return s.emit(ctx, tx, actor, enums.EventPaymentStarted, txn, string(midtrans.StatusPending))
	})
	if err != nil {
		if s.logg != nil {
			// The charge exists at the gateway without a local row; its
			// notifications will be rejected as unknown orders.
			s.logg.Error(ctx, "charge created but payment could not be recorded", err)
		}
		return nil, err
	}

	if s.logg != nil {
		s.logg.Info(ctx, "payment started")
	}
	return charge, nil
}

func (s *service) charge(ctx context.Context, req midtrans.ChargeRequest) (*midtrans.ChargeResponse, error) {
	started := time.Now()
	resp, err := s.gateway.ChargeBankTransfer(ctx, req)
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	if s.metrics != nil {
		s.metrics.ObserveGatewayCharge(outcome, time.Since(started))
	}
	if err != nil {
		if s.logg != nil {
			s.logg.Warn(ctx, "gateway charge failed: "+err.Error())
		}
		if pkgerrors.IsCode(err, pkgerrors.CodeDependency) {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "payment gateway unavailable")
	}
	return resp, nil
}

// ProcessCashPayment settles a pending rental paid at the counter.
func (s *service) ProcessCashPayment(ctx context.Context, actor auth.Actor, rentalID uuid.UUID) (*models.Transaction, error) {
	if rentalID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "rental id required")
	}
	if !actor.IsAdmin() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only admins may record cash payments")
	}

	var txn *models.Transaction
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		rentalRepo := s.rentals.WithTx(tx)
		txnRepo := s.transactions.WithTx(tx)

		rental, err := lockRental(ctx, rentalRepo, rentalID)
		if err != nil {
			return err
		}
		if rental.PaymentStatus != enums.RentalPaymentPending {
			return pkgerrors.New(pkgerrors.CodeConflict, "payment already processed")
		}
		inFlight, err := txnRepo.HasPendingForRental(ctx, rental.ID, enums.PaymentTypeRental)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "check pending payments")
		}
		if inFlight {
			return pkgerrors.New(pkgerrors.CodeConflict, "payment already in progress")
		}

		orderID, err := NewOrderID(PrefixCash, s.now())
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate order id")
		}
		txn = &models.Transaction{
			UserID:        rental.UserID,
			RentalID:      rental.ID,
			PaymentMethod: enums.PaymentMethodCash,
			OrderID:       orderID,
			GrossAmount:   rental.TotalPrice,
			Status:        enums.TransactionStatusPaid,
			PaymentType:   enums.PaymentTypeRental,
		}
		if _, err := txnRepo.Create(ctx, txn); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "record cash payment")
		}
		if err := rentalRepo.Update(ctx, rental.ID, map[string]any{"payment_status": enums.RentalPaymentPaid}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mark rental paid")
		}
		return s.emit(ctx, tx, actor, enums.EventPaymentSettled, txn, "")
	})
	if err != nil {
		return nil, err
	}
	return txn, nil
}

// ProcessLateFeePayment records a paid late-fee transaction and clears the
// fee in the same database transaction.
func (s *service) ProcessLateFeePayment(ctx context.Context, actor auth.Actor, input LateFeeInput) (*models.Transaction, error) {
	if input.RentalID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "rental id required")
	}
	if !input.PaymentMethod.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid payment method")
	}
	if !actor.IsAdmin() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only admins may record late fee payments")
	}

	var txn *models.Transaction
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		rentalRepo := s.rentals.WithTx(tx)

		rental, err := lockRental(ctx, rentalRepo, input.RentalID)
		if err != nil {
			return err
		}
		if !rental.LateFee.IsPositive() {
			return pkgerrors.New(pkgerrors.CodeConflict, "no late fee outstanding")
		}
		userID := input.UserID
		if userID == uuid.Nil {
			userID = rental.UserID
		}
		if userID != rental.UserID {
			return pkgerrors.New(pkgerrors.CodeValidation, "user does not own the rental")
		}

		orderID, err := NewOrderID(PrefixLateFee, s.now())
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate order id")
		}
		txn = &models.Transaction{
			UserID:        userID,
			RentalID:      rental.ID,
			PaymentMethod: input.PaymentMethod,
			OrderID:       orderID,
			GrossAmount:   rental.LateFee,
			Status:        enums.TransactionStatusPaid,
			PaymentType:   enums.PaymentTypeLateFee,
		}
		if _, err := s.transactions.WithTx(tx).Create(ctx, txn); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "record late fee payment")
		}
		if err := rentalRepo.Update(ctx, rental.ID, map[string]any{"late_fee": decimal.Zero}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "clear late fee")
		}
		return s.emit(ctx, tx, actor, enums.EventLateFeePaid, txn, "")
	})
	if err != nil {
		return nil, err
	}
	return txn, nil
}

func lockRental(ctx context.Context, repo rentals.Repository, id uuid.UUID) (*models.Rental, error) {
	rental, err := repo.FindByIDForUpdate(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "rental not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load rental")
	}
	return rental, nil
}

func (s *service) withOrder(ctx context.Context, rentalID uuid.UUID, orderID string) context.Context {
	if s.logg == nil {
		return ctx
	}
	ctx = s.logg.WithRentalID(ctx, rentalID.String())
	return s.logg.WithOrderID(ctx, orderID)
}

func (s *service) emit(ctx context.Context, tx *gorm.DB, actor auth.Actor, eventType enums.OutboxEventType, txn *models.Transaction, gatewayStatus string) error {
	event := outbox.DomainEvent{
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
			GatewayStatus: gatewayStatus,
		},
		OccurredAt: s.now().UTC(),
	}
	if actor.UserID != uuid.Nil {
		event.Actor = &outbox.ActorRef{UserID: actor.UserID, Role: string(actor.Role)}
	}
	if err := s.outbox.Emit(ctx, tx, event); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit outbox event")
	}
	return nil
}
