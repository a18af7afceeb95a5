package rentals

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/cinerent/cinerent-backend/internal/inventory"
	"github.com/cinerent/cinerent-backend/pkg/auth"
	"github.com/cinerent/cinerent-backend/pkg/db/models"
	"github.com/cinerent/cinerent-backend/pkg/enums"
	pkgerrors "github.com/cinerent/cinerent-backend/pkg/errors"
	"github.com/cinerent/cinerent-backend/pkg/logger"
	"github.com/cinerent/cinerent-backend/pkg/outbox"
	"github.com/cinerent/cinerent-backend/pkg/outbox/payloads"
	"github.com/cinerent/cinerent-backend/pkg/pagination"
)

// SweepBatchSize caps the rentals a single lifecycle sweep locks and updates.
const SweepBatchSize = 200

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// StockLedger is the slice of the inventory ledger rentals depend on.
type StockLedger interface {
	Reserve(ctx context.Context, tx *gorm.DB, movieID, rentalID uuid.UUID) (*models.Movie, error)
	Release(ctx context.Context, tx *gorm.DB, input inventory.ReleaseInput) (bool, error)
}

type userFinder interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

type transactionLister interface {
	ListByRental(ctx context.Context, rentalID uuid.UUID) ([]models.Transaction, error)
}

// Service runs the rental lifecycle.
type Service interface {
	Create(ctx context.Context, actor auth.Actor, input CreateInput) (*models.Rental, error)
	Return(ctx context.Context, actor auth.Actor, rentalID uuid.UUID, input ReturnInput) (*models.Rental, error)
	Get(ctx context.Context, actor auth.Actor, rentalID uuid.UUID) (*Detail, error)
	List(ctx context.Context, actor auth.Actor, params ListParams) (*ListResult, error)
	ListHistory(ctx context.Context, actor auth.Actor, params ListParams) (*ListResult, error)
	ListOverdue(ctx context.Context, actor auth.Actor, params ListParams) (*ListResult, error)
	MarkOverdue(ctx context.Context, now time.Time) (int, error)
	CancelStale(ctx context.Context, cutoff time.Time) (int, error)
}

// ServiceParams wires the rental service.
type ServiceParams struct {
	Repo          Repository
	Transactions  transactionLister
	Users         userFinder
	Inventory     StockLedger
	Tx            txRunner
	Outbox        outbox.Emitter
	Logger        *logger.Logger
	LateFeePerDay int64
	Now           func() time.Time
}

type service struct {
	repo          Repository
	transactions  transactionLister
	users         userFinder
	inventory     StockLedger
	tx            txRunner
	outbox        outbox.Emitter
	logg          *logger.Logger
	lateFeePerDay int64
	now           func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "rentals repository required")
	}
	if params.Transactions == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transactions repository required")
	}
	if params.Users == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "users repository required")
	}
	if params.Inventory == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "inventory ledger required")
	}
	if params.Tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	if params.Outbox == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "outbox emitter required")
	}
	if params.LateFeePerDay <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "late fee per day must be positive")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		repo:          params.Repo,
		transactions:  params.Transactions,
		users:         params.Users,
		inventory:     params.Inventory,
		tx:            params.Tx,
		outbox:        params.Outbox,
		logg:          params.Logger,
		lateFeePerDay: params.LateFeePerDay,
		now:           now,
	}, nil
}

func (s *service) Create(ctx context.Context, actor auth.Actor, input CreateInput) (*models.Rental, error) {
	if input.UserID == uuid.Nil {
		input.UserID = actor.UserID
	}
	if input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	if input.MovieID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "movie id required")
	}
	if input.RentalDays <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "rental days must be positive")
	}
	if !actor.CanAccess(input.UserID) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "renters may only rent for themselves")
	}
	if _, err := s.users.FindByID(ctx, input.UserID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load user")
	}

	rentalDate := s.now().UTC()
	rental := &models.Rental{
		ID:            uuid.New(),
		UserID:        input.UserID,
		MovieID:       input.MovieID,
		RentalDate:    rentalDate,
		ReturnDate:    DueDate(rentalDate, input.RentalDays),
		PaymentStatus: enums.RentalPaymentPending,
		RentalStatus:  enums.RentalStatusOngoing,
		LateFee:       decimal.Zero,
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		movie, err := s.inventory.Reserve(ctx, tx, input.MovieID, rental.ID)
		if err != nil {
			return err
		}
		rental.TotalPrice = TotalPrice(movie.DailyRentalRate, input.RentalDays)

		if err := s.repo.WithTx(tx).Create(ctx, rental); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create rental")
		}

		return s.emit(ctx, tx, actor, rental.ID, enums.EventRentalCreated, payloads.RentalCreatedEvent{
			RentalID:   rental.ID,
			UserID:     rental.UserID,
			MovieID:    rental.MovieID,
			RentalDays: input.RentalDays,
			TotalPrice: rental.TotalPrice,
			ReturnDate: rental.ReturnDate,
		})
	})
	if err != nil {
		return nil, err
	}

	if s.logg != nil {
		logCtx := s.logg.WithRentalID(ctx, rental.ID.String())
		s.logg.Info(logCtx, "rental created")
	}
	return rental, nil
}

func (s *service) Return(ctx context.Context, actor auth.Actor, rentalID uuid.UUID, input ReturnInput) (*models.Rental, error) {
	if rentalID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "rental id required")
	}
	if input.ReturnedAt == nil && input.RentalStatus == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "returned_at or rental_status required")
	}
	if input.RentalStatus != nil && !input.RentalStatus.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid rental status")
	}
	if input.ReturnedAt == nil && *input.RentalStatus == enums.RentalStatusReturned {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "returned_at required to mark a rental returned")
	}
	if !actor.IsAdmin() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only admins may update rentals")
	}

	var updated *models.Rental
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		rental, err := repo.FindByIDForUpdate(ctx, rentalID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "rental not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load rental")
		}
		if rental.ReturnedAt != nil {
			return pkgerrors.New(pkgerrors.CodeConflict, "rental already returned")
		}

		if input.ReturnedAt == nil {
			if err := repo.Update(ctx, rental.ID, map[string]any{"rental_status": *input.RentalStatus}); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update rental status")
			}
			rental.RentalStatus = *input.RentalStatus
			updated = rental
			return nil
		}

		returnedAt := input.ReturnedAt.UTC()
		status := enums.RentalStatusReturned
		if input.RentalStatus != nil {
			status = *input.RentalStatus
		}
		lateFee := rental.LateFee
		if returnedAt.After(rental.ReturnDate) {
			lateFee = LateFee(rental.ReturnDate, returnedAt, s.lateFeePerDay)
		}

		released, err := s.inventory.Release(ctx, tx, inventory.ReleaseInput{
			MovieID:   rental.MovieID,
			RentalID:  rental.ID,
			Reference: "return",
			Source:    inventory.SourceReturn,
		})
		if err != nil {
			return err
		}

		if err := repo.Update(ctx, rental.ID, map[string]any{
			"returned_at":   returnedAt,
			"late_fee":      lateFee,
			"rental_status": status,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "record return")
		}
		rental.ReturnedAt = &returnedAt
		rental.LateFee = lateFee
		rental.RentalStatus = status
		updated = rental

		return s.emit(ctx, tx, actor, rental.ID, enums.EventRentalReturned, payloads.RentalReturnedEvent{
			RentalID:     rental.ID,
			MovieID:      rental.MovieID,
			ReturnedAt:   returnedAt,
			RentalStatus: status,
			LateFee:      lateFee,
			StockRelease: released,
		})
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *service) Get(ctx context.Context, actor auth.Actor, rentalID uuid.UUID) (*Detail, error) {
	if rentalID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "rental id required")
	}
	rental, err := s.repo.FindByID(ctx, rentalID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "rental not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load rental")
	}
	// Renters get NotFound for other users' rentals so ids cannot be enumerated.
	if !actor.CanAccess(rental.UserID) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "rental not found")
	}
	txns, err := s.transactions.ListByRental(ctx, rental.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load transactions")
	}
	return &Detail{Rental: *rental, Transactions: txns}, nil
}

func (s *service) List(ctx context.Context, actor auth.Actor, params ListParams) (*ListResult, error) {
	if !actor.IsAdmin() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only admins may list all rentals")
	}
	return s.list(ctx, params, nil)
}

func (s *service) ListHistory(ctx context.Context, actor auth.Actor, params ListParams) (*ListResult, error) {
	if actor.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	userID := actor.UserID
	return s.list(ctx, params, &userID)
}

func (s *service) ListOverdue(ctx context.Context, actor auth.Actor, params ListParams) (*ListResult, error) {
	if !actor.IsAdmin() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only admins may list overdue rentals")
	}
	overdue := enums.RentalStatusOverdue
	params.RentalStatus = &overdue
	return s.list(ctx, params, nil)
}

func (s *service) list(ctx context.Context, params ListParams, userID *uuid.UUID) (*ListResult, error) {
	if params.RentalStatus != nil && !params.RentalStatus.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid rental status")
	}
	if params.From != nil && params.To != nil && params.From.After(*params.To) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "start date must not be after end date")
	}
	query := listQuery{
		UserID:       userID,
		RentalStatus: params.RentalStatus,
		Title:        params.Title,
		From:         params.From,
		To:           params.To,
		Limit:        params.Limit,
	}
	if params.Cursor != "" {
		cursor, err := pagination.ParseCursor(params.Cursor)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		query.Cursor = cursor
	}

	rows, next, err := s.repo.List(ctx, query)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list rentals")
	}
	result := &ListResult{Rentals: rows}
	if next != nil {
		result.NextCursor = pagination.EncodeCursor(*next)
	}
	return result, nil
}

// MarkOverdue flags unreturned rentals whose due date has passed.
func (s *service) MarkOverdue(ctx context.Context, now time.Time) (int, error) {
	marked := 0
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		rows, err := repo.FindOverdueForUpdate(ctx, now, SweepBatchSize)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "find overdue rentals")
		}
		for _, rental := range rows {
			if err := repo.Update(ctx, rental.ID, map[string]any{"rental_status": enums.RentalStatusOverdue}); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mark rental overdue")
			}
			if err := s.emit(ctx, tx, auth.SystemActor, rental.ID, enums.EventRentalOverdue, payloads.RentalOverdueEvent{
				RentalID:   rental.ID,
				UserID:     rental.UserID,
				ReturnDate: rental.ReturnDate,
			}); err != nil {
				return err
			}
			marked++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return marked, nil
}

// CancelStale cancels unpaid rentals older than cutoff that have no payment in
// flight and gives their copy back.
func (s *service) CancelStale(ctx context.Context, cutoff time.Time) (int, error) {
	cancelled := 0
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		rows, err := repo.FindStalePendingForUpdate(ctx, cutoff, SweepBatchSize)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "find stale rentals")
		}
		for _, rental := range rows {
			if _, err := s.inventory.Release(ctx, tx, inventory.ReleaseInput{
				MovieID:   rental.MovieID,
				RentalID:  rental.ID,
				Reference: "pending-ttl",
				Source:    inventory.SourcePendingExpiry,
			}); err != nil {
				return err
			}
			if err := repo.Update(ctx, rental.ID, map[string]any{"payment_status": enums.RentalPaymentCancelled}); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "cancel rental")
			}
			if err := s.emit(ctx, tx, auth.SystemActor, rental.ID, enums.EventRentalCancelled, payloads.RentalCancelledEvent{
				RentalID: rental.ID,
				MovieID:  rental.MovieID,
				Reason:   "payment not started before expiry",
			}); err != nil {
				return err
			}
			cancelled++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return cancelled, nil
}

func (s *service) emit(ctx context.Context, tx *gorm.DB, actor auth.Actor, rentalID uuid.UUID, eventType enums.OutboxEventType, data any) error {
	event := outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateRental,
		AggregateID:   rentalID,
		Actor:         actorRef(actor),
		Data:          data,
		OccurredAt:    s.now().UTC(),
	}
	if err := s.outbox.Emit(ctx, tx, event); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit outbox event")
	}
	return nil
}

func actorRef(actor auth.Actor) *outbox.ActorRef {
	if actor.UserID == uuid.Nil && actor.Role == "" {
		return nil
	}
	return &outbox.ActorRef{UserID: actor.UserID, Role: string(actor.Role)}
}
