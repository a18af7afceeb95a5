package transactions

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/cinerent/cinerent-backend/pkg/auth"
	"github.com/cinerent/cinerent-backend/pkg/db/models"
	"github.com/cinerent/cinerent-backend/pkg/enums"
	pkgerrors "github.com/cinerent/cinerent-backend/pkg/errors"
	"github.com/cinerent/cinerent-backend/pkg/pagination"
)

// ListParams filters transaction listings. OrderID and Name match substrings;
// Name is the payer's name.
type ListParams struct {
	Status      *enums.TransactionStatus
	PaymentType *enums.PaymentType
	OrderID     string
	Name        string
	From        *time.Time
	To          *time.Time
	pagination.Params
}

// ListResult is one page of transactions, newest first.
type ListResult struct {
	Transactions []models.Transaction
	NextCursor   string
}

// Service is the read side of payment attempts.
type Service interface {
	Get(ctx context.Context, actor auth.Actor, id uuid.UUID) (*models.Transaction, error)
	List(ctx context.Context, actor auth.Actor, params ListParams) (*ListResult, error)
	ListHistory(ctx context.Context, actor auth.Actor, params ListParams) (*ListResult, error)
}

type service struct {
	repo Repository
}

func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transactions repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) Get(ctx context.Context, actor auth.Actor, id uuid.UUID) (*models.Transaction, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transaction id required")
	}
	txn, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "transaction not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load transaction")
	}
	if !actor.CanAccess(txn.UserID) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "transaction not found")
	}
	return txn, nil
}

func (s *service) List(ctx context.Context, actor auth.Actor, params ListParams) (*ListResult, error) {
	if !actor.IsAdmin() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only admins may list all transactions")
	}
	return s.list(ctx, params, nil)
}

// ListHistory pages through the actor's own payments.
func (s *service) ListHistory(ctx context.Context, actor auth.Actor, params ListParams) (*ListResult, error) {
	if actor.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	userID := actor.UserID
	return s.list(ctx, params, &userID)
}

func (s *service) list(ctx context.Context, params ListParams, userID *uuid.UUID) (*ListResult, error) {
	if params.Status != nil && !params.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid transaction status")
	}
	if params.PaymentType != nil && !params.PaymentType.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid payment type")
	}
	if params.From != nil && params.To != nil && params.From.After(*params.To) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "start date must not be after end date")
	}
	query := listQuery{
		UserID:      userID,
		Status:      params.Status,
		PaymentType: params.PaymentType,
		OrderID:     params.OrderID,
		Name:        params.Name,
		From:        params.From,
		To:          params.To,
		Limit:       params.Limit,
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
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list transactions")
	}
	result := &ListResult{Transactions: rows}
	if next != nil {
		result.NextCursor = pagination.EncodeCursor(*next)
	}
	return result, nil
}
