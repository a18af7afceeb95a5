package transactions

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/cinerent/cinerent-backend/api/middleware"
	"github.com/cinerent/cinerent-backend/api/responses"
	"github.com/cinerent/cinerent-backend/api/validators"
	internaltransactions "github.com/cinerent/cinerent-backend/internal/transactions"
	"github.com/cinerent/cinerent-backend/pkg/auth"
	"github.com/cinerent/cinerent-backend/pkg/db/models"
	"github.com/cinerent/cinerent-backend/pkg/enums"
	pkgerrors "github.com/cinerent/cinerent-backend/pkg/errors"
	"github.com/cinerent/cinerent-backend/pkg/logger"
	"github.com/cinerent/cinerent-backend/pkg/pagination"
)

type transactionResponse struct {
	ID            uuid.UUID               `json:"id"`
	UserID        uuid.UUID               `json:"user_id"`
	RentalID      uuid.UUID               `json:"rental_id"`
	OrderID       string                  `json:"order_id"`
	PaymentMethod enums.PaymentMethod     `json:"payment_method"`
	PaymentType   enums.PaymentType       `json:"payment_type"`
	GrossAmount   decimal.Decimal         `json:"gross_amount"`
	Status        enums.TransactionStatus `json:"status"`
	CreatedAt     time.Time               `json:"created_at"`
	UpdatedAt     time.Time               `json:"updated_at"`
}

type transactionListResponse struct {
	Transactions []transactionResponse `json:"transactions"`
	NextCursor   string                `json:"next_cursor,omitempty"`
}

// Get returns one transaction. Renters only see their own.
func Get(svc internaltransactions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r, svc, logg)
		if !ok {
			return
		}
		raw := strings.TrimSpace(chi.URLParam(r, "transactionId"))
		id, err := uuid.Parse(raw)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid transaction id"))
			return
		}

		txn, err := svc.Get(r.Context(), actor, id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toResponse(*txn))
	}
}

// List pages through every transaction for admins.
func List(svc internaltransactions.Service, logg *logger.Logger) http.HandlerFunc {
	return listHandler(svc, logg, internaltransactions.Service.List)
}

// History pages through the caller's own transactions.
func History(svc internaltransactions.Service, logg *logger.Logger) http.HandlerFunc {
	return listHandler(svc, logg, internaltransactions.Service.ListHistory)
}

type listFunc func(internaltransactions.Service, context.Context, auth.Actor, internaltransactions.ListParams) (*internaltransactions.ListResult, error)

func listHandler(svc internaltransactions.Service, logg *logger.Logger, list listFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r, svc, logg)
		if !ok {
			return
		}
		params, err := parseListParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := list(svc, r.Context(), actor, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out := transactionListResponse{
			Transactions: make([]transactionResponse, 0, len(result.Transactions)),
			NextCursor:   result.NextCursor,
		}
		for _, txn := range result.Transactions {
			out.Transactions = append(out.Transactions, toResponse(txn))
		}
		responses.WriteSuccess(w, out)
	}
}

func requireActor(w http.ResponseWriter, r *http.Request, svc internaltransactions.Service, logg *logger.Logger) (auth.Actor, bool) {
	if svc == nil {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "transactions service unavailable"))
		return auth.Actor{}, false
	}
	actor, ok := middleware.ActorFromContext(r.Context())
	if !ok {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
		return auth.Actor{}, false
	}
	return actor, true
}

func parseListParams(r *http.Request) (internaltransactions.ListParams, error) {
	limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
	if err != nil {
		return internaltransactions.ListParams{}, err
	}
	query := r.URL.Query()
	params := internaltransactions.ListParams{
		OrderID: strings.TrimSpace(query.Get("order_id")),
		Name:    strings.TrimSpace(query.Get("name")),
		Params: pagination.Params{
			Limit:  limit,
			Cursor: strings.TrimSpace(query.Get("cursor")),
		},
	}

	if raw := strings.TrimSpace(query.Get("status")); raw != "" {
		status, err := enums.ParseTransactionStatus(raw)
		if err != nil {
			return internaltransactions.ListParams{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid transaction status")
		}
		params.Status = &status
	}
	if raw := strings.TrimSpace(query.Get("payment_type")); raw != "" {
		paymentType, err := enums.ParsePaymentType(raw)
		if err != nil {
			return internaltransactions.ListParams{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment type")
		}
		params.PaymentType = &paymentType
	}
	if params.From, err = validators.ParseQueryTime(r, "from"); err != nil {
		return internaltransactions.ListParams{}, err
	}
	if params.To, err = validators.ParseQueryTime(r, "to"); err != nil {
		return internaltransactions.ListParams{}, err
	}
	return params, nil
}

func toResponse(t models.Transaction) transactionResponse {
	return transactionResponse{
		ID:            t.ID,
		UserID:        t.UserID,
		RentalID:      t.RentalID,
		OrderID:       t.OrderID,
		PaymentMethod: t.PaymentMethod,
		PaymentType:   t.PaymentType,
		GrossAmount:   t.GrossAmount,
		Status:        t.Status,
		CreatedAt:     t.CreatedAt,
		UpdatedAt:     t.UpdatedAt,
	}
}
