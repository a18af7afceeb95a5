package payments

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/cinerent/cinerent-backend/api/middleware"
	"github.com/cinerent/cinerent-backend/api/responses"
	"github.com/cinerent/cinerent-backend/api/validators"
	internalpayments "github.com/cinerent/cinerent-backend/internal/payments"
	"github.com/cinerent/cinerent-backend/pkg/auth"
	"github.com/cinerent/cinerent-backend/pkg/db/models"
	"github.com/cinerent/cinerent-backend/pkg/enums"
	pkgerrors "github.com/cinerent/cinerent-backend/pkg/errors"
	"github.com/cinerent/cinerent-backend/pkg/logger"
)

type payRequest struct {
	RentalID uuid.UUID `json:"rental_id" validate:"required"`
	Bank     string    `json:"bank" validate:"required,oneof=bca bni bri"`
}

type cashPaymentRequest struct {
	RentalID uuid.UUID `json:"rental_id" validate:"required"`
}

type lateFeeRequest struct {
	RentalID      uuid.UUID  `json:"rental_id" validate:"required"`
	UserID        *uuid.UUID `json:"user_id,omitempty"`
	PaymentMethod string     `json:"payment_method" validate:"required"`
}

type transactionResponse struct {
	ID            uuid.UUID               `json:"id"`
	RentalID      uuid.UUID               `json:"rental_id"`
	UserID        uuid.UUID               `json:"user_id"`
	OrderID       string                  `json:"order_id"`
	PaymentMethod enums.PaymentMethod     `json:"payment_method"`
	PaymentType   enums.PaymentType       `json:"payment_type"`
	GrossAmount   decimal.Decimal         `json:"gross_amount"`
	Status        enums.TransactionStatus `json:"status"`
	CreatedAt     time.Time               `json:"created_at"`
}

func toTransactionResponse(t *models.Transaction) transactionResponse {
	return transactionResponse{
		ID:            t.ID,
		RentalID:      t.RentalID,
		UserID:        t.UserID,
		OrderID:       t.OrderID,
		PaymentMethod: t.PaymentMethod,
		PaymentType:   t.PaymentType,
		GrossAmount:   t.GrossAmount,
		Status:        t.Status,
		CreatedAt:     t.CreatedAt,
	}
}

// Pay opens a virtual-account bank transfer for a pending rental and returns
// the gateway's charge response, including the VA number.
func Pay(svc internalpayments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r, svc, logg)
		if !ok {
			return
		}

		var req payRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		bank, err := enums.ParseBank(req.Bank)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid bank"))
			return
		}

		charge, err := svc.ProcessPayment(r.Context(), actor, internalpayments.PayInput{
			RentalID: req.RentalID,
			Bank:     bank,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, charge)
	}
}

// PayCash settles a pending rental at the counter.
func PayCash(svc internalpayments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r, svc, logg)
		if !ok {
			return
		}

		var req cashPaymentRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		txn, err := svc.ProcessCashPayment(r.Context(), actor, req.RentalID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toTransactionResponse(txn))
	}
}

// PayLateFee records settlement of a returned rental's late fee.
func PayLateFee(svc internalpayments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r, svc, logg)
		if !ok {
			return
		}

		var req lateFeeRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		method, err := enums.ParsePaymentMethod(req.PaymentMethod)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment method"))
			return
		}

		input := internalpayments.LateFeeInput{
			RentalID:      req.RentalID,
			PaymentMethod: method,
		}
		if req.UserID != nil {
			input.UserID = *req.UserID
		}

		txn, err := svc.ProcessLateFeePayment(r.Context(), actor, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toTransactionResponse(txn))
	}
}

func requireActor(w http.ResponseWriter, r *http.Request, svc internalpayments.Service, logg *logger.Logger) (auth.Actor, bool) {
	if svc == nil {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
		return auth.Actor{}, false
	}
	actor, ok := middleware.ActorFromContext(r.Context())
	if !ok {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
		return auth.Actor{}, false
	}
	return actor, true
}
