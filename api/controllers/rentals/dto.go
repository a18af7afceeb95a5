package rentals

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	internalrentals "github.com/cinerent/cinerent-backend/internal/rentals"
	"github.com/cinerent/cinerent-backend/pkg/db/models"
	"github.com/cinerent/cinerent-backend/pkg/enums"
)

type createRentalRequest struct {
	UserID     *uuid.UUID `json:"user_id,omitempty"`
	MovieID    uuid.UUID  `json:"movie_id" validate:"required"`
	RentalDays int        `json:"rental_days" validate:"required,gt=0"`
}

type returnRentalRequest struct {
	ReturnedAt   *time.Time `json:"returned_at,omitempty"`
	RentalStatus *string    `json:"rental_status,omitempty"`
}

type rentalResponse struct {
	ID            uuid.UUID                 `json:"id"`
	UserID        uuid.UUID                 `json:"user_id"`
	MovieID       uuid.UUID                 `json:"movie_id"`
	RentalDate    time.Time                 `json:"rental_date"`
	ReturnDate    time.Time                 `json:"return_date"`
	ReturnedAt    *time.Time                `json:"returned_at"`
	TotalPrice    decimal.Decimal           `json:"total_price"`
	LateFee       decimal.Decimal           `json:"late_fee"`
	PaymentStatus enums.RentalPaymentStatus `json:"payment_status"`
	RentalStatus  enums.RentalStatus        `json:"rental_status"`
	CreatedAt     time.Time                 `json:"created_at"`
	UpdatedAt     time.Time                 `json:"updated_at"`
}

type transactionResponse struct {
	ID            uuid.UUID               `json:"id"`
	OrderID       string                  `json:"order_id"`
	PaymentMethod enums.PaymentMethod     `json:"payment_method"`
	PaymentType   enums.PaymentType       `json:"payment_type"`
	GrossAmount   decimal.Decimal         `json:"gross_amount"`
	Status        enums.TransactionStatus `json:"status"`
	CreatedAt     time.Time               `json:"created_at"`
}

type rentalDetailResponse struct {
	rentalResponse
	Transactions []transactionResponse `json:"transactions"`
}

type rentalListResponse struct {
	Rentals    []rentalResponse `json:"rentals"`
	NextCursor string           `json:"next_cursor,omitempty"`
}

func toRentalResponse(r models.Rental) rentalResponse {
	return rentalResponse{
		ID:            r.ID,
		UserID:        r.UserID,
		MovieID:       r.MovieID,
		RentalDate:    r.RentalDate,
		ReturnDate:    r.ReturnDate,
		ReturnedAt:    r.ReturnedAt,
		TotalPrice:    r.TotalPrice,
		LateFee:       r.LateFee,
		PaymentStatus: r.PaymentStatus,
		RentalStatus:  r.RentalStatus,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
}

func toDetailResponse(d *internalrentals.Detail) rentalDetailResponse {
	out := rentalDetailResponse{
		rentalResponse: toRentalResponse(d.Rental),
		Transactions:   make([]transactionResponse, 0, len(d.Transactions)),
	}
	for _, txn := range d.Transactions {
		out.Transactions = append(out.Transactions, transactionResponse{
			ID:            txn.ID,
			OrderID:       txn.OrderID,
			PaymentMethod: txn.PaymentMethod,
			PaymentType:   txn.PaymentType,
			GrossAmount:   txn.GrossAmount,
			Status:        txn.Status,
			CreatedAt:     txn.CreatedAt,
		})
	}
	return out
}

func toListResponse(res *internalrentals.ListResult) rentalListResponse {
	out := rentalListResponse{
		Rentals:    make([]rentalResponse, 0, len(res.Rentals)),
		NextCursor: res.NextCursor,
	}
	for _, r := range res.Rentals {
		out.Rentals = append(out.Rentals, toRentalResponse(r))
	}
	return out
}
