package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/cinerent/cinerent-backend/pkg/enums"
)

type RentalCreatedEvent struct {
	RentalID   uuid.UUID       `json:"rentalId"`
	UserID     uuid.UUID       `json:"userId"`
	MovieID    uuid.UUID       `json:"movieId"`
	RentalDays int             `json:"rentalDays"`
	TotalPrice decimal.Decimal `json:"totalPrice"`
	ReturnDate time.Time       `json:"returnDate"`
}

type RentalReturnedEvent struct {
	RentalID     uuid.UUID          `json:"rentalId"`
	MovieID      uuid.UUID          `json:"movieId"`
	ReturnedAt   time.Time          `json:"returnedAt"`
	RentalStatus enums.RentalStatus `json:"rentalStatus"`
	LateFee      decimal.Decimal    `json:"lateFee"`
	StockRelease bool               `json:"stockReleased"`
}

type RentalCancelledEvent struct {
	RentalID uuid.UUID `json:"rentalId"`
	MovieID  uuid.UUID `json:"movieId"`
	Reason   string    `json:"reason"`
}

type RentalOverdueEvent struct {
	RentalID   uuid.UUID `json:"rentalId"`
	UserID     uuid.UUID `json:"userId"`
	ReturnDate time.Time `json:"returnDate"`
}

type PaymentEvent struct {
	TransactionID uuid.UUID               `json:"transactionId"`
	RentalID      uuid.UUID               `json:"rentalId"`
	OrderID       string                  `json:"orderId"`
	GrossAmount   decimal.Decimal         `json:"grossAmount"`
	Status        enums.TransactionStatus `json:"status"`
	PaymentType   enums.PaymentType       `json:"paymentType"`
	PaymentMethod enums.PaymentMethod     `json:"paymentMethod"`
	GatewayStatus string                  `json:"gatewayStatus,omitempty"`
}
