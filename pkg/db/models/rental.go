package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/cinerent/cinerent-backend/pkg/enums"
)

// Rental records one rented copy of a movie. UserID and MovieID are plain
// references; related rows are loaded through their repositories.
type Rental struct {
	ID            uuid.UUID                 `gorm:"column:id;type:uuid;primaryKey"`
	UserID        uuid.UUID                 `gorm:"column:user_id;type:uuid;not null;index"`
	MovieID       uuid.UUID                 `gorm:"column:movie_id;type:uuid;not null;index"`
	RentalDate    time.Time                 `gorm:"column:rental_date;not null"`
	ReturnDate    time.Time                 `gorm:"column:return_date;not null"`
	ReturnedAt    *time.Time                `gorm:"column:returned_at"`
	TotalPrice    decimal.Decimal           `gorm:"column:total_price;type:numeric(12,2);not null"`
	PaymentStatus enums.RentalPaymentStatus `gorm:"column:payment_status;type:rental_payment_status;not null"`
	RentalStatus  enums.RentalStatus        `gorm:"column:rental_status;type:rental_status;not null"`
	LateFee       decimal.Decimal           `gorm:"column:late_fee;type:numeric(12,2);not null"`
	CreatedAt     time.Time                 `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time                 `gorm:"column:updated_at;autoUpdateTime"`
}

func (Rental) TableName() string { return "rentals" }

func (r *Rental) BeforeCreate(*gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}
