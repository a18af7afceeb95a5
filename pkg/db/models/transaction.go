package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/cinerent/cinerent-backend/pkg/enums"
)

// Transaction is a single payment attempt or late-fee settlement for a rental.
// OrderID is unique and correlates gateway notifications. A rental has at most
// one pending rental-type transaction.
type Transaction struct {
	ID            uuid.UUID               `gorm:"column:id;type:uuid;primaryKey"`
	UserID        uuid.UUID               `gorm:"column:user_id;type:uuid;not null;index"`
	RentalID      uuid.UUID               `gorm:"column:rental_id;type:uuid;not null;index;uniqueIndex:transactions_one_pending_rental_key,where:status = 'pending' AND payment_type = 'rental'"`
	PaymentMethod enums.PaymentMethod     `gorm:"column:payment_method;not null"`
	OrderID       string                  `gorm:"column:order_id;not null;uniqueIndex:transactions_order_id_key"`
	GrossAmount   decimal.Decimal         `gorm:"column:gross_amount;type:numeric(12,2);not null"`
	Status        enums.TransactionStatus `gorm:"column:status;type:transaction_status;not null"`
	PaymentType   enums.PaymentType       `gorm:"column:payment_type;type:payment_type;not null"`
	CreatedAt     time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}

func (Transaction) TableName() string { return "transactions" }

func (t *Transaction) BeforeCreate(*gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}
