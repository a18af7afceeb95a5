package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Movie is the catalog row whose stock the inventory ledger guards.
type Movie struct {
	ID              uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	Title           string          `gorm:"column:title;not null"`
	Stock           int             `gorm:"column:stock;not null;check:movies_stock_nonnegative,stock >= 0"`
	DailyRentalRate decimal.Decimal `gorm:"column:daily_rental_rate;type:numeric(12,2);not null"`
	CreatedAt       time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (Movie) TableName() string { return "movies" }

func (m *Movie) BeforeCreate(*gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}
