package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/cinerent/cinerent-backend/pkg/enums"
)

// StockMovement is one inventory ledger entry. A rental has at most one
// movement per kind, so a reservation is released at most once.
type StockMovement struct {
	ID        uuid.UUID               `gorm:"column:id;type:uuid;primaryKey"`
	MovieID   uuid.UUID               `gorm:"column:movie_id;type:uuid;not null;index"`
	RentalID  uuid.UUID               `gorm:"column:rental_id;type:uuid;not null;uniqueIndex:stock_movements_rental_kind_key,priority:1"`
	Kind      enums.StockMovementKind `gorm:"column:kind;type:stock_movement_kind;not null;uniqueIndex:stock_movements_rental_kind_key,priority:2"`
	Reference string                  `gorm:"column:reference;not null"`
	CreatedAt time.Time               `gorm:"column:created_at;autoCreateTime"`
}

func (StockMovement) TableName() string { return "stock_movements" }

func (s *StockMovement) BeforeCreate(*gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}
