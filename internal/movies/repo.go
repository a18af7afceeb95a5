package movies

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/cinerent/cinerent-backend/pkg/db/models"
)

// Repository reads catalog rows. Stock changes go through the inventory ledger.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Movie, error) {
	var movie models.Movie
	if err := r.db.WithContext(ctx).First(&movie, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &movie, nil
}
