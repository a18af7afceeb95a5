package inventory

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/cinerent/cinerent-backend/pkg/db/models"
	"github.com/cinerent/cinerent-backend/pkg/enums"
)

// Repository is the persistence surface of the ledger. Every method runs on
// the transaction it was bound to through WithTx.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindMovieForUpdate(ctx context.Context, movieID uuid.UUID) (*models.Movie, error)
	DecrementStock(ctx context.Context, movieID uuid.UUID) (bool, error)
	IncrementStock(ctx context.Context, movieID uuid.UUID) error
	// InsertMovement journals a movement and reports false when the rental
	// already has one of the same kind.
	InsertMovement(ctx context.Context, movement *models.StockMovement) (bool, error)
	ListMovements(ctx context.Context, rentalID uuid.UUID) ([]models.StockMovement, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindMovieForUpdate(ctx context.Context, movieID uuid.UUID) (*models.Movie, error) {
	var movie models.Movie
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", movieID).
		First(&movie).Error
	if err != nil {
		return nil, err
	}
	return &movie, nil
}

func (r *repository) DecrementStock(ctx context.Context, movieID uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Movie{}).
		Where("id = ? AND stock > 0", movieID).
		UpdateColumns(map[string]any{
			"stock":      gorm.Expr("stock - 1"),
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) IncrementStock(ctx context.Context, movieID uuid.UUID) error {
	res := r.db.WithContext(ctx).
		Model(&models.Movie{}).
		Where("id = ?", movieID).
		UpdateColumns(map[string]any{
			"stock":      gorm.Expr("stock + 1"),
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *repository) InsertMovement(ctx context.Context, movement *models.StockMovement) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "rental_id"}, {Name: "kind"}},
			DoNothing: true,
		}).
		Create(movement)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) ListMovements(ctx context.Context, rentalID uuid.UUID) ([]models.StockMovement, error) {
	var rows []models.StockMovement
	err := r.db.WithContext(ctx).
		Where("rental_id = ?", rentalID).
		Order("created_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func movementFor(movieID, rentalID uuid.UUID, kind enums.StockMovementKind, reference string) *models.StockMovement {
	return &models.StockMovement{
		MovieID:   movieID,
		RentalID:  rentalID,
		Kind:      kind,
		Reference: reference,
	}
}
