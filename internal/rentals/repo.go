package rentals

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/cinerent/cinerent-backend/pkg/db/models"
	"github.com/cinerent/cinerent-backend/pkg/enums"
	"github.com/cinerent/cinerent-backend/pkg/pagination"
)

// Repository defines persistence operations for the rentals table.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, rental *models.Rental) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Rental, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Rental, error)
	Update(ctx context.Context, id uuid.UUID, updates map[string]any) error
	List(ctx context.Context, query listQuery) ([]models.Rental, *pagination.Cursor, error)
	FindOverdueForUpdate(ctx context.Context, now time.Time, limit int) ([]models.Rental, error)
	FindStalePendingForUpdate(ctx context.Context, cutoff time.Time, limit int) ([]models.Rental, error)
}

type listQuery struct {
	UserID       *uuid.UUID
	RentalStatus *enums.RentalStatus
	Title        string
	From         *time.Time
	To           *time.Time
	Limit        int
	Cursor       *pagination.Cursor
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a rentals repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, rental *models.Rental) error {
	return r.db.WithContext(ctx).Create(rental).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Rental, error) {
	var rental models.Rental
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&rental).Error; err != nil {
		return nil, err
	}
	return &rental, nil
}

func (r *repository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Rental, error) {
	var rental models.Rental
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&rental).Error
	if err != nil {
		return nil, err
	}
	return &rental, nil
}

func (r *repository) Update(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	if len(updates) == 0 {
		return nil
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now().UTC()
	}
	res := r.db.WithContext(ctx).
		Model(&models.Rental{}).
		Where("id = ?", id).
		UpdateColumns(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *repository) List(ctx context.Context, query listQuery) ([]models.Rental, *pagination.Cursor, error) {
	q := r.db.WithContext(ctx).Model(&models.Rental{})
	if query.UserID != nil {
		q = q.Where("rentals.user_id = ?", *query.UserID)
	}
	if query.RentalStatus != nil {
		q = q.Where("rentals.rental_status = ?", *query.RentalStatus)
	}
	if query.Title != "" {
		q = q.Joins("JOIN movies ON movies.id = rentals.movie_id").
			Where("LOWER(movies.title) LIKE LOWER(?)", "%"+query.Title+"%")
	}
	if query.From != nil {
		q = q.Where("rentals.created_at >= ?", query.From.UTC())
	}
	if query.To != nil {
		q = q.Where("rentals.created_at <= ?", query.To.UTC())
	}
	if query.Cursor != nil {
		q = q.Where("(rentals.created_at, rentals.id) < (?, ?)", query.Cursor.CreatedAt.UTC(), query.Cursor.ID)
	}

	var rows []models.Rental
	err := q.Select("rentals.*").
		Order("rentals.created_at DESC, rentals.id DESC").
		Limit(pagination.LimitWithBuffer(query.Limit)).
		Find(&rows).Error
	if err != nil {
		return nil, nil, err
	}
	page, next := pagination.Trim(rows, query.Limit, func(row models.Rental) pagination.Cursor {
		return pagination.Cursor{CreatedAt: row.CreatedAt, ID: row.ID}
	})
	return page, next, nil
}

func (r *repository) FindOverdueForUpdate(ctx context.Context, now time.Time, limit int) ([]models.Rental, error) {
	var rows []models.Rental
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
		Where("rental_status = ?", enums.RentalStatusOngoing).
		Where("returned_at IS NULL").
		Where("return_date < ?", now.UTC()).
		Where("payment_status <> ?", enums.RentalPaymentCancelled).
		Order("return_date ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// FindStalePendingForUpdate returns unpaid rentals created before cutoff that
// have no payment attempt still waiting on the gateway.
func (r *repository) FindStalePendingForUpdate(ctx context.Context, cutoff time.Time, limit int) ([]models.Rental, error) {
	var rows []models.Rental
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
		Where("payment_status = ?", enums.RentalPaymentPending).
		Where("returned_at IS NULL").
		Where("created_at < ?", cutoff.UTC()).
		Where(`NOT EXISTS (
			SELECT 1 FROM transactions t
			WHERE t.rental_id = rentals.id
				AND t.payment_type = ?
				AND t.status = ?
		)`, enums.PaymentTypeRental, enums.TransactionStatusPending).
		Order("created_at ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
