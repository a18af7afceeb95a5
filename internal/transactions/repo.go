package transactions

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

// Repository persists payment attempts.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, txn *models.Transaction) (*models.Transaction, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Transaction, error)
	FindByOrderID(ctx context.Context, orderID string) (*models.Transaction, error)
	FindByOrderIDForUpdate(ctx context.Context, orderID string) (*models.Transaction, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status enums.TransactionStatus) error
	ListByRental(ctx context.Context, rentalID uuid.UUID) ([]models.Transaction, error)
	HasPendingForRental(ctx context.Context, rentalID uuid.UUID, paymentType enums.PaymentType) (bool, error)
	List(ctx context.Context, query listQuery) ([]models.Transaction, *pagination.Cursor, error)
}

type listQuery struct {
	UserID      *uuid.UUID
	Status      *enums.TransactionStatus
	PaymentType *enums.PaymentType
	OrderID     string
	Name        string
	From        *time.Time
	To          *time.Time
	Limit       int
	Cursor      *pagination.Cursor
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a transactions repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, txn *models.Transaction) (*models.Transaction, error) {
	if err := r.db.WithContext(ctx).Create(txn).Error; err != nil {
		return nil, err
	}
	return txn, nil
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Transaction, error) {
	var txn models.Transaction
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&txn).Error; err != nil {
		return nil, err
	}
	return &txn, nil
}

func (r *repository) FindByOrderID(ctx context.Context, orderID string) (*models.Transaction, error) {
	var txn models.Transaction
	if err := r.db.WithContext(ctx).Where("order_id = ?", orderID).First(&txn).Error; err != nil {
		return nil, err
	}
	return &txn, nil
}

// FindByOrderIDForUpdate serializes reconciliation of the same order.
func (r *repository) FindByOrderIDForUpdate(ctx context.Context, orderID string) (*models.Transaction, error) {
	var txn models.Transaction
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("order_id = ?", orderID).
		First(&txn).Error
	if err != nil {
		return nil, err
	}
	return &txn, nil
}

func (r *repository) UpdateStatus(ctx context.Context, id uuid.UUID, status enums.TransactionStatus) error {
	res := r.db.WithContext(ctx).
		Model(&models.Transaction{}).
		Where("id = ?", id).
		UpdateColumns(map[string]any{
			"status":     status,
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

func (r *repository) ListByRental(ctx context.Context, rentalID uuid.UUID) ([]models.Transaction, error) {
	var rows []models.Transaction
	err := r.db.WithContext(ctx).
		Where("rental_id = ?", rentalID).
		Order("created_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) HasPendingForRental(ctx context.Context, rentalID uuid.UUID, paymentType enums.PaymentType) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Transaction{}).
		Where("rental_id = ? AND payment_type = ? AND status = ?", rentalID, paymentType, enums.TransactionStatusPending).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *repository) List(ctx context.Context, query listQuery) ([]models.Transaction, *pagination.Cursor, error) {
	q := r.db.WithContext(ctx).Model(&models.Transaction{})
	if query.UserID != nil {
		q = q.Where("transactions.user_id = ?", *query.UserID)
	}
	if query.Status != nil {
		q = q.Where("transactions.status = ?", *query.Status)
	}
	if query.PaymentType != nil {
		q = q.Where("transactions.payment_type = ?", *query.PaymentType)
	}
	if query.OrderID != "" {
		q = q.Where("transactions.order_id LIKE ?", "%"+query.OrderID+"%")
	}
	if query.Name != "" {
		q = q.Joins("JOIN users ON users.id = transactions.user_id").
			Where("LOWER(users.name) LIKE LOWER(?)", "%"+query.Name+"%")
	}
	if query.From != nil {
		q = q.Where("transactions.created_at >= ?", query.From.UTC())
	}
	if query.To != nil {
		q = q.Where("transactions.created_at <= ?", query.To.UTC())
	}
	if query.Cursor != nil {
		q = q.Where("(transactions.created_at, transactions.id) < (?, ?)", query.Cursor.CreatedAt.UTC(), query.Cursor.ID)
	}

	var rows []models.Transaction
	err := q.Select("transactions.*").
		Order("transactions.created_at DESC, transactions.id DESC").
		Limit(pagination.LimitWithBuffer(query.Limit)).
		Find(&rows).Error
	if err != nil {
		return nil, nil, err
	}
	page, next := pagination.Trim(rows, query.Limit, func(row models.Transaction) pagination.Cursor {
		return pagination.Cursor{CreatedAt: row.CreatedAt, ID: row.ID}
	})
	return page, next, nil
}
