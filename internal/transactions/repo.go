package transactions

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/grainhub/warehouse-backend/pkg/db/models"
	"github.com/grainhub/warehouse-backend/pkg/enums"
)

// Repository persists grain transactions and their lines.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, txn *models.GrainTransaction) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.GrainTransaction, error)
	FindByIDs(ctx context.Context, ids []uuid.UUID) ([]models.GrainTransaction, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to enums.TransactionStatus) (bool, error)
	ListByStatus(ctx context.Context, status enums.TransactionStatus) ([]models.GrainTransaction, error)
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

// Create inserts the transaction together with its lines.
func (r *repository) Create(ctx context.Context, txn *models.GrainTransaction) error {
	return r.db.WithContext(ctx).Omit("Approval").Create(txn).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.GrainTransaction, error) {
	var txn models.GrainTransaction
	if err := r.withDetails(ctx).First(&txn, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &txn, nil
}

// FindByIDs loads the given transactions in the order of ids.
func (r *repository) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]models.GrainTransaction, error) {
	if len(ids) == 0 {
		return []models.GrainTransaction{}, nil
	}
	var rows []models.GrainTransaction
	if err := r.withDetails(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	byID := make(map[uuid.UUID]models.GrainTransaction, len(rows))
	for _, row := range rows {
		byID[row.ID] = row
	}
	ordered := make([]models.GrainTransaction, 0, len(rows))
	for _, id := range ids {
		if row, ok := byID[id]; ok {
			ordered = append(ordered, row)
		}
	}
	return ordered, nil
}

// UpdateStatus moves a row out of from. It reports false when the row was no
// longer in from, so a terminal transaction is never rewritten.
func (r *repository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to enums.TransactionStatus) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.GrainTransaction{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]any{
			"status":     to,
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) ListByStatus(ctx context.Context, status enums.TransactionStatus) ([]models.GrainTransaction, error) {
	var rows []models.GrainTransaction
	if err := r.withDetails(ctx).
		Where("status = ?", status).
		Order("created_at ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) withDetails(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).
		Preload("Lines", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC")
		}).
		Preload("Approval")
}
