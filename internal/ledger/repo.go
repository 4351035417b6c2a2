package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/grainhub/warehouse-backend/pkg/db/models"
	"github.com/grainhub/warehouse-backend/pkg/enums"
)

// Repository manages persistence for bucket counters and their movement log.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindEntry(ctx context.Context, key Key) (*models.LedgerEntry, error)
	FindOrCreateEntry(ctx context.Context, key Key) (*models.LedgerEntry, error)
	IncrementCounters(ctx context.Context, entryID uuid.UUID, delta Delta) (bool, error)
	CreateMovement(ctx context.Context, movement *models.LedgerMovement) error
	ListEntries(ctx context.Context, ownerType enums.BucketOwnerType, ownerID uuid.UUID) ([]models.LedgerEntry, error)
	ListAllEntries(ctx context.Context) ([]models.LedgerEntry, error)
	ListMovements(ctx context.Context, entryID uuid.UUID) ([]models.LedgerMovement, error)
	SumMovements(ctx context.Context) ([]MovementSum, error)
}

// MovementSum aggregates movement deltas for one (transaction, entry) pair.
type MovementSum struct {
	TransactionID uuid.UUID
	EntryID       uuid.UUID
	Total         decimal.Decimal
	Pending       decimal.Decimal
	Hold          decimal.Decimal
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a ledger repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindEntry(ctx context.Context, key Key) (*models.LedgerEntry, error) {
	var entry models.LedgerEntry
	err := r.db.WithContext(ctx).
		Where("owner_type = ? AND owner_id = ? AND category_id = ?", key.OwnerType, key.OwnerID, key.CategoryID).
		First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrEntryNotFound
		}
		return nil, err
	}
	return &entry, nil
}

// FindOrCreateEntry lazily creates the zeroed row on first touch. A concurrent
// creator wins through the unique key and the row is re-read.
func (r *repository) FindOrCreateEntry(ctx context.Context, key Key) (*models.LedgerEntry, error) {
	entry, err := r.FindEntry(ctx, key)
	if err == nil {
		return entry, nil
	}
	if !errors.Is(err, ErrEntryNotFound) {
		return nil, err
	}

	fresh := models.LedgerEntry{
		OwnerType:       key.OwnerType,
		OwnerID:         key.OwnerID,
		CategoryID:      key.CategoryID,
		TotalQuantity:   decimal.Zero,
		PendingQuantity: decimal.Zero,
		HoldQuantity:    decimal.Zero,
	}
	if err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&fresh).Error; err != nil {
		return nil, err
	}
	return r.FindEntry(ctx, key)
}

// IncrementCounters applies delta in a single guarded UPDATE. It reports false
// when any counter would end below zero, leaving the row untouched.
func (r *repository) IncrementCounters(ctx context.Context, entryID uuid.UUID, delta Delta) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.LedgerEntry{}).
		Where("id = ?", entryID).
		Where("total_quantity + ? >= 0", delta.Total).
		Where("pending_quantity + ? >= 0", delta.Pending).
		Where("hold_quantity + ? >= 0", delta.Hold).
		Updates(map[string]any{
			"total_quantity":   gorm.Expr("total_quantity + ?", delta.Total),
			"pending_quantity": gorm.Expr("pending_quantity + ?", delta.Pending),
			"hold_quantity":    gorm.Expr("hold_quantity + ?", delta.Hold),
			"version":          gorm.Expr("version + 1"),
			"updated_at":       time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) CreateMovement(ctx context.Context, movement *models.LedgerMovement) error {
	return r.db.WithContext(ctx).Create(movement).Error
}

func (r *repository) ListEntries(ctx context.Context, ownerType enums.BucketOwnerType, ownerID uuid.UUID) ([]models.LedgerEntry, error) {
	var entries []models.LedgerEntry
	if err := r.db.WithContext(ctx).
		Where("owner_type = ? AND owner_id = ?", ownerType, ownerID).
		Order("category_id ASC").
		Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *repository) ListAllEntries(ctx context.Context) ([]models.LedgerEntry, error) {
	var entries []models.LedgerEntry
	if err := r.db.WithContext(ctx).
		Order("owner_type ASC").
		Order("owner_id ASC").
		Order("category_id ASC").
		Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *repository) ListMovements(ctx context.Context, entryID uuid.UUID) ([]models.LedgerMovement, error) {
	var movements []models.LedgerMovement
	if err := r.db.WithContext(ctx).
		Where("entry_id = ?", entryID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&movements).Error; err != nil {
		return nil, err
	}
	return movements, nil
}

func (r *repository) SumMovements(ctx context.Context) ([]MovementSum, error) {
	var sums []MovementSum
	err := r.db.WithContext(ctx).
		Model(&models.LedgerMovement{}).
		Select("transaction_id, entry_id, " +
			"COALESCE(SUM(total_delta), 0) AS total, " +
			"COALESCE(SUM(pending_delta), 0) AS pending, " +
			"COALESCE(SUM(hold_delta), 0) AS hold").
		Group("transaction_id, entry_id").
		Scan(&sums).Error
	return sums, err
}
