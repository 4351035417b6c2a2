package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/grainhub/warehouse-backend/pkg/enums"
)

// LedgerEntry is the per-owner, per-category counter row of a bucket.
type LedgerEntry struct {
	ID              uuid.UUID             `gorm:"column:id;type:uuid;primaryKey"`
	OwnerType       enums.BucketOwnerType `gorm:"column:owner_type;type:text;not null;uniqueIndex:ux_ledger_entries_owner_category,priority:1"`
	OwnerID         uuid.UUID             `gorm:"column:owner_id;type:uuid;not null;uniqueIndex:ux_ledger_entries_owner_category,priority:2"`
	CategoryID      uuid.UUID             `gorm:"column:category_id;type:uuid;not null;uniqueIndex:ux_ledger_entries_owner_category,priority:3"`
	TotalQuantity   decimal.Decimal       `gorm:"column:total_quantity;type:numeric(20,3);not null;default:0"`
	PendingQuantity decimal.Decimal       `gorm:"column:pending_quantity;type:numeric(20,3);not null;default:0"`
	HoldQuantity    decimal.Decimal       `gorm:"column:hold_quantity;type:numeric(20,3);not null;default:0"`
	Version         int64                 `gorm:"column:version;not null;default:0"`
	CreatedAt       time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}

func (e *LedgerEntry) BeforeCreate(*gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}

// LedgerMovement is an append-only audit row describing one counter change.
type LedgerMovement struct {
	ID            uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	EntryID       uuid.UUID          `gorm:"column:entry_id;type:uuid;not null;index"`
	TransactionID uuid.UUID          `gorm:"column:transaction_id;type:uuid;not null;index"`
	Kind          enums.MovementKind `gorm:"column:kind;type:text;not null"`
	TotalDelta    decimal.Decimal    `gorm:"column:total_delta;type:numeric(20,3);not null"`
	PendingDelta  decimal.Decimal    `gorm:"column:pending_delta;type:numeric(20,3);not null"`
	HoldDelta     decimal.Decimal    `gorm:"column:hold_delta;type:numeric(20,3);not null"`
	CreatedAt     time.Time          `gorm:"column:created_at;autoCreateTime"`
}

func (m *LedgerMovement) BeforeCreate(*gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}
