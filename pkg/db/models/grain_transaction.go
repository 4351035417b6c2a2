package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/grainhub/warehouse-backend/pkg/enums"
)

// GrainTransaction is one requested movement of grain into or out of a farmer's bucket.
type GrainTransaction struct {
	ID          uuid.UUID               `gorm:"column:id;type:uuid;primaryKey"`
	Type        enums.TransactionType   `gorm:"column:type;type:text;not null"`
	OwnerID     uuid.UUID               `gorm:"column:owner_id;type:uuid;not null"`
	WarehouseID *uuid.UUID              `gorm:"column:warehouse_id;type:uuid"`
	CreatedBy   uuid.UUID               `gorm:"column:created_by;type:uuid;not null"`
	TotalAmount decimal.Decimal         `gorm:"column:total_amount;type:numeric(20,3);not null"`
	Status      enums.TransactionStatus `gorm:"column:status;type:text;not null"`
	CreatedAt   time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time               `gorm:"column:updated_at;autoUpdateTime"`

	Lines    []TransactionLine `gorm:"foreignKey:TransactionID"`
	Approval *Approval         `gorm:"foreignKey:TransactionID"`
}

func (t *GrainTransaction) BeforeCreate(*gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}

// TransactionLine is one grain category moved by a transaction.
type TransactionLine struct {
	ID            uuid.UUID        `gorm:"column:id;type:uuid;primaryKey"`
	TransactionID uuid.UUID        `gorm:"column:transaction_id;type:uuid;not null;index"`
	Position      int              `gorm:"column:position;not null"`
	CategoryID    uuid.UUID        `gorm:"column:category_id;type:uuid;not null"`
	Quantity      decimal.Decimal  `gorm:"column:quantity;type:numeric(20,3);not null"`
	UnitPrice     decimal.Decimal  `gorm:"column:unit_price;type:numeric(20,3);not null"`
	Moisture      *decimal.Decimal `gorm:"column:moisture;type:numeric(6,3)"`
}

func (l *TransactionLine) BeforeCreate(*gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return nil
}
