package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Approval holds the three single-shot decision slots of a transaction.
type Approval struct {
	ID            uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	TransactionID uuid.UUID `gorm:"column:transaction_id;type:uuid;not null;uniqueIndex"`

	SupervisorActorID   *uuid.UUID `gorm:"column:supervisor_actor_id;type:uuid"`
	SupervisorApproved  bool       `gorm:"column:supervisor_approved;not null;default:false"`
	SupervisorDecidedAt *time.Time `gorm:"column:supervisor_decided_at"`

	ManagerActorID   *uuid.UUID `gorm:"column:manager_actor_id;type:uuid"`
	ManagerApproved  bool       `gorm:"column:manager_approved;not null;default:false"`
	ManagerDecidedAt *time.Time `gorm:"column:manager_decided_at"`

	AdminActorID   *uuid.UUID `gorm:"column:admin_actor_id;type:uuid"`
	AdminApproved  bool       `gorm:"column:admin_approved;not null;default:false"`
	AdminDecidedAt *time.Time `gorm:"column:admin_decided_at"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (a *Approval) BeforeCreate(*gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}
