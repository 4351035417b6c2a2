package models

import (
	"time"

	"github.com/google/uuid"
)

// User is the read-only identity projection: who an actor is and which role they hold.
type User struct {
	ID          uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	DisplayName string    `gorm:"column:display_name;not null"`
	Role        string    `gorm:"column:role;type:text;not null"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
}
