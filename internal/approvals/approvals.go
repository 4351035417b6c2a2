package approvals

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/grainhub/warehouse-backend/pkg/db/models"
	"github.com/grainhub/warehouse-backend/pkg/enums"
)

var (
	ErrInvalidRole    = errors.New("role cannot decide approvals")
	ErrAlreadyDecided = errors.New("approval slot already decided")
)

// Slot is one role's single-shot decision.
type Slot struct {
	ActorID   *uuid.UUID `json:"actor_id"`
	Approved  bool       `json:"approved"`
	DecidedAt *time.Time `json:"decided_at"`
}

func (s Slot) Decided() bool {
	return s.DecidedAt != nil
}

// SlotFor returns the slot owned by role.
func SlotFor(a *models.Approval, role enums.ActorRole) (Slot, error) {
	switch role {
	case enums.ActorRoleSupervisor:
		return Slot{ActorID: a.SupervisorActorID, Approved: a.SupervisorApproved, DecidedAt: a.SupervisorDecidedAt}, nil
	case enums.ActorRoleManager:
		return Slot{ActorID: a.ManagerActorID, Approved: a.ManagerApproved, DecidedAt: a.ManagerDecidedAt}, nil
	case enums.ActorRoleAdmin:
		return Slot{ActorID: a.AdminActorID, Approved: a.AdminApproved, DecidedAt: a.AdminDecidedAt}, nil
	default:
		return Slot{}, ErrInvalidRole
	}
}

func setSlot(a *models.Approval, role enums.ActorRole, slot Slot) {
	switch role {
	case enums.ActorRoleSupervisor:
		a.SupervisorActorID, a.SupervisorApproved, a.SupervisorDecidedAt = slot.ActorID, slot.Approved, slot.DecidedAt
	case enums.ActorRoleManager:
		a.ManagerActorID, a.ManagerApproved, a.ManagerDecidedAt = slot.ActorID, slot.Approved, slot.DecidedAt
	case enums.ActorRoleAdmin:
		a.AdminActorID, a.AdminApproved, a.AdminDecidedAt = slot.ActorID, slot.Approved, slot.DecidedAt
	}
}

// Decide writes role's slot in memory and returns it. Only that slot changes.
func Decide(a *models.Approval, role enums.ActorRole, approve bool, actorID uuid.UUID, now time.Time) (Slot, error) {
	current, err := SlotFor(a, role)
	if err != nil {
		return Slot{}, err
	}
	if current.Decided() {
		return Slot{}, ErrAlreadyDecided
	}
	actor := actorID
	at := now.UTC()
	slot := Slot{ActorID: &actor, Approved: approve, DecidedAt: &at}
	setSlot(a, role, slot)
	return slot, nil
}

// Escalated reports whether supervisor or manager approved, ignoring acting's own slot.
func Escalated(a *models.Approval, acting enums.ActorRole) bool {
	if acting != enums.ActorRoleSupervisor && a.SupervisorApproved {
		return true
	}
	return acting != enums.ActorRoleManager && a.ManagerApproved
}
