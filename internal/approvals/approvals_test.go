package approvals

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/grainhub/warehouse-backend/pkg/db/models"
	"github.com/grainhub/warehouse-backend/pkg/enums"
)

func TestDecideSetsOnlyOwnSlot(t *testing.T) {
	approval := &models.Approval{}
	actor := uuid.New()
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	slot, err := Decide(approval, enums.ActorRoleManager, true, actor, now)
	require.NoError(t, err)
	assert.True(t, slot.Approved)
	assert.Equal(t, actor, *approval.ManagerActorID)
	assert.Equal(t, now, *approval.ManagerDecidedAt)
	assert.Nil(t, approval.SupervisorDecidedAt)
	assert.Nil(t, approval.AdminDecidedAt)
}

func TestDecideIsSingleShot(t *testing.T) {
	approval := &models.Approval{}
	_, err := Decide(approval, enums.ActorRoleSupervisor, false, uuid.New(), time.Now())
	require.NoError(t, err)

	_, err = Decide(approval, enums.ActorRoleSupervisor, true, uuid.New(), time.Now())
	assert.ErrorIs(t, err, ErrAlreadyDecided)
	assert.False(t, approval.SupervisorApproved)
}

func TestDecideRejectsNonStaffRole(t *testing.T) {
	_, err := Decide(&models.Approval{}, enums.ActorRoleFarmer, true, uuid.New(), time.Now())
	assert.ErrorIs(t, err, ErrInvalidRole)
}

func TestEscalationHelpers(t *testing.T) {
	approval := &models.Approval{SupervisorApproved: true}

	assert.True(t, Escalated(approval, enums.ActorRoleManager))
	assert.True(t, Escalated(approval, enums.ActorRoleAdmin))
	assert.False(t, Escalated(approval, enums.ActorRoleSupervisor))

	manager := &models.Approval{ManagerApproved: true}
	assert.True(t, Escalated(manager, enums.ActorRoleSupervisor))
	assert.False(t, Escalated(manager, enums.ActorRoleManager))

	admin := &models.Approval{AdminApproved: true}
	assert.False(t, Escalated(admin, enums.ActorRoleSupervisor))
}

func TestSaveDecisionIsConditional(t *testing.T) {
	dsn := "file:approvals_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Approval{}))

	repo := NewRepository(db)
	ctx := context.Background()
	txID := uuid.New()
	require.NoError(t, repo.Create(ctx, &models.Approval{TransactionID: txID}))

	stored, err := repo.FindByTransactionID(ctx, txID)
	require.NoError(t, err)

	first, err := Decide(stored, enums.ActorRoleSupervisor, true, uuid.New(), time.Now())
	require.NoError(t, err)
	require.NoError(t, repo.SaveDecision(ctx, stored.ID, enums.ActorRoleSupervisor, first))

	stale := &models.Approval{}
	second, err := Decide(stale, enums.ActorRoleSupervisor, false, uuid.New(), time.Now())
	require.NoError(t, err)
	assert.ErrorIs(t, repo.SaveDecision(ctx, stored.ID, enums.ActorRoleSupervisor, second), ErrAlreadyDecided)

	reloaded, err := repo.FindByTransactionID(ctx, txID)
	require.NoError(t, err)
	assert.True(t, reloaded.SupervisorApproved)
	assert.NotNil(t, reloaded.SupervisorDecidedAt)
	assert.Nil(t, reloaded.ManagerDecidedAt)

	assert.ErrorIs(t, repo.SaveDecision(ctx, stored.ID, enums.ActorRoleFarmer, second), ErrInvalidRole)
}
