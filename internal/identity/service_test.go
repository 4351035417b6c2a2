package identity

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/grainhub/warehouse-backend/pkg/db/models"
	"github.com/grainhub/warehouse-backend/pkg/enums"
	pkgerrors "github.com/grainhub/warehouse-backend/pkg/errors"
)

func newTestService(t *testing.T) (Service, *gorm.DB) {
	t.Helper()
	dsn := "file:identity_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.User{}))
	svc, err := NewService(NewRepository(db))
	require.NoError(t, err)
	return svc, db
}

func TestLookupResolvesRole(t *testing.T) {
	svc, db := newTestService(t)
	user := models.User{ID: uuid.New(), DisplayName: "Ines", Role: "manager"}
	require.NoError(t, db.Create(&user).Error)

	actor, err := svc.Lookup(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.ActorRoleManager, actor.Role)
	assert.Equal(t, "Ines", actor.DisplayName)
}

func TestLookupMissingUser(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.Lookup(context.Background(), uuid.New())
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeNotFound))
}

func TestLookupUnknownRoleIsIntegrityFault(t *testing.T) {
	svc, db := newTestService(t)
	user := models.User{ID: uuid.New(), DisplayName: "Old", Role: "auditor"}
	require.NoError(t, db.Create(&user).Error)

	_, err := svc.Lookup(context.Background(), user.ID)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeIntegrity))
}

func TestLookupRequiresID(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.Lookup(context.Background(), uuid.Nil)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))
}
