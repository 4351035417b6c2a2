package ledger

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/grainhub/warehouse-backend/pkg/db/models"
	"github.com/grainhub/warehouse-backend/pkg/enums"
	pkgerrors "github.com/grainhub/warehouse-backend/pkg/errors"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:ledger_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.LedgerEntry{}, &models.LedgerMovement{}))
	return db
}

func newTestService(t *testing.T) (Service, *gorm.DB) {
	t.Helper()
	db := newTestDB(t)
	svc, err := NewService(NewRepository(db))
	require.NoError(t, err)
	return svc, db
}

func qty(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func TestApplyDeltaCreatesEntryAndMovement(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	key := FarmerKey(uuid.New(), uuid.New())
	txID := uuid.New()

	var movement *models.LedgerMovement
	err := db.Transaction(func(tx *gorm.DB) error {
		var err error
		movement, err = svc.ApplyDelta(ctx, tx, key, Delta{Pending: qty("12.5")}, txID, enums.MovementGrowPending)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, enums.MovementGrowPending, movement.Kind)

	balance, err := svc.GetEntry(ctx, key)
	require.NoError(t, err)
	assert.True(t, balance.PendingQuantity.Equal(qty("12.5")))
	assert.True(t, balance.TotalQuantity.IsZero())
	assert.Equal(t, int64(1), balance.Version)

	entry, err := NewRepository(db).FindEntry(ctx, key)
	require.NoError(t, err)
	movements, err := svc.ListMovements(ctx, entry.ID)
	require.NoError(t, err)
	require.Len(t, movements, 1)
	assert.Equal(t, txID, movements[0].TransactionID)
}

func TestApplyDeltaRefusesNegativeCounters(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	key := FarmerKey(uuid.New(), uuid.New())

	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		_, err := svc.ApplyDelta(ctx, tx, key, Delta{Total: qty("5")}, uuid.New(), enums.MovementGrowTotal)
		return err
	}))

	err := db.Transaction(func(tx *gorm.DB) error {
		_, err := svc.ApplyDelta(ctx, tx, key, Delta{Pending: qty("-1")}, uuid.New(), enums.MovementRollbackPending)
		return err
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNegativeBalance))
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeIntegrity))

	balance, err := svc.GetEntry(ctx, key)
	require.NoError(t, err)
	assert.True(t, balance.TotalQuantity.Equal(qty("5")))
	assert.True(t, balance.PendingQuantity.IsZero())
	assert.Equal(t, int64(1), balance.Version)
}

func TestReserveMovesTotalToHold(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	key := FarmerKey(uuid.New(), uuid.New())

	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		if _, err := svc.ApplyDelta(ctx, tx, key, Delta{Total: qty("10")}, uuid.New(), enums.MovementGrowTotal); err != nil {
			return err
		}
		_, err := svc.Reserve(ctx, tx, key, qty("4"), uuid.New())
		return err
	}))

	balance, err := svc.GetEntry(ctx, key)
	require.NoError(t, err)
	assert.True(t, balance.TotalQuantity.Equal(qty("6")))
	assert.True(t, balance.HoldQuantity.Equal(qty("4")))
}

func TestReserveReportsInsufficientStock(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	key := FarmerKey(uuid.New(), uuid.New())

	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		_, err := svc.ApplyDelta(ctx, tx, key, Delta{Total: qty("3")}, uuid.New(), enums.MovementGrowTotal)
		return err
	}))

	err := db.Transaction(func(tx *gorm.DB) error {
		_, err := svc.Reserve(ctx, tx, key, qty("4"), uuid.New())
		return err
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInsufficientStock))
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeConflict, typed.Code())
	details, ok := typed.Details().(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "3", details["available"])
	assert.Equal(t, "4", details["requested"])
}

func TestReserveOnUntouchedBucket(t *testing.T) {
	svc, db := newTestService(t)
	err := db.Transaction(func(tx *gorm.DB) error {
		_, err := svc.Reserve(context.Background(), tx, FarmerKey(uuid.New(), uuid.New()), qty("1"), uuid.New())
		return err
	})
	assert.True(t, errors.Is(err, ErrInsufficientStock))
}

func TestZeroDeltaRecordsRetainWithoutTouchingCounters(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	key := FarmerKey(uuid.New(), uuid.New())

	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		_, err := svc.ApplyDelta(ctx, tx, key, Delta{}, uuid.New(), enums.MovementRetain)
		return err
	}))

	balance, err := svc.GetEntry(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, int64(0), balance.Version)

	entry, err := NewRepository(db).FindEntry(ctx, key)
	require.NoError(t, err)
	movements, err := svc.ListMovements(ctx, entry.ID)
	require.NoError(t, err)
	require.Len(t, movements, 1)
	assert.Equal(t, enums.MovementRetain, movements[0].Kind)
}

func TestApplyDeltaValidation(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	_, err := svc.ApplyDelta(ctx, nil, FarmerKey(uuid.New(), uuid.New()), Delta{}, uuid.New(), enums.MovementRetain)
	assert.Error(t, err)

	_, err = svc.ApplyDelta(ctx, db, Key{OwnerType: "silo", OwnerID: uuid.New(), CategoryID: uuid.New()}, Delta{}, uuid.New(), enums.MovementRetain)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))

	_, err = svc.ApplyDelta(ctx, db, FarmerKey(uuid.New(), uuid.New()), Delta{}, uuid.New(), "teleport")
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))
}

func TestDeltasBeyondStoredScaleAreRefused(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	key := FarmerKey(uuid.New(), uuid.New())

	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		_, err := svc.ApplyDelta(ctx, tx, key, Delta{Total: qty("10")}, uuid.New(), enums.MovementGrowTotal)
		return err
	}))

	err := db.Transaction(func(tx *gorm.DB) error {
		_, err := svc.Reserve(ctx, tx, key, qty("1.2345"), uuid.New())
		return err
	})
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))

	err = db.Transaction(func(tx *gorm.DB) error {
		_, err := svc.ApplyDelta(ctx, tx, key, Delta{Pending: qty("0.0001")}, uuid.New(), enums.MovementGrowPending)
		return err
	})
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))

	balance, err := svc.GetEntry(ctx, key)
	require.NoError(t, err)
	assert.True(t, balance.TotalQuantity.Equal(qty("10")))
	assert.True(t, balance.PendingQuantity.IsZero())
	assert.True(t, balance.HoldQuantity.IsZero())

	assert.True(t, FitsScale(qty("8.750")))
	assert.False(t, FitsScale(qty("8.7655")))
}

func TestListEntriesAndMissingEntry(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	owner := uuid.New()

	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		for _, category := range []uuid.UUID{uuid.New(), uuid.New()} {
			if _, err := svc.ApplyDelta(ctx, tx, FarmerKey(owner, category), Delta{Total: qty("1")}, uuid.New(), enums.MovementGrowTotal); err != nil {
				return err
			}
		}
		return nil
	}))

	balances, err := svc.ListEntries(ctx, enums.BucketOwnerFarmer, owner)
	require.NoError(t, err)
	assert.Len(t, balances, 2)

	others, err := svc.ListEntries(ctx, enums.BucketOwnerWarehouse, owner)
	require.NoError(t, err)
	assert.Empty(t, others)

	_, err = svc.GetEntry(ctx, FarmerKey(uuid.New(), uuid.New()))
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeNotFound))
}

func TestSumMovementsGroupsByTransactionAndEntry(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	key := FarmerKey(uuid.New(), uuid.New())
	txID := uuid.New()

	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		if _, err := svc.ApplyDelta(ctx, tx, key, Delta{Pending: qty("8")}, txID, enums.MovementGrowPending); err != nil {
			return err
		}
		_, err := svc.ApplyDelta(ctx, tx, key, Delta{Pending: qty("-8"), Total: qty("8")}, txID, enums.MovementSettlePending)
		return err
	}))

	sums, err := NewRepository(db).SumMovements(ctx)
	require.NoError(t, err)
	require.Len(t, sums, 1)
	assert.Equal(t, txID, sums[0].TransactionID)
	assert.True(t, sums[0].Total.Equal(qty("8")))
	assert.True(t, sums[0].Pending.IsZero())
}
