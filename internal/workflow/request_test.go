package workflow

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grainhub/warehouse-backend/internal/transactions"
	"github.com/grainhub/warehouse-backend/pkg/db/models"
	"github.com/grainhub/warehouse-backend/pkg/enums"
	pkgerrors "github.com/grainhub/warehouse-backend/pkg/errors"
)

func (f *fixture) request(txType enums.TransactionType, creator uuid.UUID, category uuid.UUID, qty string) (*transactions.TransactionDTO, error) {
	input := transactions.RequestInput{
		Type:      txType,
		OwnerID:   f.farmer,
		CreatorID: creator,
		Lines: []transactions.LineInput{
			{CategoryID: category, Quantity: q(qty), UnitPrice: q("3")},
		},
	}
	if txType.RequiresWarehouse() {
		input.WarehouseID = &f.warehouse
	}
	return f.requests.Request(context.Background(), input)
}

func TestFarmerRequestStaysPending(t *testing.T) {
	f := newFixture(t)

	dto, err := f.request(deposit, f.farmer, f.wheat, "5")
	require.NoError(t, err)
	assert.Equal(t, enums.TransactionStatusPending, dto.Status)
	assert.True(t, dto.TotalAmount.Equal(q("15")))
	require.NotNil(t, dto.Approval)
	assert.False(t, dto.Approval.Supervisor.Decided())
	assertCounters(t, f.farmerBalance(f.wheat), "0", "0", "0")

	rows, err := f.outbox.ListForAggregate(nil, dto.ID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, enums.EventGrainTransactionRequested, rows[0].EventType)
	assert.Equal(t, float64(1), f.counter("grainhub_transaction_requests_total", map[string]string{
		"type": "deposit", "status": "pending",
	}))
}

func TestAdminCreatedDepositCompletesImmediately(t *testing.T) {
	f := newFixture(t)

	dto, err := f.request(deposit, f.admin, f.wheat, "5")
	require.NoError(t, err)
	assert.Equal(t, enums.TransactionStatusCompleted, dto.Status)
	assert.True(t, dto.Approval.Admin.Approved)
	assertCounters(t, f.farmerBalance(f.wheat), "5", "0", "0")
}

func TestSupervisorCreatedWithdrawReservesUpFront(t *testing.T) {
	f := newFixture(t)
	f.seedStock(f.corn, "8")

	dto, err := f.request(enums.TransactionTypeWithdraw, f.supervisor, f.corn, "3")
	require.NoError(t, err)
	assert.Equal(t, enums.TransactionStatusPending, dto.Status)
	assert.True(t, dto.Approval.Supervisor.Approved)
	assertCounters(t, f.farmerBalance(f.corn), "5", "0", "3")

	_, err = f.act(enums.TransactionTypeWithdraw, dto.ID, f.supervisor, approve)
	assert.True(t, errors.Is(err, ErrAlreadyDecided))

	_, err = f.act(enums.TransactionTypeWithdraw, dto.ID, f.admin, approve)
	require.NoError(t, err)
	assertCounters(t, f.farmerBalance(f.corn), "5", "0", "0")
}

func TestOutboundRequestChecksAvailability(t *testing.T) {
	f := newFixture(t)
	f.seedStock(f.wheat, "2")

	_, err := f.request(enums.TransactionTypeSell, f.farmer, f.wheat, "3")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInsufficientStock))
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeConflict))

	var count int64
	require.NoError(t, f.conn.Table("grain_transactions").Count(&count).Error)
	assert.Zero(t, count)
	assert.Equal(t, float64(1), f.counter("grainhub_transaction_requests_total", map[string]string{
		"type": "sell", "status": "error",
	}))
}

func TestStaffRequestBeyondStoredScaleLeavesStockUntouched(t *testing.T) {
	f := newFixture(t)
	f.seedStock(f.corn, "10")

	_, err := f.request(enums.TransactionTypeWithdraw, f.supervisor, f.corn, "1.2345")
	require.Error(t, err)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))
	assertCounters(t, f.farmerBalance(f.corn), "10", "0", "0")

	var count int64
	require.NoError(t, f.conn.Table("grain_transactions").Count(&count).Error)
	assert.Zero(t, count)

	dto, err := f.request(enums.TransactionTypeWithdraw, f.supervisor, f.corn, "1.235")
	require.NoError(t, err)
	assertCounters(t, f.farmerBalance(f.corn), "8.765", "0", "1.235")

	_, err = f.act(enums.TransactionTypeWithdraw, dto.ID, f.admin, reject)
	require.NoError(t, err)
	assertCounters(t, f.farmerBalance(f.corn), "10", "0", "0")
}

func TestRequestOwnershipRules(t *testing.T) {
	f := newFixture(t)
	neighbour := uuid.New()
	require.NoError(t, f.conn.Create(&models.User{ID: neighbour, DisplayName: "neighbour", Role: string(enums.ActorRoleFarmer)}).Error)
	lines := []transactions.LineInput{{CategoryID: f.wheat, Quantity: q("1")}}

	_, err := f.requests.Request(context.Background(), transactions.RequestInput{
		Type: deposit, OwnerID: neighbour, CreatorID: f.farmer, Lines: lines,
	})
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeForbidden))

	_, err = f.requests.Request(context.Background(), transactions.RequestInput{
		Type: deposit, OwnerID: f.supervisor, CreatorID: f.supervisor, Lines: lines,
	})
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))

	dto, err := f.requests.Request(context.Background(), transactions.RequestInput{
		Type: deposit, OwnerID: neighbour, CreatorID: f.manager, Lines: lines,
	})
	require.NoError(t, err)
	assert.Equal(t, neighbour, dto.OwnerID)
}

func TestGetEnforcesOwnership(t *testing.T) {
	f := newFixture(t)
	dto, err := f.request(deposit, f.farmer, f.wheat, "1")
	require.NoError(t, err)

	got, err := f.requests.Get(context.Background(), transactions.GetInput{Type: deposit, TransactionID: dto.ID, ActorID: f.manager})
	require.NoError(t, err)
	assert.Equal(t, dto.ID, got.ID)
	require.Len(t, got.Lines, 1)

	_, err = f.requests.Get(context.Background(), transactions.GetInput{Type: enums.TransactionTypeLoan, TransactionID: dto.ID, ActorID: f.manager})
	assert.True(t, errors.Is(err, ErrTypeMismatch))
}
