package workflow

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/grainhub/warehouse-backend/internal/approvals"
	"github.com/grainhub/warehouse-backend/internal/identity"
	"github.com/grainhub/warehouse-backend/internal/ledger"
	"github.com/grainhub/warehouse-backend/internal/transactions"
	"github.com/grainhub/warehouse-backend/pkg/db"
	"github.com/grainhub/warehouse-backend/pkg/db/models"
	"github.com/grainhub/warehouse-backend/pkg/enums"
	"github.com/grainhub/warehouse-backend/pkg/logger"
	"github.com/grainhub/warehouse-backend/pkg/metrics"
	"github.com/grainhub/warehouse-backend/pkg/migrate"
	"github.com/grainhub/warehouse-backend/pkg/outbox"
)

type fixture struct {
	t        *testing.T
	conn     *gorm.DB
	engine   *Engine
	requests transactions.Service
	ledger   ledger.Service
	registry *prometheus.Registry
	outbox   *outbox.Repository

	farmer     uuid.UUID
	supervisor uuid.UUID
	manager    uuid.UUID
	admin      uuid.UUID
	warehouse  uuid.UUID
	wheat      uuid.UUID
	corn       uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dsn := "file:workflow_" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, migrate.AutoMigrate(conn))

	f := &fixture{
		t:          t,
		conn:       conn,
		registry:   prometheus.NewRegistry(),
		farmer:     uuid.New(),
		supervisor: uuid.New(),
		manager:    uuid.New(),
		admin:      uuid.New(),
		warehouse:  uuid.New(),
		wheat:      uuid.New(),
		corn:       uuid.New(),
	}
	for id, role := range map[uuid.UUID]enums.ActorRole{
		f.farmer:     enums.ActorRoleFarmer,
		f.supervisor: enums.ActorRoleSupervisor,
		f.manager:    enums.ActorRoleManager,
		f.admin:      enums.ActorRoleAdmin,
	} {
		require.NoError(t, conn.Create(&models.User{ID: id, DisplayName: string(role), Role: string(role)}).Error)
	}

	logg := logger.New(logger.Options{ServiceName: "workflow-test", Output: io.Discard})
	identitySvc, err := identity.NewService(identity.NewRepository(conn))
	require.NoError(t, err)
	ledgerSvc, err := ledger.NewService(ledger.NewRepository(conn))
	require.NoError(t, err)
	f.ledger = ledgerSvc
	f.outbox = outbox.NewRepository(conn)
	emitter := outbox.NewService(f.outbox, logg)
	locker := ledger.NewKeyedLocker()
	wfMetrics := metrics.NewWorkflowMetrics(f.registry)
	client := db.NewFromConn(conn)

	f.engine, err = NewEngine(EngineParams{
		DB:           client,
		Identity:     identitySvc,
		Transactions: transactions.NewRepository(conn),
		Approvals:    approvals.NewRepository(conn),
		Ledger:       ledgerSvc,
		Locker:       locker,
		Outbox:       emitter,
		Metrics:      wfMetrics,
		Logger:       logg,
		Clock:        func() time.Time { return time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC) },
	})
	require.NoError(t, err)

	f.requests, err = transactions.NewService(transactions.ServiceParams{
		DB:        client,
		Repo:      transactions.NewRepository(conn),
		Approvals: approvals.NewRepository(conn),
		Identity:  identitySvc,
		Ledger:    ledgerSvc,
		Locker:    locker,
		Decider:   f.engine,
		Outbox:    emitter,
		Metrics:   wfMetrics,
		Logger:    logg,
	})
	require.NoError(t, err)
	return f
}

func q(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func (f *fixture) seedStock(category uuid.UUID, amount string) {
	f.t.Helper()
	require.NoError(f.t, f.conn.Transaction(func(tx *gorm.DB) error {
		_, err := f.ledger.ApplyDelta(context.Background(), tx, ledger.FarmerKey(f.farmer, category),
			ledger.Delta{Total: q(amount)}, uuid.New(), enums.MovementGrowTotal)
		return err
	}))
}

// open creates a pending transaction with an empty approval, bypassing the
// request path so engine tests start from a known state.
func (f *fixture) open(txType enums.TransactionType, lines map[uuid.UUID]string) uuid.UUID {
	f.t.Helper()
	txn := &models.GrainTransaction{
		Type:        txType,
		OwnerID:     f.farmer,
		CreatedBy:   f.farmer,
		TotalAmount: decimal.Zero,
		Status:      enums.TransactionStatusPending,
	}
	if txType.RequiresWarehouse() {
		txn.WarehouseID = &f.warehouse
	}
	position := 0
	for category, amount := range lines {
		txn.Lines = append(txn.Lines, models.TransactionLine{
			Position:   position,
			CategoryID: category,
			Quantity:   q(amount),
			UnitPrice:  q("2"),
		})
		position++
	}
	require.NoError(f.t, transactions.NewRepository(f.conn).Create(context.Background(), txn))
	require.NoError(f.t, approvals.NewRepository(f.conn).Create(context.Background(), &models.Approval{TransactionID: txn.ID}))
	return txn.ID
}

func (f *fixture) act(txType enums.TransactionType, id, actor uuid.UUID, action enums.ApprovalAction) (*ActResult, error) {
	return f.engine.Act(context.Background(), ActInput{
		ExpectedType:  txType,
		TransactionID: id,
		ActorID:       actor,
		Action:        action,
	})
}

func (f *fixture) balance(key ledger.Key) ledger.Balance {
	f.t.Helper()
	balance, err := f.ledger.GetEntry(context.Background(), key)
	if err != nil {
		return ledger.Balance{}
	}
	return *balance
}

func (f *fixture) farmerBalance(category uuid.UUID) ledger.Balance {
	return f.balance(ledger.FarmerKey(f.farmer, category))
}

func (f *fixture) status(id uuid.UUID) enums.TransactionStatus {
	f.t.Helper()
	txn, err := transactions.NewRepository(f.conn).FindByID(context.Background(), id)
	require.NoError(f.t, err)
	return txn.Status
}

func (f *fixture) counter(name string, labels map[string]string) float64 {
	f.t.Helper()
	families, err := f.registry.Gather()
	require.NoError(f.t, err)
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		for _, metric := range family.GetMetric() {
			if labelsMatch(metric.GetLabel(), labels) {
				return metric.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func labelsMatch(pairs []*dto.LabelPair, want map[string]string) bool {
	matched := 0
	for _, pair := range pairs {
		if value, ok := want[pair.GetName()]; ok {
			if value != pair.GetValue() {
				return false
			}
			matched++
		}
	}
	return matched == len(want)
}

func assertCounters(t *testing.T, b ledger.Balance, total, pending, hold string) {
	t.Helper()
	require.Truef(t, b.TotalQuantity.Equal(q(total)), "total: want %s got %s", total, b.TotalQuantity)
	require.Truef(t, b.PendingQuantity.Equal(q(pending)), "pending: want %s got %s", pending, b.PendingQuantity)
	require.Truef(t, b.HoldQuantity.Equal(q(hold)), "hold: want %s got %s", hold, b.HoldQuantity)
}
