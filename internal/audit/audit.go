// Package audit reconciles ledger counters against the movement log and the
// transaction history that produced it.
package audit

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/grainhub/warehouse-backend/internal/ledger"
	"github.com/grainhub/warehouse-backend/pkg/db/models"
	"github.com/grainhub/warehouse-backend/pkg/enums"
)

type MismatchKind string

const (
	MismatchCounterDrift   MismatchKind = "counter_drift"
	MismatchNegative       MismatchKind = "negative_counter"
	MismatchTransactionNet MismatchKind = "transaction_net"
)

// Mismatch is one reconciliation failure.
type Mismatch struct {
	Kind          MismatchKind
	EntryID       uuid.UUID
	TransactionID uuid.UUID
	Want          ledger.Delta
	Got           ledger.Delta
}

func (m *Mismatch) Error() string {
	return fmt.Sprintf("%s entry=%s transaction=%s want=%s got=%s",
		m.Kind, m.EntryID, m.TransactionID, formatDelta(m.Want), formatDelta(m.Got))
}

func formatDelta(d ledger.Delta) string {
	return fmt.Sprintf("(total %s, pending %s, hold %s)", d.Total, d.Pending, d.Hold)
}

// Report summarizes one reconciliation pass.
type Report struct {
	EntriesChecked      int
	TransactionsChecked int
	Mismatches          []*Mismatch
}

type ledgerReader interface {
	ListAllEntries(ctx context.Context) ([]models.LedgerEntry, error)
	SumMovements(ctx context.Context) ([]ledger.MovementSum, error)
}

type transactionReader interface {
	ListByStatus(ctx context.Context, status enums.TransactionStatus) ([]models.GrainTransaction, error)
}

type Auditor struct {
	ledger       ledgerReader
	transactions transactionReader
}

func NewAuditor(ledgerRepo ledgerReader, txRepo transactionReader) (*Auditor, error) {
	if ledgerRepo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	if txRepo == nil {
		return nil, fmt.Errorf("transactions repository required")
	}
	return &Auditor{ledger: ledgerRepo, transactions: txRepo}, nil
}

type sumKey struct {
	transactionID uuid.UUID
	entryID       uuid.UUID
}

// Run checks every entry and every transaction. The returned error combines
// all mismatches; the report carries them individually.
func (a *Auditor) Run(ctx context.Context) (*Report, error) {
	entries, err := a.ledger.ListAllEntries(ctx)
	if err != nil {
		return nil, fmt.Errorf("list ledger entries: %w", err)
	}
	sums, err := a.ledger.SumMovements(ctx)
	if err != nil {
		return nil, fmt.Errorf("sum ledger movements: %w", err)
	}

	perEntry := make(map[uuid.UUID]ledger.Delta, len(entries))
	perTxn := make(map[sumKey]ledger.Delta, len(sums))
	for _, s := range sums {
		delta := ledger.Delta{Total: s.Total, Pending: s.Pending, Hold: s.Hold}
		perEntry[s.EntryID] = add(perEntry[s.EntryID], delta)
		perTxn[sumKey{s.TransactionID, s.EntryID}] = delta
	}

	report := &Report{EntriesChecked: len(entries)}
	var errs error
	byKey := make(map[string]uuid.UUID, len(entries))
	for _, entry := range entries {
		key := ledger.Key{OwnerType: entry.OwnerType, OwnerID: entry.OwnerID, CategoryID: entry.CategoryID}
		byKey[key.String()] = entry.ID

		got := ledger.Delta{Total: entry.TotalQuantity, Pending: entry.PendingQuantity, Hold: entry.HoldQuantity}
		if got.Total.IsNegative() || got.Pending.IsNegative() || got.Hold.IsNegative() {
			errs = multierr.Append(errs, &Mismatch{Kind: MismatchNegative, EntryID: entry.ID, Got: got})
		}
		if want := perEntry[entry.ID]; !equal(want, got) {
			errs = multierr.Append(errs, &Mismatch{Kind: MismatchCounterDrift, EntryID: entry.ID, Want: want, Got: got})
		}
	}

	for _, status := range []enums.TransactionStatus{
		enums.TransactionStatusPending,
		enums.TransactionStatusCompleted,
		enums.TransactionStatusRejected,
	} {
		txns, err := a.transactions.ListByStatus(ctx, status)
		if err != nil {
			return nil, fmt.Errorf("list %s transactions: %w", status, err)
		}
		for _, txn := range txns {
			report.TransactionsChecked++
			errs = multierr.Append(errs, checkTransaction(txn, byKey, perTxn))
		}
	}

	for _, e := range multierr.Errors(errs) {
		if m, ok := e.(*Mismatch); ok {
			report.Mismatches = append(report.Mismatches, m)
		}
	}
	return report, errs
}

func checkTransaction(txn models.GrainTransaction, byKey map[string]uuid.UUID, perTxn map[sumKey]ledger.Delta) error {
	var errs error
	for _, line := range txn.Lines {
		for _, exp := range expectedEffects(txn, line) {
			entryID, ok := byKey[exp.key.String()]
			got := ledger.Delta{}
			if ok {
				got = perTxn[sumKey{txn.ID, entryID}]
			}
			if matchesAny(got, exp.accepted) {
				continue
			}
			errs = multierr.Append(errs, &Mismatch{
				Kind:          MismatchTransactionNet,
				EntryID:       entryID,
				TransactionID: txn.ID,
				Want:          exp.accepted[len(exp.accepted)-1],
				Got:           got,
			})
		}
	}
	return errs
}

type effect struct {
	key      ledger.Key
	accepted []ledger.Delta
}

// expectedEffects lists the net movement a line may have left on each bucket.
// Pending transactions may sit before or after their first staging step.
func expectedEffects(txn models.GrainTransaction, line models.TransactionLine) []effect {
	q := line.Quantity
	zero := ledger.Delta{}
	farmer := ledger.FarmerKey(txn.OwnerID, line.CategoryID)
	staged := ledger.Delta{Pending: q}
	if txn.Type.IsOutbound() {
		staged = ledger.Delta{Total: q.Neg(), Hold: q}
	}

	switch txn.Status {
	case enums.TransactionStatusPending:
		return []effect{{key: farmer, accepted: []ledger.Delta{zero, staged}}}
	case enums.TransactionStatusRejected:
		return []effect{{key: farmer, accepted: []ledger.Delta{zero}}}
	}

	switch txn.Type {
	case enums.TransactionTypeDeposit:
		return []effect{{key: farmer, accepted: []ledger.Delta{{Total: q}}}}
	case enums.TransactionTypeLoan:
		return []effect{{key: farmer, accepted: []ledger.Delta{staged}}}
	case enums.TransactionTypeSell:
		effects := []effect{{key: farmer, accepted: []ledger.Delta{{Total: q.Neg()}}}}
		if txn.WarehouseID != nil {
			effects = append(effects, effect{
				key:      ledger.WarehouseKey(*txn.WarehouseID, line.CategoryID),
				accepted: []ledger.Delta{{Total: q}},
			})
		}
		return effects
	default:
		return []effect{{key: farmer, accepted: []ledger.Delta{{Total: q.Neg()}}}}
	}
}

func matchesAny(got ledger.Delta, accepted []ledger.Delta) bool {
	for _, want := range accepted {
		if equal(want, got) {
			return true
		}
	}
	return false
}

func add(a, b ledger.Delta) ledger.Delta {
	return ledger.Delta{
		Total:   a.Total.Add(b.Total),
		Pending: a.Pending.Add(b.Pending),
		Hold:    a.Hold.Add(b.Hold),
	}
}

func equal(a, b ledger.Delta) bool {
	return a.Total.Equal(b.Total) && a.Pending.Equal(b.Pending) && a.Hold.Equal(b.Hold)
}
