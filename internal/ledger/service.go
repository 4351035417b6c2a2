package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/grainhub/warehouse-backend/pkg/db/models"
	"github.com/grainhub/warehouse-backend/pkg/enums"
	pkgerrors "github.com/grainhub/warehouse-backend/pkg/errors"
)

// Service moves bucket counters. Every mutation runs on the caller's
// transaction so counters, movements, and approval state commit together.
type Service interface {
	ApplyDelta(ctx context.Context, tx *gorm.DB, key Key, delta Delta, transactionID uuid.UUID, kind enums.MovementKind) (*models.LedgerMovement, error)
	Reserve(ctx context.Context, tx *gorm.DB, key Key, qty decimal.Decimal, transactionID uuid.UUID) (*models.LedgerMovement, error)
	Available(ctx context.Context, tx *gorm.DB, key Key) (decimal.Decimal, error)
	GetEntry(ctx context.Context, key Key) (*Balance, error)
	ListEntries(ctx context.Context, ownerType enums.BucketOwnerType, ownerID uuid.UUID) ([]Balance, error)
	ListMovements(ctx context.Context, entryID uuid.UUID) ([]models.LedgerMovement, error)
}

type service struct {
	repo Repository
}

// NewService wires a ledger service with the provided repository.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) ApplyDelta(ctx context.Context, tx *gorm.DB, key Key, delta Delta, transactionID uuid.UUID, kind enums.MovementKind) (*models.LedgerMovement, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction required for ledger mutation")
	}
	if !key.valid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid ledger key")
	}
	if transactionID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transaction id required")
	}
	if !kind.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid movement kind %q", kind))
	}
	if !delta.fitsScale() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("ledger delta exceeds %d decimal places", QuantityScale))
	}

	repo := s.repo.WithTx(tx)
	entry, err := repo.FindOrCreateEntry(ctx, key)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load ledger entry")
	}

	if !delta.IsZero() {
		ok, err := repo.IncrementCounters(ctx, entry.ID, delta)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.ClassifyPG(err, pkgerrors.CodeDependency), err, "update ledger entry")
		}
		if !ok {
			return nil, pkgerrors.Wrap(pkgerrors.CodeIntegrity, ErrNegativeBalance,
				fmt.Sprintf("%s on %s would drive a counter negative", kind, key))
		}
	}

	return s.recordMovement(ctx, repo, entry.ID, transactionID, kind, delta)
}

// Reserve moves qty from total to hold. Unlike ApplyDelta, a short total is a
// client-visible conflict rather than an integrity fault.
func (s *service) Reserve(ctx context.Context, tx *gorm.DB, key Key, qty decimal.Decimal, transactionID uuid.UUID) (*models.LedgerMovement, error) {
	if !qty.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reservation quantity must be positive")
	}
	movement, err := s.ApplyDelta(ctx, tx, key, Delta{Total: qty.Neg(), Hold: qty}, transactionID, enums.MovementReserve)
	if err == nil || !errors.Is(err, ErrNegativeBalance) {
		return movement, err
	}

	available, lookupErr := s.Available(ctx, tx, key)
	if lookupErr != nil {
		return nil, lookupErr
	}
	if available.LessThan(qty) {
		return nil, InsufficientStockError(key.CategoryID, available, qty)
	}
	return nil, err
}

// Available is the quantity a new outbound request or reservation may draw on.
func (s *service) Available(ctx context.Context, tx *gorm.DB, key Key) (decimal.Decimal, error) {
	entry, err := s.repo.WithTx(tx).FindEntry(ctx, key)
	if err != nil {
		if errors.Is(err, ErrEntryNotFound) {
			return decimal.Zero, nil
		}
		return decimal.Zero, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load ledger entry")
	}
	return entry.TotalQuantity, nil
}

func (s *service) GetEntry(ctx context.Context, key Key) (*Balance, error) {
	entry, err := s.repo.FindEntry(ctx, key)
	if err != nil {
		if errors.Is(err, ErrEntryNotFound) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "ledger entry not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load ledger entry")
	}
	balance := toBalance(*entry)
	return &balance, nil
}

func (s *service) ListEntries(ctx context.Context, ownerType enums.BucketOwnerType, ownerID uuid.UUID) ([]Balance, error) {
	if !ownerType.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid owner type")
	}
	if ownerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "owner id required")
	}
	entries, err := s.repo.ListEntries(ctx, ownerType, ownerID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list ledger entries")
	}
	balances := make([]Balance, 0, len(entries))
	for _, entry := range entries {
		balances = append(balances, toBalance(entry))
	}
	return balances, nil
}

func (s *service) ListMovements(ctx context.Context, entryID uuid.UUID) ([]models.LedgerMovement, error) {
	if entryID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "entry id required")
	}
	movements, err := s.repo.ListMovements(ctx, entryID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list ledger movements")
	}
	return movements, nil
}

func (s *service) recordMovement(ctx context.Context, repo Repository, entryID, transactionID uuid.UUID, kind enums.MovementKind, delta Delta) (*models.LedgerMovement, error) {
	movement := &models.LedgerMovement{
		EntryID:       entryID,
		TransactionID: transactionID,
		Kind:          kind,
		TotalDelta:    delta.Total,
		PendingDelta:  delta.Pending,
		HoldDelta:     delta.Hold,
	}
	if err := repo.CreateMovement(ctx, movement); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.ClassifyPG(err, pkgerrors.CodeDependency), err, "append ledger movement")
	}
	return movement, nil
}

// InsufficientStockError reports a short bucket with the numbers the client needs.
func InsufficientStockError(categoryID uuid.UUID, available, requested decimal.Decimal) error {
	return pkgerrors.Wrap(pkgerrors.CodeConflict, ErrInsufficientStock, "insufficient stock").
		WithDetails(map[string]any{
			"category_id": categoryID.String(),
			"available":   available.String(),
			"requested":   requested.String(),
		})
}

func toBalance(entry models.LedgerEntry) Balance {
	return Balance{
		EntryID:         entry.ID,
		OwnerType:       entry.OwnerType,
		OwnerID:         entry.OwnerID,
		CategoryID:      entry.CategoryID,
		TotalQuantity:   entry.TotalQuantity,
		PendingQuantity: entry.PendingQuantity,
		HoldQuantity:    entry.HoldQuantity,
		Version:         entry.Version,
	}
}
