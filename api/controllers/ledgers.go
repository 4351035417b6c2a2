package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/grainhub/warehouse-backend/api/responses"
	"github.com/grainhub/warehouse-backend/api/validators"
	"github.com/grainhub/warehouse-backend/internal/identity"
	"github.com/grainhub/warehouse-backend/internal/ledger"
	"github.com/grainhub/warehouse-backend/pkg/db/models"
	"github.com/grainhub/warehouse-backend/pkg/enums"
	pkgerrors "github.com/grainhub/warehouse-backend/pkg/errors"
	"github.com/grainhub/warehouse-backend/pkg/logger"
)

type balanceLister interface {
	ListEntries(ctx context.Context, ownerType enums.BucketOwnerType, ownerID uuid.UUID) ([]ledger.Balance, error)
}

type movementReader interface {
	GetEntry(ctx context.Context, key ledger.Key) (*ledger.Balance, error)
	ListMovements(ctx context.Context, entryID uuid.UUID) ([]models.LedgerMovement, error)
}

type ledgerResponse struct {
	OwnerType enums.BucketOwnerType `json:"owner_type"`
	OwnerID   uuid.UUID             `json:"owner_id"`
	Balances  []ledgerBalance       `json:"balances"`
}

type ledgerBalance struct {
	ledger.Balance
	Available decimal.Decimal `json:"available_quantity"`
}

type movementsResponse struct {
	Balance   ledgerBalance   `json:"balance"`
	Movements []movementEntry `json:"movements"`
}

type movementEntry struct {
	ID            uuid.UUID          `json:"id"`
	TransactionID uuid.UUID          `json:"transaction_id"`
	Kind          enums.MovementKind `json:"kind"`
	TotalDelta    decimal.Decimal    `json:"total_delta"`
	PendingDelta  decimal.Decimal    `json:"pending_delta"`
	HoldDelta     decimal.Decimal    `json:"hold_delta"`
	CreatedAt     time.Time          `json:"created_at"`
}

// LedgerBalances lists per-category counters for one bucket owner. Farmers
// may only read their own bucket; warehouse buckets are staff only.
func LedgerBalances(balances balanceLister, identitySvc identity.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ownerType, ownerID, err := authorizeLedgerRead(r, identitySvc)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		entries, err := balances.ListEntries(r.Context(), ownerType, ownerID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out := ledgerResponse{
			OwnerType: ownerType,
			OwnerID:   ownerID,
			Balances:  make([]ledgerBalance, 0, len(entries)),
		}
		for _, entry := range entries {
			out.Balances = append(out.Balances, withAvailable(entry))
		}
		responses.WriteSuccess(w, out)
	}
}

// LedgerMovements returns one category's counters with the movement log that
// produced them, oldest first.
func LedgerMovements(reader movementReader, identitySvc identity.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ownerType, ownerID, err := authorizeLedgerRead(r, identitySvc)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		categoryID, err := validators.ParseQueryUUID(r, "category_id", true)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		key := ledger.Key{OwnerType: ownerType, OwnerID: ownerID, CategoryID: categoryID}
		balance, err := reader.GetEntry(r.Context(), key)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		movements, err := reader.ListMovements(r.Context(), balance.EntryID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		out := movementsResponse{
			Balance:   withAvailable(*balance),
			Movements: make([]movementEntry, 0, len(movements)),
		}
		for _, m := range movements {
			out.Movements = append(out.Movements, movementEntry{
				ID:            m.ID,
				TransactionID: m.TransactionID,
				Kind:          m.Kind,
				TotalDelta:    m.TotalDelta,
				PendingDelta:  m.PendingDelta,
				HoldDelta:     m.HoldDelta,
				CreatedAt:     m.CreatedAt,
			})
		}
		responses.WriteSuccess(w, out)
	}
}

// authorizeLedgerRead resolves the bucket addressed by the request and checks
// the caller may read it.
func authorizeLedgerRead(r *http.Request, identitySvc identity.Service) (enums.BucketOwnerType, uuid.UUID, error) {
	actorID, err := requireActor(r)
	if err != nil {
		return "", uuid.Nil, err
	}
	ownerID, err := validators.ParseUUIDParam(r, "ownerId")
	if err != nil {
		return "", uuid.Nil, err
	}
	ownerType, err := validators.ParseQueryOwnerType(r)
	if err != nil {
		return "", uuid.Nil, err
	}

	actor, err := identitySvc.Lookup(r.Context(), actorID)
	if err != nil {
		return "", uuid.Nil, err
	}
	if actor.Role == enums.ActorRoleFarmer && (ownerType != enums.BucketOwnerFarmer || ownerID != actor.ID) {
		return "", uuid.Nil, pkgerrors.New(pkgerrors.CodeForbidden, "farmers may only read their own ledger")
	}
	if ownerType == enums.BucketOwnerFarmer && ownerID != actor.ID {
		if _, err := identitySvc.Lookup(r.Context(), ownerID); err != nil {
			return "", uuid.Nil, err
		}
	}
	return ownerType, ownerID, nil
}

func withAvailable(b ledger.Balance) ledgerBalance {
	return ledgerBalance{Balance: b, Available: b.TotalQuantity}
}
