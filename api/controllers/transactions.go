package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/grainhub/warehouse-backend/api/middleware"
	"github.com/grainhub/warehouse-backend/api/responses"
	"github.com/grainhub/warehouse-backend/api/validators"
	"github.com/grainhub/warehouse-backend/internal/transactions"
	"github.com/grainhub/warehouse-backend/internal/visibility"
	"github.com/grainhub/warehouse-backend/internal/workflow"
	"github.com/grainhub/warehouse-backend/pkg/enums"
	pkgerrors "github.com/grainhub/warehouse-backend/pkg/errors"
	"github.com/grainhub/warehouse-backend/pkg/logger"
)

// Larger limits are accepted and clamped by the visibility service.
const maxQueryLimit = 10_000

// ApprovalActor applies one approve/reject decision.
type ApprovalActor interface {
	Act(ctx context.Context, input workflow.ActInput) (*workflow.ActResult, error)
}

type lineRequest struct {
	CategoryID uuid.UUID        `json:"category_id" validate:"required"`
	Quantity   decimal.Decimal  `json:"quantity"`
	UnitPrice  decimal.Decimal  `json:"unit_price"`
	Moisture   *decimal.Decimal `json:"moisture,omitempty"`
}

type transactionRequest struct {
	OwnerID     *uuid.UUID    `json:"owner_id,omitempty"`
	WarehouseID *uuid.UUID    `json:"warehouse_id,omitempty"`
	Lines       []lineRequest `json:"lines" validate:"required,min=1,dive"`
}

type actionRequest struct {
	Action string `json:"action" validate:"required,oneof=approve reject"`
}

// TransactionRequest opens a transaction of the routed type. Farmers may omit
// owner_id; it defaults to the caller.
func TransactionRequest(svc transactions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actorID, err := requireActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		txType, err := validators.ParseTransactionTypeParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body transactionRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		ownerID := actorID
		if body.OwnerID != nil {
			ownerID = *body.OwnerID
		}
		lines := make([]transactions.LineInput, 0, len(body.Lines))
		for _, line := range body.Lines {
			lines = append(lines, transactions.LineInput{
				CategoryID: line.CategoryID,
				Quantity:   line.Quantity,
				UnitPrice:  line.UnitPrice,
				Moisture:   line.Moisture,
			})
		}

		dto, err := svc.Request(r.Context(), transactions.RequestInput{
			Type:        txType,
			OwnerID:     ownerID,
			WarehouseID: body.WarehouseID,
			CreatorID:   actorID,
			Lines:       lines,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, dto)
	}
}

// TransactionAction records the caller's approve/reject decision on their slot.
func TransactionAction(actor ApprovalActor, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actorID, err := requireActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		txType, err := validators.ParseTransactionTypeParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		transactionID, err := validators.ParseUUIDParam(r, "transactionId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body actionRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithTransactionID(ctx, transactionID.String())
		}
		result, err := actor.Act(ctx, workflow.ActInput{
			ExpectedType:  txType,
			TransactionID: transactionID,
			ActorID:       actorID,
			Action:        enums.ApprovalAction(body.Action),
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// TransactionList returns the caller's role queue for one transaction type.
func TransactionList(svc visibility.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actorID, err := requireActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		txType, err := validators.ParseTransactionTypeParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		page, err := validators.ParseQueryInt(r, "page", 1, 1, 1_000_000)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", 0, 1, maxQueryLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.List(r.Context(), visibility.Query{
			ActorID: actorID,
			Type:    txType,
			Status:  r.URL.Query().Get("status"),
			Page:    page,
			Limit:   limit,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// TransactionDetail returns one transaction with its approval slots.
func TransactionDetail(svc transactions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actorID, err := requireActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		txType, err := validators.ParseTransactionTypeParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		transactionID, err := validators.ParseUUIDParam(r, "transactionId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		dto, err := svc.Get(r.Context(), transactions.GetInput{
			Type:          txType,
			TransactionID: transactionID,
			ActorID:       actorID,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, dto)
	}
}

func requireActor(r *http.Request) (uuid.UUID, error) {
	actorID, ok := middleware.ActorIDFromContext(r.Context())
	if !ok {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	return actorID, nil
}
