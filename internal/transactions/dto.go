package transactions

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/grainhub/warehouse-backend/internal/approvals"
	"github.com/grainhub/warehouse-backend/internal/ledger"
	"github.com/grainhub/warehouse-backend/pkg/db/models"
	"github.com/grainhub/warehouse-backend/pkg/enums"
)

// LineInput is one requested grain line.
type LineInput struct {
	CategoryID uuid.UUID
	Quantity   decimal.Decimal
	UnitPrice  decimal.Decimal
	Moisture   *decimal.Decimal
}

// RequestInput carries everything needed to open a transaction.
type RequestInput struct {
	Type        enums.TransactionType
	OwnerID     uuid.UUID
	WarehouseID *uuid.UUID
	CreatorID   uuid.UUID
	Lines       []LineInput
}

// GetInput identifies a transaction read on behalf of an actor.
type GetInput struct {
	Type          enums.TransactionType
	TransactionID uuid.UUID
	ActorID       uuid.UUID
}

type LineDTO struct {
	CategoryID uuid.UUID        `json:"category_id"`
	Quantity   decimal.Decimal  `json:"quantity"`
	UnitPrice  decimal.Decimal  `json:"unit_price"`
	Moisture   *decimal.Decimal `json:"moisture,omitempty"`
}

type ApprovalDTO struct {
	ID         uuid.UUID      `json:"id"`
	Supervisor approvals.Slot `json:"supervisor"`
	Manager    approvals.Slot `json:"manager"`
	Admin      approvals.Slot `json:"admin"`
}

// TransactionDTO is the API shape of a transaction with its approval slots.
type TransactionDTO struct {
	ID          uuid.UUID               `json:"id"`
	Type        enums.TransactionType   `json:"type"`
	OwnerID     uuid.UUID               `json:"owner_id"`
	WarehouseID *uuid.UUID              `json:"warehouse_id,omitempty"`
	CreatedBy   uuid.UUID               `json:"created_by"`
	TotalAmount decimal.Decimal         `json:"total_amount"`
	Status      enums.TransactionStatus `json:"status"`
	Lines       []LineDTO               `json:"lines"`
	Approval    *ApprovalDTO            `json:"approval,omitempty"`
	CreatedAt   time.Time               `json:"created_at"`
	UpdatedAt   time.Time               `json:"updated_at"`
}

// FromModel maps a loaded transaction into its DTO.
func FromModel(txn models.GrainTransaction) TransactionDTO {
	lines := make([]LineDTO, 0, len(txn.Lines))
	for _, line := range txn.Lines {
		lines = append(lines, LineDTO{
			CategoryID: line.CategoryID,
			Quantity:   line.Quantity,
			UnitPrice:  line.UnitPrice,
			Moisture:   line.Moisture,
		})
	}
	dto := TransactionDTO{
		ID:          txn.ID,
		Type:        txn.Type,
		OwnerID:     txn.OwnerID,
		WarehouseID: txn.WarehouseID,
		CreatedBy:   txn.CreatedBy,
		TotalAmount: txn.TotalAmount,
		Status:      txn.Status,
		Lines:       lines,
		CreatedAt:   txn.CreatedAt,
		UpdatedAt:   txn.UpdatedAt,
	}
	if txn.Approval != nil {
		dto.Approval = ApprovalFromModel(txn.Approval)
	}
	return dto
}

func ApprovalFromModel(a *models.Approval) *ApprovalDTO {
	supervisor, _ := approvals.SlotFor(a, enums.ActorRoleSupervisor)
	manager, _ := approvals.SlotFor(a, enums.ActorRoleManager)
	admin, _ := approvals.SlotFor(a, enums.ActorRoleAdmin)
	return &ApprovalDTO{
		ID:         a.ID,
		Supervisor: supervisor,
		Manager:    manager,
		Admin:      admin,
	}
}

// TotalAmount sums quantity times unit price over lines, rounded to the
// stored scale.
func TotalAmount(lines []LineInput) decimal.Decimal {
	total := decimal.Zero
	for _, line := range lines {
		total = total.Add(line.Quantity.Mul(line.UnitPrice))
	}
	return total.Round(ledger.QuantityScale)
}
