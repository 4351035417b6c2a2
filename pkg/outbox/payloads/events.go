package payloads

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/grainhub/warehouse-backend/pkg/enums"
)

// TransactionLine mirrors one grain line inside an event.
type TransactionLine struct {
	CategoryID uuid.UUID       `json:"category_id"`
	Quantity   decimal.Decimal `json:"quantity"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
}

// TransactionRequestedEvent is emitted when a grain transaction is created.
type TransactionRequestedEvent struct {
	TransactionID uuid.UUID               `json:"transaction_id"`
	Type          enums.TransactionType   `json:"type"`
	OwnerID       uuid.UUID               `json:"owner_id"`
	WarehouseID   *uuid.UUID              `json:"warehouse_id,omitempty"`
	Status        enums.TransactionStatus `json:"status"`
	TotalAmount   decimal.Decimal         `json:"total_amount"`
	Lines         []TransactionLine       `json:"lines"`
}

// TransactionDecidedEvent is emitted after a role records a decision.
type TransactionDecidedEvent struct {
	TransactionID uuid.UUID               `json:"transaction_id"`
	Type          enums.TransactionType   `json:"type"`
	OwnerID       uuid.UUID               `json:"owner_id"`
	Role          enums.ActorRole         `json:"role"`
	Action        enums.ApprovalAction    `json:"action"`
	Status        enums.TransactionStatus `json:"status"`
}
