package ledger

import (
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/grainhub/warehouse-backend/pkg/enums"
)

var (
	// ErrNegativeBalance means a delta would push a counter below zero. The
	// ledger never clamps; callers surface it as an integrity fault.
	ErrNegativeBalance = errors.New("ledger counter would go negative")
	// ErrInsufficientStock means a reservation asked for more than total_quantity.
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrEntryNotFound     = errors.New("ledger entry not found")
)

// Key addresses one bucket counter row.
type Key struct {
	OwnerType  enums.BucketOwnerType
	OwnerID    uuid.UUID
	CategoryID uuid.UUID
}

// FarmerKey addresses a farmer's bucket for a category.
func FarmerKey(ownerID, categoryID uuid.UUID) Key {
	return Key{OwnerType: enums.BucketOwnerFarmer, OwnerID: ownerID, CategoryID: categoryID}
}

// WarehouseKey addresses a warehouse's bucket for a category.
func WarehouseKey(warehouseID, categoryID uuid.UUID) Key {
	return Key{OwnerType: enums.BucketOwnerWarehouse, OwnerID: warehouseID, CategoryID: categoryID}
}

func (k Key) String() string {
	return string(k.OwnerType) + "|" + k.OwnerID.String() + "|" + k.CategoryID.String()
}

func (k Key) valid() bool {
	return k.OwnerType.IsValid() && k.OwnerID != uuid.Nil && k.CategoryID != uuid.Nil
}

// QuantityScale is the number of decimal places the NUMERIC columns keep.
const QuantityScale = 3

// FitsScale reports whether v is representable without rounding in a
// NUMERIC(_, QuantityScale) column.
func FitsScale(v decimal.Decimal) bool {
	return v.Equal(v.Truncate(QuantityScale))
}

// Delta is a signed change applied to the three counters at once.
type Delta struct {
	Total   decimal.Decimal
	Pending decimal.Decimal
	Hold    decimal.Decimal
}

func (d Delta) IsZero() bool {
	return d.Total.IsZero() && d.Pending.IsZero() && d.Hold.IsZero()
}

func (d Delta) fitsScale() bool {
	return FitsScale(d.Total) && FitsScale(d.Pending) && FitsScale(d.Hold)
}

// Balance is the read view of a bucket counter row.
type Balance struct {
	EntryID         uuid.UUID             `json:"entry_id"`
	OwnerType       enums.BucketOwnerType `json:"owner_type"`
	OwnerID         uuid.UUID             `json:"owner_id"`
	CategoryID      uuid.UUID             `json:"category_id"`
	TotalQuantity   decimal.Decimal       `json:"total_quantity"`
	PendingQuantity decimal.Decimal       `json:"pending_quantity"`
	HoldQuantity    decimal.Decimal       `json:"hold_quantity"`
	Version         int64                 `json:"version"`
}
