package enums

import "fmt"

// BucketOwnerType distinguishes farmer buckets from warehouse buckets.
type BucketOwnerType string

const (
	BucketOwnerFarmer    BucketOwnerType = "farmer"
	BucketOwnerWarehouse BucketOwnerType = "warehouse"
)

func (o BucketOwnerType) IsValid() bool {
	return o == BucketOwnerFarmer || o == BucketOwnerWarehouse
}

// ParseBucketOwnerType converts raw input into BucketOwnerType.
func ParseBucketOwnerType(value string) (BucketOwnerType, error) {
	owner := BucketOwnerType(value)
	if !owner.IsValid() {
		return "", fmt.Errorf("invalid bucket owner type %q", value)
	}
	return owner, nil
}

// MovementKind labels a row in the ledger movement log.
type MovementKind string

const (
	MovementGrowPending     MovementKind = "grow_pending"
	MovementSettlePending   MovementKind = "settle_pending"
	MovementGrowTotal       MovementKind = "grow_total"
	MovementReserve         MovementKind = "reserve"
	MovementRelease         MovementKind = "release"
	MovementRetain          MovementKind = "retain"
	MovementRollbackReserve MovementKind = "rollback_reserve"
	MovementRollbackPending MovementKind = "rollback_pending"
)

var validMovementKinds = []MovementKind{
	MovementGrowPending,
	MovementSettlePending,
	MovementGrowTotal,
	MovementReserve,
	MovementRelease,
	MovementRetain,
	MovementRollbackReserve,
	MovementRollbackPending,
}

// IsValid reports whether the value is a known movement kind.
func (k MovementKind) IsValid() bool {
	for _, candidate := range validMovementKinds {
		if candidate == k {
			return true
		}
	}
	return false
}
