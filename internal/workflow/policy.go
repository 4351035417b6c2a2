package workflow

import (
	"github.com/shopspring/decimal"

	"github.com/grainhub/warehouse-backend/internal/approvals"
	"github.com/grainhub/warehouse-backend/internal/ledger"
	"github.com/grainhub/warehouse-backend/pkg/db/models"
	"github.com/grainhub/warehouse-backend/pkg/enums"
)

// Direction is how the first staff approval touches the farmer's bucket.
type Direction string

const (
	DirectionGrow    Direction = "grow"
	DirectionReserve Direction = "reserve"
)

// Finalization is what the admin approval does with the staged quantity.
type Finalization string

const (
	FinalizePromote Finalization = "promote"
	FinalizeRelease Finalization = "release"
	FinalizeRetain  Finalization = "retain"
)

// Policy parameterizes the one approval algorithm per transaction type.
type Policy struct {
	Direction    Direction
	Finalization Finalization
	// CreditWarehouse credits the counterpart warehouse bucket on completion.
	CreditWarehouse bool
}

var policies = map[enums.TransactionType]Policy{
	enums.TransactionTypeDeposit:  {Direction: DirectionGrow, Finalization: FinalizePromote},
	enums.TransactionTypeWithdraw: {Direction: DirectionReserve, Finalization: FinalizeRelease},
	enums.TransactionTypeSell:     {Direction: DirectionReserve, Finalization: FinalizeRelease, CreditWarehouse: true},
	enums.TransactionTypeLoan:     {Direction: DirectionReserve, Finalization: FinalizeRetain},
}

// PolicyFor returns the policy of a transaction type.
func PolicyFor(t enums.TransactionType) (Policy, bool) {
	p, ok := policies[t]
	return p, ok
}

type bucketSide int

const (
	farmerBucket bucketSide = iota
	warehouseBucket
)

type step struct {
	kind   enums.MovementKind
	bucket bucketSide
}

type decisionPlan struct {
	steps  []step
	status enums.TransactionStatus
}

// plan decides the ledger steps for one decision from the approval state as
// it was before the decision. It has no side effects.
func plan(p Policy, role enums.ActorRole, action enums.ApprovalAction, prior *models.Approval) decisionPlan {
	escalated := approvals.Escalated(prior, role)

	if action == enums.ApprovalActionReject {
		out := decisionPlan{status: enums.TransactionStatusRejected}
		if escalated {
			out.steps = append(out.steps, step{kind: rollbackKind(p)})
		}
		return out
	}

	if role != enums.ActorRoleAdmin {
		out := decisionPlan{status: enums.TransactionStatusPending}
		if !escalated {
			out.steps = append(out.steps, step{kind: stageKind(p)})
		}
		return out
	}

	out := decisionPlan{status: enums.TransactionStatusCompleted}
	switch p.Direction {
	case DirectionGrow:
		if escalated {
			out.steps = append(out.steps, step{kind: enums.MovementSettlePending})
		} else {
			out.steps = append(out.steps, step{kind: enums.MovementGrowTotal})
		}
	case DirectionReserve:
		if !escalated {
			out.steps = append(out.steps, step{kind: enums.MovementReserve})
		}
		if p.Finalization == FinalizeRetain {
			out.steps = append(out.steps, step{kind: enums.MovementRetain})
		} else {
			out.steps = append(out.steps, step{kind: enums.MovementRelease})
		}
		if p.CreditWarehouse {
			out.steps = append(out.steps, step{kind: enums.MovementGrowTotal, bucket: warehouseBucket})
		}
	}
	return out
}

func stageKind(p Policy) enums.MovementKind {
	if p.Direction == DirectionGrow {
		return enums.MovementGrowPending
	}
	return enums.MovementReserve
}

func rollbackKind(p Policy) enums.MovementKind {
	if p.Direction == DirectionGrow {
		return enums.MovementRollbackPending
	}
	return enums.MovementRollbackReserve
}

// DeltaFor maps a movement kind onto counter changes for quantity q.
func DeltaFor(kind enums.MovementKind, q decimal.Decimal) ledger.Delta {
	switch kind {
	case enums.MovementGrowPending:
		return ledger.Delta{Pending: q}
	case enums.MovementSettlePending:
		return ledger.Delta{Pending: q.Neg(), Total: q}
	case enums.MovementGrowTotal:
		return ledger.Delta{Total: q}
	case enums.MovementReserve:
		return ledger.Delta{Total: q.Neg(), Hold: q}
	case enums.MovementRelease:
		return ledger.Delta{Hold: q.Neg()}
	case enums.MovementRollbackReserve:
		return ledger.Delta{Total: q, Hold: q.Neg()}
	case enums.MovementRollbackPending:
		return ledger.Delta{Pending: q.Neg()}
	default:
		return ledger.Delta{}
	}
}
