package visibility

import (
	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/grainhub/warehouse-backend/pkg/enums"
)

const (
	StatusAll = "all"

	fromClause = "grain_transactions t"
	joinClause = "approvals a ON a.transaction_id = t.id"
)

var pendingOnly = sq.Eq{"t.status": string(enums.TransactionStatusPending)}
var settledOnly = sq.NotEq{"t.status": string(enums.TransactionStatusPending)}

// roleScope is the row filter for the queue a role works from. Pending rows
// follow the strict escalation step; settled rows show everything the
// previous step approved.
func roleScope(role enums.ActorRole, actorID uuid.UUID) sq.Sqlizer {
	switch role {
	case enums.ActorRoleSupervisor:
		return sq.Or{
			sq.Expr("a.supervisor_decided_at IS NOT NULL"),
			sq.Eq{
				"a.supervisor_approved": false,
				"a.manager_approved":    false,
				"a.admin_approved":      false,
			},
		}
	case enums.ActorRoleManager:
		return escalationStep("a.supervisor_approved", "a.manager_decided_at")
	case enums.ActorRoleAdmin:
		return escalationStep("a.manager_approved", "a.admin_decided_at")
	default:
		return sq.Eq{"t.owner_id": actorID}
	}
}

func escalationStep(previousApproved, ownDecidedAt string) sq.Sqlizer {
	return sq.Or{
		sq.And{pendingOnly, sq.Eq{previousApproved: true}, sq.Expr(ownDecidedAt + " IS NULL")},
		sq.And{settledOnly, sq.Eq{previousApproved: true}},
	}
}

func baseFilter(q Query, role enums.ActorRole) sq.And {
	return sq.And{
		sq.Eq{"t.type": string(q.Type)},
		roleScope(role, q.ActorID),
	}
}

func withStatus(filter sq.And, status string) sq.And {
	if status == StatusAll {
		return filter
	}
	return append(filter, sq.Eq{"t.status": status})
}

func countQuery(where sq.Sqlizer) sq.SelectBuilder {
	return sq.Select("COUNT(*)").
		From(fromClause).
		Join(joinClause).
		Where(where)
}

func pageQuery(where sq.Sqlizer, limit, offset int) sq.SelectBuilder {
	return sq.Select("t.id").
		From(fromClause).
		Join(joinClause).
		Where(where).
		OrderBy("t.created_at DESC", "t.id DESC").
		Limit(uint64(limit)).
		Offset(uint64(offset))
}

func statusTotalsQuery(where sq.Sqlizer) sq.SelectBuilder {
	return sq.Select(
		"t.status AS status",
		"COUNT(*) AS item_count",
		"COALESCE(SUM(t.total_amount), 0) AS total_value",
	).
		From(fromClause).
		Join(joinClause).
		Where(where).
		GroupBy("t.status")
}
