package visibility

import (
	"context"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/grainhub/warehouse-backend/internal/identity"
	"github.com/grainhub/warehouse-backend/internal/transactions"
	"github.com/grainhub/warehouse-backend/pkg/config"
	"github.com/grainhub/warehouse-backend/pkg/enums"
	pkgerrors "github.com/grainhub/warehouse-backend/pkg/errors"
	"github.com/grainhub/warehouse-backend/pkg/pagination"
)

// Query selects one role-scoped page of transactions of a single type.
type Query struct {
	ActorID uuid.UUID
	Type    enums.TransactionType
	Status  string
	Page    int
	Limit   int
}

type Bucket struct {
	Count      int64           `json:"count"`
	TotalValue decimal.Decimal `json:"total_value"`
}

type Counts struct {
	All       Bucket `json:"all"`
	Pending   Bucket `json:"pending"`
	Completed Bucket `json:"completed"`
	Rejected  Bucket `json:"rejected"`
}

// ListResult is the role queue view: one page plus per-status totals over
// everything the role can see.
type ListResult struct {
	Status     string                        `json:"status"`
	Role       enums.ActorRole               `json:"role"`
	Pagination pagination.Meta               `json:"pagination"`
	Counts     Counts                        `json:"counts"`
	Data       []transactions.TransactionDTO `json:"data"`
}

type Service interface {
	List(ctx context.Context, q Query) (*ListResult, error)
}

type service struct {
	db           *gorm.DB
	transactions transactions.Repository
	identity     identity.Service
	defaultLimit int
	maxLimit     int
}

func NewService(db *gorm.DB, txRepo transactions.Repository, identitySvc identity.Service, cfg config.VisibilityConfig) (Service, error) {
	switch {
	case db == nil:
		return nil, fmt.Errorf("db required")
	case txRepo == nil:
		return nil, fmt.Errorf("transactions repository required")
	case identitySvc == nil:
		return nil, fmt.Errorf("identity service required")
	}
	return &service{
		db:           db,
		transactions: txRepo,
		identity:     identitySvc,
		defaultLimit: cfg.DefaultPageSize,
		maxLimit:     cfg.MaxPageSize,
	}, nil
}

type statusTotal struct {
	Status     string
	ItemCount  int64
	TotalValue decimal.Decimal
}

type idRow struct {
	ID uuid.UUID
}

func (s *service) List(ctx context.Context, q Query) (*ListResult, error) {
	status, err := normalizeStatus(q.Status)
	if err != nil {
		return nil, err
	}
	if !q.Type.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid transaction type %q", q.Type))
	}
	actor, err := s.identity.Lookup(ctx, q.ActorID)
	if err != nil {
		return nil, err
	}

	params := pagination.Normalize(pagination.Params{Page: q.Page, Limit: q.Limit}, s.defaultLimit, s.maxLimit)
	scope := baseFilter(q, actor.Role)
	where := withStatus(scope, status)
	conn := s.db.WithContext(ctx)

	var total int64
	if err := raw(conn, countQuery(where), &total); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count transactions")
	}

	var rows []idRow
	if err := raw(conn, pageQuery(where, params.Limit, params.Offset()), &rows); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list transaction ids")
	}
	ids := make([]uuid.UUID, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}
	txns, err := s.transactions.FindByIDs(ctx, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load transactions")
	}

	var totals []statusTotal
	if err := raw(conn, statusTotalsQuery(scope), &totals); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count transactions by status")
	}

	data := make([]transactions.TransactionDTO, 0, len(txns))
	for _, txn := range txns {
		data = append(data, transactions.FromModel(txn))
	}

	return &ListResult{
		Status:     status,
		Role:       actor.Role,
		Pagination: pagination.NewMeta(params, total),
		Counts:     foldCounts(totals),
		Data:       data,
	}, nil
}

func raw(conn *gorm.DB, builder sq.SelectBuilder, dest any) error {
	query, args, err := builder.ToSql()
	if err != nil {
		return err
	}
	return conn.Raw(query, args...).Scan(dest).Error
}

func normalizeStatus(value string) (string, error) {
	status := strings.ToLower(strings.TrimSpace(value))
	if status == "" {
		return string(enums.TransactionStatusPending), nil
	}
	if status == StatusAll {
		return status, nil
	}
	parsed, err := enums.ParseTransactionStatus(status)
	if err != nil {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "status must be pending, completed, rejected or all").
			WithDetails(map[string]string{"status": value})
	}
	return string(parsed), nil
}

func foldCounts(totals []statusTotal) Counts {
	counts := Counts{
		All:       Bucket{TotalValue: decimal.Zero},
		Pending:   Bucket{TotalValue: decimal.Zero},
		Completed: Bucket{TotalValue: decimal.Zero},
		Rejected:  Bucket{TotalValue: decimal.Zero},
	}
	for _, row := range totals {
		bucket := Bucket{Count: row.ItemCount, TotalValue: row.TotalValue}
		switch enums.TransactionStatus(row.Status) {
		case enums.TransactionStatusPending:
			counts.Pending = bucket
		case enums.TransactionStatusCompleted:
			counts.Completed = bucket
		case enums.TransactionStatusRejected:
			counts.Rejected = bucket
		default:
			continue
		}
		counts.All.Count += row.ItemCount
		counts.All.TotalValue = counts.All.TotalValue.Add(row.TotalValue)
	}
	return counts
}
