package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/grainhub/warehouse-backend/internal/approvals"
	"github.com/grainhub/warehouse-backend/internal/identity"
	"github.com/grainhub/warehouse-backend/internal/ledger"
	"github.com/grainhub/warehouse-backend/internal/transactions"
	"github.com/grainhub/warehouse-backend/pkg/db/models"
	"github.com/grainhub/warehouse-backend/pkg/enums"
	pkgerrors "github.com/grainhub/warehouse-backend/pkg/errors"
	"github.com/grainhub/warehouse-backend/pkg/logger"
	"github.com/grainhub/warehouse-backend/pkg/metrics"
	"github.com/grainhub/warehouse-backend/pkg/outbox"
	"github.com/grainhub/warehouse-backend/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// ActInput is one approve/reject request against a transaction.
type ActInput struct {
	ExpectedType  enums.TransactionType
	TransactionID uuid.UUID
	ActorID       uuid.UUID
	Action        enums.ApprovalAction
}

// ActResult is the committed state after a decision.
type ActResult struct {
	Transaction transactions.TransactionDTO `json:"transaction"`
	Message     string                      `json:"message"`
}

// EngineParams groups the collaborators of the approval engine.
type EngineParams struct {
	DB           txRunner
	Identity     identity.Service
	Transactions transactions.Repository
	Approvals    approvals.Repository
	Ledger       ledger.Service
	Locker       *ledger.KeyedLocker
	Outbox       outbox.Emitter
	Metrics      *metrics.WorkflowMetrics
	Logger       *logger.Logger
	Clock        func() time.Time
}

// Engine applies approval decisions and moves the ledger in lockstep.
type Engine struct {
	db           txRunner
	identity     identity.Service
	transactions transactions.Repository
	approvals    approvals.Repository
	ledger       ledger.Service
	locker       *ledger.KeyedLocker
	outbox       outbox.Emitter
	metrics      *metrics.WorkflowMetrics
	logg         *logger.Logger
	now          func() time.Time
}

func NewEngine(params EngineParams) (*Engine, error) {
	switch {
	case params.DB == nil:
		return nil, fmt.Errorf("transaction runner required")
	case params.Identity == nil:
		return nil, fmt.Errorf("identity service required")
	case params.Transactions == nil:
		return nil, fmt.Errorf("transactions repository required")
	case params.Approvals == nil:
		return nil, fmt.Errorf("approvals repository required")
	case params.Ledger == nil:
		return nil, fmt.Errorf("ledger service required")
	case params.Locker == nil:
		return nil, fmt.Errorf("ledger locker required")
	case params.Outbox == nil:
		return nil, fmt.Errorf("outbox emitter required")
	case params.Logger == nil:
		return nil, fmt.Errorf("logger required")
	}
	clock := params.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Engine{
		db:           params.DB,
		identity:     params.Identity,
		transactions: params.Transactions,
		approvals:    params.Approvals,
		ledger:       params.Ledger,
		locker:       params.Locker,
		outbox:       params.Outbox,
		metrics:      params.Metrics,
		logg:         params.Logger,
		now:          clock,
	}, nil
}

// Act validates and applies one decision. Slot, ledger, status, and outbox
// writes share a single DB transaction.
func (e *Engine) Act(ctx context.Context, input ActInput) (*ActResult, error) {
	started := time.Now()
	result, role, err := e.act(ctx, input)

	outcome := "error"
	if err != nil {
		if typed := pkgerrors.As(err); typed != nil {
			outcome = string(typed.Code())
		}
		if pkgerrors.Is(err, pkgerrors.CodeIntegrity) {
			e.metrics.IncIntegrityFault(string(input.ExpectedType))
			e.logg.Error(e.logg.WithTransactionID(ctx, input.TransactionID.String()), "ledger integrity fault", err)
		}
	} else {
		outcome = string(result.Transaction.Status)
	}
	e.metrics.ObserveDecision(string(input.ExpectedType), string(role), string(input.Action), outcome, started)
	return result, err
}

func (e *Engine) act(ctx context.Context, input ActInput) (*ActResult, enums.ActorRole, error) {
	if !input.Action.IsValid() {
		return nil, "", pkgerrors.New(pkgerrors.CodeValidation, "action must be approve or reject")
	}
	if input.TransactionID == uuid.Nil {
		return nil, "", pkgerrors.New(pkgerrors.CodeValidation, "transaction id required")
	}

	actor, err := e.identity.Lookup(ctx, input.ActorID)
	if err != nil {
		return nil, "", err
	}
	role := actor.Role
	if !role.IsStaff() {
		return nil, role, pkgerrors.Wrap(pkgerrors.CodeForbidden, ErrForbiddenRole, fmt.Sprintf("%s cannot approve or reject", role))
	}

	txn, err := e.loadTransaction(ctx, e.transactions, input.TransactionID)
	if err != nil {
		return nil, role, err
	}
	if err := checkActionable(txn, input.ExpectedType); err != nil {
		return nil, role, err
	}
	approval, err := e.loadApproval(ctx, e.approvals, txn.ID)
	if err != nil {
		return nil, role, err
	}
	if err := checkSlotOpen(approval, role); err != nil {
		return nil, role, err
	}

	unlock := e.locker.Lock(lockKeys(txn)...)
	defer unlock()

	var committed *models.GrainTransaction
	err = e.db.WithTx(ctx, func(tx *gorm.DB) error {
		txRepo := e.transactions.WithTx(tx)
		current, err := e.loadTransaction(ctx, txRepo, txn.ID)
		if err != nil {
			return err
		}
		if err := checkActionable(current, input.ExpectedType); err != nil {
			return err
		}
		currentApproval, err := e.loadApproval(ctx, e.approvals.WithTx(tx), txn.ID)
		if err != nil {
			return err
		}

		status, err := e.decide(ctx, tx, current, currentApproval, role, input.Action, actor.ID)
		if err != nil {
			return err
		}

		if err := e.emitDecided(ctx, tx, current, *actor, input.Action, status); err != nil {
			return err
		}

		committed, err = e.loadTransaction(ctx, txRepo, txn.ID)
		return err
	})
	if err != nil {
		return nil, role, err
	}

	logCtx := e.logg.WithTransactionID(ctx, committed.ID.String())
	logCtx = e.logg.WithFields(logCtx, map[string]any{
		"transaction_type": committed.Type,
		"actor_role":       role,
		"action":           input.Action,
		"status":           committed.Status,
	})
	e.logg.Info(logCtx, "approval decision applied")

	return &ActResult{
		Transaction: transactions.FromModel(*committed),
		Message:     decisionMessage(committed.Type, input.Action, role),
	}, role, nil
}

// ApplyCreatorDecision pre-fills a staff creator's slot as approved on a
// freshly created transaction. The caller holds the ledger locks and tx.
func (e *Engine) ApplyCreatorDecision(ctx context.Context, tx *gorm.DB, txn *models.GrainTransaction, approval *models.Approval, creator identity.Actor) (enums.TransactionStatus, error) {
	if !creator.Role.IsStaff() {
		return txn.Status, pkgerrors.Wrap(pkgerrors.CodeForbidden, ErrForbiddenRole, "creator cannot approve")
	}
	status, err := e.decide(ctx, tx, txn, approval, creator.Role, enums.ApprovalActionApprove, creator.ID)
	if err != nil && pkgerrors.Is(err, pkgerrors.CodeIntegrity) {
		e.metrics.IncIntegrityFault(string(txn.Type))
	}
	return status, err
}

// decide records the slot, applies the planned ledger steps, and moves the
// status. It must run inside tx with the transaction's keys locked.
func (e *Engine) decide(ctx context.Context, tx *gorm.DB, txn *models.GrainTransaction, approval *models.Approval, role enums.ActorRole, action enums.ApprovalAction, actorID uuid.UUID) (enums.TransactionStatus, error) {
	policy, ok := PolicyFor(txn.Type)
	if !ok {
		return txn.Status, pkgerrors.New(pkgerrors.CodeIntegrity, fmt.Sprintf("no policy for transaction type %q", txn.Type))
	}

	prior := *approval
	slot, err := approvals.Decide(approval, role, action == enums.ApprovalActionApprove, actorID, e.now())
	if err != nil {
		return txn.Status, mapApprovalError(err, role)
	}
	if err := e.approvals.WithTx(tx).SaveDecision(ctx, approval.ID, role, slot); err != nil {
		return txn.Status, mapApprovalError(err, role)
	}

	decision := plan(policy, role, action, &prior)
	for _, st := range decision.steps {
		if err := e.applyStep(ctx, tx, txn, st); err != nil {
			return txn.Status, err
		}
	}

	if decision.status != enums.TransactionStatusPending {
		moved, err := e.transactions.WithTx(tx).UpdateStatus(ctx, txn.ID, enums.TransactionStatusPending, decision.status)
		if err != nil {
			return txn.Status, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update transaction status")
		}
		if !moved {
			return txn.Status, alreadyFinalized(txn.ID)
		}
	}
	txn.Status = decision.status
	return decision.status, nil
}

func (e *Engine) applyStep(ctx context.Context, tx *gorm.DB, txn *models.GrainTransaction, st step) error {
	for _, line := range txn.Lines {
		key := ledger.FarmerKey(txn.OwnerID, line.CategoryID)
		if st.bucket == warehouseBucket {
			if txn.WarehouseID == nil {
				return pkgerrors.New(pkgerrors.CodeIntegrity, "transaction has no warehouse to credit")
			}
			key = ledger.WarehouseKey(*txn.WarehouseID, line.CategoryID)
		}

		var err error
		if st.kind == enums.MovementReserve {
			_, err = e.ledger.Reserve(ctx, tx, key, line.Quantity, txn.ID)
		} else {
			_, err = e.ledger.ApplyDelta(ctx, tx, key, DeltaFor(st.kind, line.Quantity), txn.ID, st.kind)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) emitDecided(ctx context.Context, tx *gorm.DB, txn *models.GrainTransaction, actor identity.Actor, action enums.ApprovalAction, status enums.TransactionStatus) error {
	err := e.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventGrainTransactionDecided,
		AggregateType: enums.AggregateGrainTransaction,
		AggregateID:   txn.ID,
		Actor:         &outbox.ActorRef{UserID: actor.ID, Role: string(actor.Role)},
		Data: payloads.TransactionDecidedEvent{
			TransactionID: txn.ID,
			Type:          txn.Type,
			OwnerID:       txn.OwnerID,
			Role:          actor.Role,
			Action:        action,
			Status:        status,
		},
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit transaction decided")
	}
	return nil
}

func (e *Engine) loadTransaction(ctx context.Context, repo transactions.Repository, id uuid.UUID) (*models.GrainTransaction, error) {
	txn, err := repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "transaction not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load transaction")
	}
	return txn, nil
}

func (e *Engine) loadApproval(ctx context.Context, repo approvals.Repository, transactionID uuid.UUID) (*models.Approval, error) {
	approval, err := repo.FindByTransactionID(ctx, transactionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "approval not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load approval")
	}
	return approval, nil
}

func checkActionable(txn *models.GrainTransaction, expected enums.TransactionType) error {
	if txn.Status != enums.TransactionStatusPending {
		return alreadyFinalized(txn.ID)
	}
	if txn.Type != expected {
		return transactions.TypeMismatchError(expected, txn.Type)
	}
	return nil
}

func checkSlotOpen(approval *models.Approval, role enums.ActorRole) error {
	slot, err := approvals.SlotFor(approval, role)
	if err != nil {
		return mapApprovalError(err, role)
	}
	if slot.Decided() {
		return mapApprovalError(approvals.ErrAlreadyDecided, role)
	}
	return nil
}

func mapApprovalError(err error, role enums.ActorRole) error {
	switch {
	case errors.Is(err, approvals.ErrAlreadyDecided):
		return pkgerrors.Wrap(pkgerrors.CodeConflict, err, fmt.Sprintf("%s has already decided this transaction", role))
	case errors.Is(err, approvals.ErrInvalidRole):
		return pkgerrors.Wrap(pkgerrors.CodeForbidden, err, fmt.Sprintf("%s cannot approve or reject", role))
	default:
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save approval decision")
	}
}

func alreadyFinalized(id uuid.UUID) error {
	return pkgerrors.Wrap(pkgerrors.CodeStateConflict, ErrAlreadyFinalized, "transaction is no longer pending").
		WithDetails(map[string]string{"transaction_id": id.String()})
}

func lockKeys(txn *models.GrainTransaction) []string {
	keys := make([]string, 0, len(txn.Lines)*2)
	for _, line := range txn.Lines {
		keys = append(keys, ledger.FarmerKey(txn.OwnerID, line.CategoryID).String())
		if txn.WarehouseID != nil {
			keys = append(keys, ledger.WarehouseKey(*txn.WarehouseID, line.CategoryID).String())
		}
	}
	return keys
}

func decisionMessage(t enums.TransactionType, action enums.ApprovalAction, role enums.ActorRole) string {
	verb := "approved"
	if action == enums.ApprovalActionReject {
		verb = "rejected"
	}
	return fmt.Sprintf("%s %s by %s", t, verb, role)
}
