package transactions

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/grainhub/warehouse-backend/internal/approvals"
	"github.com/grainhub/warehouse-backend/internal/identity"
	"github.com/grainhub/warehouse-backend/internal/ledger"
	"github.com/grainhub/warehouse-backend/pkg/db/models"
	"github.com/grainhub/warehouse-backend/pkg/enums"
	pkgerrors "github.com/grainhub/warehouse-backend/pkg/errors"
	"github.com/grainhub/warehouse-backend/pkg/logger"
	"github.com/grainhub/warehouse-backend/pkg/metrics"
	"github.com/grainhub/warehouse-backend/pkg/outbox"
	"github.com/grainhub/warehouse-backend/pkg/outbox/payloads"
)

var ErrTypeMismatch = errors.New("transaction type does not match route")

var maxMoisture = decimal.NewFromInt(100)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// CreatorDecider records a privileged creator's own approval inside the
// creating DB transaction and returns the resulting status.
type CreatorDecider interface {
	ApplyCreatorDecision(ctx context.Context, tx *gorm.DB, txn *models.GrainTransaction, approval *models.Approval, creator identity.Actor) (enums.TransactionStatus, error)
}

// Service opens and reads grain transactions.
type Service interface {
	Request(ctx context.Context, input RequestInput) (*TransactionDTO, error)
	Get(ctx context.Context, input GetInput) (*TransactionDTO, error)
}

// ServiceParams groups the collaborators of the transactions service.
type ServiceParams struct {
	DB        txRunner
	Repo      Repository
	Approvals approvals.Repository
	Identity  identity.Service
	Ledger    ledger.Service
	Locker    *ledger.KeyedLocker
	Decider   CreatorDecider
	Outbox    outbox.Emitter
	Metrics   *metrics.WorkflowMetrics
	Logger    *logger.Logger
}

type service struct {
	db        txRunner
	repo      Repository
	approvals approvals.Repository
	identity  identity.Service
	ledger    ledger.Service
	locker    *ledger.KeyedLocker
	decider   CreatorDecider
	outbox    outbox.Emitter
	metrics   *metrics.WorkflowMetrics
	logg      *logger.Logger
}

func NewService(params ServiceParams) (Service, error) {
	switch {
	case params.DB == nil:
		return nil, fmt.Errorf("transaction runner required")
	case params.Repo == nil:
		return nil, fmt.Errorf("transactions repository required")
	case params.Approvals == nil:
		return nil, fmt.Errorf("approvals repository required")
	case params.Identity == nil:
		return nil, fmt.Errorf("identity service required")
	case params.Ledger == nil:
		return nil, fmt.Errorf("ledger service required")
	case params.Locker == nil:
		return nil, fmt.Errorf("ledger locker required")
	case params.Decider == nil:
		return nil, fmt.Errorf("creator decider required")
	case params.Outbox == nil:
		return nil, fmt.Errorf("outbox emitter required")
	case params.Logger == nil:
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		db:        params.DB,
		repo:      params.Repo,
		approvals: params.Approvals,
		identity:  params.Identity,
		ledger:    params.Ledger,
		locker:    params.Locker,
		decider:   params.Decider,
		outbox:    params.Outbox,
		metrics:   params.Metrics,
		logg:      params.Logger,
	}, nil
}

func (s *service) Request(ctx context.Context, input RequestInput) (*TransactionDTO, error) {
	if err := validateRequest(input); err != nil {
		return nil, err
	}

	owner, err := s.identity.Lookup(ctx, input.OwnerID)
	if err != nil {
		return nil, err
	}
	if owner.Role != enums.ActorRoleFarmer {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "owner must be a farmer")
	}
	creator, err := s.identity.Lookup(ctx, input.CreatorID)
	if err != nil {
		return nil, err
	}
	if creator.Role == enums.ActorRoleFarmer && creator.ID != owner.ID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "farmers may only request for their own bucket")
	}

	unlock := s.locker.Lock(lockKeys(input.Type, input.OwnerID, input.WarehouseID, input.Lines)...)
	defer unlock()

	var created *models.GrainTransaction
	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		if input.Type.IsOutbound() {
			if err := s.checkAvailability(ctx, tx, input); err != nil {
				return err
			}
		}

		txn := buildTransaction(input)
		repo := s.repo.WithTx(tx)
		if err := repo.Create(ctx, txn); err != nil {
			return pkgerrors.Wrap(pkgerrors.ClassifyPG(err, pkgerrors.CodeDependency), err, "create transaction")
		}
		approval := &models.Approval{TransactionID: txn.ID}
		if err := s.approvals.WithTx(tx).Create(ctx, approval); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create approval")
		}

		if creator.Role.IsStaff() {
			status, err := s.decider.ApplyCreatorDecision(ctx, tx, txn, approval, *creator)
			if err != nil {
				return err
			}
			txn.Status = status
		}

		if err := s.emitRequested(ctx, tx, txn, creator); err != nil {
			return err
		}

		reloaded, err := repo.FindByID(ctx, txn.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload transaction")
		}
		created = reloaded
		return nil
	})
	if err != nil {
		s.metrics.IncRequest(string(input.Type), "error")
		return nil, err
	}

	s.metrics.IncRequest(string(input.Type), string(created.Status))
	logCtx := s.logg.WithTransactionID(ctx, created.ID.String())
	logCtx = s.logg.WithFields(logCtx, map[string]any{
		"transaction_type": created.Type,
		"status":           created.Status,
		"creator_role":     creator.Role,
		"line_count":       len(created.Lines),
	})
	s.logg.Info(logCtx, "grain transaction requested")

	dto := FromModel(*created)
	return &dto, nil
}

func (s *service) Get(ctx context.Context, input GetInput) (*TransactionDTO, error) {
	if input.TransactionID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transaction id required")
	}
	actor, err := s.identity.Lookup(ctx, input.ActorID)
	if err != nil {
		return nil, err
	}
	txn, err := s.repo.FindByID(ctx, input.TransactionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "transaction not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load transaction")
	}
	if txn.Type != input.Type {
		return nil, TypeMismatchError(input.Type, txn.Type)
	}
	if actor.Role == enums.ActorRoleFarmer && txn.OwnerID != actor.ID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "transaction belongs to another farmer")
	}
	dto := FromModel(*txn)
	return &dto, nil
}

// TypeMismatchError reports a transaction addressed under the wrong type route.
func TypeMismatchError(expected, actual enums.TransactionType) error {
	return pkgerrors.Wrap(pkgerrors.CodeValidation, ErrTypeMismatch,
		fmt.Sprintf("transaction is a %s, not a %s", actual, expected)).
		WithDetails(map[string]string{"expected": string(expected), "actual": string(actual)})
}

func (s *service) checkAvailability(ctx context.Context, tx *gorm.DB, input RequestInput) error {
	for _, line := range input.Lines {
		available, err := s.ledger.Available(ctx, tx, ledger.FarmerKey(input.OwnerID, line.CategoryID))
		if err != nil {
			return err
		}
		if available.LessThan(line.Quantity) {
			return ledger.InsufficientStockError(line.CategoryID, available, line.Quantity)
		}
	}
	return nil
}

func (s *service) emitRequested(ctx context.Context, tx *gorm.DB, txn *models.GrainTransaction, creator *identity.Actor) error {
	lines := make([]payloads.TransactionLine, 0, len(txn.Lines))
	for _, line := range txn.Lines {
		lines = append(lines, payloads.TransactionLine{
			CategoryID: line.CategoryID,
			Quantity:   line.Quantity,
			UnitPrice:  line.UnitPrice,
		})
	}
	err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventGrainTransactionRequested,
		AggregateType: enums.AggregateGrainTransaction,
		AggregateID:   txn.ID,
		Actor:         &outbox.ActorRef{UserID: creator.ID, Role: string(creator.Role)},
		Data: payloads.TransactionRequestedEvent{
			TransactionID: txn.ID,
			Type:          txn.Type,
			OwnerID:       txn.OwnerID,
			WarehouseID:   txn.WarehouseID,
			Status:        txn.Status,
			TotalAmount:   txn.TotalAmount,
			Lines:         lines,
		},
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit transaction requested")
	}
	return nil
}

func validateRequest(input RequestInput) error {
	if !input.Type.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid transaction type %q", input.Type))
	}
	if input.OwnerID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "owner id required")
	}
	if input.CreatorID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if input.Type.RequiresWarehouse() && (input.WarehouseID == nil || *input.WarehouseID == uuid.Nil) {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("%s requires a warehouse id", input.Type))
	}
	if len(input.Lines) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "at least one line is required")
	}

	seen := make(map[uuid.UUID]struct{}, len(input.Lines))
	for i, line := range input.Lines {
		field := fmt.Sprintf("lines[%d]", i)
		if line.CategoryID == uuid.Nil {
			return lineError(field, "category_id is required")
		}
		if _, dup := seen[line.CategoryID]; dup {
			return lineError(field, "category_id appears more than once")
		}
		seen[line.CategoryID] = struct{}{}
		if !line.Quantity.IsPositive() {
			return lineError(field, "quantity must be greater than zero")
		}
		if !ledger.FitsScale(line.Quantity) {
			return lineError(field, scaleMessage("quantity"))
		}
		if line.UnitPrice.IsNegative() {
			return lineError(field, "unit_price must not be negative")
		}
		if !ledger.FitsScale(line.UnitPrice) {
			return lineError(field, scaleMessage("unit_price"))
		}
		if line.Moisture != nil {
			if line.Moisture.IsNegative() || line.Moisture.GreaterThan(maxMoisture) {
				return lineError(field, "moisture must be between 0 and 100")
			}
			if !ledger.FitsScale(*line.Moisture) {
				return lineError(field, scaleMessage("moisture"))
			}
		}
	}
	return nil
}

func scaleMessage(field string) string {
	return fmt.Sprintf("%s must have at most %d decimal places", field, ledger.QuantityScale)
}

func lineError(field, message string) error {
	return pkgerrors.New(pkgerrors.CodeValidation, "invalid line").
		WithDetails(map[string]string{field: message})
}

func buildTransaction(input RequestInput) *models.GrainTransaction {
	lines := make([]models.TransactionLine, 0, len(input.Lines))
	for i, line := range input.Lines {
		lines = append(lines, models.TransactionLine{
			Position:   i,
			CategoryID: line.CategoryID,
			Quantity:   line.Quantity,
			UnitPrice:  line.UnitPrice,
			Moisture:   line.Moisture,
		})
	}
	return &models.GrainTransaction{
		Type:        input.Type,
		OwnerID:     input.OwnerID,
		WarehouseID: input.WarehouseID,
		CreatedBy:   input.CreatorID,
		TotalAmount: TotalAmount(input.Lines),
		Status:      enums.TransactionStatusPending,
		Lines:       lines,
	}
}

func lockKeys(txType enums.TransactionType, ownerID uuid.UUID, warehouseID *uuid.UUID, lines []LineInput) []string {
	keys := make([]string, 0, len(lines)*2)
	for _, line := range lines {
		keys = append(keys, ledger.FarmerKey(ownerID, line.CategoryID).String())
		if txType == enums.TransactionTypeSell && warehouseID != nil {
			keys = append(keys, ledger.WarehouseKey(*warehouseID, line.CategoryID).String())
		}
	}
	return keys
}
