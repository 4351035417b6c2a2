package approvals

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/grainhub/warehouse-backend/pkg/db/models"
	"github.com/grainhub/warehouse-backend/pkg/enums"
)

// Repository persists approval records.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, approval *models.Approval) error
	FindByTransactionID(ctx context.Context, transactionID uuid.UUID) (*models.Approval, error)
	SaveDecision(ctx context.Context, approvalID uuid.UUID, role enums.ActorRole, slot Slot) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns an approvals repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, approval *models.Approval) error {
	return r.db.WithContext(ctx).Create(approval).Error
}

func (r *repository) FindByTransactionID(ctx context.Context, transactionID uuid.UUID) (*models.Approval, error) {
	var approval models.Approval
	if err := r.db.WithContext(ctx).
		Where("transaction_id = ?", transactionID).
		First(&approval).Error; err != nil {
		return nil, err
	}
	return &approval, nil
}

// SaveDecision writes one slot only if it is still undecided, so two
// concurrent submits for the same slot cannot both land.
func (r *repository) SaveDecision(ctx context.Context, approvalID uuid.UUID, role enums.ActorRole, slot Slot) error {
	if !role.IsStaff() {
		return ErrInvalidRole
	}
	column := string(role)
	res := r.db.WithContext(ctx).
		Model(&models.Approval{}).
		Where("id = ?", approvalID).
		Where(column + "_decided_at IS NULL").
		Updates(map[string]any{
			column + "_actor_id":   slot.ActorID,
			column + "_approved":   slot.Approved,
			column + "_decided_at": slot.DecidedAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrAlreadyDecided
	}
	return nil
}
