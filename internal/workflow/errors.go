package workflow

import (
	"errors"

	"github.com/grainhub/warehouse-backend/internal/approvals"
	"github.com/grainhub/warehouse-backend/internal/ledger"
	"github.com/grainhub/warehouse-backend/internal/transactions"
)

var (
	ErrAlreadyDecided    = approvals.ErrAlreadyDecided
	ErrAlreadyFinalized  = errors.New("transaction already finalized")
	ErrTypeMismatch      = transactions.ErrTypeMismatch
	ErrInsufficientStock = ledger.ErrInsufficientStock
	ErrForbiddenRole     = errors.New("role cannot act on approvals")
)
