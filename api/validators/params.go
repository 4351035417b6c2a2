package validators

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/grainhub/warehouse-backend/pkg/enums"
	pkgerrors "github.com/grainhub/warehouse-backend/pkg/errors"
)

// ParseUUIDParam reads a required uuid path parameter.
func ParseUUIDParam(r *http.Request, key string) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, key))
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, key+" is required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid "+key).
			WithDetails(map[string]any{"field": key})
	}
	return id, nil
}

// ParseTransactionTypeParam reads the {type} path parameter.
func ParseTransactionTypeParam(r *http.Request) (enums.TransactionType, error) {
	raw := strings.ToLower(strings.TrimSpace(chi.URLParam(r, "type")))
	txType, err := enums.ParseTransactionType(raw)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unsupported transaction type").
			WithDetails(map[string]any{"field": "type", "allowed": enums.TransactionTypes()})
	}
	return txType, nil
}
