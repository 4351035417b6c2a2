package validators

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/grainhub/warehouse-backend/pkg/enums"
	pkgerrors "github.com/grainhub/warehouse-backend/pkg/errors"
)

func queryValue(r *http.Request, key string) string {
	return strings.TrimSpace(r.URL.Query().Get(key))
}

func queryError(key, msg string) *pkgerrors.Error {
	return pkgerrors.New(pkgerrors.CodeValidation, msg).WithDetails(map[string]any{"field": key})
}

// ParseQueryInt reads an optional bounded integer, falling back to defaultVal.
func ParseQueryInt(r *http.Request, key string, defaultVal, min, max int) (int, error) {
	raw := queryValue(r, key)
	if raw == "" {
		return defaultVal, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, queryError(key, key+" must be numeric")
	}
	if value < min || value > max {
		return 0, queryError(key, key+" out of range").
			WithDetails(map[string]any{"field": key, "min": min, "max": max})
	}
	return value, nil
}

// ParseQueryUUID reads a uuid query parameter. An absent optional value is
// uuid.Nil.
func ParseQueryUUID(r *http.Request, key string, required bool) (uuid.UUID, error) {
	raw := queryValue(r, key)
	if raw == "" {
		if required {
			return uuid.Nil, queryError(key, key+" is required")
		}
		return uuid.Nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, queryError(key, "invalid "+key)
	}
	return id, nil
}

// ParseQueryOwnerType reads owner_type, defaulting to the farmer bucket.
func ParseQueryOwnerType(r *http.Request) (enums.BucketOwnerType, error) {
	raw := strings.ToLower(queryValue(r, "owner_type"))
	if raw == "" {
		return enums.BucketOwnerFarmer, nil
	}
	ownerType, err := enums.ParseBucketOwnerType(raw)
	if err != nil {
		return "", queryError("owner_type", "invalid owner_type")
	}
	return ownerType, nil
}
