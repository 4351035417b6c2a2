package transactions

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grainhub/warehouse-backend/internal/ledger"
	"github.com/grainhub/warehouse-backend/pkg/enums"
	pkgerrors "github.com/grainhub/warehouse-backend/pkg/errors"
)

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func validInput() RequestInput {
	warehouse := uuid.New()
	return RequestInput{
		Type:        enums.TransactionTypeSell,
		OwnerID:     uuid.New(),
		WarehouseID: &warehouse,
		CreatorID:   uuid.New(),
		Lines: []LineInput{
			{CategoryID: uuid.New(), Quantity: dec("2.5"), UnitPrice: dec("4")},
			{CategoryID: uuid.New(), Quantity: dec("1"), UnitPrice: dec("0")},
		},
	}
}

func TestValidateRequest(t *testing.T) {
	moisture := dec("101")
	fineMoisture := dec("12.3456")
	dup := uuid.New()

	cases := []struct {
		name   string
		mutate func(*RequestInput)
		code   pkgerrors.Code
		field  string
	}{
		{name: "valid", mutate: func(*RequestInput) {}},
		{name: "unknown type", mutate: func(in *RequestInput) { in.Type = "barter" }, code: pkgerrors.CodeValidation},
		{name: "missing owner", mutate: func(in *RequestInput) { in.OwnerID = uuid.Nil }, code: pkgerrors.CodeValidation},
		{name: "missing creator", mutate: func(in *RequestInput) { in.CreatorID = uuid.Nil }, code: pkgerrors.CodeUnauthorized},
		{name: "sell without warehouse", mutate: func(in *RequestInput) { in.WarehouseID = nil }, code: pkgerrors.CodeValidation},
		{name: "deposit without warehouse", mutate: func(in *RequestInput) {
			in.Type = enums.TransactionTypeDeposit
			in.WarehouseID = nil
		}},
		{name: "no lines", mutate: func(in *RequestInput) { in.Lines = nil }, code: pkgerrors.CodeValidation},
		{name: "zero quantity", mutate: func(in *RequestInput) { in.Lines[1].Quantity = decimal.Zero }, code: pkgerrors.CodeValidation, field: "lines[1]"},
		{name: "negative price", mutate: func(in *RequestInput) { in.Lines[0].UnitPrice = dec("-1") }, code: pkgerrors.CodeValidation, field: "lines[0]"},
		{name: "moisture out of range", mutate: func(in *RequestInput) { in.Lines[0].Moisture = &moisture }, code: pkgerrors.CodeValidation, field: "lines[0]"},
		{name: "sub-gram quantity", mutate: func(in *RequestInput) { in.Lines[0].Quantity = dec("0.0004") }, code: pkgerrors.CodeValidation, field: "lines[0]"},
		{name: "quantity beyond stored scale", mutate: func(in *RequestInput) { in.Lines[1].Quantity = dec("1.2345") }, code: pkgerrors.CodeValidation, field: "lines[1]"},
		{name: "trailing zeros within scale", mutate: func(in *RequestInput) { in.Lines[1].Quantity = dec("1.2000") }},
		{name: "unit price beyond stored scale", mutate: func(in *RequestInput) { in.Lines[0].UnitPrice = dec("1.0001") }, code: pkgerrors.CodeValidation, field: "lines[0]"},
		{name: "moisture beyond stored scale", mutate: func(in *RequestInput) { in.Lines[0].Moisture = &fineMoisture }, code: pkgerrors.CodeValidation, field: "lines[0]"},
		{name: "duplicate category", mutate: func(in *RequestInput) {
			in.Lines[0].CategoryID = dup
			in.Lines[1].CategoryID = dup
		}, code: pkgerrors.CodeValidation, field: "lines[1]"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			input := validInput()
			tc.mutate(&input)
			err := validateRequest(input)
			if tc.code == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			typed := pkgerrors.As(err)
			require.NotNil(t, typed)
			assert.Equal(t, tc.code, typed.Code())
			if tc.field != "" {
				details, ok := typed.Details().(map[string]string)
				require.True(t, ok)
				assert.Contains(t, details, tc.field)
			}
		})
	}
}

func TestTotalAmount(t *testing.T) {
	assert.True(t, TotalAmount(validInput().Lines).Equal(dec("10")))
	assert.True(t, TotalAmount(nil).IsZero())

	lines := []LineInput{{Quantity: dec("1.005"), UnitPrice: dec("0.333")}}
	assert.Equal(t, "0.335", TotalAmount(lines).String())
}

func TestTypeMismatchError(t *testing.T) {
	err := TypeMismatchError(enums.TransactionTypeLoan, enums.TransactionTypeDeposit)
	assert.True(t, errors.Is(err, ErrTypeMismatch))
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))
	assert.Equal(t, map[string]string{"expected": "loan", "actual": "deposit"}, pkgerrors.As(err).Details())
}

func TestLockKeysIncludeWarehouseOnlyForSell(t *testing.T) {
	input := validInput()
	keys := lockKeys(input.Type, input.OwnerID, input.WarehouseID, input.Lines)
	assert.Len(t, keys, 4)
	assert.Contains(t, keys, ledger.WarehouseKey(*input.WarehouseID, input.Lines[0].CategoryID).String())

	keys = lockKeys(enums.TransactionTypeLoan, input.OwnerID, input.WarehouseID, input.Lines)
	assert.Equal(t, []string{
		ledger.FarmerKey(input.OwnerID, input.Lines[0].CategoryID).String(),
		ledger.FarmerKey(input.OwnerID, input.Lines[1].CategoryID).String(),
	}, keys)
}
