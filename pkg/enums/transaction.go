package enums

import "fmt"

// TransactionType names the grain movement a transaction requests.
type TransactionType string

const (
	TransactionTypeDeposit  TransactionType = "deposit"
	TransactionTypeWithdraw TransactionType = "withdraw"
	TransactionTypeSell     TransactionType = "sell"
	TransactionTypeLoan     TransactionType = "loan"
)

var validTransactionTypes = []TransactionType{
	TransactionTypeDeposit,
	TransactionTypeWithdraw,
	TransactionTypeSell,
	TransactionTypeLoan,
}

// TransactionTypes returns every supported type in a stable order.
func TransactionTypes() []TransactionType {
	out := make([]TransactionType, len(validTransactionTypes))
	copy(out, validTransactionTypes)
	return out
}

func (t TransactionType) String() string {
	return string(t)
}

// IsValid reports whether the value is a supported transaction type.
func (t TransactionType) IsValid() bool {
	for _, candidate := range validTransactionTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// IsOutbound reports whether the type takes stock out of the owner's available total.
func (t TransactionType) IsOutbound() bool {
	return t == TransactionTypeWithdraw || t == TransactionTypeSell || t == TransactionTypeLoan
}

// RequiresWarehouse reports whether a counterpart warehouse must be named.
func (t TransactionType) RequiresWarehouse() bool {
	return t == TransactionTypeSell || t == TransactionTypeLoan
}

// ParseTransactionType converts raw input into TransactionType.
func ParseTransactionType(value string) (TransactionType, error) {
	for _, candidate := range validTransactionTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid transaction type %q", value)
}

// TransactionStatus tracks where a transaction sits in its lifecycle.
type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "pending"
	TransactionStatusCompleted TransactionStatus = "completed"
	TransactionStatusRejected  TransactionStatus = "rejected"
)

var validTransactionStatuses = []TransactionStatus{
	TransactionStatusPending,
	TransactionStatusCompleted,
	TransactionStatusRejected,
}

func (s TransactionStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known status.
func (s TransactionStatus) IsValid() bool {
	for _, candidate := range validTransactionStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further decisions may be recorded.
func (s TransactionStatus) IsTerminal() bool {
	return s == TransactionStatusCompleted || s == TransactionStatusRejected
}

// ParseTransactionStatus converts raw input into TransactionStatus.
func ParseTransactionStatus(value string) (TransactionStatus, error) {
	for _, candidate := range validTransactionStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid transaction status %q", value)
}
