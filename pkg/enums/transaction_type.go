package enums

import "fmt"

// TransactionType maps to the transaction_type_enum enum in Postgres. Every
// ledger entry and wallet transaction carries exactly one of these.
type TransactionType string

const (
	TransactionTypeTip   TransactionType = "TIP"
	TransactionTypeTopUp TransactionType = "TOP_UP"
)

var validTransactionTypes = []TransactionType{
	TransactionTypeTip,
	TransactionTypeTopUp,
}

// String implements fmt.Stringer.
func (t TransactionType) String() string {
	return string(t)
}

// IsValid reports whether the value matches the canonical transaction enum.
func (t TransactionType) IsValid() bool {
	for _, candidate := range validTransactionTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseTransactionType converts raw input into a TransactionType.
func ParseTransactionType(value string) (TransactionType, error) {
	for _, candidate := range validTransactionTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid transaction type %q", value)
}
