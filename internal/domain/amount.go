package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// AmountScale is the number of decimal places the ledger can settle (one drop = 0.000001)
const AmountScale = 6

// ValidateAmountScale rejects amounts finer than one drop
func ValidateAmountScale(amount decimal.Decimal) error {
	if !amount.Equal(amount.Truncate(AmountScale)) {
		return fmt.Errorf("amount %s has more than %d decimal places", amount.String(), AmountScale)
	}
	return nil
}
