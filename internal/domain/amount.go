package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Every store keeps amounts as DECIMAL(24,6): 18 integer digits and 6 fraction digits.
const (
	AmountScale         = 6
	AmountIntegerDigits = 18

	// MaxLotDuration bounds how far in the future a lot may end.
	MaxLotDuration = 366 * 24 * time.Hour
)

// maxExponentSlack allows trailing zeros beyond AmountScale ("1.50000000") while keeping
// the rescale needed to check them cheap.
const maxExponentSlack = 24

var amountLimit = decimal.New(1, AmountIntegerDigits)

// ValidateAmount rejects amounts no store can hold exactly. It never formats the
// amount, since a tiny JSON literal such as 1e-200000000 expands to megabytes of text.
func ValidateAmount(amount decimal.Decimal) error {
	if amount.IsZero() {
		return nil
	}

	exp := amount.Exponent()
	switch {
	case exp > AmountIntegerDigits:
		return fmt.Errorf("amount exceeds %d integer digits: %w", AmountIntegerDigits, ErrInvalidArgument)
	case exp < -(AmountScale + maxExponentSlack):
		return fmt.Errorf("amount has more than %d decimal places: %w", AmountScale, ErrInvalidArgument)
	case exp < -AmountScale && !amount.Equal(amount.Truncate(AmountScale)):
		return fmt.Errorf("amount has more than %d decimal places: %w", AmountScale, ErrInvalidArgument)
	case amount.Abs().GreaterThanOrEqual(amountLimit):
		return fmt.Errorf("amount exceeds %d integer digits: %w", AmountIntegerDigits, ErrInvalidArgument)
	}
	return nil
}
