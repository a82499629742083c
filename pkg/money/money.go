// Package money converts between the integer minor units used at the card
// processor boundary and the decimal major units persisted in the ledger.
package money

import (
	"fmt"

	"github.com/shopspring/decimal"
)

const minorExponent = 2

// FromMinorUnits converts an integer amount in minor units (cents) to major units.
func FromMinorUnits(minor int64) decimal.Decimal {
	return decimal.NewFromInt(minor).Shift(-minorExponent)
}

// ToMinorUnits converts a major-unit amount to minor units. Amounts with more
// precision than the currency allows are rejected rather than rounded.
func ToMinorUnits(amount decimal.Decimal) (int64, error) {
	shifted := amount.Shift(minorExponent)
	if !shifted.Equal(shifted.Truncate(0)) {
		return 0, fmt.Errorf("amount %s has more than %d decimal places", amount.String(), minorExponent)
	}
	if !shifted.BigInt().IsInt64() {
		return 0, fmt.Errorf("amount %s overflows minor units", amount.String())
	}
	return shifted.IntPart(), nil
}
