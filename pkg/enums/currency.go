package enums

import "strings"

// Currency is an ISO 4217 code accepted for payments.
type Currency string

const (
	CurrencyMAD Currency = "MAD"
	CurrencyEUR Currency = "EUR"
	CurrencyUSD Currency = "USD"
)

var currencies = []Currency{CurrencyMAD, CurrencyEUR, CurrencyUSD}

func (c Currency) String() string { return string(c) }

func (c Currency) IsValid() bool { return oneOf(currencies, c) }

// Lower is the form Stripe expects.
func (c Currency) Lower() string {
	return strings.ToLower(string(c))
}

// ParseCurrency is case-insensitive and ignores surrounding space.
func ParseCurrency(value string) (Currency, error) {
	return parseOneOf("currency", currencies, strings.ToUpper(strings.TrimSpace(value)))
}
