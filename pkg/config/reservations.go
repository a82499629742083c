package config

import (
	"fmt"
	"strings"

	"github.com/angelmondragon/carrental-backend/pkg/enums"
)

// Currency returns the validated default currency for new payments.
func (r ReservationConfig) Currency() (enums.Currency, error) {
	if strings.TrimSpace(r.DefaultCurrency) == "" {
		return enums.CurrencyMAD, nil
	}
	currency, err := enums.ParseCurrency(r.DefaultCurrency)
	if err != nil {
		return "", fmt.Errorf("%s: %w", EnvDefaultCurrency, err)
	}
	return currency, nil
}
