package reservations

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/carrental-backend/pkg/errors"
	"github.com/angelmondragon/carrental-backend/pkg/types"
)

func TestOverlapsClosedInterval(t *testing.T) {
	d := types.MustDate
	cases := []struct {
		name   string
		a1, a2 string
		b1, b2 string
		want   bool
	}{
		{"touching end day", "2025-06-03", "2025-06-05", "2025-06-05", "2025-06-07", true},
		{"touching start day", "2025-06-05", "2025-06-07", "2025-06-03", "2025-06-05", true},
		{"contained", "2025-06-01", "2025-06-10", "2025-06-04", "2025-06-05", true},
		{"identical single day", "2025-06-04", "2025-06-04", "2025-06-04", "2025-06-04", true},
		{"adjacent days", "2025-06-03", "2025-06-04", "2025-06-05", "2025-06-07", false},
		{"disjoint", "2025-06-01", "2025-06-02", "2025-07-01", "2025-07-02", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Overlaps(d(tc.a1).Time, d(tc.a2).Time, d(tc.b1).Time, d(tc.b2).Time)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestValidateRange(t *testing.T) {
	require.NoError(t, ValidateRange(types.MustDate("2025-06-03"), types.MustDate("2025-06-03")))

	err := ValidateRange(types.MustDate("2025-06-05"), types.MustDate("2025-06-03"))
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	err = ValidateRange(types.Date{}, types.MustDate("2025-06-03"))
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestTotalAmountBillsAtLeastOneDay(t *testing.T) {
	price := decimal.RequireFromString("120.00")

	sameDay := TotalAmount(price, types.MustDate("2025-06-03"), types.MustDate("2025-06-03"))
	require.True(t, sameDay.Equal(decimal.RequireFromString("120.00")), sameDay.String())

	threeNights := TotalAmount(price, types.MustDate("2025-06-03"), types.MustDate("2025-06-06"))
	require.True(t, threeNights.Equal(decimal.RequireFromString("360.00")), threeNights.String())
}

func TestTotalAmountOnCenturiesLongRange(t *testing.T) {
	price := decimal.RequireFromString("1.00")
	// 2000-01-01 to 2400-01-01 is one full Gregorian cycle
	total := TotalAmount(price, types.MustDate("2000-01-01"), types.MustDate("2400-01-01"))
	require.True(t, total.Equal(decimal.NewFromInt(146097)), total.String())
	require.Equal(t, int64(146097), RentalDays(types.MustDate("2000-01-01"), types.MustDate("2400-01-01")))
}
