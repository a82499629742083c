package reservations

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/carrental-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/carrental-backend/pkg/errors"
	"github.com/angelmondragon/carrental-backend/pkg/types"
)

// Overlaps is the closed-interval test used for every availability decision.
// Ranges sharing a single boundary day overlap.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return !aStart.After(bEnd) && !aEnd.Before(bStart)
}

// OverlapScope restricts a reservations query to rows holding any day of [start, end].
func OverlapScope(start, end types.Date) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("reservations.status <> ?", enums.ReservationStatusCancelled).
			Where("reservations.start_date <= ? AND reservations.end_date >= ?", end.Time, start.Time)
	}
}

// ValidateRange rejects reversed or missing date ranges.
func ValidateRange(start, end types.Date) error {
	if start.IsZero() || end.IsZero() {
		return pkgerrors.New(pkgerrors.CodeValidation, "start_date and end_date are required")
	}
	if start.After(end) {
		return pkgerrors.New(pkgerrors.CodeValidation, "start_date must be on or before end_date")
	}
	return nil
}

// RentalDays counts billable days; a same-day rental bills one day.
func RentalDays(start, end types.Date) int64 {
	days := start.DaysUntil(end)
	if days < 1 {
		return 1
	}
	return days
}

// TotalAmount prices a rental at pricePerDay for each billable day.
func TotalAmount(pricePerDay decimal.Decimal, start, end types.Date) decimal.Decimal {
	return pricePerDay.Mul(decimal.NewFromInt(RentalDays(start, end)))
}
