package reconcile

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/carrental-backend/pkg/db/models"
	"github.com/angelmondragon/carrental-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/carrental-backend/pkg/errors"
)

// Options override what would otherwise be derived from the payment.
type Options struct {
	ForceStatus *enums.PaymentStatus
	PaidAmount  *decimal.Decimal
	Reference   *string
}

// Fields are the five payment-derived columns of a reservation.
type Fields struct {
	PaymentMethod    enums.PaymentMethod
	PaymentStatus    enums.PaymentStatus
	AmountPaid       decimal.Decimal
	PaidAt           *time.Time
	PaymentReference *string
}

// Derive computes the reservation payment fields for a payment outcome.
func Derive(payment models.Payment, opts Options, now time.Time) Fields {
	status := statusFor(payment.Status)
	if opts.ForceStatus != nil {
		status = *opts.ForceStatus
	}

	out := Fields{
		PaymentMethod:    payment.PaymentMethod,
		PaymentStatus:    status,
		AmountPaid:       decimal.Zero,
		PaymentReference: payment.TransactionID,
	}
	if opts.Reference != nil {
		out.PaymentReference = opts.Reference
	}

	switch status {
	case enums.PaymentStatusPending, enums.PaymentStatusFailed:
		// amount and timestamp stay cleared even when an amount was supplied
	default:
		out.AmountPaid = payment.Amount
		if opts.PaidAmount != nil {
			out.AmountPaid = *opts.PaidAmount
		}
	}
	if status == enums.PaymentStatusPaid {
		paidAt := now.UTC()
		out.PaidAt = &paidAt
	}
	return out
}

func statusFor(charge enums.ChargeStatus) enums.PaymentStatus {
	switch charge {
	case enums.ChargeStatusSucceeded:
		return enums.PaymentStatusPaid
	case enums.ChargeStatusFailed:
		return enums.PaymentStatusFailed
	default:
		return enums.PaymentStatusPending
	}
}

// CheckInvariant verifies amount_paid stays within the total and that paid status,
// a positive amount and a paid timestamp appear together.
func CheckInvariant(total decimal.Decimal, fields Fields) error {
	if fields.AmountPaid.IsNegative() {
		return pkgerrors.New(pkgerrors.CodeInvariant, "amount paid cannot be negative")
	}
	if fields.AmountPaid.GreaterThan(total) {
		return pkgerrors.New(pkgerrors.CodeInvariant, "amount paid exceeds reservation total").
			WithDetails(map[string]string{"amount_paid": fields.AmountPaid.StringFixed(2), "total_amount": total.StringFixed(2)})
	}
	settled := fields.AmountPaid.IsPositive() && fields.PaidAt != nil
	if (fields.PaymentStatus == enums.PaymentStatusPaid) != settled {
		return pkgerrors.New(pkgerrors.CodeInvariant, "paid status requires a positive amount and a paid timestamp")
	}
	return nil
}

// sameOutcome compares everything except paid_at.
func sameOutcome(r models.Reservation, f Fields) bool {
	return r.PaymentMethod == f.PaymentMethod &&
		r.PaymentStatus == f.PaymentStatus &&
		r.AmountPaid.Equal(f.AmountPaid) &&
		equalRef(r.PaymentReference, f.PaymentReference)
}

func equalRef(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
