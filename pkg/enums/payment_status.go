package enums

// PaymentStatus is the payment state derived onto a reservation from its ledger.
type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "pending"
	PaymentStatusPaid     PaymentStatus = "paid"
	PaymentStatusFailed   PaymentStatus = "failed"
	PaymentStatusRefunded PaymentStatus = "refunded"
)

var paymentStatuses = []PaymentStatus{
	PaymentStatusPending,
	PaymentStatusPaid,
	PaymentStatusFailed,
	PaymentStatusRefunded,
}

func (p PaymentStatus) String() string { return string(p) }

func (p PaymentStatus) IsValid() bool { return oneOf(paymentStatuses, p) }
