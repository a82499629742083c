package enums

// ReservationStatus tracks the booking lifecycle. Payment state lives in PaymentStatus.
type ReservationStatus string

const (
	ReservationStatusPending   ReservationStatus = "pending"
	ReservationStatusPaid      ReservationStatus = "paid"
	ReservationStatusCancelled ReservationStatus = "cancelled"
)

var reservationStatuses = []ReservationStatus{
	ReservationStatusPending,
	ReservationStatusPaid,
	ReservationStatusCancelled,
}

func (s ReservationStatus) String() string { return string(s) }

func (s ReservationStatus) IsValid() bool { return oneOf(reservationStatuses, s) }

// HoldsDates reports whether a reservation in this status blocks its car for its range.
func (s ReservationStatus) HoldsDates() bool {
	return s != ReservationStatusCancelled
}
