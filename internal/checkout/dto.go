package checkout

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/carrental-backend/pkg/db/models"
	"github.com/angelmondragon/carrental-backend/pkg/enums"
)

// RecordPaymentInput is the payer's choice for settling a reservation.
type RecordPaymentInput struct {
	Method         enums.PaymentMethod
	Currency       string
	CardToken      string
	IdempotencyKey string
}

// PaymentResult reports the reservation after a payment operation. Reservation is unchanged
// while the processor still waits on the customer.
type PaymentResult struct {
	Reservation    *models.Reservation
	Payment        *models.Payment
	RequiresAction bool
	ClientSecret   string
	FailureMessage string
}

// Document tells which PDF, if any, the reservation qualifies for.
type Document struct {
	ReservationID uuid.UUID          `json:"reservation_id"`
	Kind          enums.DocumentKind `json:"kind"`
	PaymentID     *uuid.UUID         `json:"payment_id,omitempty"`
}
