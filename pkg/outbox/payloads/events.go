package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/carrental-backend/pkg/enums"
)

// ReservationEvent carries the reservation snapshot for created, updated and deleted events.
type ReservationEvent struct {
	ReservationID uuid.UUID               `json:"reservation_id"`
	CarID         uuid.UUID               `json:"car_id"`
	UserID        uuid.UUID               `json:"user_id"`
	StartDate     string                  `json:"start_date"`
	EndDate       string                  `json:"end_date"`
	Status        enums.ReservationStatus `json:"status"`
	PaymentMethod enums.PaymentMethod     `json:"payment_method"`
	TotalAmount   decimal.Decimal         `json:"total_amount"`
}

// ReservationReconciledEvent is emitted each time the payment fields of a reservation are rewritten.
type ReservationReconciledEvent struct {
	ReservationID    uuid.UUID               `json:"reservation_id"`
	Status           enums.ReservationStatus `json:"status"`
	PaymentMethod    enums.PaymentMethod     `json:"payment_method"`
	PaymentStatus    enums.PaymentStatus     `json:"payment_status"`
	AmountPaid       decimal.Decimal         `json:"amount_paid"`
	PaidAt           *time.Time              `json:"paid_at,omitempty"`
	PaymentReference *string                 `json:"payment_reference,omitempty"`
	PaymentID        *uuid.UUID              `json:"payment_id,omitempty"`
}

// PaymentRecordedEvent is emitted when a payment row is created or its status changes.
type PaymentRecordedEvent struct {
	PaymentID     uuid.UUID           `json:"payment_id"`
	ReservationID uuid.UUID           `json:"reservation_id"`
	Amount        decimal.Decimal     `json:"amount"`
	Currency      enums.Currency      `json:"currency"`
	PaymentMethod enums.PaymentMethod `json:"payment_method"`
	Status        enums.ChargeStatus  `json:"status"`
	TransactionID *string             `json:"transaction_id,omitempty"`
}
