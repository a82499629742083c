package reservations

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/carrental-backend/pkg/db/models"
	"github.com/angelmondragon/carrental-backend/pkg/enums"
	"github.com/angelmondragon/carrental-backend/pkg/types"
)

// CreateInput captures a booking request.
type CreateInput struct {
	CarID           uuid.UUID
	StartDate       types.Date
	EndDate         types.Date
	PickupLocation  string
	DropoffLocation string
	PaymentMethod   enums.PaymentMethod
}

// UpdateInput carries the editable fields; nil means unchanged.
type UpdateInput struct {
	StartDate       *types.Date
	EndDate         *types.Date
	PickupLocation  *string
	DropoffLocation *string
	Status          *enums.ReservationStatus
}

// Availability is the result of an availability probe.
type Availability struct {
	CarID     uuid.UUID  `json:"car_id"`
	StartDate types.Date `json:"start_date"`
	EndDate   types.Date `json:"end_date"`
	Available bool       `json:"available"`
}

// ReservationDTO is the API representation of a reservation.
type ReservationDTO struct {
	ID               uuid.UUID               `json:"id"`
	CarID            uuid.UUID               `json:"car_id"`
	UserID           uuid.UUID               `json:"user_id"`
	StartDate        types.Date              `json:"start_date"`
	EndDate          types.Date              `json:"end_date"`
	PickupLocation   string                  `json:"pickup_location"`
	DropoffLocation  string                  `json:"dropoff_location"`
	Status           enums.ReservationStatus `json:"status"`
	PaymentMethod    enums.PaymentMethod     `json:"payment_method"`
	PaymentStatus    enums.PaymentStatus     `json:"payment_status"`
	TotalAmount      decimal.Decimal         `json:"total_amount"`
	AmountPaid       decimal.Decimal         `json:"amount_paid"`
	PaidAt           *time.Time              `json:"paid_at,omitempty"`
	PaymentReference *string                 `json:"payment_reference,omitempty"`
	CreatedAt        time.Time               `json:"created_at"`
	UpdatedAt        time.Time               `json:"updated_at"`
}

// NewReservationDTO maps a model row to its API shape.
func NewReservationDTO(r models.Reservation) ReservationDTO {
	return ReservationDTO{
		ID:               r.ID,
		CarID:            r.CarID,
		UserID:           r.UserID,
		StartDate:        types.NewDate(r.StartDate),
		EndDate:          types.NewDate(r.EndDate),
		PickupLocation:   r.PickupLocation,
		DropoffLocation:  r.DropoffLocation,
		Status:           r.Status,
		PaymentMethod:    r.PaymentMethod,
		PaymentStatus:    r.PaymentStatus,
		TotalAmount:      r.TotalAmount,
		AmountPaid:       r.AmountPaid,
		PaidAt:           r.PaidAt,
		PaymentReference: r.PaymentReference,
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}
}
