package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/carrental-backend/pkg/enums"
)

// Reservation books a car for an inclusive range of calendar dates.
// The payment_* columns, amount_paid and paid_at are written only by the reconciler.
type Reservation struct {
	ID               uuid.UUID               `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	CarID            uuid.UUID               `gorm:"column:car_id;type:uuid;not null;index"`
	UserID           uuid.UUID               `gorm:"column:user_id;type:uuid;not null;index"`
	StartDate        time.Time               `gorm:"column:start_date;type:date;not null"`
	EndDate          time.Time               `gorm:"column:end_date;type:date;not null"`
	PickupLocation   string                  `gorm:"column:pickup_location;not null;default:''"`
	DropoffLocation  string                  `gorm:"column:dropoff_location;not null;default:''"`
	Status           enums.ReservationStatus `gorm:"column:status;not null;default:'pending'"`
	PaymentMethod    enums.PaymentMethod     `gorm:"column:payment_method;not null;default:'card'"`
	PaymentStatus    enums.PaymentStatus     `gorm:"column:payment_status;not null;default:'pending'"`
	TotalAmount      decimal.Decimal         `gorm:"column:total_amount;type:numeric(10,2);not null"`
	AmountPaid       decimal.Decimal         `gorm:"column:amount_paid;type:numeric(10,2);not null;default:0"`
	PaidAt           *time.Time              `gorm:"column:paid_at"`
	PaymentReference *string                 `gorm:"column:payment_reference"`
	CreatedAt        time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}

func (Reservation) TableName() string { return "reservations" }

// IsOwnedBy reports whether userID booked the reservation.
func (r Reservation) IsOwnedBy(userID uuid.UUID) bool {
	return r.UserID == userID
}

// Outstanding returns the amount still due.
func (r Reservation) Outstanding() decimal.Decimal {
	due := r.TotalAmount.Sub(r.AmountPaid)
	if due.IsNegative() {
		return decimal.Zero
	}
	return due
}
