package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/carrental-backend/pkg/enums"
)

// Payment is one attempt to settle a reservation. Rows are never deleted by the application.
type Payment struct {
	ID             uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ReservationID  uuid.UUID           `gorm:"column:reservation_id;type:uuid;not null;index"`
	Amount         decimal.Decimal     `gorm:"column:amount;type:numeric(10,2);not null"`
	Currency       enums.Currency      `gorm:"column:currency;not null;default:'MAD'"`
	PaymentMethod  enums.PaymentMethod `gorm:"column:payment_method;not null"`
	Status         enums.ChargeStatus  `gorm:"column:status;not null;default:'pending'"`
	TransactionID  *string             `gorm:"column:transaction_id;uniqueIndex"`
	FailureMessage *string             `gorm:"column:failure_message"`
	CreatedAt      time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (Payment) TableName() string { return "payments" }

// Reference returns the external transaction id or an empty string.
func (p Payment) Reference() string {
	if p.TransactionID == nil {
		return ""
	}
	return *p.TransactionID
}
