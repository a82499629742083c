package payments

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/carrental-backend/pkg/db/models"
	"github.com/angelmondragon/carrental-backend/pkg/enums"
)

// PaymentDTO is the API representation of a ledger row.
type PaymentDTO struct {
	ID             uuid.UUID           `json:"id"`
	ReservationID  uuid.UUID           `json:"reservation_id"`
	Amount         decimal.Decimal     `json:"amount"`
	Currency       enums.Currency      `json:"currency"`
	PaymentMethod  enums.PaymentMethod `json:"payment_method"`
	Status         enums.ChargeStatus  `json:"status"`
	TransactionID  *string             `json:"transaction_id,omitempty"`
	FailureMessage *string             `json:"failure_message,omitempty"`
	CreatedAt      time.Time           `json:"created_at"`
}

func NewPaymentDTO(p models.Payment) PaymentDTO {
	return PaymentDTO{
		ID:             p.ID,
		ReservationID:  p.ReservationID,
		Amount:         p.Amount,
		Currency:       p.Currency,
		PaymentMethod:  p.PaymentMethod,
		Status:         p.Status,
		TransactionID:  p.TransactionID,
		FailureMessage: p.FailureMessage,
		CreatedAt:      p.CreatedAt,
	}
}
