// Package charge talks to the card processor. Calls never run inside a database transaction.
package charge

import (
	"context"

	"github.com/google/uuid"

	"github.com/angelmondragon/carrental-backend/pkg/enums"
)

// Status is the processor-side state of a charge.
type Status string

const (
	StatusSucceeded      Status = "succeeded"
	StatusRequiresAction Status = "requires_action"
	StatusProcessing     Status = "processing"
	StatusFailed         Status = "failed"
)

// ChargeStatus maps the processor outcome onto the ledger status.
func (s Status) ChargeStatus() enums.ChargeStatus {
	switch s {
	case StatusSucceeded:
		return enums.ChargeStatusSucceeded
	case StatusFailed:
		return enums.ChargeStatusFailed
	default:
		return enums.ChargeStatusPending
	}
}

type Request struct {
	AmountMinor    int64
	Currency       enums.Currency
	MethodToken    string
	ReservationID  uuid.UUID
	IdempotencyKey string
}

type Outcome struct {
	Status         Status
	Reference      string
	ClientSecret   string
	AmountMinor    int64
	Currency       string
	FailureMessage string
}

// Gateway is the card processor capability. A decline is a failed Outcome, not an error;
// errors mean the processor could not be reached or timed out.
type Gateway interface {
	Charge(ctx context.Context, req Request) (Outcome, error)
	ConfirmAction(ctx context.Context, reference string) (Outcome, error)
	Retrieve(ctx context.Context, reference string) (Outcome, error)
}
