package stripewebhook

import (
	"context"
	"encoding/json"

	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/carrental-backend/internal/charge"
	"github.com/angelmondragon/carrental-backend/internal/checkout"
	"github.com/angelmondragon/carrental-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/carrental-backend/pkg/errors"
	"github.com/angelmondragon/carrental-backend/pkg/logger"
)

type paymentFinalizer interface {
	FinalizeByReference(ctx context.Context, reference string, status enums.ChargeStatus, failure *string) (*checkout.PaymentResult, error)
}

// Service applies PaymentIntent outcomes pushed by Stripe.
type Service struct {
	payments paymentFinalizer
	logg     *logger.Logger
}

func NewService(payments paymentFinalizer, logg *logger.Logger) (*Service, error) {
	if payments == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payment finalizer required")
	}
	return &Service{payments: payments, logg: logg}, nil
}

func (s *Service) HandleEvent(ctx context.Context, event *stripe.Event) error {
	if event == nil || event.Data == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "stripe event data required")
	}

	var status enums.ChargeStatus
	switch event.Type {
	case stripe.EventTypePaymentIntentSucceeded:
		status = enums.ChargeStatusSucceeded
	case stripe.EventTypePaymentIntentPaymentFailed, stripe.EventTypePaymentIntentCanceled:
		status = enums.ChargeStatusFailed
	default:
		return nil
	}

	var intent stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode payment intent")
	}
	if intent.ID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "payment intent id missing")
	}

	var failure *string
	if status == enums.ChargeStatusFailed {
		msg := "payment " + string(intent.Status)
		if intent.LastPaymentError != nil && intent.LastPaymentError.Msg != "" {
			msg = intent.LastPaymentError.Msg
		}
		failure = &msg
	}

	logCtx := ctx
	if s.logg != nil {
		logCtx = s.logg.WithFields(ctx, map[string]any{
			"stripe_event_id":   event.ID,
			"stripe_event_type": string(event.Type),
			"transaction_id":    intent.ID,
		})
		if reservationID := intent.Metadata[charge.MetadataReservationID]; reservationID != "" {
			logCtx = s.logg.WithReservationID(logCtx, reservationID)
		}
	}

	_, err := s.payments.FinalizeByReference(ctx, intent.ID, status, failure)
	switch {
	case err == nil:
		if s.logg != nil {
			s.logg.Info(logCtx, "payment intent applied")
		}
		return nil
	case pkgerrors.IsCode(err, pkgerrors.CodeNotFound):
		if s.logg != nil {
			s.logg.Warn(logCtx, "payment intent not recorded; ignoring")
		}
		return nil
	case pkgerrors.IsCode(err, pkgerrors.CodeStateConflict), pkgerrors.IsCode(err, pkgerrors.CodeInvariant):
		// the ledger already holds what it can; a redelivery would be refused the same way
		if s.logg != nil {
			s.logg.Warn(s.logg.WithField(logCtx, "reason", err.Error()), "payment intent outcome refused by reservation")
		}
		return nil
	default:
		return err
	}
}
