package charge

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/carrental-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/carrental-backend/pkg/errors"
)

type stubIntents struct {
	createFn   func(ctx context.Context, params *stripe.PaymentIntentCreateParams) (*stripe.PaymentIntent, error)
	confirmFn  func(ctx context.Context, id string, params *stripe.PaymentIntentConfirmParams) (*stripe.PaymentIntent, error)
	retrieveFn func(ctx context.Context, id string, params *stripe.PaymentIntentRetrieveParams) (*stripe.PaymentIntent, error)
}

func (s stubIntents) Create(ctx context.Context, params *stripe.PaymentIntentCreateParams) (*stripe.PaymentIntent, error) {
	return s.createFn(ctx, params)
}

func (s stubIntents) Confirm(ctx context.Context, id string, params *stripe.PaymentIntentConfirmParams) (*stripe.PaymentIntent, error) {
	return s.confirmFn(ctx, id, params)
}

func (s stubIntents) Retrieve(ctx context.Context, id string, params *stripe.PaymentIntentRetrieveParams) (*stripe.PaymentIntent, error) {
	return s.retrieveFn(ctx, id, params)
}

type stubMethods struct {
	token string
}

func (s *stubMethods) Create(_ context.Context, params *stripe.PaymentMethodCreateParams) (*stripe.PaymentMethod, error) {
	s.token = *params.Card.Token
	return &stripe.PaymentMethod{ID: "pm_123"}, nil
}

func chargeRequest() Request {
	return Request{
		AmountMinor:    15000,
		Currency:       enums.CurrencyMAD,
		MethodToken:    "tok_visa",
		ReservationID:  uuid.New(),
		IdempotencyKey: "idem-1",
	}
}

func TestStripeChargeSucceeded(t *testing.T) {
	var captured *stripe.PaymentIntentCreateParams
	methods := &stubMethods{}
	gw := newStripeGateway(stubIntents{
		createFn: func(_ context.Context, params *stripe.PaymentIntentCreateParams) (*stripe.PaymentIntent, error) {
			captured = params
			return &stripe.PaymentIntent{
				ID:       "pi_123",
				Amount:   15000,
				Currency: stripe.Currency("mad"),
				Status:   stripe.PaymentIntentStatusSucceeded,
			}, nil
		},
	}, methods, time.Second, nil, nil)

	req := chargeRequest()
	out, err := gw.Charge(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, StatusSucceeded, out.Status)
	require.Equal(t, "pi_123", out.Reference)
	require.Equal(t, int64(15000), out.AmountMinor)
	require.Equal(t, "MAD", out.Currency)

	require.Equal(t, "tok_visa", methods.token)
	require.Equal(t, "pm_123", *captured.PaymentMethod)
	require.Equal(t, "mad", *captured.Currency)
	require.True(t, *captured.Confirm)
	require.Equal(t, req.ReservationID.String(), captured.Metadata[MetadataReservationID])
}

func TestStripeChargeDeclineIsFailedOutcome(t *testing.T) {
	gw := newStripeGateway(stubIntents{
		createFn: func(context.Context, *stripe.PaymentIntentCreateParams) (*stripe.PaymentIntent, error) {
			return nil, &stripe.Error{
				Type:          stripe.ErrorTypeCard,
				Msg:           "Your card was declined.",
				PaymentIntent: &stripe.PaymentIntent{ID: "pi_declined", Status: stripe.PaymentIntentStatusRequiresPaymentMethod},
			}
		},
	}, &stubMethods{}, time.Second, nil, nil)

	out, err := gw.Charge(context.Background(), chargeRequest())
	require.NoError(t, err)
	require.Equal(t, StatusFailed, out.Status)
	require.Equal(t, "pi_declined", out.Reference)
	require.Equal(t, "Your card was declined.", out.FailureMessage)
}

func TestStripeChargeTransportErrorIsChargeError(t *testing.T) {
	gw := newStripeGateway(stubIntents{
		createFn: func(context.Context, *stripe.PaymentIntentCreateParams) (*stripe.PaymentIntent, error) {
			return nil, errors.New("connection reset")
		},
	}, &stubMethods{}, time.Second, nil, nil)

	_, err := gw.Charge(context.Background(), chargeRequest())
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodePaymentFailed), "got %v", err)
}

func TestStripeChargeTimeout(t *testing.T) {
	gw := newStripeGateway(stubIntents{
		createFn: func(ctx context.Context, _ *stripe.PaymentIntentCreateParams) (*stripe.PaymentIntent, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}, &stubMethods{}, 10*time.Millisecond, nil, nil)

	_, err := gw.Charge(context.Background(), chargeRequest())
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodePaymentFailed), "got %v", err)
	require.Contains(t, err.Error(), "timed out")
}

func TestStripeChargeRequiresAction(t *testing.T) {
	gw := newStripeGateway(stubIntents{
		createFn: func(context.Context, *stripe.PaymentIntentCreateParams) (*stripe.PaymentIntent, error) {
			return &stripe.PaymentIntent{ID: "pi_3ds", ClientSecret: "pi_3ds_secret", Status: stripe.PaymentIntentStatusRequiresAction}, nil
		},
	}, &stubMethods{}, time.Second, nil, nil)

	out, err := gw.Charge(context.Background(), chargeRequest())
	require.NoError(t, err)
	require.Equal(t, StatusRequiresAction, out.Status)
	require.Equal(t, "pi_3ds_secret", out.ClientSecret)
	require.Equal(t, enums.ChargeStatusPending, out.Status.ChargeStatus())
}

func TestStripeChargeValidatesInput(t *testing.T) {
	gw := newStripeGateway(stubIntents{}, &stubMethods{}, time.Second, nil, nil)

	req := chargeRequest()
	req.AmountMinor = 0
	_, err := gw.Charge(context.Background(), req)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	req = chargeRequest()
	req.MethodToken = " "
	_, err = gw.Charge(context.Background(), req)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestStripeConfirmActionOnlyConfirmsWhenNeeded(t *testing.T) {
	confirmed := 0
	intents := stubIntents{
		retrieveFn: func(_ context.Context, id string, _ *stripe.PaymentIntentRetrieveParams) (*stripe.PaymentIntent, error) {
			if id == "pi_done" {
				return &stripe.PaymentIntent{ID: id, Amount: 500, Status: stripe.PaymentIntentStatusSucceeded}, nil
			}
			return &stripe.PaymentIntent{ID: id, Status: stripe.PaymentIntentStatusRequiresConfirmation}, nil
		},
		confirmFn: func(_ context.Context, id string, _ *stripe.PaymentIntentConfirmParams) (*stripe.PaymentIntent, error) {
			confirmed++
			return &stripe.PaymentIntent{ID: id, Amount: 500, Status: stripe.PaymentIntentStatusSucceeded}, nil
		},
	}
	gw := newStripeGateway(intents, &stubMethods{}, time.Second, nil, nil)

	out, err := gw.ConfirmAction(context.Background(), "pi_done")
	require.NoError(t, err)
	require.Equal(t, StatusSucceeded, out.Status)
	require.Zero(t, confirmed)

	out, err = gw.ConfirmAction(context.Background(), "pi_pending")
	require.NoError(t, err)
	require.Equal(t, StatusSucceeded, out.Status)
	require.Equal(t, 1, confirmed)
}

func TestFromIntentCanceledIsFailed(t *testing.T) {
	out := fromIntent(&stripe.PaymentIntent{ID: "pi_x", Status: stripe.PaymentIntentStatusCanceled})
	require.Equal(t, StatusFailed, out.Status)
	require.Equal(t, "payment canceled", out.FailureMessage)
	require.Equal(t, enums.ChargeStatusFailed, out.Status.ChargeStatus())
}
