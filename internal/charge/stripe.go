package charge

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v84"

	pkgerrors "github.com/angelmondragon/carrental-backend/pkg/errors"
	"github.com/angelmondragon/carrental-backend/pkg/logger"
	"github.com/angelmondragon/carrental-backend/pkg/metrics"
	pkgstripe "github.com/angelmondragon/carrental-backend/pkg/stripe"
)

// MetadataReservationID is the PaymentIntent metadata key webhooks use to find the reservation.
const MetadataReservationID = "reservation_id"

type paymentIntentAPI interface {
	Create(ctx context.Context, params *stripe.PaymentIntentCreateParams) (*stripe.PaymentIntent, error)
	Confirm(ctx context.Context, id string, params *stripe.PaymentIntentConfirmParams) (*stripe.PaymentIntent, error)
	Retrieve(ctx context.Context, id string, params *stripe.PaymentIntentRetrieveParams) (*stripe.PaymentIntent, error)
}

type paymentMethodAPI interface {
	Create(ctx context.Context, params *stripe.PaymentMethodCreateParams) (*stripe.PaymentMethod, error)
}

// StripeGateway charges cards with PaymentIntents.
type StripeGateway struct {
	intents paymentIntentAPI
	methods paymentMethodAPI
	timeout time.Duration
	metrics *metrics.BookingMetrics
	logg    *logger.Logger
}

// NewStripeGateway builds a gateway on the shared Stripe client.
func NewStripeGateway(client *pkgstripe.Client, m *metrics.BookingMetrics, logg *logger.Logger) (*StripeGateway, error) {
	if client == nil || client.API() == nil {
		return nil, errors.New("stripe client required")
	}
	api := client.API()
	return newStripeGateway(api.V1PaymentIntents, api.V1PaymentMethods, client.ChargeTimeout(), m, logg), nil
}

func newStripeGateway(intents paymentIntentAPI, methods paymentMethodAPI, timeout time.Duration, m *metrics.BookingMetrics, logg *logger.Logger) *StripeGateway {
	return &StripeGateway{intents: intents, methods: methods, timeout: timeout, metrics: m, logg: logg}
}

func (g *StripeGateway) Charge(ctx context.Context, req Request) (Outcome, error) {
	if req.AmountMinor <= 0 {
		return Outcome{}, pkgerrors.New(pkgerrors.CodeValidation, "charge amount must be positive")
	}
	token := strings.TrimSpace(req.MethodToken)
	if token == "" {
		return Outcome{}, pkgerrors.New(pkgerrors.CodeValidation, "card token required")
	}

	return g.call(ctx, "charge", func(ctx context.Context) (*stripe.PaymentIntent, error) {
		methodParams := &stripe.PaymentMethodCreateParams{
			Type: stripe.String(string(stripe.PaymentMethodTypeCard)),
			Card: &stripe.PaymentMethodCreateCardParams{Token: stripe.String(token)},
		}
		method, err := g.methods.Create(ctx, methodParams)
		if err != nil {
			return nil, err
		}

		params := &stripe.PaymentIntentCreateParams{
			Amount:             stripe.Int64(req.AmountMinor),
			Currency:           stripe.String(req.Currency.Lower()),
			PaymentMethod:      stripe.String(method.ID),
			PaymentMethodTypes: []*string{stripe.String("card")},
			Confirm:            stripe.Bool(true),
		}
		params.AddMetadata(MetadataReservationID, req.ReservationID.String())
		if req.IdempotencyKey != "" {
			params.SetIdempotencyKey(req.IdempotencyKey)
		}
		return g.intents.Create(ctx, params)
	})
}

func (g *StripeGateway) ConfirmAction(ctx context.Context, reference string) (Outcome, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return Outcome{}, pkgerrors.New(pkgerrors.CodeValidation, "payment reference required")
	}
	return g.call(ctx, "confirm", func(ctx context.Context) (*stripe.PaymentIntent, error) {
		current, err := g.intents.Retrieve(ctx, reference, &stripe.PaymentIntentRetrieveParams{})
		if err != nil {
			return nil, err
		}
		if current.Status != stripe.PaymentIntentStatusRequiresConfirmation {
			return current, nil
		}
		return g.intents.Confirm(ctx, reference, &stripe.PaymentIntentConfirmParams{})
	})
}

func (g *StripeGateway) Retrieve(ctx context.Context, reference string) (Outcome, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return Outcome{}, pkgerrors.New(pkgerrors.CodeValidation, "payment reference required")
	}
	return g.call(ctx, "retrieve", func(ctx context.Context) (*stripe.PaymentIntent, error) {
		return g.intents.Retrieve(ctx, reference, &stripe.PaymentIntentRetrieveParams{})
	})
}

func (g *StripeGateway) call(ctx context.Context, op string, fn func(ctx context.Context) (*stripe.PaymentIntent, error)) (Outcome, error) {
	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	started := time.Now()
	intent, err := fn(callCtx)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.Type == stripe.ErrorTypeCard {
			outcome := Outcome{Status: StatusFailed, FailureMessage: stripeErr.Msg}
			if stripeErr.PaymentIntent != nil {
				outcome = fromIntent(stripeErr.PaymentIntent)
				outcome.Status = StatusFailed
				outcome.FailureMessage = stripeErr.Msg
			}
			g.metrics.ObserveCharge(string(StatusFailed), time.Since(started))
			return outcome, nil
		}
		g.metrics.ObserveCharge("error", time.Since(started))
		if g.logg != nil {
			g.logg.Error(g.logg.WithField(ctx, "operation", op), "payment processor call failed", err)
		}
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return Outcome{}, pkgerrors.Wrap(pkgerrors.CodePaymentFailed, err, "payment processor timed out")
		}
		return Outcome{}, pkgerrors.Wrap(pkgerrors.CodePaymentFailed, err, "payment processor unavailable")
	}

	outcome := fromIntent(intent)
	g.metrics.ObserveCharge(string(outcome.Status), time.Since(started))
	return outcome, nil
}

func fromIntent(pi *stripe.PaymentIntent) Outcome {
	out := Outcome{
		Reference:    pi.ID,
		ClientSecret: pi.ClientSecret,
		AmountMinor:  pi.Amount,
		Currency:     strings.ToUpper(string(pi.Currency)),
	}
	switch pi.Status {
	case stripe.PaymentIntentStatusSucceeded:
		out.Status = StatusSucceeded
	case stripe.PaymentIntentStatusRequiresAction, stripe.PaymentIntentStatusRequiresConfirmation:
		out.Status = StatusRequiresAction
	case stripe.PaymentIntentStatusProcessing, stripe.PaymentIntentStatusRequiresCapture:
		out.Status = StatusProcessing
	default:
		out.Status = StatusFailed
		if pi.LastPaymentError != nil && pi.LastPaymentError.Msg != "" {
			out.FailureMessage = pi.LastPaymentError.Msg
		} else {
			out.FailureMessage = "payment " + string(pi.Status)
		}
	}
	return out
}
