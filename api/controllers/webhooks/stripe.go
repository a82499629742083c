package webhooks

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/webhook"

	"github.com/angelmondragon/carrental-backend/api/responses"
	pkgerrors "github.com/angelmondragon/carrental-backend/pkg/errors"
	"github.com/angelmondragon/carrental-backend/pkg/logger"
)

// Stripe caps event payloads well below this.
const maxWebhookBytes = 64 << 10

const signatureHeader = "Stripe-Signature"

type StripeWebhookService interface {
	HandleEvent(ctx context.Context, event *stripe.Event) error
}

type stripeWebhookGuard interface {
	CheckAndMark(ctx context.Context, eventID string) (bool, error)
	Delete(ctx context.Context, eventID string) error
}

type signingSecretSource interface {
	SigningSecret() string
}

// StripeWebhook verifies the signature, drops redeliveries and hands the event
// to svc. When svc fails the processed marker is cleared and the response is
// non-2xx, so Stripe sends the event again.
func StripeWebhook(svc StripeWebhookService, secrets signingSecretSource, guard stripeWebhookGuard, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil || secrets == nil || guard == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "stripe webhooks not configured"))
			return
		}

		event, err := verify(r, secrets.SigningSecret())
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if logg != nil {
			ctx = logg.WithFields(ctx, map[string]any{"stripe_event_id": event.ID, "stripe_event_type": string(event.Type)})
		}

		seen, err := guard.CheckAndMark(ctx, event.ID)
		switch {
		case err != nil:
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency"))
			return
		case seen:
			responses.WriteSuccess(w, map[string]any{"duplicate": true})
			return
		}

		if err := svc.HandleEvent(ctx, &event); err != nil {
			if delErr := guard.Delete(context.WithoutCancel(ctx), event.ID); delErr != nil && logg != nil {
				logg.Error(ctx, "release stripe event marker", delErr)
			}
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if logg != nil {
			logg.Info(ctx, "stripe event processed")
		}
		responses.WriteSuccess(w, map[string]any{"received": true})
	}
}

// verify reads the raw body, which must stay byte-exact for the HMAC check.
func verify(r *http.Request, secret string) (stripe.Event, error) {
	sig := r.Header.Get(signatureHeader)
	if sig == "" {
		return stripe.Event{}, pkgerrors.New(pkgerrors.CodeValidation, "stripe signature missing")
	}
	payload, err := io.ReadAll(http.MaxBytesReader(nil, r.Body, maxWebhookBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return stripe.Event{}, pkgerrors.New(pkgerrors.CodeValidation, "stripe payload too large")
		}
		return stripe.Event{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request body")
	}
	// events may be pinned to an older API version than the SDK's
	event, err := webhook.ConstructEventWithOptions(payload, sig, secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return stripe.Event{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid stripe signature")
	}
	return event, nil
}
