package stripewebhook

import (
	"context"
	"errors"
)

// ConsumerName scopes the processed-event markers written for Stripe deliveries.
const ConsumerName = "stripe-webhook"

type processedTracker interface {
	CheckAndMarkProcessed(ctx context.Context, consumer, eventID string) (bool, error)
	Delete(ctx context.Context, consumer, eventID string) error
}

// Guard drops Stripe redeliveries of an event that was already handled.
type Guard struct {
	tracker processedTracker
}

func NewGuard(tracker processedTracker) (*Guard, error) {
	if tracker == nil {
		return nil, errors.New("idempotency tracker is required")
	}
	return &Guard{tracker: tracker}, nil
}

// CheckAndMark reports true when eventID was seen before.
func (g *Guard) CheckAndMark(ctx context.Context, eventID string) (bool, error) {
	return g.tracker.CheckAndMarkProcessed(ctx, ConsumerName, eventID)
}

// Delete releases the marker so Stripe's retry is processed.
func (g *Guard) Delete(ctx context.Context, eventID string) error {
	return g.tracker.Delete(ctx, ConsumerName, eventID)
}
