package stripewebhook

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"

	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/carrental-backend/internal/checkout"
	"github.com/angelmondragon/carrental-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/carrental-backend/pkg/errors"
	"github.com/angelmondragon/carrental-backend/pkg/logger"
)

type finalizeCall struct {
	reference string
	status    enums.ChargeStatus
	failure   *string
}

type stubFinalizer struct {
	calls []finalizeCall
	err   error
}

func (s *stubFinalizer) FinalizeByReference(_ context.Context, reference string, status enums.ChargeStatus, failure *string) (*checkout.PaymentResult, error) {
	s.calls = append(s.calls, finalizeCall{reference: reference, status: status, failure: failure})
	if s.err != nil {
		return nil, s.err
	}
	return &checkout.PaymentResult{}, nil
}

func intentEvent(t *testing.T, eventType stripe.EventType, intent stripe.PaymentIntent) *stripe.Event {
	t.Helper()
	raw, err := json.Marshal(intent)
	if err != nil {
		t.Fatalf("marshal intent: %v", err)
	}
	return &stripe.Event{ID: "evt_1", Type: eventType, Data: &stripe.EventData{Raw: raw}}
}

func TestHandleEventSucceeded(t *testing.T) {
	finalizer := &stubFinalizer{}
	svc, err := NewService(finalizer, nil)
	if err != nil {
		t.Fatalf("setup: %v", err)
	}

	event := intentEvent(t, stripe.EventTypePaymentIntentSucceeded, stripe.PaymentIntent{ID: "pi_1", Status: stripe.PaymentIntentStatusSucceeded})
	if err := svc.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(finalizer.calls) != 1 {
		t.Fatalf("expected one finalize call, got %d", len(finalizer.calls))
	}
	call := finalizer.calls[0]
	if call.reference != "pi_1" || call.status != enums.ChargeStatusSucceeded || call.failure != nil {
		t.Fatalf("unexpected call %+v", call)
	}
}

func TestHandleEventPaymentFailedCarriesMessage(t *testing.T) {
	finalizer := &stubFinalizer{}
	svc, _ := NewService(finalizer, nil)

	event := intentEvent(t, stripe.EventTypePaymentIntentPaymentFailed, stripe.PaymentIntent{
		ID:               "pi_2",
		Status:           stripe.PaymentIntentStatusRequiresPaymentMethod,
		LastPaymentError: &stripe.Error{Msg: "Your card has insufficient funds."},
	})
	if err := svc.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("handle: %v", err)
	}
	call := finalizer.calls[0]
	if call.status != enums.ChargeStatusFailed {
		t.Fatalf("expected failed, got %s", call.status)
	}
	if call.failure == nil || *call.failure != "Your card has insufficient funds." {
		t.Fatalf("unexpected failure message %v", call.failure)
	}
}

func TestHandleEventAcknowledgesUnknownAndRefusedIntents(t *testing.T) {
	codes := []pkgerrors.Code{pkgerrors.CodeNotFound, pkgerrors.CodeStateConflict, pkgerrors.CodeInvariant}
	events := []stripe.EventType{stripe.EventTypePaymentIntentSucceeded, stripe.EventTypePaymentIntentPaymentFailed}
	for _, code := range codes {
		for _, eventType := range events {
			finalizer := &stubFinalizer{err: pkgerrors.New(code, "reservation is already paid")}
			svc, _ := NewService(finalizer, logger.New(logger.Options{ServiceName: "webhook-test", Output: io.Discard}))
			event := intentEvent(t, eventType, stripe.PaymentIntent{ID: "pi_3ds"})
			if err := svc.HandleEvent(context.Background(), event); err != nil {
				t.Fatalf("%s on %s should be acknowledged, got %v", code, eventType, err)
			}
			if len(finalizer.calls) != 1 {
				t.Fatalf("expected the outcome to reach the ledger once, got %d calls", len(finalizer.calls))
			}
		}
	}
}

func TestHandleEventPropagatesDependencyErrors(t *testing.T) {
	finalizer := &stubFinalizer{err: pkgerrors.Wrap(pkgerrors.CodeDependency, errors.New("db down"), "finalize")}
	svc, _ := NewService(finalizer, nil)
	event := intentEvent(t, stripe.EventTypePaymentIntentSucceeded, stripe.PaymentIntent{ID: "pi_4"})
	if err := svc.HandleEvent(context.Background(), event); !pkgerrors.IsCode(err, pkgerrors.CodeDependency) {
		t.Fatalf("expected dependency error, got %v", err)
	}
}

func TestHandleEventSkipsOtherTypes(t *testing.T) {
	finalizer := &stubFinalizer{}
	svc, _ := NewService(finalizer, nil)
	event := &stripe.Event{Type: stripe.EventTypeCustomerCreated, Data: &stripe.EventData{Raw: []byte(`{}`)}}
	if err := svc.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(finalizer.calls) != 0 {
		t.Fatalf("expected no finalize calls")
	}
}

type memoryTracker struct {
	seen map[string]bool
}

func (m *memoryTracker) CheckAndMarkProcessed(_ context.Context, consumer, eventID string) (bool, error) {
	key := consumer + ":" + eventID
	if m.seen[key] {
		return true, nil
	}
	m.seen[key] = true
	return false, nil
}

func (m *memoryTracker) Delete(_ context.Context, consumer, eventID string) error {
	delete(m.seen, consumer+":"+eventID)
	return nil
}

func TestGuardScopesToConsumer(t *testing.T) {
	tracker := &memoryTracker{seen: map[string]bool{}}
	guard, err := NewGuard(tracker)
	if err != nil {
		t.Fatalf("guard: %v", err)
	}
	ctx := context.Background()

	seen, _ := guard.CheckAndMark(ctx, "evt_1")
	if seen {
		t.Fatalf("first delivery must not be marked seen")
	}
	seen, _ = guard.CheckAndMark(ctx, "evt_1")
	if !seen {
		t.Fatalf("redelivery must be marked seen")
	}
	if !tracker.seen[ConsumerName+":evt_1"] {
		t.Fatalf("expected key scoped by consumer")
	}
	_ = guard.Delete(ctx, "evt_1")
	seen, _ = guard.CheckAndMark(ctx, "evt_1")
	if seen {
		t.Fatalf("marker should be released after delete")
	}
}
