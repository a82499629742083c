package registry

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/carrental-backend/pkg/config"
	"github.com/angelmondragon/carrental-backend/pkg/db/models"
	"github.com/angelmondragon/carrental-backend/pkg/enums"
	"github.com/angelmondragon/carrental-backend/pkg/outbox"
	"github.com/angelmondragon/carrental-backend/pkg/outbox/payloads"
)

func TestEventRegistryResolveSuccess(t *testing.T) {
	reg := newTestEventRegistry(t)

	reservationID := uuid.New()
	payloadBytes := mustMarshal(t, payloads.ReservationReconciledEvent{
		ReservationID: reservationID,
		Status:        enums.ReservationStatusPaid,
		PaymentMethod: enums.PaymentMethodCard,
		PaymentStatus: enums.PaymentStatusPaid,
		AmountPaid:    decimal.RequireFromString("360.00"),
	})

	event := models.OutboxEvent{
		EventType:     enums.EventReservationReconciled,
		AggregateType: enums.AggregateReservation,
		AggregateID:   reservationID,
		Payload:       mustEnvelope(t, payloadBytes),
	}

	resolved, err := reg.Resolve(event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resolved.Descriptor.Topic != "payments-topic" {
		t.Fatalf("unexpected topic %q", resolved.Descriptor.Topic)
	}
	payload, ok := resolved.Payload.(*payloads.ReservationReconciledEvent)
	if !ok {
		t.Fatalf("unexpected payload type %T", resolved.Payload)
	}
	if payload.ReservationID != reservationID || !payload.AmountPaid.Equal(decimal.NewFromInt(360)) {
		t.Fatalf("payload mismatch %+v", payload)
	}
	if resolved.Envelope.EventID == "" {
		t.Fatalf("envelope missing event id")
	}
}

func TestEventRegistryRoutesReservationLifecycleToReservationsTopic(t *testing.T) {
	reg := newTestEventRegistry(t)

	for _, eventType := range []enums.OutboxEventType{
		enums.EventReservationCreated,
		enums.EventReservationUpdated,
		enums.EventReservationDeleted,
	} {
		event := models.OutboxEvent{
			EventType:     eventType,
			AggregateType: enums.AggregateReservation,
			AggregateID:   uuid.New(),
			Payload:       mustEnvelope(t, []byte(`{"reservation_id":"`+uuid.NewString()+`"}`)),
		}
		resolved, err := reg.Resolve(event)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", eventType, err)
		}
		if resolved.Descriptor.Topic != "reservations-topic" {
			t.Fatalf("%s: unexpected topic %q", eventType, resolved.Descriptor.Topic)
		}
	}
	if got := reg.Topics(); len(got) != 2 || got[0] != "payments-topic" {
		t.Fatalf("unexpected topics %v", got)
	}
}

func TestEventRegistryResolveRejectsBadRows(t *testing.T) {
	reg := newTestEventRegistry(t)

	cases := map[string]models.OutboxEvent{
		"unknown event type": {
			EventType:     enums.OutboxEventType("car.washed"),
			AggregateType: enums.AggregateReservation,
			AggregateID:   uuid.New(),
			Payload:       mustEnvelope(t, []byte(`{"reason":"none"}`)),
		},
		"aggregate mismatch": {
			EventType:     enums.EventPaymentRecorded,
			AggregateType: enums.AggregateReservation,
			AggregateID:   uuid.New(),
			Payload:       mustEnvelope(t, []byte(`{"payment_id":"00000000-0000-0000-0000-000000000000"}`)),
		},
		"nil aggregate id": {
			EventType:     enums.EventReservationCreated,
			AggregateType: enums.AggregateReservation,
			Payload:       mustEnvelope(t, []byte(`{}`)),
		},
		"null data": {
			EventType:     enums.EventReservationCreated,
			AggregateType: enums.AggregateReservation,
			AggregateID:   uuid.New(),
			Payload:       mustEnvelope(t, []byte("null")),
		},
		"garbage envelope": {
			EventType:     enums.EventReservationCreated,
			AggregateType: enums.AggregateReservation,
			AggregateID:   uuid.New(),
			Payload:       json.RawMessage(`{"data":`),
		},
	}

	for name, event := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := reg.Resolve(event)
			var nonRetry NonRetryableError
			if !errors.As(err, &nonRetry) {
				t.Fatalf("expected non-retryable error, got %v", err)
			}
		})
	}
}

func TestNewEventRegistryRequiresTopics(t *testing.T) {
	if _, err := NewEventRegistry(config.PubSubConfig{ReservationsTopic: "r"}); err == nil {
		t.Fatalf("expected error for missing payments topic")
	}
}

func newTestEventRegistry(t *testing.T) *EventRegistry {
	t.Helper()
	reg, err := NewEventRegistry(config.PubSubConfig{
		ReservationsTopic: "reservations-topic",
		PaymentsTopic:     "payments-topic",
	})
	if err != nil {
		t.Fatalf("build registry: %v", err)
	}
	return reg
}

func mustMarshal(t *testing.T, v any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return data
}

func mustEnvelope(t *testing.T, payload []byte) json.RawMessage {
	t.Helper()
	envelope := outbox.PayloadEnvelope{
		Version:    1,
		EventID:    uuid.NewString(),
		OccurredAt: time.Now().UTC(),
		Data:       payload,
	}
	data, err := json.Marshal(envelope)
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	return data
}
