package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/google/uuid"

	"github.com/angelmondragon/carrental-backend/pkg/config"
	"github.com/angelmondragon/carrental-backend/pkg/db/models"
	"github.com/angelmondragon/carrental-backend/pkg/enums"
	"github.com/angelmondragon/carrental-backend/pkg/outbox"
	"github.com/angelmondragon/carrental-backend/pkg/outbox/payloads"
)

// EventDescriptor says where an event type is published and how its data decodes.
type EventDescriptor struct {
	EventType      enums.OutboxEventType
	AggregateType  enums.OutboxAggregateType
	Topic          string
	PayloadFactory func() any
}

// ResolvedEvent is an outbox row that passed validation, with its data decoded.
type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Payload    any
}

type EventRegistry struct {
	entries map[enums.OutboxEventType]EventDescriptor
}

// NonRetryableError marks a row that will fail the same way on every attempt.
type NonRetryableError struct {
	Err error
}

func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Err: err}
}

func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable error"
	}
	return e.Err.Error()
}

func (e NonRetryableError) Unwrap() error { return e.Err }

func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	switch {
	case cfg.ReservationsTopic == "":
		return nil, errors.New("reservations topic is required")
	case cfg.PaymentsTopic == "":
		return nil, errors.New("payments topic is required")
	}

	lifecycle := func() any { return &payloads.ReservationEvent{} }
	descriptors := []EventDescriptor{
		{enums.EventReservationCreated, enums.AggregateReservation, cfg.ReservationsTopic, lifecycle},
		{enums.EventReservationUpdated, enums.AggregateReservation, cfg.ReservationsTopic, lifecycle},
		{enums.EventReservationDeleted, enums.AggregateReservation, cfg.ReservationsTopic, lifecycle},
		// payment outcomes go to the payments topic even though the aggregate is the reservation
		{enums.EventReservationReconciled, enums.AggregateReservation, cfg.PaymentsTopic, func() any { return &payloads.ReservationReconciledEvent{} }},
		{enums.EventPaymentRecorded, enums.AggregatePayment, cfg.PaymentsTopic, func() any { return &payloads.PaymentRecordedEvent{} }},
	}

	reg := &EventRegistry{entries: make(map[enums.OutboxEventType]EventDescriptor, len(descriptors))}
	for _, d := range descriptors {
		reg.entries[d.EventType] = d
	}
	return reg, nil
}

// Topics returns each routed topic once, sorted.
func (r *EventRegistry) Topics() []string {
	var topics []string
	for _, d := range r.entries {
		if !slices.Contains(topics, d.Topic) {
			topics = append(topics, d.Topic)
		}
	}
	slices.Sort(topics)
	return topics
}

// Resolve checks the row against its descriptor and decodes the typed payload.
// Every failure is non-retryable: the row will never get better by waiting.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	desc, ok := r.entries[event.EventType]
	if !ok {
		return nil, permanent("unsupported event type %s", event.EventType)
	}
	if desc.AggregateType != event.AggregateType {
		return nil, permanent("aggregate mismatch: expected %s got %s", desc.AggregateType, event.AggregateType)
	}
	if event.AggregateID == uuid.Nil {
		return nil, permanent("%s row has no aggregate_id", event.EventType)
	}

	envelope, err := outbox.DecodeEnvelope(event.Payload)
	if err != nil {
		return nil, permanent("%s: %w", event.EventType, err)
	}
	payload := desc.PayloadFactory()
	if err := json.Unmarshal(envelope.Data, payload); err != nil {
		return nil, permanent("decode %s payload: %w", event.EventType, err)
	}
	return &ResolvedEvent{Descriptor: desc, Envelope: envelope, Payload: payload}, nil
}

func permanent(format string, args ...any) error {
	return NewNonRetryableError(fmt.Errorf(format, args...))
}
