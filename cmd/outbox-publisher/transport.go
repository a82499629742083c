package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"

	"github.com/angelmondragon/carrental-backend/pkg/amqp"
	"github.com/angelmondragon/carrental-backend/pkg/db/models"
	"github.com/angelmondragon/carrental-backend/pkg/outbox/registry"
)

const (
	transportPubSub = "pubsub"
	transportAMQP   = "amqp"
)

func eventAttributes(event models.OutboxEvent, resolved *registry.ResolvedEvent) map[string]string {
	return map[string]string{
		"event_id":       resolved.Envelope.EventID,
		"event_type":     string(event.EventType),
		"aggregate_type": string(event.AggregateType),
		"aggregate_id":   event.AggregateID.String(),
		"created_at":     event.CreatedAt.Format(time.RFC3339Nano),
	}
}

type pubSubClient interface {
	Ping(context.Context) error
	Publisher(name string) *gcppubsub.Publisher
}

type pubSubTransport struct {
	client pubSubClient
}

func (t *pubSubTransport) Name() string { return transportPubSub }

func (t *pubSubTransport) Ping(ctx context.Context) error { return t.client.Ping(ctx) }

func (t *pubSubTransport) Publish(ctx context.Context, event models.OutboxEvent, resolved *registry.ResolvedEvent) error {
	topic := resolved.Descriptor.Topic
	pub := t.client.Publisher(topic)
	if pub == nil {
		return registry.NewNonRetryableError(fmt.Errorf("publisher not configured for topic %s", topic))
	}
	result := pub.Publish(ctx, &gcppubsub.Message{
		Data:       event.Payload,
		Attributes: eventAttributes(event, resolved),
	})
	if result == nil {
		return registry.NewNonRetryableError(fmt.Errorf("publisher returned nil for topic %s", topic))
	}
	_, err := result.Get(ctx)
	return err
}

type amqpPublisher interface {
	Ping(context.Context) error
	Publish(ctx context.Context, routingKey string, msg amqp.Message) error
}

// amqpTransport routes by event type so consumers can bind per event family.
type amqpTransport struct {
	publisher amqpPublisher
}

func (t *amqpTransport) Name() string { return transportAMQP }

func (t *amqpTransport) Ping(ctx context.Context) error { return t.publisher.Ping(ctx) }

func (t *amqpTransport) Publish(ctx context.Context, event models.OutboxEvent, resolved *registry.ResolvedEvent) error {
	if t.publisher == nil {
		return errors.New("amqp publisher is nil")
	}
	headers := eventAttributes(event, resolved)
	headers["topic"] = resolved.Descriptor.Topic
	return t.publisher.Publish(ctx, string(event.EventType), amqp.Message{
		ID:        resolved.Envelope.EventID,
		Body:      event.Payload,
		Headers:   headers,
		Timestamp: resolved.Envelope.OccurredAt,
	})
}
