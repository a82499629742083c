package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/carrental-backend/pkg/amqp"
	"github.com/angelmondragon/carrental-backend/pkg/config"
	"github.com/angelmondragon/carrental-backend/pkg/db/models"
	"github.com/angelmondragon/carrental-backend/pkg/enums"
	"github.com/angelmondragon/carrental-backend/pkg/logger"
	"github.com/angelmondragon/carrental-backend/pkg/outbox"
	"github.com/angelmondragon/carrental-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/carrental-backend/pkg/outbox/registry"
)

func TestServiceProcessBatchContinuesAfterFailure(t *testing.T) {
	repo := &fakeRepo{
		events: []models.OutboxEvent{
			reconciledEvent(t, "event-one"),
			reconciledEvent(t, "event-two"),
		},
	}
	tr := &fakeTransport{errs: []error{errors.New("transient"), nil}}
	service := newTestService(t, repo, tr, &fakeRegistry{resolved: resolvedReconciled()}, nil)

	processed, err := service.drain(context.Background())
	require.NoError(t, err)
	require.True(t, processed)
	require.Equal(t, []uuid.UUID{repo.events[0].ID}, repo.failed)
	require.Equal(t, []uuid.UUID{repo.events[1].ID}, repo.published)
	require.Len(t, tr.sent, 2)
}

func TestServiceProcessBatchMarksTerminalOnNonRetryable(t *testing.T) {
	event := reconciledEvent(t, "nonretryable")
	repo := &fakeRepo{events: []models.OutboxEvent{event}}
	reg := &fakeRegistry{err: registry.NewNonRetryableError(errors.New("invalid payload"))}
	tr := &fakeTransport{}
	service := newTestService(t, repo, tr, reg, nil)

	processed, err := service.drain(context.Background())
	require.NoError(t, err)
	require.True(t, processed)
	require.Equal(t, []uuid.UUID{event.ID}, repo.terminal)
	require.Empty(t, tr.sent)
	require.Empty(t, repo.published)
}

func TestServiceProcessBatchMarksTerminalAtMaxAttempts(t *testing.T) {
	event := reconciledEvent(t, "exhausted")
	event.AttemptCount = 1
	repo := &fakeRepo{events: []models.OutboxEvent{event}}
	tr := &fakeTransport{errs: []error{errors.New("still down")}}
	service := newTestService(t, repo, tr, &fakeRegistry{resolved: resolvedReconciled()}, &config.OutboxConfig{
		BatchSize:      1,
		PollIntervalMS: 100,
		MaxAttempts:    2,
	})

	processed, err := service.drain(context.Background())
	require.NoError(t, err)
	require.True(t, processed)
	require.Equal(t, []uuid.UUID{event.ID}, repo.terminal)
	require.Equal(t, 2, repo.terminalAttempts)
	require.Empty(t, repo.failed)
}

func TestServiceProcessBatchEmpty(t *testing.T) {
	service := newTestService(t, &fakeRepo{}, &fakeTransport{}, &fakeRegistry{}, nil)
	processed, err := service.drain(context.Background())
	require.NoError(t, err)
	require.False(t, processed)
}

func TestAMQPTransportRoutesByEventType(t *testing.T) {
	pub := &fakeAMQPPublisher{}
	tr := &amqpTransport{publisher: pub}
	event := reconciledEvent(t, "evt-amqp")
	resolved := resolvedReconciled()
	resolved.Envelope.EventID = "evt-amqp"

	require.NoError(t, tr.Publish(context.Background(), event, resolved))
	require.Equal(t, string(enums.EventReservationReconciled), pub.routingKey)
	require.Equal(t, "evt-amqp", pub.msg.ID)
	require.Equal(t, "payments-topic", pub.msg.Headers["topic"])
	require.Equal(t, event.AggregateID.String(), pub.msg.Headers["aggregate_id"])
}

func TestNextBackoffCaps(t *testing.T) {
	require.Equal(t, 200*time.Millisecond, nextBackoff(100*time.Millisecond, 100*time.Millisecond, time.Second))
	require.Equal(t, time.Second, nextBackoff(800*time.Millisecond, 100*time.Millisecond, time.Second))
	require.Equal(t, 200*time.Millisecond, nextBackoff(0, 100*time.Millisecond, time.Second))
}

func TestNewServiceRequiresTransport(t *testing.T) {
	_, err := NewService(ServiceParams{
		Config:     &config.Config{},
		Logger:     logger.New(logger.Options{Output: io.Discard}),
		DB:         &fakeDB{},
		Repository: &fakeRepo{},
		Registry:   &fakeRegistry{},
	})
	require.Error(t, err)
}

func newTestService(t *testing.T, repo outboxRepository, tr transport, reg registryResolver, outboxCfgOverride *config.OutboxConfig) *Service {
	t.Helper()
	outboxCfg := config.OutboxConfig{
		BatchSize:      2,
		PollIntervalMS: 100,
		MaxAttempts:    5,
	}
	if outboxCfgOverride != nil {
		outboxCfg = *outboxCfgOverride
	}
	logg := logger.New(logger.Options{
		ServiceName: "outbox-publisher-test",
		Output:      io.Discard,
	})
	service, err := NewService(ServiceParams{
		Config:     &config.Config{Outbox: outboxCfg},
		Logger:     logg,
		DB:         &fakeDB{},
		Transport:  tr,
		Repository: repo,
		Registry:   reg,
	})
	require.NoError(t, err)
	return service
}

func reconciledEvent(tb testing.TB, eventID string) models.OutboxEvent {
	tb.Helper()
	env := outbox.PayloadEnvelope{
		Version:    1,
		EventID:    eventID,
		OccurredAt: time.Now(),
		Data:       json.RawMessage(`{}`),
	}
	payload, err := json.Marshal(env)
	if err != nil {
		tb.Fatalf("marshal envelope: %v", err)
	}
	return models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventReservationReconciled,
		AggregateType: enums.AggregateReservation,
		AggregateID:   uuid.New(),
		Payload:       payload,
	}
}

func resolvedReconciled() *registry.ResolvedEvent {
	return &registry.ResolvedEvent{
		Descriptor: registry.EventDescriptor{
			EventType:     enums.EventReservationReconciled,
			AggregateType: enums.AggregateReservation,
			Topic:         "payments-topic",
		},
		Envelope: outbox.PayloadEnvelope{
			EventID:    uuid.NewString(),
			OccurredAt: time.Now(),
		},
		Payload: &payloads.ReservationReconciledEvent{},
	}
}

type fakeRepo struct {
	events           []models.OutboxEvent
	published        []uuid.UUID
	failed           []uuid.UUID
	terminal         []uuid.UUID
	terminalAttempts int
}

func (f *fakeRepo) FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error) {
	return f.events, nil
}

func (f *fakeRepo) MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error {
	f.published = append(f.published, id)
	return nil
}

func (f *fakeRepo) MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error {
	f.failed = append(f.failed, id)
	return nil
}

func (f *fakeRepo) MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error {
	f.terminal = append(f.terminal, id)
	f.terminalAttempts = terminalAttempts
	return nil
}

type fakeDB struct{}

func (f *fakeDB) Ping(context.Context) error {
	return nil
}

func (f *fakeDB) WithTx(_ context.Context, fn func(*gorm.DB) error) error {
	return fn(nil)
}

type fakeTransport struct {
	errs []error
	sent []uuid.UUID
}

func (f *fakeTransport) Name() string { return "fake" }

func (f *fakeTransport) Ping(context.Context) error { return nil }

func (f *fakeTransport) Publish(_ context.Context, event models.OutboxEvent, _ *registry.ResolvedEvent) error {
	f.sent = append(f.sent, event.ID)
	if len(f.errs) == 0 {
		return nil
	}
	err := f.errs[0]
	f.errs = f.errs[1:]
	return err
}

type fakeRegistry struct {
	resolved *registry.ResolvedEvent
	err      error
}

func (f *fakeRegistry) Resolve(event models.OutboxEvent) (*registry.ResolvedEvent, error) {
	if f.resolved == nil {
		return nil, f.err
	}
	resolved := *f.resolved
	resolved.Envelope.EventID = event.ID.String()
	return &resolved, f.err
}

type fakeAMQPPublisher struct {
	routingKey string
	msg        amqp.Message
}

func (f *fakeAMQPPublisher) Ping(context.Context) error { return nil }

func (f *fakeAMQPPublisher) Publish(_ context.Context, routingKey string, msg amqp.Message) error {
	f.routingKey = routingKey
	f.msg = msg
	return nil
}
