package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/carrental-backend/pkg/config"
	"github.com/angelmondragon/carrental-backend/pkg/db/models"
	"github.com/angelmondragon/carrental-backend/pkg/logger"
	"github.com/angelmondragon/carrental-backend/pkg/outbox/registry"
)

const (
	fallbackBatch       = 50
	fallbackPoll        = 500 * time.Millisecond
	fallbackMaxAttempts = 10
	deliveryTimeout     = 15 * time.Second
	backoffCeiling      = 10 * time.Second
	jitterSpread        = 250 * time.Millisecond
)

var jitterRand = rand.New(rand.NewSource(time.Now().UnixNano()))

type dbClient interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type outboxRepository interface {
	FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error
	MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error
	MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error
}

type registryResolver interface {
	Resolve(models.OutboxEvent) (*registry.ResolvedEvent, error)
}

// transport delivers one resolved event to the broker.
type transport interface {
	Name() string
	Ping(context.Context) error
	Publish(ctx context.Context, event models.OutboxEvent, resolved *registry.ResolvedEvent) error
}

type ServiceParams struct {
	Config     *config.Config
	Logger     *logger.Logger
	DB         dbClient
	Transport  transport
	Repository outboxRepository
	Registry   registryResolver
}

// Service drains the outbox table into the configured broker.
type Service struct {
	logg        *logger.Logger
	db          dbClient
	repo        outboxRepository
	transport   transport
	registry    registryResolver
	batch       int
	maxAttempts int
	poll        time.Duration
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.Config == nil:
		return nil, errors.New("config is required")
	case params.Logger == nil:
		return nil, errors.New("logger is required")
	case params.DB == nil:
		return nil, errors.New("database client is required")
	case params.Transport == nil:
		return nil, errors.New("transport is required")
	case params.Repository == nil:
		return nil, errors.New("outbox repository is required")
	case params.Registry == nil:
		return nil, errors.New("event registry is required")
	}

	oc := params.Config.Outbox
	s := &Service{
		logg:        params.Logger,
		db:          params.DB,
		repo:        params.Repository,
		transport:   params.Transport,
		registry:    params.Registry,
		batch:       fallbackBatch,
		maxAttempts: fallbackMaxAttempts,
		poll:        fallbackPoll,
	}
	if oc.BatchSize > 0 {
		s.batch = oc.BatchSize
	}
	if oc.MaxAttempts > 0 {
		s.maxAttempts = oc.MaxAttempts
	}
	if oc.PollIntervalMS > 0 {
		s.poll = time.Duration(oc.PollIntervalMS) * time.Millisecond
	}
	return s, nil
}

// Run polls until ctx is cancelled. Failed drains back off exponentially up to backoffCeiling.
func (s *Service) Run(ctx context.Context) error {
	if err := s.checkDependencies(ctx); err != nil {
		return err
	}

	wait := s.poll
	for ctx.Err() == nil {
		busy, err := s.drain(ctx)
		switch {
		case err != nil:
			s.logg.Error(ctx, "outbox drain failed", err)
			wait = nextBackoff(wait, s.poll, backoffCeiling)
		case busy:
			wait = s.poll
			continue
		default:
			wait = s.poll
		}
		if err := pause(ctx, withJitter(wait)); err != nil {
			break
		}
	}
	s.logg.Info(ctx, "outbox publisher context canceled")
	return ctx.Err()
}

func (s *Service) checkDependencies(ctx context.Context) error {
	checks := []struct {
		name string
		ping func(context.Context) error
	}{
		{"database", s.db.Ping},
		{s.transport.Name(), s.transport.Ping},
	}
	for _, c := range checks {
		if err := c.ping(ctx); err != nil {
			s.logg.Error(ctx, c.name+" ping failed", err)
			return fmt.Errorf("%s ping failed: %w", c.name, err)
		}
	}
	return nil
}

type deliveryState int

const (
	delivered deliveryState = iota
	retryLater
	deadLetter
)

type delivery struct {
	event  models.OutboxEvent
	topic  string
	state  deliveryState
	reason string
	err    error
}

// drain handles one batch inside a single transaction and reports whether any rows were claimed.
func (s *Service) drain(ctx context.Context) (bool, error) {
	claimed := false
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		events, err := s.repo.FetchUnpublishedForPublish(tx, s.batch, s.maxAttempts)
		if err != nil {
			return err
		}
		claimed = len(events) > 0
		for _, event := range events {
			if err := s.settle(ctx, tx, s.deliver(ctx, event)); err != nil {
				return err
			}
		}
		return nil
	})
	return claimed, err
}

func (s *Service) deliver(ctx context.Context, event models.OutboxEvent) delivery {
	d := delivery{event: event}
	resolved, err := s.registry.Resolve(event)
	if err != nil {
		d.state, d.reason, d.err = deadLetter, "non_retryable", err
		return d
	}
	d.topic = resolved.Descriptor.Topic

	sendCtx, cancel := context.WithTimeout(ctx, deliveryTimeout)
	err = s.transport.Publish(sendCtx, event, resolved)
	cancel()

	var permanent registry.NonRetryableError
	switch {
	case err == nil:
		d.state = delivered
	case errors.As(err, &permanent):
		d.state, d.reason, d.err = deadLetter, "non_retryable", err
	case event.AttemptCount+1 >= s.maxAttempts:
		d.state, d.reason = deadLetter, "max_attempts"
		d.err = fmt.Errorf("max publish attempts reached: %w", err)
	default:
		d.state, d.err = retryLater, err
	}
	return d
}

func (s *Service) settle(ctx context.Context, tx *gorm.DB, d delivery) error {
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"outbox_id":     d.event.ID.String(),
		"event_type":    d.event.EventType,
		"aggregate_id":  d.event.AggregateID.String(),
		"attempt_count": d.event.AttemptCount,
		"topic":         d.topic,
		"transport":     s.transport.Name(),
	})
	if d.err != nil {
		logCtx = s.logg.WithField(logCtx, "error", d.err.Error())
	}

	switch d.state {
	case delivered:
		if err := s.repo.MarkPublishedTx(tx, d.event.ID); err != nil {
			return fmt.Errorf("mark published %s: %w", d.event.ID, err)
		}
		s.logg.Info(logCtx, "outbox event published")
	case retryLater:
		s.logg.Warn(logCtx, "outbox publish failed")
		if err := s.repo.MarkFailedTx(tx, d.event.ID, d.err); err != nil {
			return fmt.Errorf("mark failure %s: %w", d.event.ID, err)
		}
	case deadLetter:
		s.logg.Warn(s.logg.WithField(logCtx, "terminal_reason", d.reason), "outbox event will not be retried")
		if err := s.repo.MarkTerminalTx(tx, d.event.ID, d.err, s.maxAttempts); err != nil {
			return fmt.Errorf("mark terminal %s: %w", d.event.ID, err)
		}
	}
	return nil
}

func pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// nextBackoff doubles current (base when unset) and clamps to ceiling.
func nextBackoff(current, base, ceiling time.Duration) time.Duration {
	if current <= 0 {
		current = base
	}
	return min(current*2, ceiling)
}

func withJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return d + time.Duration(jitterRand.Int63n(int64(jitterSpread)))
}
