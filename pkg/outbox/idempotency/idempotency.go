// Package idempotency remembers which event IDs a consumer has already handled.
package idempotency

import (
	"context"
	"errors"
	"strings"
	"time"
)

type markerStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	IdempotencyKey(scope, id string) string
}

var (
	errNoConsumer = errors.New("consumer name is required")
	errNoEventID  = errors.New("event id is required")
)

// Manager writes one redis marker per (consumer, event) pair. Markers expire
// after ttl; zero keeps them forever.
type Manager struct {
	store markerStore
	ttl   time.Duration
}

func NewManager(store markerStore, ttl time.Duration) (*Manager, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	return &Manager{store: store, ttl: ttl}, nil
}

// CheckAndMarkProcessed claims eventID for consumer. It returns true when a
// previous call already holds the claim.
func (m *Manager) CheckAndMarkProcessed(ctx context.Context, consumer, eventID string) (bool, error) {
	key, err := m.key(consumer, eventID)
	if err != nil {
		return false, err
	}
	claimed, err := m.store.SetNX(ctx, key, time.Now().UTC().Unix(), m.ttl)
	if err != nil {
		return false, err
	}
	return !claimed, nil
}

// Delete drops the claim so a redelivery is handled again.
func (m *Manager) Delete(ctx context.Context, consumer, eventID string) error {
	key, err := m.key(consumer, eventID)
	if err != nil {
		return err
	}
	return m.store.Del(ctx, key)
}

// key yields cr:idempotency:evt:<consumer>:<event_id>.
func (m *Manager) key(consumer, eventID string) (string, error) {
	consumer = strings.TrimSpace(consumer)
	eventID = strings.TrimSpace(eventID)
	switch {
	case consumer == "":
		return "", errNoConsumer
	case eventID == "":
		return "", errNoEventID
	}
	return m.store.IdempotencyKey("evt:"+consumer, eventID), nil
}
