package cron

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

type memoryLockStore struct {
	values map[string]string
	ttls   map[string]time.Duration
}

func newMemoryLockStore() *memoryLockStore {
	return &memoryLockStore{values: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (m *memoryLockStore) LockKey(name string) string { return "carrental:lock:" + name }

func (m *memoryLockStore) SetNX(_ context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if _, ok := m.values[key]; ok {
		return false, nil
	}
	m.values[key] = value.(string)
	m.ttls[key] = ttl
	return true, nil
}

func (m *memoryLockStore) Get(_ context.Context, key string) (string, error) {
	v, ok := m.values[key]
	if !ok {
		return "", redis.Nil
	}
	return v, nil
}

func (m *memoryLockStore) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(m.values, k)
	}
	return nil
}

func TestRedisLockExcludesSecondWorker(t *testing.T) {
	store := newMemoryLockStore()
	first, err := NewRedisLock(store, "cron", 0)
	if err != nil {
		t.Fatalf("new lock: %v", err)
	}
	second, _ := NewRedisLock(store, "cron", time.Minute)
	ctx := context.Background()

	if first.Key() != "carrental:lock:cron" {
		t.Fatalf("unexpected key %q", first.Key())
	}
	if ok, err := first.Acquire(ctx); err != nil || !ok {
		t.Fatalf("first acquire: ok=%v err=%v", ok, err)
	}
	if store.ttls[first.Key()] != defaultLockTTL {
		t.Fatalf("expected default ttl, got %s", store.ttls[first.Key()])
	}
	if ok, _ := second.Acquire(ctx); ok {
		t.Fatalf("second worker acquired a held lock")
	}
	// a worker that never acquired must not free someone else's lock
	if err := second.Release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	if _, held := store.values[first.Key()]; !held {
		t.Fatalf("non-owner released the lock")
	}
	if err := first.Release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	if ok, _ := second.Acquire(ctx); !ok {
		t.Fatalf("expected lock to be free after release")
	}
}

func TestRedisLockReleaseSkipsStolenKey(t *testing.T) {
	store := newMemoryLockStore()
	lock, _ := NewRedisLock(store, "cron", time.Minute)
	ctx := context.Background()
	if ok, _ := lock.Acquire(ctx); !ok {
		t.Fatalf("acquire failed")
	}
	// expired and taken over by another worker
	store.values[lock.Key()] = "someone-else"
	if err := lock.Release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	if store.values[lock.Key()] != "someone-else" {
		t.Fatalf("released a lock owned by another worker")
	}
}

func TestNewRedisLockValidates(t *testing.T) {
	if _, err := NewRedisLock(nil, "cron", 0); err == nil {
		t.Fatalf("expected error for nil store")
	}
	if _, err := NewRedisLock(newMemoryLockStore(), "", 0); err == nil {
		t.Fatalf("expected error for empty name")
	}
}
