package cron

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.uber.org/multierr"

	"github.com/angelmondragon/carrental-backend/pkg/logger"
)

type fakeLock struct {
	held     bool
	releases int
}

func (f *fakeLock) Acquire(context.Context) (bool, error) {
	if f.held {
		return false, nil
	}
	f.held = true
	return true, nil
}

func (f *fakeLock) Release(context.Context) error {
	f.held = false
	f.releases++
	return nil
}

type countingJob struct {
	name string
	err  error
	runs int
}

func (c *countingJob) Name() string { return c.name }

func (c *countingJob) Run(context.Context) error {
	c.runs++
	return c.err
}

func newTestService(t *testing.T, lock Lock, jobs ...Job) *Service {
	t.Helper()
	registry, err := NewRegistry(jobs...)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	svc, err := NewService(ServiceParams{
		Logger:   logger.New(logger.Options{ServiceName: "cron-test"}),
		Registry: registry,
		Lock:     lock,
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func TestRunOnceRunsEveryJobAndCombinesFailures(t *testing.T) {
	ok := &countingJob{name: "ok"}
	bad := &countingJob{name: "bad", err: errors.New("boom")}
	worse := &countingJob{name: "worse", err: errors.New("bang")}
	lock := &fakeLock{}
	svc := newTestService(t, lock, bad, ok, worse)

	err := svc.RunOnce(context.Background())
	if err == nil {
		t.Fatalf("expected combined error")
	}
	if n := len(multierr.Errors(err)); n != 2 {
		t.Fatalf("expected 2 errors, got %d: %v", n, err)
	}
	for _, job := range []*countingJob{ok, bad, worse} {
		if job.runs != 1 {
			t.Fatalf("job %s ran %d times", job.name, job.runs)
		}
	}
	if lock.held || lock.releases != 1 {
		t.Fatalf("lock not released: held=%v releases=%d", lock.held, lock.releases)
	}
}

func TestRunOnceSkipsWhenLockHeld(t *testing.T) {
	job := &countingJob{name: "ok"}
	svc := newTestService(t, &fakeLock{held: true}, job)

	if err := svc.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	if job.runs != 0 {
		t.Fatalf("job ran while lock was held elsewhere")
	}
}

func TestNewServiceRequiresLock(t *testing.T) {
	_, err := NewService(ServiceParams{Logger: logger.New(logger.Options{ServiceName: "cron-test"})})
	if err == nil {
		t.Fatalf("expected error without lock")
	}
}

type panickyJob struct{}

func (panickyJob) Name() string { return "panicky" }

func (panickyJob) Run(context.Context) error {
	var m map[string]int
	m["boom"]++
	return nil
}

func TestRunOnceContainsJobPanics(t *testing.T) {
	after := &countingJob{name: "after"}
	lock := &fakeLock{}
	svc := newTestService(t, lock, panickyJob{}, after)

	err := svc.RunOnce(context.Background())
	if err == nil || !strings.Contains(err.Error(), "panicky: panic") {
		t.Fatalf("expected panic to surface as error, got %v", err)
	}
	if after.runs != 1 {
		t.Fatalf("later jobs must still run")
	}
	if lock.held {
		t.Fatalf("lock must be released after a panic")
	}
}

func TestRunOnceSelectsJobsByName(t *testing.T) {
	a := &countingJob{name: "a"}
	b := &countingJob{name: "b"}
	svc := newTestService(t, &fakeLock{}, a, b)

	if err := svc.RunOnce(context.Background(), "b"); err != nil {
		t.Fatalf("run once: %v", err)
	}
	if a.runs != 0 || b.runs != 1 {
		t.Fatalf("unexpected runs a=%d b=%d", a.runs, b.runs)
	}
	if err := svc.RunOnce(context.Background(), "nope"); err == nil {
		t.Fatalf("expected unknown job name to fail")
	}
}

func TestRunStopsOnCancelledContext(t *testing.T) {
	job := &countingJob{name: "ok"}
	svc := newTestService(t, &fakeLock{}, job)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := svc.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if job.runs != 0 {
		t.Fatalf("cancelled cycle should not run jobs, ran %d", job.runs)
	}
}
