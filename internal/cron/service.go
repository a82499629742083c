package cron

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"go.uber.org/multierr"

	"github.com/angelmondragon/carrental-backend/pkg/logger"
	"github.com/angelmondragon/carrental-backend/pkg/metrics"
)

const defaultInterval = 15 * time.Minute

type ServiceParams struct {
	Logger   *logger.Logger
	Registry *Registry
	Lock     Lock
	Metrics  *metrics.CronMetrics
	Interval time.Duration
}

// Service runs the registered jobs once per interval. Only the worker holding
// the cluster lock does any work in a given cycle.
type Service struct {
	logg     *logger.Logger
	registry *Registry
	lock     Lock
	metrics  *metrics.CronMetrics
	interval time.Duration
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.Logger == nil:
		return nil, errors.New("logger required")
	case params.Lock == nil:
		return nil, errors.New("lock required")
	}
	s := &Service{
		logg:     params.Logger,
		registry: params.Registry,
		lock:     params.Lock,
		metrics:  params.Metrics,
		interval: params.Interval,
	}
	if s.registry == nil {
		s.registry, _ = NewRegistry()
	}
	if s.interval <= 0 {
		s.interval = defaultInterval
	}
	return s, nil
}

// Run starts with a cycle right away, then one per interval until ctx ends.
// Cycle failures are logged; they never stop the loop.
func (s *Service) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		if err := s.cycle(ctx, s.registry.Jobs()); err != nil {
			s.logg.Error(ctx, "cron cycle finished with errors", err)
		}
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "cron worker stopping")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunOnce runs one cycle over the named jobs, or over every job when none are
// named, and returns the combined job errors.
func (s *Service) RunOnce(ctx context.Context, only ...string) error {
	jobs := s.registry.Jobs()
	if len(only) > 0 {
		jobs = jobs[:0]
		for _, name := range only {
			job, ok := s.registry.Lookup(name)
			if !ok {
				return fmt.Errorf("no cron job named %q", name)
			}
			jobs = append(jobs, job)
		}
	}
	return s.cycle(ctx, jobs)
}

func (s *Service) cycle(ctx context.Context, jobs []Job) (errs error) {
	locked, err := s.lock.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("lock acquire: %w", err)
	}
	if !locked {
		s.logg.Info(ctx, "cron lock held elsewhere; skipping cycle")
		return nil
	}
	defer func() {
		// release even when ctx was cancelled mid-cycle
		if err := s.lock.Release(context.WithoutCancel(ctx)); err != nil {
			s.logg.Error(ctx, "release cron lock", err)
		}
	}()

	for _, job := range jobs {
		if err := ctx.Err(); err != nil {
			return multierr.Append(errs, err)
		}
		errs = multierr.Append(errs, s.runJob(ctx, job))
	}
	return errs
}

func (s *Service) runJob(ctx context.Context, job Job) error {
	name := job.Name()
	jobCtx := s.logg.WithFields(ctx, map[string]any{"job": name, "event": "cron.job"})

	start := time.Now()
	err := guard(jobCtx, job)
	elapsed := time.Since(start)
	s.metrics.ObserveRun(name, elapsed, err)

	jobCtx = s.logg.WithField(jobCtx, "duration_ms", elapsed.Milliseconds())
	if err != nil {
		s.logg.Error(jobCtx, "job failed", err)
		return fmt.Errorf("%s: %w", name, err)
	}
	s.logg.Info(jobCtx, "job completed")
	return nil
}

// guard turns a job panic into an error so one bad job cannot take down the worker.
func guard(ctx context.Context, job Job) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v\n%s", rec, debug.Stack())
		}
	}()
	return job.Run(ctx)
}
