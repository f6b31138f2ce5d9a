package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/rentwise-payments/pkg/logger"
	"github.com/angelmondragon/rentwise-payments/pkg/metrics"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
)

// ServiceParams configure the cron service.
type ServiceParams struct {
	Logger   *logger.Logger
	Registry *Registry
	Locks    LockFactory
	Metrics  *metrics.CronJobMetrics
}

// Service runs every registered schedule on its own ticker. Each job holds a
// separate lock so a slow payout run never delays the payment sweep.
type Service struct {
	logg     *logger.Logger
	registry *Registry
	locks    LockFactory
	metrics  *metrics.CronJobMetrics
}

// NewService builds a cron service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Locks == nil {
		return nil, fmt.Errorf("lock factory required")
	}
	registry := params.Registry
	if registry == nil {
		registry = NewRegistry()
	}
	return &Service{
		logg:     params.Logger,
		registry: registry,
		locks:    params.Locks,
		metrics:  params.Metrics,
	}, nil
}

// Run starts one loop per schedule until the context is canceled. Every job
// runs once immediately so a restarted worker does not wait a full interval.
func (s *Service) Run(ctx context.Context) error {
	schedules := s.registry.Schedules()
	if len(schedules) == 0 {
		return fmt.Errorf("no cron jobs registered")
	}

	group, groupCtx := errgroup.WithContext(ctx)
	for _, schedule := range schedules {
		lock, err := s.locks(schedule.Job.Name(), schedule.Interval)
		if err != nil {
			return fmt.Errorf("lock for %s: %w", schedule.Job.Name(), err)
		}
		group.Go(func() error {
			return s.loop(groupCtx, schedule, lock)
		})
	}
	err := group.Wait()
	s.logg.Info(ctx, "cron service stopped")
	return err
}

// RunOnce executes the named schedules a single time, or all of them when no
// names are given. Job failures are combined into the returned error.
func (s *Service) RunOnce(ctx context.Context, names ...string) error {
	schedules, err := s.registry.Select(names...)
	if err != nil {
		return err
	}
	var errs error
	for _, schedule := range schedules {
		lock, err := s.locks(schedule.Job.Name(), schedule.Interval)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("lock for %s: %w", schedule.Job.Name(), err))
			continue
		}
		errs = multierr.Append(errs, s.runJob(ctx, schedule.Job, lock))
	}
	return errs
}

func (s *Service) loop(ctx context.Context, schedule Schedule, lock Lock) error {
	ctx = s.logg.WithField(ctx, "job", schedule.Job.Name())
	s.logg.Info(s.logg.WithField(ctx, "interval", schedule.Interval.String()), "cron schedule started")

	_ = s.runJob(ctx, schedule.Job, lock)
	ticker := time.NewTicker(schedule.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			_ = s.runJob(ctx, schedule.Job, lock)
		}
	}
}

// runJob logs and counts one cycle. Losing the lock race to another worker
// is not an error.
func (s *Service) runJob(ctx context.Context, job Job, lock Lock) error {
	name := job.Name()
	ctx = s.logg.WithFields(ctx, map[string]any{"job": name, "event": "cron.job"})

	held, err := lock.Acquire(ctx)
	switch {
	case err != nil:
		s.metrics.LockFailed(name)
		s.logg.Error(ctx, "lock acquire failed", err)
		return fmt.Errorf("%s: lock acquire: %w", name, err)
	case !held:
		s.metrics.Skipped(name)
		s.logg.Info(ctx, "lock held elsewhere, cycle skipped")
		return nil
	}
	defer func() {
		if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
			s.logg.Error(ctx, "lock release failed", err)
		}
	}()

	began := time.Now()
	err = job.Run(ctx)
	took := time.Since(began)
	s.metrics.Finished(name, took, err)

	ctx = s.logg.WithField(ctx, "duration_ms", took.Milliseconds())
	if err != nil {
		s.logg.Error(ctx, "job failed", err)
		return fmt.Errorf("%s: %w", name, err)
	}
	s.logg.Info(ctx, "job completed")
	return nil
}
