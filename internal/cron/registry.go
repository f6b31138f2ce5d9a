package cron

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Job represents a scheduled task that runs inside the cron worker.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Schedule pairs a job with the cadence it runs at.
type Schedule struct {
	Job      Job
	Interval time.Duration
}

// Registry tracks registered schedules in registration order.
type Registry struct {
	schedules []Schedule
}

// NewRegistry builds a registry preloaded with the provided schedules.
func NewRegistry(schedules ...Schedule) *Registry {
	registry := &Registry{}
	for _, schedule := range schedules {
		registry.Register(schedule.Job, schedule.Interval)
	}
	return registry
}

// Register adds a job that runs every interval. Nil jobs and non-positive
// intervals are ignored.
func (r *Registry) Register(job Job, interval time.Duration) {
	if job == nil || interval <= 0 {
		return
	}
	r.schedules = append(r.schedules, Schedule{Job: job, Interval: interval})
}

// Schedules returns the registered schedules.
func (r *Registry) Schedules() []Schedule {
	schedules := make([]Schedule, len(r.schedules))
	copy(schedules, r.schedules)
	return schedules
}

// Select returns the schedules whose job names are listed, or all of them when
// names is empty. Unknown names are an error.
func (r *Registry) Select(names ...string) ([]Schedule, error) {
	if len(names) == 0 {
		return r.Schedules(), nil
	}
	byName := make(map[string]Schedule, len(r.schedules))
	for _, schedule := range r.schedules {
		byName[schedule.Job.Name()] = schedule
	}
	selected := make([]Schedule, 0, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		schedule, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("unknown cron job %q", name)
		}
		selected = append(selected, schedule)
	}
	return selected, nil
}
