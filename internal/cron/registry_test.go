package cron

import (
	"context"
	"testing"
	"time"
)

type stubJob struct {
	name string
}

func (s *stubJob) Name() string              { return s.name }
func (s *stubJob) Run(context.Context) error { return nil }

func TestRegistryStoresSchedules(t *testing.T) {
	registry := NewRegistry()
	jobA := &stubJob{name: "a"}
	jobB := &stubJob{name: "b"}
	registry.Register(jobA, time.Minute)
	registry.Register(jobB, time.Hour)
	registry.Register(nil, time.Minute)
	registry.Register(&stubJob{name: "c"}, 0)

	schedules := registry.Schedules()
	if len(schedules) != 2 {
		t.Fatalf("expected 2 schedules, got %d", len(schedules))
	}
	if schedules[0].Job != jobA || schedules[1].Job != jobB {
		t.Fatalf("schedules returned out of order")
	}
	if schedules[1].Interval != time.Hour {
		t.Fatalf("unexpected interval %v", schedules[1].Interval)
	}
	// ensure caller cannot mutate internal slice
	schedules[0].Job = nil
	if registry.Schedules()[0].Job == nil {
		t.Fatalf("internal slice leaked")
	}
}

func TestRegistrySelect(t *testing.T) {
	registry := NewRegistry(
		Schedule{Job: &stubJob{name: "payment-reconcile"}, Interval: 15 * time.Minute},
		Schedule{Job: &stubJob{name: "commission-payout"}, Interval: 24 * time.Hour},
	)

	all, err := registry.Select()
	if err != nil || len(all) != 2 {
		t.Fatalf("expected all schedules, got %d (%v)", len(all), err)
	}

	one, err := registry.Select("commission-payout")
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if len(one) != 1 || one[0].Job.Name() != "commission-payout" {
		t.Fatalf("unexpected selection %+v", one)
	}

	if _, err := registry.Select("order-ttl"); err == nil {
		t.Fatalf("expected unknown job error")
	}
}
