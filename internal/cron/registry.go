package cron

import (
	"context"
	"fmt"
	"time"
)

// Job is a unit of periodic ledger maintenance.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Schedule binds a job to its cadence. A zero Timeout falls back to the
// service default.
type Schedule struct {
	Job     Job
	Every   time.Duration
	Timeout time.Duration
}

// Registry holds the schedules the worker runs, keyed by job name.
type Registry struct {
	schedules []Schedule
	names     map[string]struct{}
}

func NewRegistry() *Registry {
	return &Registry{names: map[string]struct{}{}}
}

// Add registers a schedule. Job names double as lock and metric labels, so
// they must be unique.
func (r *Registry) Add(s Schedule) error {
	if s.Job == nil {
		return fmt.Errorf("schedule has no job")
	}
	name := s.Job.Name()
	if name == "" {
		return fmt.Errorf("job name is required")
	}
	if s.Every <= 0 {
		return fmt.Errorf("job %s: interval must be positive", name)
	}
	if _, dup := r.names[name]; dup {
		return fmt.Errorf("job %s already registered", name)
	}
	r.names[name] = struct{}{}
	r.schedules = append(r.schedules, s)
	return nil
}

// Schedules returns a copy in registration order.
func (r *Registry) Schedules() []Schedule {
	out := make([]Schedule, len(r.schedules))
	copy(out, r.schedules)
	return out
}
