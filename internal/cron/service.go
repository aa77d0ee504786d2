package cron

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/wildroots/wildroots-backend/pkg/logger"
	"github.com/wildroots/wildroots-backend/pkg/metrics"
)

const (
	defaultTick       = time.Minute
	defaultJobTimeout = 30 * time.Minute
	defaultRefresh    = 10 * time.Minute
)

type ServiceParams struct {
	Logger      *logger.Logger
	Registry    *Registry
	Locker      Locker
	Metrics     *metrics.CronJobMetrics
	Tick        time.Duration
	JobTimeout  time.Duration
	// LockRefresh is how often a running job's lock is extended.
	LockRefresh time.Duration
	Now         func() time.Time
}

// Service wakes every tick and runs the jobs whose interval has elapsed. Each
// job holds its own lock, so replicas can split work across jobs.
type Service struct {
	logg       *logger.Logger
	registry   *Registry
	locker     Locker
	metrics    *metrics.CronJobMetrics
	tick       time.Duration
	jobTimeout time.Duration
	refresh    time.Duration
	now        func() time.Time

	mu      sync.Mutex
	lastRun map[string]time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Locker == nil {
		return nil, fmt.Errorf("locker required")
	}
	registry := params.Registry
	if registry == nil {
		registry = NewRegistry()
	}
	tick := params.Tick
	if tick <= 0 {
		tick = defaultTick
	}
	timeout := params.JobTimeout
	if timeout <= 0 {
		timeout = defaultJobTimeout
	}
	refresh := params.LockRefresh
	if refresh <= 0 {
		refresh = defaultRefresh
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		logg:       params.Logger,
		registry:   registry,
		locker:     params.Locker,
		metrics:    params.Metrics,
		tick:       tick,
		jobTimeout: timeout,
		refresh:    refresh,
		now:        now,
		lastRun:    map[string]time.Time{},
	}, nil
}

// Run blocks until ctx is canceled. Every job is due on the first tick.
func (s *Service) Run(ctx context.Context) error {
	s.runDue(ctx)

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "cron service stopping")
			return ctx.Err()
		case <-ticker.C:
			s.runDue(ctx)
		}
	}
}

func (s *Service) runDue(ctx context.Context) {
	for _, sched := range s.registry.Schedules() {
		if ctx.Err() != nil {
			return
		}
		name := sched.Job.Name()
		now := s.now()
		if !s.due(name, sched.Every, now) {
			continue
		}
		s.markRun(name, now)
		s.runScheduled(ctx, sched)
	}
}

func (s *Service) due(name string, every time.Duration, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	last, ok := s.lastRun[name]
	return !ok || now.Sub(last) >= every
}

func (s *Service) markRun(name string, at time.Time) {
	s.mu.Lock()
	s.lastRun[name] = at
	s.mu.Unlock()
}

func (s *Service) runScheduled(ctx context.Context, sched Schedule) {
	name := sched.Job.Name()
	ctx = s.logg.WithFields(ctx, map[string]any{"job": name, "event": "cron.job"})

	lock := s.locker.Lock(name)
	locked, err := lock.Acquire(ctx)
	if err != nil {
		s.logg.Error(ctx, "cron lock unavailable", err)
		return
	}
	if !locked {
		s.logg.Info(ctx, "job held by another replica; skipping")
		s.metrics.ObserveRun(name, metrics.CronOutcomeSkipped, 0, s.now())
		return
	}
	defer func() {
		if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
			s.logg.Error(ctx, "cron lock release failed", err)
		}
	}()

	timeout := sched.Timeout
	if timeout <= 0 {
		timeout = s.jobTimeout
	}
	jobCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	stopRefresh := s.keepLock(jobCtx, cancel, lock)
	defer stopRefresh()

	start := s.now()
	err = runJob(jobCtx, sched.Job)
	elapsed := s.now().Sub(start)
	ctx = s.logg.WithField(ctx, "duration_ms", elapsed.Milliseconds())

	switch {
	case err == nil:
		s.logg.Info(ctx, "job completed")
		s.metrics.ObserveRun(name, metrics.CronOutcomeSuccess, elapsed, s.now())
	case errors.Is(err, context.DeadlineExceeded):
		s.logg.Error(ctx, "job timed out", err)
		s.metrics.ObserveRun(name, metrics.CronOutcomeTimeout, elapsed, s.now())
	default:
		s.logg.Error(ctx, "job failed", err)
		s.metrics.ObserveRun(name, metrics.CronOutcomeFailure, elapsed, s.now())
	}
}

// keepLock extends lock every refresh interval while the job runs and
// cancels the job if another replica has taken the lock over.
func (s *Service) keepLock(ctx context.Context, cancel context.CancelFunc, lock Lock) func() {
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(s.refresh)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				held, err := lock.Extend(ctx)
				if err != nil {
					s.logg.Error(ctx, "cron lock extend failed", err)
					continue
				}
				if !held {
					s.logg.Warn(ctx, "cron lock lost; stopping job")
					cancel()
					return
				}
			}
		}
	}()
	return func() {
		close(done)
		wg.Wait()
	}
}

// runJob turns a panicking job into an error so one bad job cannot take the
// worker down.
func runJob(ctx context.Context, job Job) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("job panicked: %v\n%s", rec, debug.Stack())
		}
	}()
	return job.Run(ctx)
}
