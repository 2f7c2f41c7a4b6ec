// Package tasks runs the periodic reconciliation jobs: the stale local
// subscription sweep and the expiring-soon reminder. Jobs are plain
// functions on a schedule; the runner guarantees two runs of the same job
// never overlap.
package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

var (
	ErrNoJobsRegistered     = errors.New("tasks: no jobs registered")
	ErrJobAlreadyRegistered = errors.New("tasks: job already registered")
)

// Job is one periodic unit of work.
type Job struct {
	Name     string
	Schedule Schedule
	Run      func(ctx context.Context) error
}

type scheduledJob struct {
	job     Job
	nextRun time.Time
	running sync.Mutex
}

// Runner drives registered jobs on their schedules. Each job runs on its
// own goroutine tick; a tick that lands while the previous run of the same
// job is still going is skipped, never stacked.
type Runner struct {
	mu       sync.Mutex
	jobs     map[string]*scheduledJob
	interval time.Duration
	log      *slog.Logger
	now      func() time.Time
}

// RunnerOption configures the Runner.
type RunnerOption func(*Runner)

// WithCheckInterval sets how often due jobs are polled for.
func WithCheckInterval(interval time.Duration) RunnerOption {
	return func(r *Runner) {
		if interval > 0 {
			r.interval = interval
		}
	}
}

// WithLogger sets the runner logger.
func WithLogger(log *slog.Logger) RunnerOption {
	return func(r *Runner) {
		if log != nil {
			r.log = log
		}
	}
}

// WithClock overrides the time source for tests.
func WithClock(now func() time.Time) RunnerOption {
	return func(r *Runner) {
		if now != nil {
			r.now = now
		}
	}
}

// NewRunner creates an empty runner.
func NewRunner(opts ...RunnerOption) *Runner {
	r := &Runner{
		jobs:     make(map[string]*scheduledJob),
		interval: 30 * time.Second,
		log:      slog.Default(),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Add registers a periodic job. The first run happens at the schedule's
// next boundary after Start.
func (r *Runner) Add(job Job) error {
	if job.Name == "" || job.Schedule == nil || job.Run == nil {
		return fmt.Errorf("tasks: job needs a name, a schedule and a run function")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.jobs[job.Name]; exists {
		return ErrJobAlreadyRegistered
	}
	r.jobs[job.Name] = &scheduledJob{
		job:     job,
		nextRun: job.Schedule.Next(r.now()),
	}

	r.log.Info("registered periodic job",
		slog.String("job", job.Name),
		slog.String("schedule", job.Schedule.String()))
	return nil
}

// Start blocks, polling for due jobs until the context is canceled.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	count := len(r.jobs)
	r.mu.Unlock()
	if count == 0 {
		return ErrNoJobsRegistered
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.runDue(ctx)
	for {
		select {
		case <-ctx.Done():
			r.log.Info("job runner shutting down")
			return ctx.Err()
		case <-ticker.C:
			r.runDue(ctx)
		}
	}
}

// runDue fires every job whose next run time has passed.
func (r *Runner) runDue(ctx context.Context) {
	now := r.now()

	r.mu.Lock()
	var due []*scheduledJob
	for _, sj := range r.jobs {
		if !sj.nextRun.After(now) {
			sj.nextRun = sj.job.Schedule.Next(now)
			due = append(due, sj)
		}
	}
	r.mu.Unlock()

	for _, sj := range due {
		go r.runOne(ctx, sj)
	}
}

func (r *Runner) runOne(ctx context.Context, sj *scheduledJob) {
	// Overlap guard: if the previous run is still going, skip this tick.
	if !sj.running.TryLock() {
		r.log.Warn("skipping job run, previous run still in progress",
			slog.String("job", sj.job.Name))
		return
	}
	defer sj.running.Unlock()

	started := r.now()
	if err := sj.job.Run(ctx); err != nil {
		r.log.ErrorContext(ctx, "periodic job failed",
			slog.String("job", sj.job.Name),
			slog.Duration("elapsed", r.now().Sub(started)),
			slog.Any("error", err))
		return
	}
	r.log.InfoContext(ctx, "periodic job completed",
		slog.String("job", sj.job.Name),
		slog.Duration("elapsed", r.now().Sub(started)))
}
