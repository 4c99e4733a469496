package jobs

import (
	"context"
	"errors"
	"sync"
	"time"

	"cashstore/internal/logger"
	"cashstore/internal/metrics"
)

var ErrUnknownJob = errors.New("unknown job")

// JobFunc does one sweep pass and reports how many items it touched.
type JobFunc func(ctx context.Context) (int, error)

type job struct {
	name  string
	every time.Duration
	fn    JobFunc
}

// Runner drives the periodic sweeps. Each job is serialized by the guard, so
// a tick that lands while the previous run is still going is skipped, and a
// manual trigger never overlaps a scheduled one.
type Runner struct {
	guard Guard
	jobs  []job
	wg    sync.WaitGroup
}

func NewRunner(guard Guard) *Runner {
	if guard == nil {
		guard = NewFlightGuard()
	}
	return &Runner{guard: guard}
}

func (r *Runner) Register(name string, every time.Duration, fn JobFunc) {
	r.jobs = append(r.jobs, job{name: name, every: every, fn: fn})
}

// Start launches one ticker goroutine per job and blocks until ctx is done.
func (r *Runner) Start(ctx context.Context) {
	logger.Info("job runner started", "jobs", len(r.jobs))

	for _, j := range r.jobs {
		r.wg.Add(1)
		go func(j job) {
			defer r.wg.Done()

			ticker := time.NewTicker(j.every)
			defer ticker.Stop()

			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					r.run(ctx, j)
				}
			}
		}(j)
	}

	r.wg.Wait()
	logger.Info("job runner stopped")
}

// TriggerManual runs one job outside its schedule. Returns false when a run
// is already in flight.
func (r *Runner) TriggerManual(ctx context.Context, name string) (bool, error) {
	for _, j := range r.jobs {
		if j.name == name {
			return r.run(ctx, j), nil
		}
	}
	return false, ErrUnknownJob
}

// Names lists the registered jobs in registration order.
func (r *Runner) Names() []string {
	names := make([]string, 0, len(r.jobs))
	for _, j := range r.jobs {
		names = append(names, j.name)
	}
	return names
}

func (r *Runner) run(ctx context.Context, j job) bool {
	acquired, err := r.guard.TryAcquire(ctx, j.name)
	if err != nil {
		logger.Error("job guard unavailable", "job", j.name, "error", err)
		return false
	}
	if !acquired {
		logger.Warn("job skipped, previous run still in flight", "job", j.name)
		return false
	}
	defer r.guard.Release(ctx, j.name)

	start := time.Now()
	touched, err := j.fn(ctx)
	elapsed := time.Since(start)

	if err != nil {
		metrics.RecordSweepRun(j.name, "error", elapsed.Seconds())
		logger.Error("job failed", "job", j.name, "error", err, "duration", elapsed)
		return true
	}

	metrics.RecordSweepRun(j.name, "ok", elapsed.Seconds())
	logger.Info("job completed", "job", j.name, "touched", touched, "duration", elapsed)
	return true
}
