// Package jobs runs the periodic background tasks of the game server
// (session sweep, leaderboard flush, backup) each on its own goroutine and
// ticker, so a slow task never delays another.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/okian/typerace/pkg/logger"
	"github.com/okian/typerace/pkg/metrics"
)

const poolShutdownTimeout = 30 * time.Second

// Task is one execution of a periodic job.
type Task func(ctx context.Context) error

// Job runs a Task on a fixed interval.
type Job interface {
	// Run ticks until ctx is canceled or Shutdown is called.
	Run(ctx context.Context)

	// Shutdown stops the ticker and waits for an in-flight run to finish.
	Shutdown(ctx context.Context) error

	// Name identifies the job in logs and metrics.
	Name() string
}

// Ticker is a Job driven by time.Ticker.
type Ticker struct {
	name     string
	interval time.Duration
	task     Task

	// runOnStop executes the task one last time during Shutdown.
	runOnStop bool

	shutdown chan struct{}
	done     chan struct{}

	logger logger.Logger
}

var _ Job = (*Ticker)(nil)

// NewTicker creates a job that calls task every interval.
func NewTicker(name string, interval time.Duration, task Task, opts ...Option) *Ticker {
	t := &Ticker{
		name:     name,
		interval: interval,
		task:     task,
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
		logger:   logger.Nop(),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.logger = t.logger.Named(name)
	return t
}

// Name implements Job.
func (t *Ticker) Name() string { return t.name }

// Run implements Job.
func (t *Ticker) Run(ctx context.Context) {
	defer close(t.done)

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.shutdown:
			if t.runOnStop {
				t.runOnce(context.WithoutCancel(ctx))
			}
			return
		case <-ticker.C:
			t.runOnce(ctx)
		}
	}
}

// RunOnce executes the task immediately, outside the ticker.
func (t *Ticker) RunOnce(ctx context.Context) error {
	return t.runOnce(ctx)
}

func (t *Ticker) runOnce(ctx context.Context) error {
	start := time.Now()
	err := t.task(ctx)
	metrics.RecordJobRun(t.name, err, float64(time.Since(start).Milliseconds()))
	if err != nil {
		metrics.RecordErrorByComponent("jobs", t.name)
		t.logger.Error(ctx, "job run failed", logger.Error(err))
	}
	return err
}

// Shutdown implements Job. It must be called at most once.
func (t *Ticker) Shutdown(ctx context.Context) error {
	close(t.shutdown)

	select {
	case <-t.done:
		return nil
	case <-ctx.Done():
		t.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("job %s shutdown timed out: %w", t.name, ctx.Err())
	}
}

// Pool starts and stops a fixed set of jobs together.
type Pool struct {
	jobs   []Job
	logger logger.Logger
}

// NewPool groups jobs. Nil jobs are skipped.
func NewPool(log logger.Logger, jobs ...Job) *Pool {
	if log == nil {
		log = logger.Nop()
	}
	p := &Pool{logger: log.Named("jobs")}
	for _, j := range jobs {
		if j != nil {
			p.jobs = append(p.jobs, j)
		}
	}
	return p
}

// Start launches every job on its own goroutine.
func (p *Pool) Start(ctx context.Context) {
	for _, j := range p.jobs {
		p.logger.Info(ctx, "starting job", logger.String("job", j.Name()))
		go j.Run(ctx)
	}
}

// Shutdown stops every job in reverse start order and waits for each.
// It returns the first error but keeps stopping the rest.
func (p *Pool) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	var first error
	for i := len(p.jobs) - 1; i >= 0; i-- {
		if err := p.jobs[i].Shutdown(shutdownCtx); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Len is the number of jobs in the pool.
func (p *Pool) Len() int { return len(p.jobs) }
