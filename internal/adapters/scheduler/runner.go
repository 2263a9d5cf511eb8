// Package scheduler provides the adapter that runs the schedule evaluation
// loop against the database.
package scheduler

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/jobforge/jobforge/config"
	"github.com/jobforge/jobforge/internal/data"
	"github.com/jobforge/jobforge/internal/observability/metrics"
	"github.com/jobforge/jobforge/internal/observability/statsd"
	"github.com/jobforge/jobforge/internal/service"
)

// Ticker is the slice of the scheduler service the loop needs.
type Ticker interface {
	Tick(ctx context.Context, now time.Time) (int, error)
}

// Runner drives the scheduler service on a fixed interval until the context
// is cancelled.
type Runner struct {
	scheduler Ticker
	interval  time.Duration
	logger    *slog.Logger
	metrics   statsd.Sink
}

// RunnerOptions holds the dependencies for creating a Runner.
type RunnerOptions struct {
	DB      *sql.DB
	Config  config.SchedulerConfig
	Logger  *slog.Logger
	Metrics statsd.Sink

	// TimeProvider overrides the clock used for firing decisions.
	TimeProvider data.TimeProvider

	// Scheduler injects a prebuilt service instead of wiring one from DB.
	Scheduler Ticker
}

// NewRunner creates a scheduler runner with the given options.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if err := validateRunnerOptions(&opts); err != nil {
		return nil, err
	}

	sched := opts.Scheduler
	if sched == nil {
		sched = wireSchedulerService(opts)
	}

	return &Runner{
		scheduler: sched,
		interval:  opts.Config.Interval,
		logger:    opts.Logger,
		metrics:   opts.Metrics,
	}, nil
}

func validateRunnerOptions(opts *RunnerOptions) error {
	if opts.DB == nil && opts.Scheduler == nil {
		return errors.New("either DB or Scheduler must be provided")
	}
	if opts.Config.Interval <= 0 {
		opts.Config.Interval = 5 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return nil
}

// wireSchedulerService builds the scheduler service from the database handle.
func wireSchedulerService(opts RunnerOptions) *service.SchedulerService {
	var scheds *data.ScheduledJobsRepo
	var defs *data.JobDefinitionRepo
	if opts.TimeProvider != nil {
		scheds = data.NewScheduledJobsRepoWithTimeProvider(opts.DB, opts.TimeProvider)
		defs = data.NewJobDefinitionRepoWithTimeProvider(opts.DB, opts.TimeProvider)
	} else {
		scheds = data.NewScheduledJobsRepo(opts.DB)
		defs = data.NewJobDefinitionRepo(opts.DB)
	}
	runs := data.NewJobResultRepo(opts.DB, data.JobResultRepoConfig{
		Logger:       opts.Logger,
		TimeProvider: opts.TimeProvider,
	})

	return service.NewSchedulerService(service.SchedulerServiceOptions{
		Schedules:    scheds,
		Definitions:  defs,
		Runs:         runs,
		TimeProvider: opts.TimeProvider,
		Metrics:      opts.Metrics,
		Logger:       opts.Logger,
	})
}

// Run starts the tick loop and runs until the context is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "starting scheduler runner", "interval", r.interval)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.InfoContext(ctx, "scheduler runner stopping", "reason", ctx.Err())
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()

		case now := <-ticker.C:
			start := time.Now()
			fired, err := r.scheduler.Tick(ctx, now)
			elapsed := time.Since(start)

			metrics.EmitTick(r.metrics, metrics.TickMetric{
				Component: "scheduler",
				Processed: fired,
				Duration:  elapsed,
				Err:       err,
			})

			if err != nil {
				// Keep ticking; transient database errors resolve themselves.
				r.logger.ErrorContext(ctx, "scheduler tick failed", "error", err)
			} else if fired > 0 {
				r.logger.InfoContext(ctx, "scheduler tick fired schedules", "count", fired, "elapsed", elapsed)
			}
		}
	}
}
