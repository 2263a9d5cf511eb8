// Package reaper provides the cleanup loop: requeueing expired leases,
// failing stale pending runs, and pruning old runs and log entries.
package reaper

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
)

// RunStore is the slice of the run store the reaper needs.
type RunStore interface {
	RequeueExpired(ctx context.Context, queue string) (int64, error)
	FailStalePending(ctx context.Context, queue string, olderThan time.Time) (int64, error)
	PruneTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// LogStore is the slice of the log store the reaper needs.
type LogStore interface {
	PruneBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Runner periodically reclaims abandoned runs and enforces retention.
type Runner struct {
	runs    RunStore
	logs    LogStore
	cfg     config.ReaperConfig
	tp      data.TimeProvider
	logger  *slog.Logger
	metrics statsd.Sink
}

// RunnerOptions holds the dependencies for creating a Runner.
type RunnerOptions struct {
	DB     *sql.DB
	LogDB  *sql.DB
	Config config.ReaperConfig
	Logger *slog.Logger

	Metrics      statsd.Sink
	TimeProvider data.TimeProvider

	// Runs and Logs inject prebuilt stores instead of wiring them from DB.
	Runs RunStore
	Logs LogStore
}

// NewRunner creates a reaper runner with the given options.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if opts.DB == nil && (opts.Runs == nil || opts.Logs == nil) {
		return nil, errors.New("either DB or both Runs and Logs must be provided")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.TimeProvider == nil {
		opts.TimeProvider = &data.RealTimeProvider{}
	}
	opts.Config.Sanitize()

	runs := opts.Runs
	if runs == nil {
		runs = data.NewJobResultRepo(opts.DB, data.JobResultRepoConfig{
			Logger:       opts.Logger,
			TimeProvider: opts.TimeProvider,
		})
	}
	logs := opts.Logs
	if logs == nil {
		logDB := opts.LogDB
		if logDB == nil {
			logDB = opts.DB
		}
		logs = data.NewJobLogRepo(logDB)
	}

	return &Runner{
		runs:    runs,
		logs:    logs,
		cfg:     opts.Config,
		tp:      opts.TimeProvider,
		logger:  opts.Logger,
		metrics: opts.Metrics,
	}, nil
}

// Run starts the cleanup loop and runs until the context is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "starting reaper runner",
		"interval", r.cfg.Interval,
		"queues", r.cfg.Queues,
	)

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.InfoContext(ctx, "reaper runner stopping", "reason", ctx.Err())
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()

		case <-ticker.C:
			start := time.Now()
			processed, err := r.sweep(ctx)
			metrics.EmitTick(r.metrics, metrics.TickMetric{
				Component: "reaper",
				Processed: int(processed),
				Duration:  time.Since(start),
				Err:       err,
			})
			if err != nil {
				r.logger.ErrorContext(ctx, "reaper sweep failed", "error", err)
			}
		}
	}
}

// sweep performs one cleanup pass and returns the number of rows touched.
// A failing step logs and continues so one broken queue cannot starve the
// retention work.
func (r *Runner) sweep(ctx context.Context) (int64, error) {
	now := r.tp.Now()
	var total int64
	var firstErr error

	record := func(step string, n int64, err error) {
		total += n
		if err != nil {
			r.logger.ErrorContext(ctx, "reaper step failed", "step", step, "error", err)
			if firstErr == nil {
				firstErr = err
			}
			return
		}
		if n > 0 {
			r.logger.InfoContext(ctx, "reaper step", "step", step, "rows", n)
		}
	}

	for _, queue := range r.cfg.Queues {
		n, err := r.runs.RequeueExpired(ctx, queue)
		record("requeue_expired:"+queue, n, err)

		n, err = r.runs.FailStalePending(ctx, queue, now.Add(-r.cfg.PendingMaxAge))
		record("fail_stale_pending:"+queue, n, err)
	}

	n, err := r.runs.PruneTerminalBefore(ctx, now.Add(-r.cfg.TerminalMaxAge))
	record("prune_terminal", n, err)

	n, err = r.logs.PruneBefore(ctx, now.Add(-r.cfg.LogMaxAge))
	record("prune_logs", n, err)

	return total, firstErr
}
