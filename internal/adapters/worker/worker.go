// Package worker provides the job execution worker pool: it reserves pending
// runs from a queue and drives them to a terminal state.
package worker

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jobforge/jobforge/config"
	"github.com/jobforge/jobforge/internal/catalog"
	"github.com/jobforge/jobforge/internal/data"
	"github.com/jobforge/jobforge/internal/domain/model"
	"github.com/jobforge/jobforge/internal/observability/statsd"
	"github.com/jobforge/jobforge/internal/service"
)

// RunQueue is the slice of the run store the pool needs.
type RunQueue interface {
	ReserveNext(ctx context.Context, queue, workerID string, leaseSeconds int) (*model.JobResult, error)
	WaitForNotification(ctx context.Context, queue string) error
	Heartbeat(ctx context.Context, id string, leaseSeconds int) (bool, error)
}

// Pool reserves pending runs and executes them with a fixed number of
// goroutines. Each reserved run is leased; a heartbeat extends the lease
// while the job executes so the reaper only requeues runs whose worker died.
type Pool struct {
	runs     RunQueue
	executor *service.Executor
	queue    string
	workers  int
	lease    time.Duration
	workerID string
	logger   *slog.Logger
	metrics  statsd.Sink
}

// PoolOptions holds the dependencies for creating a Pool.
type PoolOptions struct {
	DB     *sql.DB
	LogDB  *sql.DB
	Config config.WorkerConfig

	// Catalog resolves task names to runnable job classes.
	Catalog *catalog.Catalog

	Logger  *slog.Logger
	Metrics statsd.Sink

	// TimeProvider overrides the clock stamped onto finished runs.
	TimeProvider data.TimeProvider

	// Runs injects a prebuilt run store instead of wiring one from DB.
	Runs RunQueue
	// Executor injects a prebuilt executor instead of wiring one from DB.
	Executor *service.Executor
}

// NewPool creates a worker pool with the given options.
func NewPool(opts PoolOptions) (*Pool, error) {
	if opts.DB == nil && (opts.Runs == nil || opts.Executor == nil) {
		return nil, errors.New("either DB or both Runs and Executor must be provided")
	}
	if opts.Catalog == nil && opts.Executor == nil {
		return nil, errors.New("a job catalog is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	cfg := opts.Config
	cfg.Sanitize()

	workerID := cfg.ID
	if workerID == "" {
		workerID = defaultWorkerID()
	}

	runs := opts.Runs
	var runRepo *data.JobResultRepo
	if runs == nil {
		runRepo = data.NewJobResultRepo(opts.DB, data.JobResultRepoConfig{
			Logger:       opts.Logger,
			TimeProvider: opts.TimeProvider,
		})
		runs = runRepo
	}

	executor := opts.Executor
	if executor == nil {
		if runRepo == nil {
			return nil, errors.New("an executor is required when Runs is injected")
		}
		logDB := opts.LogDB
		if logDB == nil {
			logDB = opts.DB
		}
		executor = service.NewExecutor(service.ExecutorOptions{
			Catalog:      opts.Catalog,
			Runs:         runRepo,
			Logs:         data.NewJobLogRepo(logDB),
			Definitions:  data.NewJobDefinitionRepo(opts.DB),
			Metrics:      opts.Metrics,
			TimeProvider: opts.TimeProvider,
			Logger:       opts.Logger,
			WorkerID:     workerID,
		})
	}

	return &Pool{
		runs:     runs,
		executor: executor,
		queue:    cfg.Queue,
		workers:  cfg.Concurrency,
		lease:    cfg.Lease,
		workerID: workerID,
		logger:   opts.Logger,
		metrics:  opts.Metrics,
	}, nil
}

func defaultWorkerID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "worker"
	}
	return fmt.Sprintf("%s.%d", host, os.Getpid())
}

// Run starts the worker goroutines and processes runs until the context is
// cancelled. The first infrastructure error stops the whole pool.
func (p *Pool) Run(ctx context.Context) error {
	p.logger.InfoContext(ctx, "starting worker pool",
		"queue", p.queue,
		"workers", p.workers,
		"lease", p.lease,
		"worker_id", p.workerID,
	)

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < p.workers; i++ {
		g.Go(func() error {
			return p.workerLoop(ctx)
		})
	}

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (p *Pool) workerLoop(ctx context.Context) error {
	for ctx.Err() == nil {
		jr, err := p.runs.ReserveNext(ctx, p.queue, p.workerID, p.leaseSeconds())
		switch {
		case err == nil:
			p.processRun(ctx, jr)
		case errors.Is(err, model.ErrNoRunsAvailable):
			if waitErr := p.waitForWork(ctx); waitErr != nil {
				return waitErr
			}
		case ctx.Err() != nil:
			return ctx.Err()
		default:
			return fmt.Errorf("reserve next run: %w", err)
		}
	}
	return ctx.Err()
}

// waitForWork blocks on the queue notification channel, with a periodic
// wake-up in case a notification fired before the listen was registered.
func (p *Pool) waitForWork(ctx context.Context) error {
	waitCtx, cancel := context.WithTimeout(ctx, p.lease)
	defer cancel()

	err := p.runs.WaitForNotification(waitCtx, p.queue)
	switch {
	case err == nil:
		return nil
	case ctx.Err() != nil:
		return ctx.Err()
	case errors.Is(err, context.DeadlineExceeded):
		// Poll timeout, not a failure.
		return nil
	default:
		p.logger.WarnContext(ctx, "queue notification wait failed", "queue", p.queue, "error", err)
		return sleepCtx(ctx, time.Second)
	}
}

// processRun executes one reserved run while a background heartbeat keeps the
// lease alive. Losing the lease cancels the run.
func (p *Pool) processRun(ctx context.Context, jr *model.JobResult) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	stopHeartbeat := p.startHeartbeat(runCtx, jr.ID, cancel)
	defer stopHeartbeat()

	if _, err := p.executor.Execute(runCtx, jr); err != nil {
		p.logger.ErrorContext(ctx, "run execution failed",
			"job_result_id", jr.ID,
			"task_name", jr.TaskName,
			"error", err,
		)
	}
}

func (p *Pool) startHeartbeat(ctx context.Context, id string, onLost context.CancelFunc) func() {
	interval := p.lease / 3
	if interval < time.Second {
		interval = time.Second
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				alive, err := p.runs.Heartbeat(ctx, id, p.leaseSeconds())
				if err != nil {
					if ctx.Err() == nil {
						p.logger.WarnContext(ctx, "heartbeat failed", "job_result_id", id, "error", err)
					}
					continue
				}
				if !alive {
					p.logger.WarnContext(ctx, "lease lost, cancelling run", "job_result_id", id)
					onLost()
					return
				}
			}
		}
	}()

	return func() {
		onLost()
		<-done
	}
}

func (p *Pool) leaseSeconds() int {
	secs := int(p.lease / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
