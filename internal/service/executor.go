package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/jobforge/jobforge/internal/catalog"
	"github.com/jobforge/jobforge/internal/data"
	"github.com/jobforge/jobforge/internal/domain/model"
	apperrors "github.com/jobforge/jobforge/internal/errors"
	"github.com/jobforge/jobforge/internal/observability/metrics"
	"github.com/jobforge/jobforge/internal/observability/statsd"
)

// Executor runs one claimed job result to a terminal state: it resolves the
// job class, applies time limits, captures panics as tracebacks, and writes
// the final status. Used by the worker pool and by synchronous enqueue.
type Executor struct {
	catalog  *catalog.Catalog
	runs     RunRepository
	logs     LogStore
	defs     DefinitionRepository
	metrics  statsd.Sink
	tp       data.TimeProvider
	logger   *slog.Logger
	workerID string
}

// ExecutorOptions holds the dependencies for creating an Executor.
type ExecutorOptions struct {
	Catalog      *catalog.Catalog
	Runs         RunRepository
	Logs         LogStore
	Definitions  DefinitionRepository
	Metrics      statsd.Sink
	TimeProvider data.TimeProvider
	Logger       *slog.Logger
	// WorkerID is stamped onto runs this executor finishes.
	WorkerID string
}

// NewExecutor creates an Executor with the given dependencies.
func NewExecutor(opts ExecutorOptions) *Executor {
	if opts.TimeProvider == nil {
		opts.TimeProvider = &data.RealTimeProvider{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Executor{
		catalog:  opts.Catalog,
		runs:     opts.Runs,
		logs:     opts.Logs,
		defs:     opts.Definitions,
		metrics:  opts.Metrics,
		tp:       opts.TimeProvider,
		logger:   opts.Logger,
		workerID: opts.WorkerID,
	}
}

type runMeta struct {
	DryRun bool `json:"dryrun"`
}

// Execute drives a running job result to a terminal status and returns the
// final record. The returned error covers infrastructure failures only; a
// job that raised is reported through the record's errored status.
func (e *Executor) Execute(ctx context.Context, jr *model.JobResult) (*model.JobResult, error) {
	if jr == nil {
		return nil, apperrors.Validation("job result is required")
	}

	reg, ok := e.catalog.Lookup(jr.TaskName)
	if !ok {
		tb := fmt.Sprintf("job class %s is not registered in this process", jr.TaskName)
		return e.finish(ctx, jr, model.StatusErrored, nil, &tb)
	}

	var dispatch model.DispatchOptions
	if len(jr.DispatchKwargs) > 0 {
		if err := json.Unmarshal(jr.DispatchKwargs, &dispatch); err != nil {
			tb := apperrors.Deserialization("decode dispatch kwargs", err).Error()
			return e.finish(ctx, jr, model.StatusErrored, nil, &tb)
		}
	}
	var meta runMeta
	if len(jr.Meta) > 0 {
		// Meta is free-form; a decode failure just means no dryrun flag.
		_ = json.Unmarshal(jr.Meta, &meta)
	}

	runCtx := ctx
	if dispatch.TimeLimit > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, time.Duration(dispatch.TimeLimit)*time.Second)
		defer cancel()
	}

	runLog := NewRunLogger(jr.ID, e.logs, e.logger)
	softLimitTimer := e.startSoftLimitWarning(runCtx, runLog, dispatch.SoftTimeLimit)
	if softLimitTimer != nil {
		defer softLimitTimer.Stop()
	}

	result, runErr := e.invoke(runCtx, reg, &catalog.RunContext{
		Args:   jr.Args,
		Kwargs: jr.Kwargs,
		DryRun: meta.DryRun,
		Log:    runLog,
	})

	switch {
	case runErr == nil:
		return e.finish(ctx, jr, model.StatusCompleted, result, nil)
	case isFailure(runErr):
		tb := runErr.Error()
		return e.finish(ctx, jr, model.StatusFailed, result, &tb)
	case errors.Is(runErr, context.DeadlineExceeded) && runCtx.Err() != nil && ctx.Err() == nil:
		tb := fmt.Sprintf("hard time limit of %ds exceeded", dispatch.TimeLimit)
		return e.finish(ctx, jr, model.StatusErrored, nil, &tb)
	default:
		tb := runErr.Error()
		return e.finish(ctx, jr, model.StatusErrored, result, &tb)
	}
}

// invoke runs the job instance, converting a panic into an error carrying the
// stack trace.
func (e *Executor) invoke(ctx context.Context, reg catalog.Registration, rc *catalog.RunContext) (result json.RawMessage, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v\n%s", rec, debug.Stack())
		}
	}()
	return reg.New().Run(ctx, rc)
}

func (e *Executor) startSoftLimitWarning(ctx context.Context, runLog *RunLogger, softLimit int) *time.Timer {
	if softLimit <= 0 {
		return nil
	}
	return time.AfterFunc(time.Duration(softLimit)*time.Second, func() {
		if ctx.Err() != nil {
			return
		}
		runLog.Warning(ctx, fmt.Sprintf("soft time limit of %ds exceeded", softLimit))
	})
}

func (e *Executor) finish(ctx context.Context, jr *model.JobResult, status model.RunStatus, result json.RawMessage, traceback *string) (*model.JobResult, error) {
	var workerID *string
	if e.workerID != "" {
		workerID = &e.workerID
	}

	// Terminal writes use a fresh context: the run's own deadline must not
	// prevent recording its outcome.
	writeCtx := ctx
	if ctx.Err() != nil {
		writeCtx = context.WithoutCancel(ctx)
	}

	updated, err := e.runs.SetStatus(writeCtx, data.SetStatusParams{
		ID:        jr.ID,
		Status:    status,
		Result:    result,
		Traceback: traceback,
		WorkerID:  workerID,
	})
	if err != nil {
		return nil, fmt.Errorf("record run outcome: %w", err)
	}
	emitRunCompleted(writeCtx, e.defs, e.metrics, updated)
	return updated, nil
}

// isFailure reports whether the job signaled a business failure rather than
// raising unexpectedly.
func isFailure(err error) bool {
	var fe *catalog.FailError
	return errors.As(err, &fe)
}

// emitRunCompleted emits the duration observation for a terminal run.
func emitRunCompleted(ctx context.Context, defs DefinitionRepository, sink statsd.Sink, jr *model.JobResult) {
	if sink == nil || !jr.Status.Terminal() {
		return
	}

	grouping := ""
	if jr.JobDefinitionID != nil && defs != nil {
		if def, err := defs.GetByID(ctx, *jr.JobDefinitionID); err == nil {
			grouping = def.Grouping
		}
	}

	obs := metrics.RunObservation{
		Grouping: grouping,
		Name:     jr.Name,
		Status:   string(jr.Status),
	}
	if jr.DateDone != nil {
		obs.Duration = jr.DateDone.Sub(jr.DateCreated)
	}
	metrics.EmitRunCompleted(sink, obs)
}
