package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/jobforge/jobforge/internal/data"
	"github.com/jobforge/jobforge/internal/domain/model"
	apperrors "github.com/jobforge/jobforge/internal/errors"
	"github.com/jobforge/jobforge/internal/observability/statsd"
	"github.com/jobforge/jobforge/internal/uow"
)

// DefaultQueue is used when neither the caller nor the definition names one.
const DefaultQueue = "default"

// RunService owns the run lifecycle: creating pending run records, moving
// them through status transitions, and executing synchronous runs inline.
type RunService struct {
	defs     DefinitionRepository
	runs     RunRepository
	logs     LogStore
	uow      *uow.Runner
	executor *Executor
	metrics  statsd.Sink
	tp       data.TimeProvider
	logger   *slog.Logger
	queue    string
}

// RunServiceOptions holds the dependencies for creating a RunService.
type RunServiceOptions struct {
	Definitions  DefinitionRepository
	Runs         RunRepository
	Logs         LogStore
	UnitOfWork   *uow.Runner
	Executor     *Executor
	Metrics      statsd.Sink
	TimeProvider data.TimeProvider
	Logger       *slog.Logger
	// DefaultQueue overrides the package default queue name.
	DefaultQueue string
}

// NewRunService creates a RunService with the given dependencies.
func NewRunService(opts RunServiceOptions) *RunService {
	if opts.TimeProvider == nil {
		opts.TimeProvider = &data.RealTimeProvider{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.DefaultQueue == "" {
		opts.DefaultQueue = DefaultQueue
	}
	return &RunService{
		defs:     opts.Definitions,
		runs:     opts.Runs,
		logs:     opts.Logs,
		uow:      opts.UnitOfWork,
		executor: opts.Executor,
		metrics:  opts.Metrics,
		tp:       opts.TimeProvider,
		logger:   opts.Logger,
		queue:    opts.DefaultQueue,
	}
}

// EnqueueParams describes one run request.
type EnqueueParams struct {
	// TaskName is the "module.ClassName" identity of the job to run.
	TaskName string
	// User records who requested the run.
	User *string
	// ScheduledJob links the run to the schedule that fired it; nil for
	// manual runs.
	ScheduledJob *model.ScheduledJob
	Args         json.RawMessage
	Kwargs       json.RawMessage
	// Queue overrides the definition's queue choice.
	Queue *string
	// Synchronous executes the run inline instead of dispatching to a
	// worker. Incompatible with ScheduledJob.
	Synchronous bool
	DryRun      bool
}

// Enqueue validates the request, creates the pending run record, and either
// dispatches it to the queue (asynchronous) or executes it inline
// (synchronous). Scheduling and synchronous execution are mutually
// exclusive; that combination fails before anything is written.
func (s *RunService) Enqueue(ctx context.Context, p EnqueueParams) (*model.JobResult, error) {
	if p.ScheduledJob != nil && p.Synchronous {
		return nil, apperrors.Validation("a scheduled run cannot be executed synchronously")
	}

	def, err := s.defs.GetByTaskName(ctx, p.TaskName)
	if err != nil {
		return nil, err
	}
	if !def.Installed {
		return nil, apperrors.Validationf("job %s is not installed", p.TaskName)
	}
	if !def.Enabled {
		return nil, apperrors.Validationf("job %s is not enabled", p.TaskName)
	}

	jr, err := BuildRunRecord(def, BuildRunParams{
		User:         p.User,
		ScheduledJob: p.ScheduledJob,
		Args:         p.Args,
		Kwargs:       p.Kwargs,
		Queue:        p.Queue,
		DefaultQueue: s.queue,
		DryRun:       p.DryRun,
	})
	if err != nil {
		return nil, err
	}

	if p.Synchronous {
		return s.enqueueSync(ctx, jr)
	}
	return s.enqueueAsync(ctx, jr)
}

// enqueueAsync inserts the pending record inside a unit of work. The queue
// notification is issued in the same transaction, so workers only see the run
// after commit; the post-commit hook covers process-local bookkeeping.
func (s *RunService) enqueueAsync(ctx context.Context, jr *model.JobResult) (*model.JobResult, error) {
	var saved *model.JobResult
	err := s.uow.Do(ctx, func(u *uow.UnitOfWork) error {
		var insertErr error
		saved, insertErr = s.runs.InsertPendingTx(ctx, u.Tx(), jr)
		if insertErr != nil {
			return insertErr
		}
		u.OnCommit(func(ctx context.Context) {
			s.logger.InfoContext(ctx, "run enqueued",
				"job_result_id", saved.ID,
				"task_name", saved.TaskName,
				"queue", saved.Queue,
			)
			if s.metrics != nil {
				s.metrics.Count("job.enqueued", 1, map[string]string{"queue": saved.Queue})
			}
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return saved, nil
}

// enqueueSync inserts the pending record and executes it on the caller's
// goroutine. The returned record is terminal.
func (s *RunService) enqueueSync(ctx context.Context, jr *model.JobResult) (*model.JobResult, error) {
	saved, err := s.runs.InsertPending(ctx, jr)
	if err != nil {
		return nil, err
	}
	if s.executor == nil {
		return nil, apperrors.Internal("synchronous execution requires an executor")
	}

	claimed, err := s.runs.SetStatus(ctx, data.SetStatusParams{
		ID:     saved.ID,
		Status: model.StatusRunning,
	})
	if err != nil {
		return nil, err
	}
	return s.executor.Execute(ctx, claimed)
}

// SetStatus applies a status transition and emits the run duration
// observation when the run reaches a terminal state.
func (s *RunService) SetStatus(ctx context.Context, p data.SetStatusParams) (*model.JobResult, error) {
	jr, err := s.runs.SetStatus(ctx, p)
	if err != nil {
		return nil, err
	}
	if jr.Status.Terminal() {
		emitRunCompleted(ctx, s.defs, s.metrics, jr)
	}
	return jr, nil
}

// Log writes one entry for a run after redacting the message.
func (s *RunService) Log(ctx context.Context, entry *model.JobLogEntry) (*model.JobLogEntry, error) {
	if entry == nil {
		return nil, apperrors.Validation("log entry is required")
	}
	entry.Message = Redact(entry.Message)
	if entry.LogObject != nil {
		redacted := Redact(*entry.LogObject)
		entry.LogObject = &redacted
	}
	return s.logs.Append(ctx, entry)
}

// Logger returns a RunLogger bound to the given run.
func (s *RunService) Logger(jobResultID string) *RunLogger {
	return NewRunLogger(jobResultID, s.logs, s.logger)
}

// BuildRunParams groups the inputs for BuildRunRecord.
type BuildRunParams struct {
	User         *string
	ScheduledJob *model.ScheduledJob
	Args         json.RawMessage
	Kwargs       json.RawMessage
	Queue        *string
	DefaultQueue string
	DryRun       bool
}

// BuildRunRecord assembles the pending JobResult for a definition: queue
// resolution, dispatch options with zero-valued limits omitted, and the
// schedule linkage.
func BuildRunRecord(def *model.JobDefinition, p BuildRunParams) (*model.JobResult, error) {
	queue := p.DefaultQueue
	if queue == "" {
		queue = DefaultQueue
	}
	if len(def.TaskQueues) > 0 {
		queue = def.TaskQueues[0]
	}
	if p.Queue != nil && *p.Queue != "" {
		queue = *p.Queue
	}

	dispatch := model.DispatchOptions{
		SoftTimeLimit: def.SoftTimeLimit,
		TimeLimit:     def.TimeLimit,
	}
	dispatchKwargs, err := json.Marshal(dispatch)
	if err != nil {
		return nil, fmt.Errorf("marshal dispatch options: %w", err)
	}

	jr := &model.JobResult{
		JobDefinitionID: &def.ID,
		Name:            def.Name,
		TaskName:        def.TaskName(),
		Queue:           queue,
		Status:          model.StatusPending,
		User:            p.User,
		Args:            p.Args,
		Kwargs:          p.Kwargs,
		DispatchKwargs:  dispatchKwargs,
	}
	if p.DryRun {
		meta, merr := json.Marshal(map[string]any{"dryrun": true})
		if merr != nil {
			return nil, fmt.Errorf("marshal run meta: %w", merr)
		}
		jr.Meta = meta
	}
	if p.ScheduledJob != nil {
		jr.ScheduledJobID = &p.ScheduledJob.ID
		jr.Name = p.ScheduledJob.Name
		if len(p.ScheduledJob.Args) > 0 {
			jr.Args = p.ScheduledJob.Args
		}
		if len(p.ScheduledJob.Kwargs) > 0 {
			jr.Kwargs = p.ScheduledJob.Kwargs
		}
		if p.ScheduledJob.Queue != nil && *p.ScheduledJob.Queue != "" {
			jr.Queue = *p.ScheduledJob.Queue
		}
	}
	return jr, nil
}
