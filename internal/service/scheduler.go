package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jobforge/jobforge/internal/data"
	"github.com/jobforge/jobforge/internal/domain/model"
	"github.com/jobforge/jobforge/internal/domain/schedule"
	apperrors "github.com/jobforge/jobforge/internal/errors"
	"github.com/jobforge/jobforge/internal/observability/statsd"
)

// SchedulerService fires due schedules. It keeps the enabled schedule set in
// memory and reloads it only when the change marker moves, so a tick against
// an unchanged schedule table costs one single-row read.
//
// Safe under concurrent replicas: each fire runs under a per-schedule
// advisory lock, and the run insert plus bookkeeping commit atomically.
type SchedulerService struct {
	scheds ScheduleRepository
	defs   DefinitionRepository
	runs   RunRepository

	tp      data.TimeProvider
	metrics statsd.Sink
	logger  *slog.Logger

	mu           sync.Mutex
	loadedMarker time.Time
	loaded       bool
	schedules    []*model.ScheduledJob
}

// SchedulerServiceOptions holds the dependencies for creating a
// SchedulerService.
type SchedulerServiceOptions struct {
	Schedules    ScheduleRepository
	Definitions  DefinitionRepository
	Runs         RunRepository
	TimeProvider data.TimeProvider
	Metrics      statsd.Sink
	Logger       *slog.Logger
}

// NewSchedulerService creates a SchedulerService with the given dependencies.
func NewSchedulerService(opts SchedulerServiceOptions) *SchedulerService {
	if opts.TimeProvider == nil {
		opts.TimeProvider = &data.RealTimeProvider{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &SchedulerService{
		scheds:  opts.Schedules,
		defs:    opts.Definitions,
		runs:    opts.Runs,
		tp:      opts.TimeProvider,
		metrics: opts.Metrics,
		logger:  opts.Logger,
	}
}

// Tick evaluates every enabled schedule against now and fires the due ones.
// Returns the number of runs enqueued. One schedule failing to fire never
// blocks the schedules after it; the first failure is reported once the
// whole set has been evaluated.
func (s *SchedulerService) Tick(ctx context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.reloadIfChanged(ctx); err != nil {
		return 0, fmt.Errorf("reload schedules: %w", err)
	}

	fired := 0
	var firstErr error
	for _, sj := range s.schedules {
		worked, err := s.evaluate(ctx, sj, now)
		if err != nil {
			if apperrors.IsNotFound(err) {
				// The row was deleted after the set loaded. The delete touched
				// the change marker, so the next tick reloads without it.
				s.logger.WarnContext(ctx, "schedule deleted before firing",
					"schedule", sj.Name,
					"error", err,
				)
				continue
			}
			s.logger.ErrorContext(ctx, "schedule fire failed",
				"schedule", sj.Name,
				"error", err,
			)
			if firstErr == nil {
				firstErr = fmt.Errorf("schedule %s: %w", sj.Name, err)
			}
			continue
		}
		if worked {
			fired++
		}
	}
	return fired, firstErr
}

func (s *SchedulerService) reloadIfChanged(ctx context.Context) error {
	marker, err := s.scheds.ChangeMarker(ctx)
	if err != nil {
		return err
	}
	if s.loaded && marker.Equal(s.loadedMarker) {
		return nil
	}

	schedules, err := s.scheds.ListEnabled(ctx)
	if err != nil {
		return err
	}
	s.schedules = schedules
	s.loadedMarker = marker
	s.loaded = true

	s.logger.DebugContext(ctx, "schedule set reloaded",
		"count", len(schedules),
		"marker", marker,
	)
	return nil
}

// evaluate decides whether one schedule fires this tick. Malformed schedules
// are disabled rather than retried forever.
func (s *SchedulerService) evaluate(ctx context.Context, sj *model.ScheduledJob, now time.Time) (bool, error) {
	sched, compErr := schedule.Compute(sj)
	if compErr == nil {
		compErr = validateScheduleArgs(sj)
	}
	if compErr != nil {
		s.disableMalformed(ctx, sj, compErr)
		return false, nil
	}

	if !sj.Approved() {
		return false, nil
	}
	if !sched.Due(sj.LastRunAt, now) {
		return false, nil
	}

	def, defErr := s.defs.GetByTaskName(ctx, sj.TaskName)
	if defErr != nil || !def.Installed || !def.Enabled {
		s.logger.WarnContext(ctx, "schedule points at an unavailable job",
			"schedule", sj.Name,
			"task_name", sj.TaskName,
			"error", defErr,
		)
		return false, nil
	}

	var updated *model.ScheduledJob
	lockOK, err := s.scheds.TryWithScheduleLock(ctx, sj.Name, func(ctx context.Context, tx *sql.Tx) error {
		var fireErr error
		updated, fireErr = s.fire(ctx, tx, fireParams{Schedule: sj, Definition: def, Now: now, OneOff: !sched.Recurring()})
		return fireErr
	})
	if err != nil {
		return false, err
	}
	if !lockOK {
		// Another replica holds this schedule; it will do the bookkeeping.
		return false, nil
	}

	if updated != nil {
		sj.LastRunAt = updated.LastRunAt
		sj.TotalRunCount = updated.TotalRunCount
		sj.Enabled = updated.Enabled
	}
	return true, nil
}

type fireParams struct {
	Schedule   *model.ScheduledJob
	Definition *model.JobDefinition
	Now        time.Time
	OneOff     bool
}

// fire records the fire on the schedule row and inserts the pending run in
// the same transaction.
func (s *SchedulerService) fire(ctx context.Context, tx *sql.Tx, p fireParams) (*model.ScheduledJob, error) {
	updated, err := s.scheds.MarkFiredTx(ctx, tx, data.MarkFiredParams{
		ID:            p.Schedule.ID,
		FiredAt:       p.Now,
		KnownRunCount: p.Schedule.TotalRunCount,
		DisableAfter:  p.OneOff,
	})
	if err != nil {
		return nil, err
	}

	jr, err := BuildRunRecord(p.Definition, BuildRunParams{
		User:         &p.Schedule.RequestedBy,
		ScheduledJob: p.Schedule,
	})
	if err != nil {
		return nil, err
	}
	if _, err := s.runs.InsertPendingTx(ctx, tx, jr); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "schedule fired",
		"schedule", p.Schedule.Name,
		"task_name", p.Schedule.TaskName,
		"total_run_count", updated.TotalRunCount,
	)
	return updated, nil
}

// disableMalformed turns off a schedule whose crontab or stored arguments
// cannot be interpreted. The decode failure must never take the whole tick
// down with it.
func (s *SchedulerService) disableMalformed(ctx context.Context, sj *model.ScheduledJob, cause error) {
	s.logger.ErrorContext(ctx, "disabling malformed schedule",
		"schedule", sj.Name,
		"error", cause,
	)
	if s.metrics != nil {
		s.metrics.Count("scheduler.malformed_schedule", 1, map[string]string{"schedule": sj.Name})
	}
	if err := s.scheds.SetEnabled(ctx, sj.ID, false); err != nil {
		s.logger.ErrorContext(ctx, "disable malformed schedule failed",
			"schedule", sj.Name,
			"error", err,
		)
	}
	// SetEnabled touched the change marker; the next tick reloads without it.
	sj.Enabled = false
}

func validateScheduleArgs(sj *model.ScheduledJob) error {
	if len(sj.Args) > 0 && !json.Valid(sj.Args) {
		return apperrors.Deserialization("stored args are not valid JSON", nil)
	}
	if len(sj.Kwargs) > 0 && !json.Valid(sj.Kwargs) {
		return apperrors.Deserialization("stored kwargs are not valid JSON", nil)
	}
	return nil
}

// PrepareForSave applies the save-time schedule invariants before a create or
// update: validation, and back-dating last_run_at one interval on the first
// save of an enabled recurring schedule so the first real due time fires.
func PrepareForSave(sj *model.ScheduledJob) error {
	if sj == nil {
		return apperrors.Validation("scheduled job is required")
	}
	if err := sj.Validate(); err != nil {
		return err
	}

	sched, err := schedule.Compute(sj)
	if err != nil {
		return err
	}

	if sj.Enabled && sj.LastRunAt == nil {
		if backdated, ok := sched.BackdatedLastRun(); ok {
			sj.LastRunAt = &backdated
		}
	}
	return nil
}
