// Package service implements the jobforge business logic: enqueueing runs,
// scheduling, executing, and hook dispatch.
package service

import (
	"context"
	"database/sql"
	"time"

	"github.com/jobforge/jobforge/internal/data"
	"github.com/jobforge/jobforge/internal/domain/model"
)

//go:generate mockgen -source=interfaces.go -destination=../mocks/service_mocks.go -package=mocks

// DefinitionRepository is the slice of the definition registry the services
// need.
type DefinitionRepository interface {
	GetByID(ctx context.Context, id string) (*model.JobDefinition, error)
	GetByTaskName(ctx context.Context, taskName string) (*model.JobDefinition, error)
}

// ScheduleRepository is the slice of the schedule store the scheduler needs.
type ScheduleRepository interface {
	ListEnabled(ctx context.Context) ([]*model.ScheduledJob, error)
	ChangeMarker(ctx context.Context) (time.Time, error)
	MarkFiredTx(ctx context.Context, tx *sql.Tx, p data.MarkFiredParams) (*model.ScheduledJob, error)
	SetEnabled(ctx context.Context, id string, enabled bool) error
	TryWithScheduleLock(ctx context.Context, scheduleName string, fn func(context.Context, *sql.Tx) error) (bool, error)
}

// RunRepository is the slice of the run store the services need.
type RunRepository interface {
	InsertPending(ctx context.Context, jr *model.JobResult) (*model.JobResult, error)
	InsertPendingTx(ctx context.Context, tx *sql.Tx, jr *model.JobResult) (*model.JobResult, error)
	SetStatus(ctx context.Context, p data.SetStatusParams) (*model.JobResult, error)
	GetByID(ctx context.Context, id string) (*model.JobResult, error)
}

// LogStore is the append-only sink for job log entries.
type LogStore interface {
	Append(ctx context.Context, entry *model.JobLogEntry) (*model.JobLogEntry, error)
}

// HookRepository is the slice of the hook store the dispatcher needs.
type HookRepository interface {
	GetByID(ctx context.Context, id string) (*model.JobHook, error)
	Create(ctx context.Context, hook *model.JobHook) (*model.JobHook, error)
	Update(ctx context.Context, hook *model.JobHook) (*model.JobHook, error)
	Delete(ctx context.Context, id string) error
	ListMatching(ctx context.Context, contentType string, action model.ChangeAction) ([]*model.JobHook, error)
	ListOverlapping(ctx context.Context, hook *model.JobHook) ([]*model.JobHook, error)
}

// HookCache caches hook match sets between dispatches.
type HookCache interface {
	Get(ctx context.Context, contentType string, action model.ChangeAction) ([]string, bool, error)
	Put(ctx context.Context, contentType string, action model.ChangeAction, hookIDs []string) error
	Invalidate(ctx context.Context) error
}
