package model

import (
	"encoding/json"
	"errors"
	"time"
)

// RunStatus represents the current status of a job run.
type RunStatus string

const (
	// StatusPending indicates the run is queued and waiting for a worker.
	StatusPending RunStatus = "pending"
	// StatusRunning indicates a worker owns the run.
	StatusRunning RunStatus = "running"
	// StatusCompleted indicates the run finished successfully.
	StatusCompleted RunStatus = "completed"
	// StatusErrored indicates the run raised an unexpected error.
	StatusErrored RunStatus = "errored"
	// StatusFailed indicates the run finished with a failure outcome.
	StatusFailed RunStatus = "failed"
)

// ErrNoRunsAvailable is returned when no pending runs exist for reservation.
var ErrNoRunsAvailable = errors.New("no runs available")

// Valid returns true if the RunStatus is recognized.
func (s RunStatus) Valid() bool {
	switch s {
	case StatusPending, StatusRunning, StatusCompleted, StatusErrored, StatusFailed:
		return true
	}
	return false
}

// Terminal reports whether no further status transition may occur.
func (s RunStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusErrored || s == StatusFailed
}

// DispatchOptions are the execution parameters forwarded to the worker.
// Zero-valued time limits are omitted from the serialized form entirely so
// the worker's system defaults apply.
type DispatchOptions struct {
	SoftTimeLimit int `json:"soft_time_limit,omitempty"`
	TimeLimit     int `json:"time_limit,omitempty"`
}

// JobResult is the audit and tracking record for one execution attempt of a
// job. The row is inserted at enqueue time with StatusPending and doubles as
// the dispatch queue entry: workers reserve pending rows per queue.
type JobResult struct {
	ID              string  `json:"id"                          db:"id"`
	JobDefinitionID *string `json:"job_definition_id,omitempty" db:"job_definition_id"`
	ScheduledJobID  *string `json:"scheduled_job_id,omitempty"  db:"scheduled_job_id"`

	Name     string `json:"name"      db:"name"`
	TaskName string `json:"task_name" db:"task_name"`
	Queue    string `json:"queue"     db:"queue"`

	Status RunStatus `json:"status" db:"status"`

	User     *string         `json:"user,omitempty"      db:"run_user"`
	WorkerID *string         `json:"worker_id,omitempty" db:"worker_id"`
	Result   json.RawMessage `json:"result,omitempty"    db:"result"`

	Args           json.RawMessage `json:"args"            db:"args"`
	Kwargs         json.RawMessage `json:"kwargs"          db:"kwargs"`
	DispatchKwargs json.RawMessage `json:"dispatch_kwargs" db:"dispatch_kwargs"`

	Traceback *string         `json:"traceback,omitempty" db:"traceback"`
	Meta      json.RawMessage `json:"meta,omitempty"      db:"meta"`

	DateCreated time.Time  `json:"date_created"        db:"date_created"`
	DateDone    *time.Time `json:"date_done,omitempty" db:"date_done"`

	// LeaseExpiresAt guards against worker crashes: the reaper requeues
	// running rows whose lease lapsed.
	LeaseExpiresAt *time.Time `json:"lease_expires_at,omitempty" db:"lease_expires_at"`
}

// RunStats summarizes runs per status for a queue.
type RunStats struct {
	Pending   int `json:"pending"`
	Running   int `json:"running"`
	Completed int `json:"completed"`
	Errored   int `json:"errored"`
	Failed    int `json:"failed"`
}
