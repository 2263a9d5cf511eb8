package model

import (
	"encoding/json"
	"strings"
	"time"

	apperrors "github.com/jobforge/jobforge/internal/errors"
)

// IntervalKind identifies how a scheduled job recurs.
//
//nolint:recvcheck // UnmarshalText needs pointer receiver, Valid needs value receiver
type IntervalKind string

const (
	// IntervalOnce fires a single time at StartTime.
	IntervalOnce IntervalKind = "once"
	// IntervalHourly fires at StartTime's minute every hour.
	IntervalHourly IntervalKind = "hourly"
	// IntervalDaily fires at StartTime's hour:minute every day.
	IntervalDaily IntervalKind = "daily"
	// IntervalWeekly fires at StartTime's hour:minute on StartTime's weekday.
	IntervalWeekly IntervalKind = "weekly"
	// IntervalCustom fires per a five-field crontab expression.
	IntervalCustom IntervalKind = "custom"
)

// Valid returns true if the IntervalKind is one of the recognized kinds.
func (k IntervalKind) Valid() bool {
	switch k {
	case IntervalOnce, IntervalHourly, IntervalDaily, IntervalWeekly, IntervalCustom:
		return true
	}
	return false
}

// UnmarshalText implements encoding.TextUnmarshaler to allow env/JSON parsing.
func (k *IntervalKind) UnmarshalText(text []byte) error {
	v := IntervalKind(strings.ToLower(strings.TrimSpace(string(text))))
	if !v.Valid() {
		return apperrors.Validationf("invalid interval kind: %q", string(text))
	}
	*k = v
	return nil
}

// Recurring reports whether the interval produces more than one fire.
func (k IntervalKind) Recurring() bool {
	return k.Valid() && k != IntervalOnce
}

// BackdateInterval returns the fixed span used to back-date last_run_at when
// an enabled recurring schedule is first saved. Custom crontab schedules have
// no fixed span; callers derive it from consecutive fire times instead.
func (k IntervalKind) BackdateInterval() (time.Duration, bool) {
	switch k {
	case IntervalHourly:
		return time.Hour, true
	case IntervalDaily:
		return 24 * time.Hour, true
	case IntervalWeekly:
		return 7 * 24 * time.Hour, true
	default:
		return 0, false
	}
}

// ScheduledJob is a persisted rule describing when to enqueue a job
// automatically. It binds to at most one JobDefinition; the binding is kept
// (as a dangling reference) when the definition row is removed, for audit.
type ScheduledJob struct {
	ID              string  `json:"id"                          db:"id"`
	Name            string  `json:"name"                        db:"name"`
	TaskName        string  `json:"task_name"                   db:"task_name"`
	JobDefinitionID *string `json:"job_definition_id,omitempty" db:"job_definition_id"`

	Interval IntervalKind `json:"interval" db:"interval"`
	// Crontab holds the five-field expression for IntervalCustom.
	Crontab string `json:"crontab" db:"crontab"`

	Args   json.RawMessage `json:"args"            db:"args"`
	Kwargs json.RawMessage `json:"kwargs"          db:"kwargs"`
	Queue  *string         `json:"queue,omitempty" db:"queue"`

	Enabled       bool       `json:"enabled"               db:"enabled"`
	StartTime     time.Time  `json:"start_time"            db:"start_time"`
	LastRunAt     *time.Time `json:"last_run_at,omitempty" db:"last_run_at"`
	TotalRunCount int64      `json:"total_run_count"       db:"total_run_count"`

	ApprovalRequired bool       `json:"approval_required"     db:"approval_required"`
	RequestedBy      string     `json:"requested_by"          db:"requested_by"`
	ApprovedBy       *string    `json:"approved_by,omitempty" db:"approved_by"`
	ApprovedAt       *time.Time `json:"approved_at,omitempty" db:"approved_at"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Validate enforces the ScheduledJob invariants.
func (s *ScheduledJob) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return apperrors.ValidationField("name", "name is required")
	}
	if strings.TrimSpace(s.TaskName) == "" {
		return apperrors.ValidationField("task_name", "task name is required")
	}
	if !s.Interval.Valid() {
		return apperrors.Validationf("invalid interval kind: %q", string(s.Interval))
	}
	if s.Interval == IntervalCustom && strings.TrimSpace(s.Crontab) == "" {
		return apperrors.ValidationField("crontab", "a crontab expression is required for custom schedules")
	}
	if s.StartTime.IsZero() {
		return apperrors.ValidationField("start_time", "start time is required")
	}
	// Approver and approval time are set together or not at all.
	if (s.ApprovedBy == nil) != (s.ApprovedAt == nil) {
		return apperrors.Validation("approved_by and approved_at must be set together")
	}
	if s.ApprovedBy != nil && s.RequestedBy != "" && *s.ApprovedBy == s.RequestedBy {
		return apperrors.Validation("the requesting user cannot approve their own schedule")
	}
	return nil
}

// Approved reports whether the schedule may be dispatched with respect to the
// approval workflow.
func (s *ScheduledJob) Approved() bool {
	if !s.ApprovalRequired {
		return true
	}
	return s.ApprovedBy != nil && s.ApprovedAt != nil
}

// ChangeMarkerID is the fixed identity of the singleton row tracking the most
// recent insert/update/delete across all scheduled jobs.
const ChangeMarkerID = 1

// ScheduleChangeMarker lets a polling scheduler cheaply decide whether the
// schedule set changed since it last loaded the full table.
type ScheduleChangeMarker struct {
	ID          int       `json:"id"           db:"id"`
	LastChanged time.Time `json:"last_changed" db:"last_changed"`
}
