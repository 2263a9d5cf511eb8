package model

import (
	"strings"
	"time"

	apperrors "github.com/jobforge/jobforge/internal/errors"
)

// LogLevel is the severity of a job log entry.
type LogLevel string

const (
	// LevelDebug is the default level for unclassified messages.
	LevelDebug LogLevel = "debug"
	// LevelInfo marks informational progress messages.
	LevelInfo LogLevel = "info"
	// LevelSuccess marks a successfully completed step.
	LevelSuccess LogLevel = "success"
	// LevelWarning marks a recoverable problem.
	LevelWarning LogLevel = "warning"
	// LevelFailure marks a step that failed.
	LevelFailure LogLevel = "failure"
)

// Valid returns true if the LogLevel is recognized.
func (l LogLevel) Valid() bool {
	switch l {
	case LevelDebug, LevelInfo, LevelSuccess, LevelWarning, LevelFailure:
		return true
	}
	return false
}

// Maximum lengths for bounded JobLogEntry fields. Values longer than these
// are truncated, never rejected, so a noisy job cannot lose its log line.
const (
	LogGroupingMaxLength = 100
	LogObjectMaxLength   = 200
	AbsoluteURLMaxLength = 255
	DefaultLogGrouping   = "main"
)

// JobLogEntry is one structured log line tied to a JobResult. The associated
// object is stored as plain text plus URL, not a foreign key, so the log
// survives deletion of whatever it references. Entries are written through an
// independently-committing storage handle and therefore persist even when the
// enclosing job transaction rolls back.
type JobLogEntry struct {
	ID          string    `json:"id"            db:"id"`
	JobResultID string    `json:"job_result_id" db:"job_result_id"`
	Level       LogLevel  `json:"level"         db:"level"`
	Grouping    string    `json:"grouping"      db:"grouping"`
	Message     string    `json:"message"       db:"message"`
	LogObject   *string   `json:"log_object,omitempty"   db:"log_object"`
	AbsoluteURL *string   `json:"absolute_url,omitempty" db:"absolute_url"`
	CreatedAt   time.Time `json:"created_at"    db:"created_at"`
}

// Validate rejects unknown log levels before any write happens.
func (e *JobLogEntry) Validate() error {
	if !e.Level.Valid() {
		return apperrors.Validationf("unknown log level: %q", string(e.Level))
	}
	if strings.TrimSpace(e.JobResultID) == "" {
		return apperrors.ValidationField("job_result_id", "job result id is required")
	}
	return nil
}

// Truncate bounds the grouping, object, and URL fields to their maximums.
func (e *JobLogEntry) Truncate() {
	if e.Grouping == "" {
		e.Grouping = DefaultLogGrouping
	}
	e.Grouping = truncate(e.Grouping, LogGroupingMaxLength)
	if e.LogObject != nil {
		v := truncate(*e.LogObject, LogObjectMaxLength)
		e.LogObject = &v
	}
	if e.AbsoluteURL != nil {
		v := truncate(*e.AbsoluteURL, AbsoluteURLMaxLength)
		e.AbsoluteURL = &v
	}
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen]
}
