package service

import (
	"context"
	"log/slog"

	"github.com/jobforge/jobforge/internal/catalog"
	"github.com/jobforge/jobforge/internal/domain/model"
)

// RunLogger implements catalog.JobLogger for one run. Messages are redacted
// before they leave the process; a failed append is reported on the service
// logger but never fails the run.
type RunLogger struct {
	jobResultID string
	store       LogStore
	logger      *slog.Logger
}

// NewRunLogger creates a RunLogger bound to one run record.
func NewRunLogger(jobResultID string, store LogStore, logger *slog.Logger) *RunLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &RunLogger{jobResultID: jobResultID, store: store, logger: logger}
}

// Debug writes a debug-level entry.
func (l *RunLogger) Debug(ctx context.Context, message string, opts ...catalog.LogOption) {
	l.write(ctx, model.LevelDebug, message, opts)
}

// Info writes an info-level entry.
func (l *RunLogger) Info(ctx context.Context, message string, opts ...catalog.LogOption) {
	l.write(ctx, model.LevelInfo, message, opts)
}

// Success writes a success-level entry.
func (l *RunLogger) Success(ctx context.Context, message string, opts ...catalog.LogOption) {
	l.write(ctx, model.LevelSuccess, message, opts)
}

// Warning writes a warning-level entry.
func (l *RunLogger) Warning(ctx context.Context, message string, opts ...catalog.LogOption) {
	l.write(ctx, model.LevelWarning, message, opts)
}

// Failure writes a failure-level entry.
func (l *RunLogger) Failure(ctx context.Context, message string, opts ...catalog.LogOption) {
	l.write(ctx, model.LevelFailure, message, opts)
}

func (l *RunLogger) write(ctx context.Context, level model.LogLevel, message string, opts []catalog.LogOption) {
	var eo catalog.LogEntryOptions
	for _, opt := range opts {
		opt(&eo)
	}

	entry := &model.JobLogEntry{
		JobResultID: l.jobResultID,
		Level:       level,
		Grouping:    eo.Grouping,
		Message:     Redact(message),
		LogObject:   eo.LogObject,
		AbsoluteURL: eo.AbsoluteURL,
	}
	if entry.LogObject != nil {
		redacted := Redact(*entry.LogObject)
		entry.LogObject = &redacted
	}

	if _, err := l.store.Append(ctx, entry); err != nil {
		l.logger.ErrorContext(ctx, "append job log entry failed",
			"job_result_id", l.jobResultID,
			"level", level,
			"error", err,
		)
	}
}
