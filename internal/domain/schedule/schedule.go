// Package schedule converts a ScheduledJob's interval into concrete fire
// times. Recurring kinds are expressed as five-field crontab rules; one-off
// ("clocked") schedules fire exactly once at their start time.
package schedule

import (
	"fmt"
	"strings"
	"time"

	cron "github.com/robfig/cron/v3"

	"github.com/jobforge/jobforge/internal/domain/model"
	apperrors "github.com/jobforge/jobforge/internal/errors"
)

// crontabFields is the required number of whitespace-separated fields:
// minute, hour, day-of-month, month, day-of-week.
const crontabFields = 5

// parser accepts the classic five fields with * , - / syntax. Descriptor
// shorthands (@hourly etc.) are excluded by construction.
var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Schedule is a computed recurrence rule for a scheduled job.
type Schedule struct {
	kind  model.IntervalKind
	start time.Time
	rule  cron.Schedule // nil for one-off schedules
}

// Compute derives the Schedule for a scheduled job. For custom intervals the
// stored crontab string is parsed and a validation error is returned when it
// cannot be interpreted.
func Compute(sj *model.ScheduledJob) (*Schedule, error) {
	if sj == nil {
		return nil, apperrors.Validation("scheduled job is required")
	}

	s := &Schedule{kind: sj.Interval, start: sj.StartTime}

	var expr string
	switch sj.Interval {
	case model.IntervalOnce:
		return s, nil
	case model.IntervalHourly:
		expr = fmt.Sprintf("%d * * * *", sj.StartTime.Minute())
	case model.IntervalDaily:
		expr = fmt.Sprintf("%d %d * * *", sj.StartTime.Minute(), sj.StartTime.Hour())
	case model.IntervalWeekly:
		expr = fmt.Sprintf("%d %d * * %d",
			sj.StartTime.Minute(), sj.StartTime.Hour(), int(sj.StartTime.Weekday()))
	case model.IntervalCustom:
		expr = sj.Crontab
		if err := ValidateCrontab(expr); err != nil {
			return nil, err
		}
	default:
		return nil, apperrors.Validationf("invalid interval kind: %q", string(sj.Interval))
	}

	rule, err := parser.Parse(expr)
	if err != nil {
		return nil, apperrors.Wrapf(err, apperrors.ErrCodeValidation,
			"unparsable crontab expression %q", expr)
	}
	s.rule = rule
	return s, nil
}

// ValidateCrontab checks a five-field crontab expression, rejecting the
// L / W / # / ? extensions and @-shorthand strings before parsing.
func ValidateCrontab(expr string) error {
	trimmed := strings.TrimSpace(expr)
	if trimmed == "" {
		return apperrors.ValidationField("crontab", "crontab expression is required")
	}
	if strings.HasPrefix(trimmed, "@") {
		return apperrors.Validationf("crontab shorthand %q is not supported", trimmed)
	}
	fields := strings.Fields(trimmed)
	if len(fields) != crontabFields {
		return apperrors.Validationf(
			"crontab expression must have exactly %d fields, got %d", crontabFields, len(fields))
	}
	for _, f := range fields {
		if strings.ContainsAny(f, "LW#?lw") {
			return apperrors.Validationf("crontab field %q uses an unsupported extension", f)
		}
	}
	if _, err := parser.Parse(trimmed); err != nil {
		return apperrors.Wrapf(err, apperrors.ErrCodeValidation,
			"unparsable crontab expression %q", trimmed)
	}
	return nil
}

// Next returns the first fire time strictly after the given instant. For
// one-off schedules the start time is returned until it has passed; after
// that there are no further fires and ok is false.
func (s *Schedule) Next(after time.Time) (time.Time, bool) {
	if s.kind == model.IntervalOnce {
		if after.Before(s.start) {
			return s.start, true
		}
		return time.Time{}, false
	}
	return s.rule.Next(after), true
}

// Recurring reports whether the schedule produces more than one fire.
func (s *Schedule) Recurring() bool {
	return s.kind.Recurring()
}

// BackdatedLastRun returns the synthetic last_run_at applied when an enabled
// recurring schedule is first saved: exactly one interval before the start
// time, so a scheduler that only fires jobs with last_run_at set picks the
// job up at its first real due time. One-off schedules return ok=false; they
// fire correctly with last_run_at unset.
func (s *Schedule) BackdatedLastRun() (time.Time, bool) {
	if !s.Recurring() {
		return time.Time{}, false
	}
	if span, ok := s.kind.BackdateInterval(); ok {
		return s.start.Add(-span), true
	}
	// Custom crontab: derive the span from two consecutive fires.
	first := s.rule.Next(s.start)
	second := s.rule.Next(first)
	span := second.Sub(first)
	if span <= 0 {
		return time.Time{}, false
	}
	return s.start.Add(-span), true
}

// Due reports whether the schedule should fire at now, given the recorded
// last run. A one-off schedule is due once its start time passes and it has
// never fired; a recurring schedule is due when the first fire after
// last_run_at is not in the future.
func (s *Schedule) Due(lastRunAt *time.Time, now time.Time) bool {
	if s.kind == model.IntervalOnce {
		return lastRunAt == nil && !now.Before(s.start)
	}
	anchor := s.start
	if lastRunAt != nil {
		anchor = *lastRunAt
	}
	next := s.rule.Next(anchor)
	return !next.After(now)
}
