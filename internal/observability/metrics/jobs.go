// Package metrics defines the standard metric emission points for the job
// engine: per-run duration observations, scheduler ticks, and hook dispatch.
package metrics

import (
	"time"

	obserrors "github.com/jobforge/jobforge/internal/observability/errors"
	"github.com/jobforge/jobforge/internal/observability/statsd"
)

// Result constants for metric tagging.
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultNoop    = "noop"
)

// RunObservation captures one terminal job run for metric emission. One
// observation is emitted per terminal JobResult, labeled by grouping, name,
// and final status, with the execution duration as the value.
type RunObservation struct {
	Grouping string
	Name     string
	Status   string
	Duration time.Duration
}

// EmitRunCompleted emits the duration observation for a terminal job result.
func EmitRunCompleted(sink statsd.Sink, in RunObservation) {
	if sink == nil {
		return
	}

	tags := map[string]string{
		"grouping": in.Grouping,
		"name":     in.Name,
		"status":   in.Status,
	}
	sink.Count("job.completed", 1, tags)
	sink.Timing("job.duration", in.Duration, CloneTags(tags))
}

// TickMetric captures one scheduler or dispatcher pass.
type TickMetric struct {
	Component string
	Processed int
	Duration  time.Duration
	Err       error
}

// EmitTick emits counters and timing for one scheduler/dispatcher pass.
func EmitTick(sink statsd.Sink, in TickMetric) {
	if sink == nil {
		return
	}

	result := ResultSuccess
	switch {
	case in.Err != nil:
		result = ResultError
	case in.Processed == 0:
		result = ResultNoop
	}

	tags := map[string]string{"result": result}
	if in.Err != nil {
		if class := obserrors.Classify(in.Err); class != "" {
			tags["error_class"] = class
		}
	}

	sink.Count(in.Component+".tick", 1, tags)
	if in.Processed > 0 {
		sink.Count(in.Component+".processed", int64(in.Processed), tags)
	}
	if in.Duration > 0 {
		sink.Timing(in.Component+".tick_duration", in.Duration, CloneTags(tags))
	}
	if in.Err == nil {
		sink.Gauge(in.Component+".last_success_epoch", float64(time.Now().Unix()), nil)
	}
}

// CloneTags creates a shallow copy of a tag map.
func CloneTags(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	out := make(map[string]string, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
