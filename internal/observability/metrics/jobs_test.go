package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedMetric struct {
	name string
	tags map[string]string
}

type recordingSink struct {
	counts  []recordedMetric
	gauges  []recordedMetric
	timings []recordedMetric
}

func (s *recordingSink) Count(name string, value int64, tags map[string]string) {
	s.counts = append(s.counts, recordedMetric{name: name, tags: tags})
}

func (s *recordingSink) Gauge(name string, value float64, tags map[string]string) {
	s.gauges = append(s.gauges, recordedMetric{name: name, tags: tags})
}

func (s *recordingSink) Timing(name string, value time.Duration, tags map[string]string) {
	s.timings = append(s.timings, recordedMetric{name: name, tags: tags})
}

func TestEmitRunCompleted(t *testing.T) {
	sink := &recordingSink{}
	EmitRunCompleted(sink, RunObservation{
		Grouping: "network",
		Name:     "Device Backup",
		Status:   "completed",
		Duration: 3 * time.Second,
	})

	require.Len(t, sink.counts, 1)
	assert.Equal(t, "job.completed", sink.counts[0].name)
	assert.Equal(t, "completed", sink.counts[0].tags["status"])
	require.Len(t, sink.timings, 1)
	assert.Equal(t, "job.duration", sink.timings[0].name)

	EmitRunCompleted(nil, RunObservation{})
}

func TestEmitTick(t *testing.T) {
	t.Run("successful pass", func(t *testing.T) {
		sink := &recordingSink{}
		EmitTick(sink, TickMetric{Component: "scheduler", Processed: 2, Duration: time.Second})

		require.Len(t, sink.counts, 2)
		assert.Equal(t, "scheduler.tick", sink.counts[0].name)
		assert.Equal(t, ResultSuccess, sink.counts[0].tags["result"])
		assert.Equal(t, "scheduler.processed", sink.counts[1].name)
		require.Len(t, sink.gauges, 1)
		assert.Equal(t, "scheduler.last_success_epoch", sink.gauges[0].name)
	})

	t.Run("idle pass is a noop result", func(t *testing.T) {
		sink := &recordingSink{}
		EmitTick(sink, TickMetric{Component: "reaper"})

		require.Len(t, sink.counts, 1)
		assert.Equal(t, ResultNoop, sink.counts[0].tags["result"])
		assert.Empty(t, sink.timings, "zero duration emits no timing")
	})

	t.Run("failed pass carries the error class", func(t *testing.T) {
		sink := &recordingSink{}
		EmitTick(sink, TickMetric{Component: "scheduler", Err: errors.New("boom")})

		require.Len(t, sink.counts, 1)
		assert.Equal(t, ResultError, sink.counts[0].tags["result"])
		assert.NotEmpty(t, sink.counts[0].tags["error_class"])
		assert.Empty(t, sink.gauges, "failures do not advance the success epoch")
	})
}

func TestCloneTags(t *testing.T) {
	src := map[string]string{"a": "1"}
	cloned := CloneTags(src)
	cloned["a"] = "2"
	assert.Equal(t, "1", src["a"])
	assert.Nil(t, CloneTags(nil))
}
