package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunStatus_Valid(t *testing.T) {
	for _, s := range []RunStatus{StatusPending, StatusRunning, StatusCompleted, StatusErrored, StatusFailed} {
		assert.True(t, s.Valid(), string(s))
	}
	assert.False(t, RunStatus("paused").Valid())
}

func TestRunStatus_Terminal(t *testing.T) {
	assert.False(t, StatusPending.Terminal())
	assert.False(t, StatusRunning.Terminal())
	assert.True(t, StatusCompleted.Terminal())
	assert.True(t, StatusErrored.Terminal())
	assert.True(t, StatusFailed.Terminal())
}

func TestDispatchOptions_OmitsZeroLimits(t *testing.T) {
	b, err := json.Marshal(DispatchOptions{})
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(b), "zero limits defer to worker defaults")

	b, err = json.Marshal(DispatchOptions{SoftTimeLimit: 30, TimeLimit: 60})
	require.NoError(t, err)
	assert.JSONEq(t, `{"soft_time_limit":30,"time_limit":60}`, string(b))
}
