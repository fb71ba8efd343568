package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRunStatus_Active(t *testing.T) {
	assert.True(t, RunStarting.Active())
	assert.True(t, RunRunning.Active())
	assert.False(t, RunStopped.Active())
	assert.False(t, RunCompleted.Active())
	assert.False(t, RunFailed.Active())
}

func TestRunStatus_CanTransition(t *testing.T) {
	tests := []struct {
		name string
		from RunStatus
		to   RunStatus
		want bool
	}{
		{"starting to running", RunStarting, RunRunning, true},
		{"starting to stopped", RunStarting, RunStopped, true},
		{"running to completed", RunRunning, RunCompleted, true},
		{"running to failed", RunRunning, RunFailed, true},
		{"running to starting", RunRunning, RunStarting, false},
		{"stopped is terminal", RunStopped, RunRunning, false},
		{"completed is terminal", RunCompleted, RunStopped, false},
		{"failed is terminal", RunFailed, RunRunning, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransition(tt.to))
		})
	}
}

func TestRun_Active(t *testing.T) {
	var r *Run
	assert.False(t, r.Active())

	r = &Run{RunID: "r1", Status: RunRunning}
	assert.True(t, r.Active())

	r.Status = RunStopped
	assert.False(t, r.Active())
}
