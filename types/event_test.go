package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStreamEvent_Terminal(t *testing.T) {
	assert.False(t, TextDeltaEvent("r1", "hello").Terminal())
	assert.False(t, ToolInvokedEvent("r1", "agent_call", nil).Terminal())
	assert.False(t, StatusChangeEvent("r1", RunRunning).Terminal())
	assert.True(t, StatusChangeEvent("r1", RunCompleted).Terminal())
	assert.True(t, StatusChangeEvent("r1", RunStopped).Terminal())
	assert.True(t, StatusChangeEvent("r1", RunFailed).Terminal())
	assert.True(t, ErrorEvent("r1", NewError(ErrUnavailable, "gone")).Terminal())
}

func TestErrorChaining(t *testing.T) {
	cause := NewError(ErrUnavailable, "engine down")
	err := NewError(ErrRunStartFailed, "failed to switch agents").
		WithCause(cause).
		WithRetryable(true)

	assert.Contains(t, err.Error(), "RUN_START_FAILED")
	assert.Contains(t, err.Error(), "engine down")
	assert.Equal(t, cause, err.Unwrap())
	assert.True(t, IsRetryable(err))
	assert.True(t, IsCode(err, ErrRunStartFailed))
	assert.Equal(t, ErrorCode(""), GetErrorCode(nil))
}

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 0, EstimateTokens(""))
	assert.Equal(t, 1, EstimateTokens("hi"))
	assert.Equal(t, 3, EstimateTokens("twelve chars"))
}
