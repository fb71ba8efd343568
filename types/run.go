package types

import "time"

// RunStatus represents the lifecycle state of an agent run.
type RunStatus string

const (
	RunStarting  RunStatus = "starting"
	RunRunning   RunStatus = "running"
	RunStopped   RunStatus = "stopped"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// Active reports whether the status counts against the one-active-run-per-
// conversation invariant.
func (s RunStatus) Active() bool {
	return s == RunStarting || s == RunRunning
}

// Terminal reports whether the status is final.
func (s RunStatus) Terminal() bool {
	return s == RunStopped || s == RunCompleted || s == RunFailed
}

// CanTransition reports whether a run may move from s to next.
// Terminal states never transition; an active run may terminate or, for
// starting, begin running.
func (s RunStatus) CanTransition(next RunStatus) bool {
	if s.Terminal() {
		return false
	}
	switch s {
	case RunStarting:
		return next == RunRunning || next.Terminal()
	case RunRunning:
		return next.Terminal()
	}
	return false
}

// Run is one streaming execution of an agent against a conversation.
type Run struct {
	RunID          string    `json:"run_id"`
	ConversationID string    `json:"conversation_id"`
	AgentID        string    `json:"agent_id"`
	Status         RunStatus `json:"status"`
	StartedAt      time.Time `json:"started_at,omitempty"`
	EndedAt        time.Time `json:"ended_at,omitempty"`
}

// Active reports whether the run counts as the conversation's active run.
func (r *Run) Active() bool {
	return r != nil && r.Status.Active()
}
