package api

import (
	"time"

	"github.com/gamebyte/switchboard/types"
)

// HandoffRequest is the body of POST /v1/conversations/{id}/handoff.
type HandoffRequest struct {
	TargetAgentID  string               `json:"target_agent_id"`
	HandoffMessage string               `json:"handoff_message,omitempty"`
	Overrides      *types.SettingsPatch `json:"overrides,omitempty"`
}

// HandoffResponse reports the new run after a successful handoff.
// PersistWarning is set when the hand-off message could not be saved but the
// handoff went through anyway.
type HandoffResponse struct {
	Run            *types.Run `json:"run"`
	PersistWarning string     `json:"persist_warning,omitempty"`
}

// SettingsRequest is the body of PATCH /v1/conversations/{id}/settings.
// Omitted fields are left untouched.
type SettingsRequest struct {
	ModelName       *string                `json:"model_name,omitempty"`
	ThinkingEnabled *bool                  `json:"thinking_enabled,omitempty"`
	ReasoningEffort *types.ReasoningEffort `json:"reasoning_effort,omitempty"`
}

// Patch converts the request into a settings patch.
func (r SettingsRequest) Patch() types.SettingsPatch {
	return types.SettingsPatch{
		ModelName:       r.ModelName,
		ThinkingEnabled: r.ThinkingEnabled,
		ReasoningEffort: r.ReasoningEffort,
	}
}

// ConversationState is the body of GET /v1/conversations/{id}.
type ConversationState struct {
	ConversationID string                   `json:"conversation_id"`
	ActiveRun      *types.Run               `json:"active_run,omitempty"`
	ActiveAgentID  string                   `json:"active_agent_id,omitempty"`
	Settings       types.GenerationSettings `json:"settings"`
	MessageCount   int                      `json:"message_count"`
}

// MessagesResponse is a cursor page of persisted conversation messages.
type MessagesResponse struct {
	Messages   []types.Message `json:"messages"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

// StopResponse acknowledges a stop request.
type StopResponse struct {
	ConversationID string    `json:"conversation_id"`
	StoppedAt      time.Time `json:"stopped_at"`
}

// DeleteResponse reports how many persisted messages were removed.
type DeleteResponse struct {
	ConversationID string `json:"conversation_id"`
	Removed        int    `json:"removed"`
}
