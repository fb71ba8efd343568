package types

import "strings"

// ReasoningEffort controls how much reasoning budget a run is given.
type ReasoningEffort string

const (
	EffortLow    ReasoningEffort = "low"
	EffortMedium ReasoningEffort = "medium"
	EffortHigh   ReasoningEffort = "high"
)

// Valid reports whether the effort level is known.
func (e ReasoningEffort) Valid() bool {
	switch e {
	case EffortLow, EffortMedium, EffortHigh:
		return true
	}
	return false
}

// GenerationSettings are the user-chosen generation preferences for a
// conversation. They are owned by the conversation session, not by any single
// run, and must survive a run being replaced during handoff.
type GenerationSettings struct {
	ModelName       string          `json:"model_name" yaml:"model_name"`
	ThinkingEnabled bool            `json:"thinking_enabled" yaml:"thinking_enabled"`
	ReasoningEffort ReasoningEffort `json:"reasoning_effort" yaml:"reasoning_effort"`
}

// DefaultGenerationSettings returns the settings used before the user has
// touched anything.
func DefaultGenerationSettings() GenerationSettings {
	return GenerationSettings{
		ModelName:       "gpt-4o",
		ThinkingEnabled: false,
		ReasoningEffort: EffortMedium,
	}
}

// SettingsPatch is a partial update to GenerationSettings. Nil fields are
// left untouched by Merge.
type SettingsPatch struct {
	ModelName       *string          `json:"model_name,omitempty"`
	ThinkingEnabled *bool            `json:"thinking_enabled,omitempty"`
	ReasoningEffort *ReasoningEffort `json:"reasoning_effort,omitempty"`
}

// IsZero reports whether the patch changes nothing.
func (p SettingsPatch) IsZero() bool {
	return p.ModelName == nil && p.ThinkingEnabled == nil && p.ReasoningEffort == nil
}

// Merge applies the non-nil fields of the patch and returns the result.
// The receiver is not modified.
func (s GenerationSettings) Merge(p SettingsPatch) GenerationSettings {
	if p.ModelName != nil {
		s.ModelName = strings.TrimSpace(*p.ModelName)
	}
	if p.ThinkingEnabled != nil {
		s.ThinkingEnabled = *p.ThinkingEnabled
	}
	if p.ReasoningEffort != nil {
		s.ReasoningEffort = *p.ReasoningEffort
	}
	return s
}

// HandoffRequest asks the coordinator to end the active agent's turn and
// start the target agent on the same conversation. It is transient: built
// from a tool invocation or an API call, consumed once, never persisted.
type HandoffRequest struct {
	TargetAgentID  string `json:"target_agent_id"`
	HandoffMessage string `json:"handoff_message,omitempty"`

	// Overrides are explicit per-call settings that win over the
	// conversation's own settings for the started run only. The
	// conversation settings themselves are never mutated by a handoff.
	Overrides *SettingsPatch `json:"overrides,omitempty"`
}

// Validate checks the request preconditions.
func (r HandoffRequest) Validate() error {
	if strings.TrimSpace(r.TargetAgentID) == "" {
		return NewError(ErrInvalidArgument, "target agent id must not be empty")
	}
	return nil
}
