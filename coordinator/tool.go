package coordinator

import (
	"encoding/json"
	"strings"

	"github.com/gamebyte/switchboard/types"
)

// AgentCallToolName is the tool the run engine exposes to agents so they can
// hand the conversation to another agent. The coordinator intercepts events
// for this tool instead of rendering them as generic tool results.
const AgentCallToolName = "agent_call"

// AgentCallArgs are the arguments of an agent_call tool invocation.
type AgentCallArgs struct {
	// AgentName identifies the target agent, e.g. "Game Manager".
	AgentName string `json:"agent_name"`
	// Message is an optional hand-off message passed to the next agent.
	Message string `json:"message,omitempty"`
}

// ToolDefinition is the schema registered with the run engine's tool registry.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// AgentCallDefinition returns the agent_call tool schema.
func AgentCallDefinition() ToolDefinition {
	return ToolDefinition{
		Name:        AgentCallToolName,
		Description: "Call another agent to continue the conversation. Use this when you need to hand off the conversation to a different agent with specific expertise.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"agent_name": map[string]any{
					"type":        "string",
					"description": "The name of the agent to call (e.g., 'Game Manager', 'Game Developer')",
				},
				"message": map[string]any{
					"type":        "string",
					"description": "Optional message to pass to the next agent",
				},
			},
			"required": []string{"agent_name"},
		},
	}
}

// ParseAgentCall converts raw agent_call arguments into a handoff request.
func ParseAgentCall(raw json.RawMessage) (types.HandoffRequest, error) {
	var args AgentCallArgs
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &args); err != nil {
			return types.HandoffRequest{}, types.NewError(types.ErrInvalidArgument, "malformed agent_call arguments").WithCause(err)
		}
	}
	req := types.HandoffRequest{
		TargetAgentID:  strings.TrimSpace(args.AgentName),
		HandoffMessage: args.Message,
	}
	if err := req.Validate(); err != nil {
		return types.HandoffRequest{}, err
	}
	return req, nil
}
