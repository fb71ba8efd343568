package types

import "time"

// Role represents the role of a message participant.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Valid reports whether the role is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant, RoleTool:
		return true
	}
	return false
}

// Message is one entry in a conversation. Ordering is creation order.
// A message is immutable once its producing run has completed; while the run
// is active, Content may grow through streaming deltas (UpdatedAt advances).
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Role           Role      `json:"role"`
	Content        string    `json:"content"`
	AgentID        string    `json:"agent_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// NewMessage creates a message with the given role and content.
func NewMessage(conversationID string, role Role, content string) Message {
	now := time.Now()
	return Message{
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// NewUserMessage creates a user message.
func NewUserMessage(conversationID, content string) Message {
	return NewMessage(conversationID, RoleUser, content)
}

// NewAssistantMessage creates an assistant message.
func NewAssistantMessage(conversationID, content string) Message {
	return NewMessage(conversationID, RoleAssistant, content)
}

// AppendContent appends a streaming delta to the message content.
func (m *Message) AppendContent(delta string) {
	m.Content += delta
	m.UpdatedAt = time.Now()
}
