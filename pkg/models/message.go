package models

import "time"

// Role identifies who authored a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single entry in a conversation transcript. The gateway only
// ever produces assistant messages; the transcript itself belongs to the caller.
type Message struct {
	Role         Role      `json:"role"`
	Content      string    `json:"content"`
	Timestamp    time.Time `json:"timestamp"`
	Model        string    `json:"model,omitempty"`
	Error        bool      `json:"error,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`
}

// UserMessage creates a user message stamped at the given time.
func UserMessage(content string, at time.Time) Message {
	return Message{Role: RoleUser, Content: content, Timestamp: at}
}

// AssistantMessage creates an assistant message attributed to a model.
func AssistantMessage(content, model string, at time.Time) Message {
	return Message{Role: RoleAssistant, Content: content, Model: model, Timestamp: at}
}
