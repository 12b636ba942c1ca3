package chat

import "time"

// Role 标识一条对话轮次的发言方。
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one message in the conversation history. Index is the arrival order
// assigned by the session and never changes, even after older turns are trimmed.
type Turn struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Index     int       `json:"index"`
	CreatedAt time.Time `json:"createdAt"`
}
