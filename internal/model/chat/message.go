package chat

import (
	"time"

	"github.com/cloudwego/eino/schema"
)

// Message roles. A tool message carries the result of a dispatched tool
// call back into the conversation.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message persists individual turns for replay into the model and for
// transcript inspection. Assistant messages that requested tool calls
// keep the raw call records so history can be rebuilt faithfully.
type Message struct {
	ID         string            `json:"id"`
	SessionID  string            `json:"sessionId"`
	Role       string            `json:"role"`
	Content    string            `json:"content"`
	ToolCalls  []schema.ToolCall `json:"toolCalls,omitempty"`
	ToolName   string            `json:"toolName,omitempty"`
	ToolCallID string            `json:"toolCallId,omitempty"`
	CreatedAt  time.Time         `json:"createdAt"`
}
