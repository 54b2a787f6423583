package chat

import "strings"

const (
	ChatRoleUser   = "user"
	ChatRoleAgent  = "assistant" // Narrator
	ChatRoleSystem = "system"
)

// ChatMessage represents a single message in a narration prompt.
// This shape is shared by the Anthropic messages API and most chat APIs.
type ChatMessage struct {
	Role    string `json:"role"` // "user", "assistant", "system"
	Content string `json:"content"`
}

// ChatResponse is the text returned by a language model for one prompt.
type ChatResponse struct {
	Message string `json:"message,omitempty"`
	Model   string `json:"model,omitempty"`
}

func System(content string) ChatMessage { return ChatMessage{Role: ChatRoleSystem, Content: content} }
func User(content string) ChatMessage { return ChatMessage{Role: ChatRoleUser, Content: content} }

// SplitSystem joins all system messages into one prompt and returns the
// remaining messages in order. APIs that take the system prompt as a
// separate field use this.
func SplitSystem(messages []ChatMessage) (string, []ChatMessage) {
	var systemParts []string
	var rest []ChatMessage
	for _, msg := range messages {
		if msg.Role == ChatRoleSystem {
			systemParts = append(systemParts, msg.Content)
			continue
		}
		rest = append(rest, msg)
	}
	return strings.Join(systemParts, "\n\n"), rest
}
