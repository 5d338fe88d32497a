// Package llm provides the chat-completion gateway used to triage bug reports.
//
// Providers (OpenRouter/OpenAI-compatible, Gemini, Anthropic) all satisfy
// Client and return the raw model text; parsing is done by ParseDecision and
// friends so providers stay free of triage semantics.
package llm

import (
	"context"
	"fmt"
)

// Role is a chat message role.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single chat message.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Client sends prompt messages to a hosted model and returns its raw text.
// Implementations must not retry on their own; see WithRetry.
type Client interface {
	Complete(ctx context.Context, messages []Message) (string, error)
}

// UpstreamError is returned when the completion endpoint does not succeed.
type UpstreamError struct {
	Provider   Provider
	StatusCode int
	Message    string
}

func (e *UpstreamError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s API error: %s", e.Provider, e.Message)
	}
	return fmt.Sprintf("%s API error (%d): %s", e.Provider, e.StatusCode, e.Message)
}

// splitSystem separates system instructions from the conversation turns.
func splitSystem(messages []Message) (string, []Message) {
	var system string
	turns := make([]Message, 0, len(messages))
	for _, m := range messages {
		if m.Role == RoleSystem {
			if system != "" {
				system += "\n\n"
			}
			system += m.Content
			continue
		}
		turns = append(turns, m)
	}
	return system, turns
}
