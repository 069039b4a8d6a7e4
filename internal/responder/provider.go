// ABOUTME: Provider abstraction for chat completion backends
// ABOUTME: Defines the request and result shapes the responder consumes

package responder

import (
	"context"

	"github.com/bosar/bosar-gateway/internal/store"
)

// Chat roles on the provider wire
const (
	ChatRoleSystem    = "system"
	ChatRoleUser      = "user"
	ChatRoleAssistant = "assistant"
)

// ChatMessage is one turn of provider-facing conversation history.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest is a single generation call.
type CompletionRequest struct {
	Model       string
	Temperature float64
	MaxTokens   int
	Messages    []ChatMessage
	Tools       []store.Tool
}

// ToolCall is a structured action the model chose instead of replying.
type ToolCall struct {
	Name      string
	Arguments map[string]any
}

// Completion is the provider's answer. Exactly one of Text or ToolCall is
// meaningful; a tool call takes precedence when both are present.
type Completion struct {
	Text     string
	ToolCall *ToolCall
}

// Provider generates chat completions. The OpenAI client implements this;
// tests use scripted fakes.
type Provider interface {
	Complete(ctx context.Context, req CompletionRequest) (*Completion, error)

	// Available reports whether the provider has credentials to operate.
	Available() bool
}
