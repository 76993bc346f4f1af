// Package llm defines the Provider interface for Large Language Model backends.
//
// A provider wraps a remote or local model API (a local Ollama instance by
// default, or OpenAI, Anthropic, Gemini and others) behind one uniform
// completion call so the orchestrator never couples to a specific SDK.
//
// Implementations must be safe for concurrent use.
package llm

import "context"

// Role values used in [Message.Role].
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Usage holds token accounting returned by the backend. Counts are in the
// model's native token unit.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// CompletionRequest carries everything the model needs to produce a reply.
// Messages must be non-empty.
type CompletionRequest struct {
	// Messages is the ordered conversation history. The system prompt, when
	// present, is the first message.
	Messages []Message

	// Tools optionally describes the capabilities the model may refer to.
	// Providers whose model lacks native tool calling ignore it.
	Tools []ToolDefinition

	// Temperature controls randomness in [0.0, 2.0]. Zero leaves the
	// provider default in place.
	Temperature float64

	// MaxTokens caps the completion length. Zero means provider default.
	MaxTokens int
}

// CompletionResponse is the full reply of a completion.
type CompletionResponse struct {
	// Content is the assistant's text. It may be empty when the model only
	// returned native tool calls.
	Content string

	// ToolCalls lists native tool invocations requested by the model.
	ToolCalls []ToolCall

	Usage Usage
}

// Provider is the abstraction over any LLM backend.
type Provider interface {
	// Complete sends req to the model and blocks until the whole reply is
	// available or ctx is done.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// Capabilities returns static metadata about the underlying model.
	Capabilities() ModelCapabilities
}
