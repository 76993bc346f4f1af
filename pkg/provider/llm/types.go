package llm

// Message is a single entry of a conversation history.
type Message struct {
	// Role is one of [RoleSystem], [RoleUser], [RoleAssistant] or [RoleTool].
	Role string

	Content string

	// Name is an optional participant name.
	Name string

	// ToolCalls carries native tool invocations made by the assistant.
	ToolCalls []ToolCall

	// ToolCallID links a tool message to a native tool call. It is empty for
	// tool results produced from calls detected in plain text.
	ToolCallID string
}

// ToolCall is a native tool invocation returned by a model.
type ToolCall struct {
	ID   string
	Name string

	// Arguments is the JSON-encoded argument object.
	Arguments string
}

// ToolDefinition describes a capability offered to the model.
type ToolDefinition struct {
	Name        string
	Description string

	// Parameters is the JSON Schema of the tool input.
	Parameters map[string]any
}

// ModelCapabilities describes what a model supports.
type ModelCapabilities struct {
	// ContextWindow is the maximum token count for input plus output.
	ContextWindow int

	// MaxOutputTokens is the largest completion the model produces.
	MaxOutputTokens int

	// SupportsToolCalling reports native function calling support. Tool
	// definitions are only sent to models that have it.
	SupportsToolCalling bool
}
