// Package anyllm provides an [llm.Provider] backed by
// github.com/mozilla-ai/any-llm-go, one client surface over Ollama, OpenAI,
// Anthropic, Gemini, DeepSeek, Mistral, Groq, llama.cpp and llamafile.
//
// The default backend of weatherbridge is a local Ollama model:
//
//	p, err := anyllm.New("ollama", "llama3.2:1b")
//	p, err := anyllm.New("openai", "gpt-4o-mini", anyllmlib.WithAPIKey("sk-..."))
package anyllm

import (
	"context"
	"fmt"
	"slices"
	"strings"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/mozilla-ai/any-llm-go/providers/anthropic"
	"github.com/mozilla-ai/any-llm-go/providers/deepseek"
	"github.com/mozilla-ai/any-llm-go/providers/gemini"
	"github.com/mozilla-ai/any-llm-go/providers/groq"
	"github.com/mozilla-ai/any-llm-go/providers/llamacpp"
	"github.com/mozilla-ai/any-llm-go/providers/llamafile"
	"github.com/mozilla-ai/any-llm-go/providers/mistral"
	"github.com/mozilla-ai/any-llm-go/providers/ollama"
	anyllmoai "github.com/mozilla-ai/any-llm-go/providers/openai"

	"github.com/MrWong99/weatherbridge/pkg/provider/llm"
)

// backendFactory constructs an any-llm-go backend.
type backendFactory func(opts ...anyllmlib.Option) (anyllmlib.Provider, error)

// backends maps the provider names accepted by [New] to their constructors.
var backends = map[string]backendFactory{
	"ollama":    func(o ...anyllmlib.Option) (anyllmlib.Provider, error) { return ollama.New(o...) },
	"openai":    func(o ...anyllmlib.Option) (anyllmlib.Provider, error) { return anyllmoai.New(o...) },
	"anthropic": func(o ...anyllmlib.Option) (anyllmlib.Provider, error) { return anthropic.New(o...) },
	"gemini":    func(o ...anyllmlib.Option) (anyllmlib.Provider, error) { return gemini.New(o...) },
	"deepseek":  func(o ...anyllmlib.Option) (anyllmlib.Provider, error) { return deepseek.New(o...) },
	"mistral":   func(o ...anyllmlib.Option) (anyllmlib.Provider, error) { return mistral.New(o...) },
	"groq":      func(o ...anyllmlib.Option) (anyllmlib.Provider, error) { return groq.New(o...) },
	"llamacpp":  func(o ...anyllmlib.Option) (anyllmlib.Provider, error) { return llamacpp.New(o...) },
	"llamafile": func(o ...anyllmlib.Option) (anyllmlib.Provider, error) { return llamafile.New(o...) },
}

// Names returns the provider names supported by [New], sorted.
func Names() []string {
	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Provider implements llm.Provider on top of an any-llm-go backend.
type Provider struct {
	backend anyllmlib.Provider
	name    string
	model   string
}

var _ llm.Provider = (*Provider)(nil)

// New creates a Provider for the backend registered under providerName.
//
// When no API key option is given, the backend falls back to its usual
// environment variable (OPENAI_API_KEY, ANTHROPIC_API_KEY, ...). Ollama
// needs no key and connects to http://localhost:11434 unless a base URL
// option says otherwise.
func New(providerName, model string, opts ...anyllmlib.Option) (*Provider, error) {
	if model == "" {
		return nil, fmt.Errorf("anyllm: model must not be empty")
	}
	name := strings.ToLower(providerName)
	factory, ok := backends[name]
	if !ok {
		return nil, fmt.Errorf("anyllm: unsupported provider %q; supported: %s", providerName, strings.Join(Names(), ", "))
	}
	backend, err := factory(opts...)
	if err != nil {
		return nil, fmt.Errorf("anyllm: create %q backend: %w", name, err)
	}
	return &Provider{backend: backend, name: name, model: model}, nil
}

// NewOllama creates a Provider for a local Ollama model.
func NewOllama(model string, opts ...anyllmlib.Option) (*Provider, error) {
	return New("ollama", model, opts...)
}

// Complete implements llm.Provider.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	resp, err := p.backend.Completion(ctx, p.buildParams(req))
	if err != nil {
		return nil, fmt.Errorf("anyllm: %s completion: %w", p.name, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("anyllm: %s returned no choices", p.name)
	}

	msg := resp.Choices[0].Message
	out := &llm.CompletionResponse{Content: msg.ContentString()}
	if resp.Usage != nil {
		out.Usage = llm.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		}
	}
	for _, tc := range msg.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, llm.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return out, nil
}

// Capabilities implements llm.Provider.
func (p *Provider) Capabilities() llm.ModelCapabilities {
	return modelCapabilities(p.model)
}

// buildParams converts a CompletionRequest into any-llm-go parameters. Tool
// definitions are dropped for models without native tool calling.
func (p *Provider) buildParams(req llm.CompletionRequest) anyllmlib.CompletionParams {
	params := anyllmlib.CompletionParams{
		Model:    p.model,
		Messages: make([]anyllmlib.Message, 0, len(req.Messages)),
	}
	bareTool := bareToolRole[p.name]
	for _, m := range req.Messages {
		params.Messages = append(params.Messages, convertMessage(m, bareTool))
	}
	if req.Temperature != 0 {
		t := req.Temperature
		params.Temperature = &t
	}
	if req.MaxTokens > 0 {
		n := req.MaxTokens
		params.MaxTokens = &n
	}
	if len(req.Tools) > 0 && modelCapabilities(p.model).SupportsToolCalling {
		for _, td := range req.Tools {
			params.Tools = append(params.Tools, anyllmlib.Tool{
				Type: "function",
				Function: anyllmlib.Function{
					Name:        td.Name,
					Description: td.Description,
					Parameters:  td.Parameters,
				},
			})
		}
	}
	return params
}

// bareToolRole lists backends that accept a tool message without a call ID.
// Hosted APIs reject those, so elsewhere they are sent as user messages.
var bareToolRole = map[string]bool{
	"ollama": true,
}

// convertMessage maps an llm.Message onto the any-llm-go message type. A tool
// message that answers no native call becomes a user message unless
// bareTool is set.
func convertMessage(m llm.Message, bareTool bool) anyllmlib.Message {
	role := m.Role
	if role == llm.RoleTool && m.ToolCallID == "" && !bareTool {
		role = llm.RoleUser
	}
	out := anyllmlib.Message{
		Role:       role,
		Content:    m.Content,
		Name:       m.Name,
		ToolCallID: m.ToolCallID,
	}
	for _, tc := range m.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, anyllmlib.ToolCall{
			ID:   tc.ID,
			Type: "function",
			Function: anyllmlib.FunctionCall{
				Name:      tc.Name,
				Arguments: tc.Arguments,
			},
		})
	}
	return out
}

// modelFamily describes the capabilities shared by models whose lower-cased
// name starts with prefix.
type modelFamily struct {
	prefix string
	caps   llm.ModelCapabilities
}

// families is matched in order; more specific prefixes come first.
var families = []modelFamily{
	{"llama3.2:1b", llm.ModelCapabilities{ContextWindow: 131_072, MaxOutputTokens: 2_048, SupportsToolCalling: true}},
	{"llama3.2", llm.ModelCapabilities{ContextWindow: 131_072, MaxOutputTokens: 4_096, SupportsToolCalling: true}},
	{"llama3.1", llm.ModelCapabilities{ContextWindow: 131_072, MaxOutputTokens: 4_096, SupportsToolCalling: true}},
	{"llama3", llm.ModelCapabilities{ContextWindow: 8_192, MaxOutputTokens: 2_048}},
	{"qwen2.5", llm.ModelCapabilities{ContextWindow: 32_768, MaxOutputTokens: 8_192, SupportsToolCalling: true}},
	{"mistral", llm.ModelCapabilities{ContextWindow: 32_768, MaxOutputTokens: 4_096, SupportsToolCalling: true}},
	{"gpt-4o", llm.ModelCapabilities{ContextWindow: 128_000, MaxOutputTokens: 16_384, SupportsToolCalling: true}},
	{"gpt-4", llm.ModelCapabilities{ContextWindow: 8_192, MaxOutputTokens: 4_096, SupportsToolCalling: true}},
	{"o1-mini", llm.ModelCapabilities{ContextWindow: 128_000, MaxOutputTokens: 65_536}},
	{"claude", llm.ModelCapabilities{ContextWindow: 200_000, MaxOutputTokens: 8_192, SupportsToolCalling: true}},
	{"gemini", llm.ModelCapabilities{ContextWindow: 1_048_576, MaxOutputTokens: 8_192, SupportsToolCalling: true}},
	{"deepseek", llm.ModelCapabilities{ContextWindow: 64_000, MaxOutputTokens: 8_192, SupportsToolCalling: true}},
}

// modelCapabilities looks the model up in [families]. Unknown models get a
// conservative default without native tool calling.
func modelCapabilities(model string) llm.ModelCapabilities {
	lower := strings.ToLower(model)
	for _, f := range families {
		if strings.HasPrefix(lower, f.prefix) {
			return f.caps
		}
	}
	return llm.ModelCapabilities{ContextWindow: 8_192, MaxOutputTokens: 2_048}
}
