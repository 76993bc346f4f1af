// Package orchestrator runs one query through the model and, at most once,
// through a tool.
//
// The flow of [Orchestrator.ProcessQuery] is fixed:
//
//  1. Seed a fresh history with the system prompt and the user query.
//  2. Infer and keep the raw output as the first fragment.
//  3. Ask the [intent.Extractor] for a tool call. None means the raw output
//     is the answer.
//  4. Normalize the arguments and invoke the tool once. On failure append an
//     inline "[Tool call error: ...]" marker and stop. On success feed the
//     tool output back and infer again.
//  5. Join the fragments with "\n".
//
// Only inference failures make a query fail. Tool failures become part of the
// answer so the user still sees what the model said.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/weatherbridge/internal/intent"
	"github.com/MrWong99/weatherbridge/internal/journal"
	"github.com/MrWong99/weatherbridge/internal/mcp"
	"github.com/MrWong99/weatherbridge/internal/observe"
	"github.com/MrWong99/weatherbridge/pkg/provider/llm"
)

// ErrInference is wrapped by every error returned from
// [Orchestrator.ProcessQuery].
var ErrInference = errors.New("orchestrator: inference failed")

// Query outcomes reported to [observe.Metrics.RecordQuery].
const (
	outcomeAnswered  = "answered"
	outcomeToolError = "tool_error"
	outcomeFailed    = "failed"
)

// Orchestrator is the conversation driver. ProcessQuery calls are expected
// to be serialized by the caller; the setters may be called concurrently
// from a config watcher.
type Orchestrator struct {
	provider     llm.Provider
	providerName string
	registry     mcp.Registry
	extractor    *intent.Extractor
	metrics      *observe.Metrics
	journal      journal.Store

	capabilities []mcp.Capability
	tools        []llm.ToolDefinition
	passTools    bool
	maxTokens    int

	mu           sync.RWMutex
	customPrompt string
	systemPrompt string
	temperature  float64
}

// Option configures an [Orchestrator].
type Option func(*Orchestrator)

// WithSystemPrompt overrides the prompt generated from the capabilities.
// An empty string keeps the generated prompt.
func WithSystemPrompt(prompt string) Option {
	return func(o *Orchestrator) { o.customPrompt = prompt }
}

// WithCapabilities sets the capabilities documented in the generated system
// prompt and, with [WithPassCapabilities], sent to the model as tools.
func WithCapabilities(caps []mcp.Capability) Option {
	return func(o *Orchestrator) { o.capabilities = caps }
}

// WithPassCapabilities sends the capabilities as [llm.ToolDefinition]s on
// every inference. Detection still runs on the text output only.
func WithPassCapabilities(pass bool) Option {
	return func(o *Orchestrator) { o.passTools = pass }
}

// WithTemperature sets the sampling temperature. Zero keeps the provider
// default.
func WithTemperature(t float64) Option {
	return func(o *Orchestrator) { o.temperature = t }
}

// WithMaxTokens caps each completion. Zero keeps the provider default.
func WithMaxTokens(n int) Option {
	return func(o *Orchestrator) { o.maxTokens = n }
}

// WithMetrics sets the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(o *Orchestrator) {
		if m != nil {
			o.metrics = m
		}
	}
}

// WithJournal records every processed query in s.
func WithJournal(s journal.Store) Option {
	return func(o *Orchestrator) { o.journal = s }
}

// WithExtractor replaces the default probe chain.
func WithExtractor(e *intent.Extractor) Option {
	return func(o *Orchestrator) {
		if e != nil {
			o.extractor = e
		}
	}
}

// WithProviderName labels inference metrics. Defaults to "llm".
func WithProviderName(name string) Option {
	return func(o *Orchestrator) { o.providerName = name }
}

// New returns an Orchestrator that infers with p and invokes tools on r.
func New(p llm.Provider, r mcp.Registry, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		provider:     p,
		providerName: "llm",
		registry:     r,
		extractor:    intent.NewExtractor(),
		metrics:      observe.DefaultMetrics(),
	}
	for _, opt := range opts {
		opt(o)
	}

	o.tools = make([]llm.ToolDefinition, 0, len(o.capabilities))
	for _, c := range o.capabilities {
		o.tools = append(o.tools, llm.ToolDefinition{
			Name:        c.Name,
			Description: c.Description,
			Parameters:  c.Schema,
		})
	}
	o.systemPrompt = o.resolvePrompt(o.customPrompt)
	return o
}

func (o *Orchestrator) resolvePrompt(custom string) string {
	if custom != "" {
		return custom
	}
	return BuildSystemPrompt(o.capabilities)
}

// SystemPrompt returns the prompt currently seeded into each query.
func (o *Orchestrator) SystemPrompt() string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.systemPrompt
}

// SetSystemPrompt replaces the system prompt for subsequent queries. An
// empty prompt restores the one generated from the capabilities.
func (o *Orchestrator) SetSystemPrompt(prompt string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.customPrompt = prompt
	o.systemPrompt = o.resolvePrompt(prompt)
}

// SetTemperature changes the temperature for subsequent queries.
func (o *Orchestrator) SetTemperature(t float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.temperature = t
}

func (o *Orchestrator) settings() (prompt string, temperature float64) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.systemPrompt, o.temperature
}

// ProcessQuery answers query. The history is built fresh for every call.
//
// The returned error wraps [ErrInference] and is only produced when a model
// turn fails. A failing tool call is reported inline in the answer.
func (o *Orchestrator) ProcessQuery(ctx context.Context, query string) (answer string, err error) {
	start := time.Now()
	ctx, span := observe.StartSpan(ctx, "orchestrator.query")
	log := observe.Logger(ctx)

	entry := journal.Entry{At: start, Query: query, TraceID: observe.CorrelationID(ctx)}
	defer func() {
		d := time.Since(start)
		outcome := outcomeAnswered
		switch {
		case err != nil:
			outcome = outcomeFailed
			entry.Err = err.Error()
		case entry.ToolError != "":
			outcome = outcomeToolError
		}
		o.metrics.RecordQuery(ctx, outcome, d)

		entry.Answer = answer
		entry.Duration = d
		o.record(ctx, entry)
		observe.EndSpan(span, err)
	}()

	prompt, temperature := o.settings()
	history := []llm.Message{
		{Role: llm.RoleSystem, Content: prompt},
		{Role: llm.RoleUser, Content: query},
	}

	raw, err := o.infer(ctx, history, temperature)
	if err != nil {
		return "", err
	}
	log.Debug("model output", "text", raw)
	fragments := []string{raw}

	det, ok := o.extractor.Extract(raw)
	if !ok {
		o.metrics.RecordIntent(ctx, "none")
		return raw, nil
	}
	o.metrics.RecordIntent(ctx, det.Strategy)

	name := det.Call.Name
	args := intent.NormalizeArguments(det.Call.Arguments)
	entry.Tool, entry.Arguments, entry.Strategy = name, args, det.Strategy
	log.Debug("tool call detected", "tool", name, "arguments", args, "strategy", det.Strategy)

	res, err := o.registry.Invoke(ctx, name, args)
	if err != nil {
		log.Warn("tool call failed", "tool", name, "err", err)
		entry.ToolError = err.Error()
		fragments = append(fragments, fmt.Sprintf("[Tool call error: %v]", err))
		return strings.Join(fragments, "\n"), nil
	}
	text := res.Text()
	log.Debug("tool output", "tool", name, "text", text)

	history = append(history,
		llm.Message{Role: llm.RoleAssistant, Content: raw},
		llm.Message{Role: llm.RoleTool, Content: fmt.Sprintf("Tool %s result:\n%s", name, text)},
	)
	followUp, err := o.infer(ctx, history, temperature)
	if err != nil {
		return "", err
	}
	fragments = append(fragments, followUp)
	return strings.Join(fragments, "\n"), nil
}

// infer runs one model turn over msgs.
func (o *Orchestrator) infer(ctx context.Context, msgs []llm.Message, temperature float64) (_ string, err error) {
	ctx, span := observe.StartSpan(ctx, "orchestrator.infer")
	start := time.Now()
	defer func() { observe.EndSpan(span, err) }()

	req := llm.CompletionRequest{
		Messages:    msgs,
		Temperature: temperature,
		MaxTokens:   o.maxTokens,
	}
	if o.passTools {
		req.Tools = o.tools
	}

	resp, err := o.provider.Complete(ctx, req)
	if err == nil && resp == nil {
		err = errors.New("empty response")
	}
	o.metrics.RecordInference(ctx, o.providerName, time.Since(start), err)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInference, err)
	}
	return resp.Content, nil
}

func (o *Orchestrator) record(ctx context.Context, e journal.Entry) {
	if o.journal == nil {
		return
	}
	// The query context may already be cancelled; the entry still belongs in
	// the journal.
	if err := o.journal.Record(context.WithoutCancel(ctx), e); err != nil {
		observe.Logger(ctx).Warn("failed to record exchange", "err", err)
	}
}
