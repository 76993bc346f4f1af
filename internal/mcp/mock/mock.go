// Package mock provides an in-memory test double for the [mcp.Registry]
// interface.
//
// [Registry] records every method call for assertion in tests and exposes
// exported fields that control what the mock returns. It is safe for
// concurrent use via an internal [sync.Mutex].
//
// Typical usage:
//
//	r := &mock.Registry{}
//	r.InvokeResult = &mcp.ToolResult{Items: []mcp.Item{mcp.TextItem{Text: "No active alerts"}}}
//
//	// inject r into the system under test …
//
//	if got := r.CallCount("Invoke"); got != 1 {
//	    t.Errorf("expected 1 Invoke call, got %d", got)
//	}
package mock

import (
	"context"
	"maps"
	"sync"

	"github.com/MrWong99/weatherbridge/internal/mcp"
)

// Call records the name and arguments of a single method invocation.
type Call struct {
	// Method is the name of the interface method that was called.
	Method string

	// Args holds the non-context arguments passed to the method, in order.
	Args []any
}

// Registry is a configurable test double for [mcp.Registry].
type Registry struct {
	mu sync.Mutex

	calls []Call

	// ──── ListCapabilities ─────────────────────────────────────────────────

	// Capabilities is returned by [Registry.ListCapabilities].
	Capabilities []mcp.Capability

	// ListErr is returned by [Registry.ListCapabilities] when non-nil.
	ListErr error

	// ──── Invoke ───────────────────────────────────────────────────────────

	// InvokeResult is returned by [Registry.Invoke] when InvokeErr is nil.
	// When nil, an empty result is returned.
	InvokeResult *mcp.ToolResult

	// InvokeErr is returned by [Registry.Invoke] when non-nil.
	InvokeErr error

	// ──── Close ────────────────────────────────────────────────────────────

	// CloseErr is returned by [Registry.Close] when non-nil.
	CloseErr error
}

// Calls returns a copy of all recorded method invocations.
func (r *Registry) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Call, len(r.calls))
	copy(out, r.calls)
	return out
}

// CallCount returns how many times the named method was invoked.
func (r *Registry) CallCount(method string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

// ListCapabilities implements [mcp.Registry].
func (r *Registry) ListCapabilities(_ context.Context) ([]mcp.Capability, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, Call{Method: "ListCapabilities"})
	if r.ListErr != nil {
		return nil, r.ListErr
	}
	out := make([]mcp.Capability, len(r.Capabilities))
	copy(out, r.Capabilities)
	return out, nil
}

// Invoke implements [mcp.Registry]. The recorded args are a copy.
func (r *Registry) Invoke(_ context.Context, name string, args map[string]any) (*mcp.ToolResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, Call{Method: "Invoke", Args: []any{name, maps.Clone(args)}})
	if r.InvokeErr != nil {
		return nil, r.InvokeErr
	}
	if r.InvokeResult == nil {
		return &mcp.ToolResult{}, nil
	}
	cp := *r.InvokeResult
	return &cp, nil
}

// Close implements [mcp.Registry].
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, Call{Method: "Close"})
	return r.CloseErr
}

var _ mcp.Registry = (*Registry)(nil)
