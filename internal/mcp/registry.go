// Package mcp defines the contract between weatherbridge and a Model Context
// Protocol (MCP) tool server.
//
// A [Registry] wraps one live client session. It lists the capabilities the
// server exposes and invokes them by name, rendering whatever content the
// server returns into a [ToolResult] whose [ToolResult.Text] is the only form
// the rest of the program ever sees.
//
// Lifecycle:
//
//  1. Open a session (see package mcpclient) with a [ServerConfig].
//  2. Call [Registry.ListCapabilities] to discover tools.
//  3. Call [Registry.Invoke] once per detected tool call.
//  4. Call [Registry.Close] exactly once to release the session.
package mcp

import (
	"context"
	"errors"
)

var (
	// ErrConnection is wrapped by every failure to reach or use the session
	// itself: the endpoint cannot be spawned or dialled, the handshake fails,
	// capability listing fails, or the session is not initialized.
	ErrConnection = errors.New("mcp: connection failed")

	// ErrInvocation is wrapped by every failure of a single tool call: the
	// remote capability raised, the name is unknown, the transport errored or
	// the result was flagged as an error.
	ErrInvocation = errors.New("mcp: invocation failed")
)

// Capability describes one tool exposed by the server. Names are unique
// within a registry.
type Capability struct {
	Name        string
	Description string

	// Schema is the JSON Schema of the tool's arguments, decoded into a
	// generic map. Never nil; defaults to {"type": "object"}.
	Schema map[string]any
}

// Registry is a capability registry backed by one MCP client session.
//
// Query traffic (ListCapabilities and Invoke) is serialized by the caller;
// implementations need not support concurrent Invoke calls but must tolerate
// Close racing with them. Health checks are the exception: an implementation
// that also offers Ping must allow it to run concurrently with a query, since
// the ops server probes readiness from its own goroutine.
type Registry interface {
	// ListCapabilities queries the session for its tools. It fails with an
	// error wrapping [ErrConnection] when the session is not initialized or
	// the listing request fails.
	ListCapabilities(ctx context.Context) ([]Capability, error)

	// Invoke calls the named tool once with args. It never retries: the
	// remote side may have performed the action even when an error is
	// returned. Every failure wraps [ErrInvocation].
	Invoke(ctx context.Context, name string, args map[string]any) (*ToolResult, error)

	// Close releases the session. Calling Close more than once is safe.
	Close() error
}
