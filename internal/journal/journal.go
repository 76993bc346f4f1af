// Package journal records the exchanges of a weatherbridge session: each
// query, the tool call it triggered (if any) and the answer or error.
//
// The journal is write-mostly. The orchestrator records one [Entry] per
// query; the ops server reads the most recent ones back.
//
// Two implementations exist: [Ring], a bounded in-memory buffer, and
// journal/postgres, which persists entries in PostgreSQL.
package journal

import (
	"context"
	"time"
)

// Entry is one processed query.
type Entry struct {
	// ID is assigned by the store on Record.
	ID int64 `json:"id"`

	At       time.Time     `json:"at"`
	Duration time.Duration `json:"duration_ns"`

	Query  string `json:"query"`
	Answer string `json:"answer,omitempty"`

	// Tool, Arguments and Strategy describe the detected call. Tool is
	// empty when the model requested none.
	Tool      string         `json:"tool,omitempty"`
	Arguments map[string]any `json:"arguments,omitempty"`
	Strategy  string         `json:"strategy,omitempty"`

	// ToolError is the invocation failure shown inline in the answer.
	ToolError string `json:"tool_error,omitempty"`

	// Err is the failure that aborted the query, if any.
	Err string `json:"error,omitempty"`

	TraceID string `json:"trace_id,omitempty"`
}

// Store persists entries.
//
// Implementations must be safe for concurrent use.
type Store interface {
	// Record appends e and assigns its ID.
	Record(ctx context.Context, e Entry) error

	// Recent returns up to limit entries, newest first. limit <= 0 means
	// the store's default.
	Recent(ctx context.Context, limit int) ([]Entry, error)

	// Ping reports whether the store is reachable.
	Ping(ctx context.Context) error

	// Close releases resources held by the store.
	Close() error
}
