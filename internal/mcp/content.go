package mcp

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Item is one content item of a tool result. The set of implementations is
// closed: [TextItem], [KeyedItem] and [OpaqueItem].
type Item interface {
	// Render returns the item's text representation.
	Render() string

	item()
}

// TextItem is plain text content. It renders verbatim.
type TextItem struct {
	Text string
}

// Render implements [Item].
func (t TextItem) Render() string { return t.Text }

func (TextItem) item() {}

// KeyedItem is dict-shaped content such as an embedded resource. It renders
// as its "text" field when that field is a string, and as JSON otherwise.
type KeyedItem struct {
	Fields map[string]any
}

// Render implements [Item].
func (k KeyedItem) Render() string {
	if s, ok := k.Fields["text"].(string); ok {
		return s
	}
	return stringify(k.Fields)
}

func (KeyedItem) item() {}

// OpaqueItem is any other content (images, audio, resource links). It
// renders as its JSON encoding.
type OpaqueItem struct {
	Value any
}

// Render implements [Item].
func (o OpaqueItem) Render() string { return stringify(o.Value) }

func (OpaqueItem) item() {}

// ToolResult is the content returned by one tool invocation.
type ToolResult struct {
	Items []Item
}

// Text concatenates the rendered items in order, with no separator.
func (r *ToolResult) Text() string {
	if r == nil {
		return ""
	}
	var sb strings.Builder
	for _, it := range r.Items {
		sb.WriteString(it.Render())
	}
	return sb.String()
}

func stringify(v any) string {
	if s, ok := v.(fmt.Stringer); ok {
		return s.String()
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}
