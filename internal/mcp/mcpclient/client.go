// Package mcpclient implements [mcp.Registry] on top of the official MCP Go
// SDK (github.com/modelcontextprotocol/go-sdk).
//
// It connects over stdio (spawning the server script), Streamable HTTP or
// legacy SSE, lists tools through the SDK's paginating iterator, and renders
// call results into the [mcp.ToolResult] union. Per-tool latency and error
// statistics are kept in rolling windows for the ops server.
//
// Typical usage:
//
//	c, err := mcpclient.Connect(ctx, mcp.ServerConfig{
//	    Name:    "weather",
//	    Command: "python",
//	    Args:    []string{"weather.py"},
//	})
//	if err != nil { ... }
//	defer c.Close()
//
//	caps, err := c.ListCapabilities(ctx)
//	res, err := c.Invoke(ctx, "get_alerts", map[string]any{"state": "CA"})
//	fmt.Println(res.Text())
package mcpclient

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"slices"
	"sync"
	"time"

	"github.com/antzucaro/matchr"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/weatherbridge/internal/mcp"
	"github.com/MrWong99/weatherbridge/internal/observe"
)

// suggestThreshold is the minimum Jaro-Winkler similarity for a "did you
// mean" hint.
const suggestThreshold = 0.8

// Client is a [mcp.Registry] backed by one SDK client session.
//
// The zero value is a client whose session is not initialized: every call
// fails with the appropriate sentinel. Create connected clients with
// [Connect] or [ConnectTransport].
type Client struct {
	name       string
	logger     *slog.Logger
	metrics    *observe.Metrics
	httpClient *http.Client
	stderr     io.Writer
	windowSize int

	mu      sync.RWMutex
	session *mcpsdk.ClientSession
	known   []string
	stats   map[string]*window

	closeOnce sync.Once
	closeErr  error
}

var _ mcp.Registry = (*Client)(nil)

// Option is a functional option for [Connect].
type Option func(*Client)

// WithLogger sets the logger. Default: [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithMetrics records tool calls on m.
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithHTTPClient sets the base HTTP client for the HTTP transports.
// Credentials from [mcp.AuthConfig] are layered on top of it.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithServerStderr redirects the stdio server's stderr. Default: os.Stderr.
func WithServerStderr(w io.Writer) Option {
	return func(c *Client) { c.stderr = w }
}

// WithWindowSize sets how many recent invocations are kept per tool.
func WithWindowSize(n int) Option {
	return func(c *Client) { c.windowSize = n }
}

func newClient(name string, opts []Option) *Client {
	c := &Client{
		name:   name,
		logger: slog.Default(),
		stderr: os.Stderr,
		stats:  make(map[string]*window),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Connect opens a session with the server described by cfg and performs
// the MCP initialize handshake. Every failure wraps [mcp.ErrConnection].
func Connect(ctx context.Context, cfg mcp.ServerConfig, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", mcp.ErrConnection, err)
	}
	c := newClient(cfg.Name, opts)
	transport, err := buildTransport(ctx, cfg, c.httpClient, c.stderr)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", mcp.ErrConnection, err)
	}
	if err := c.connect(ctx, transport); err != nil {
		return nil, err
	}
	return c, nil
}

// ConnectTransport is like [Connect] but uses a caller-supplied transport,
// such as one half of [mcpsdk.NewInMemoryTransports].
func ConnectTransport(ctx context.Context, name string, transport mcpsdk.Transport, opts ...Option) (*Client, error) {
	c := newClient(name, opts)
	if err := c.connect(ctx, transport); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Client) connect(ctx context.Context, transport mcpsdk.Transport) error {
	client := mcpsdk.NewClient(&mcpsdk.Implementation{Name: "weatherbridge", Version: "1.0.0"}, nil)
	session, err := client.Connect(ctx, transport, nil)
	if err != nil {
		return fmt.Errorf("%w: server %q: %w", mcp.ErrConnection, c.name, err)
	}
	c.session = session
	c.logger.Debug("mcp session initialized", "server", c.name)
	return nil
}

func (c *Client) current() *mcpsdk.ClientSession {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session
}

// ListCapabilities implements [mcp.Registry]. Each call queries the server;
// the names are remembered for "did you mean" hints.
func (c *Client) ListCapabilities(ctx context.Context) ([]mcp.Capability, error) {
	s := c.current()
	if s == nil {
		return nil, fmt.Errorf("%w: session not initialized", mcp.ErrConnection)
	}

	var caps []mcp.Capability
	for tool, err := range s.Tools(ctx, nil) {
		if err != nil {
			return nil, fmt.Errorf("%w: list tools of %q: %w", mcp.ErrConnection, c.name, err)
		}
		caps = append(caps, mcp.Capability{
			Name:        tool.Name,
			Description: tool.Description,
			Schema:      schemaToMap(tool.InputSchema),
		})
	}

	names := make([]string, len(caps))
	for i, cp := range caps {
		names[i] = cp.Name
	}
	c.mu.Lock()
	c.known = names
	c.mu.Unlock()

	return caps, nil
}

// Invoke implements [mcp.Registry].
func (c *Client) Invoke(ctx context.Context, name string, args map[string]any) (*mcp.ToolResult, error) {
	ctx, span := observe.StartSpan(ctx, "mcp.invoke",
		trace.WithAttributes(attribute.String("mcp.tool", name)),
	)

	start := time.Now()
	res, err := c.invoke(ctx, name, args)
	d := time.Since(start)

	c.record(name, d, err != nil)
	if c.metrics != nil {
		c.metrics.RecordToolCall(ctx, name, d, err)
	}
	observe.EndSpan(span, err)
	return res, err
}

func (c *Client) invoke(ctx context.Context, name string, args map[string]any) (*mcp.ToolResult, error) {
	s := c.current()
	if s == nil {
		return nil, fmt.Errorf("%w: %s: session not initialized", mcp.ErrInvocation, name)
	}
	if args == nil {
		args = map[string]any{}
	}

	out, err := s.CallTool(ctx, &mcpsdk.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w%s", mcp.ErrInvocation, name, err, c.suggest(name))
	}

	res := convertResult(out)
	if out.IsError {
		return nil, fmt.Errorf("%w: %s: %s%s", mcp.ErrInvocation, name, res.Text(), c.suggest(name))
	}
	return res, nil
}

// suggest returns a " (did you mean ...)" hint when name is not among the
// last listed tools and one of them is similar enough.
func (c *Client) suggest(name string) string {
	c.mu.RLock()
	known := c.known
	c.mu.RUnlock()

	if len(known) == 0 || slices.Contains(known, name) {
		return ""
	}
	best, bestScore := "", 0.0
	for _, k := range known {
		if score := matchr.JaroWinkler(name, k, false); score > bestScore {
			best, bestScore = k, score
		}
	}
	if bestScore < suggestThreshold {
		return ""
	}
	return fmt.Sprintf(" (did you mean %q?)", best)
}

func (c *Client) record(name string, d time.Duration, isError bool) {
	c.mu.Lock()
	if c.stats == nil {
		c.stats = make(map[string]*window)
	}
	w, ok := c.stats[name]
	if !ok {
		w = newWindow(c.windowSize)
		c.stats[name] = w
	}
	c.mu.Unlock()
	w.record(d, isError)
}

// Stats returns per-tool statistics sorted by tool name.
func (c *Client) Stats() []ToolStats {
	c.mu.RLock()
	out := make([]ToolStats, 0, len(c.stats))
	for name, w := range c.stats {
		out = append(out, w.snapshot(name))
	}
	c.mu.RUnlock()

	slices.SortFunc(out, func(a, b ToolStats) int { return cmp.Compare(a.Name, b.Name) })
	return out
}

// Ping checks that the server still answers. It is safe to call while a
// query is using the session; the SDK session multiplexes requests by ID.
func (c *Client) Ping(ctx context.Context) error {
	s := c.current()
	if s == nil {
		return fmt.Errorf("%w: session not initialized", mcp.ErrConnection)
	}
	if err := s.Ping(ctx, nil); err != nil {
		return fmt.Errorf("%w: ping %q: %w", mcp.ErrConnection, c.name, err)
	}
	return nil
}

// Close implements [mcp.Registry]. For stdio servers it also terminates the
// server process. Only the first call has an effect.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		s := c.session
		c.session = nil
		c.mu.Unlock()

		if s == nil {
			return
		}
		if err := s.Close(); err != nil {
			c.closeErr = fmt.Errorf("mcpclient: close %q: %w", c.name, err)
		}
	})
	return c.closeErr
}

// convertResult maps SDK content onto the [mcp.Item] union. A result with
// no content but structured content renders that as JSON.
func convertResult(out *mcpsdk.CallToolResult) *mcp.ToolResult {
	res := &mcp.ToolResult{}
	for _, content := range out.Content {
		switch v := content.(type) {
		case *mcpsdk.TextContent:
			res.Items = append(res.Items, mcp.TextItem{Text: v.Text})
		case *mcpsdk.EmbeddedResource:
			if v.Resource == nil {
				res.Items = append(res.Items, mcp.OpaqueItem{Value: v})
				continue
			}
			fields := map[string]any{"uri": v.Resource.URI}
			if v.Resource.MIMEType != "" {
				fields["mimeType"] = v.Resource.MIMEType
			}
			if v.Resource.Text != "" {
				fields["text"] = v.Resource.Text
			}
			res.Items = append(res.Items, mcp.KeyedItem{Fields: fields})
		default:
			res.Items = append(res.Items, mcp.OpaqueItem{Value: v})
		}
	}
	if len(res.Items) == 0 && out.StructuredContent != nil {
		res.Items = append(res.Items, mcp.OpaqueItem{Value: out.StructuredContent})
	}
	return res
}

// schemaToMap converts any schema value to a map[string]any.
func schemaToMap(schema any) map[string]any {
	if schema == nil {
		return map[string]any{"type": "object"}
	}
	if m, ok := schema.(map[string]any); ok {
		return m
	}
	data, err := json.Marshal(schema)
	if err != nil {
		return map[string]any{"type": "object"}
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil || m == nil {
		return map[string]any{"type": "object"}
	}
	return m
}
