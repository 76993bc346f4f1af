package mcp

import (
	"fmt"
	"path/filepath"
)

// Transport selects the connection mechanism for an MCP server.
type Transport string

const (
	// TransportStdio spawns a subprocess and communicates over stdin/stdout.
	TransportStdio Transport = "stdio"

	// TransportStreamableHTTP communicates via the MCP Streamable HTTP protocol.
	TransportStreamableHTTP Transport = "streamable-http"

	// TransportSSE communicates via the legacy HTTP+SSE protocol.
	TransportSSE Transport = "sse"
)

// IsValid reports whether t is a recognised transport.
func (t Transport) IsValid() bool {
	switch t {
	case TransportStdio, TransportStreamableHTTP, TransportSSE:
		return true
	}
	return false
}

// IsHTTP reports whether t dials a URL instead of spawning a process.
func (t Transport) IsHTTP() bool {
	return t == TransportStreamableHTTP || t == TransportSSE
}

// ServerConfig describes how to connect to the tool server.
type ServerConfig struct {
	// Name identifies the server in logs and errors.
	Name string

	// Transport defaults to [TransportStdio] when empty.
	Transport Transport

	// Command and Args launch the server for stdio. Command is looked up in
	// PATH by the OS.
	Command string
	Args    []string

	// Env holds additional environment variables for the server process,
	// appended to the parent environment. May be nil.
	Env map[string]string

	// URL is the endpoint for the HTTP transports.
	URL string

	// Auth configures credentials for the HTTP transports. Ignored for stdio.
	Auth AuthConfig
}

// AuthConfig holds credentials for HTTP transports. At most one of Token
// and OAuth should be set; OAuth wins when both are.
type AuthConfig struct {
	// Token is sent as a static bearer token.
	Token string

	// OAuth enables the client-credentials grant.
	OAuth *OAuthConfig
}

// OAuthConfig configures an OAuth 2.0 client-credentials token source.
type OAuthConfig struct {
	ClientID     string
	ClientSecret string
	TokenURL     string
	Scopes       []string
}

// Validate reports configuration problems that would make a connection
// attempt pointless.
func (c ServerConfig) Validate() error {
	t := c.Transport
	if t == "" {
		t = TransportStdio
	}
	if !t.IsValid() {
		return fmt.Errorf("mcp: unknown transport %q for server %q", c.Transport, c.Name)
	}
	if t == TransportStdio && c.Command == "" {
		return fmt.Errorf("mcp: stdio server %q requires a command", c.Name)
	}
	if t.IsHTTP() && c.URL == "" {
		return fmt.Errorf("mcp: %s server %q requires a url", t, c.Name)
	}
	if o := c.Auth.OAuth; o != nil && (o.ClientID == "" || o.TokenURL == "") {
		return fmt.Errorf("mcp: oauth for server %q requires client_id and token_url", c.Name)
	}
	return nil
}

// launchers maps a script extension to the interpreter that runs it.
// Extensions are matched case-sensitively.
var launchers = map[string]string{
	".py": "python",
	".js": "node",
}

// ScriptCommand returns the interpreter and arguments that launch the server
// script at path. ok is false when the extension is not recognised.
func ScriptCommand(path string) (command string, args []string, ok bool) {
	interp, found := launchers[filepath.Ext(path)]
	if !found {
		return "", nil, false
	}
	return interp, []string{path}, true
}
