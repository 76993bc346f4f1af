package mcpclient

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"sort"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/MrWong99/weatherbridge/internal/mcp"
)

// buildTransport creates the SDK transport described by cfg.
//
// The stdio process is not bound to ctx: it lives until the session is
// closed, which terminates it.
func buildTransport(ctx context.Context, cfg mcp.ServerConfig, base *http.Client, stderr io.Writer) (mcpsdk.Transport, error) {
	transport := cfg.Transport
	if transport == "" {
		transport = mcp.TransportStdio
	}

	switch transport {
	case mcp.TransportStdio:
		cmd := exec.Command(cfg.Command, cfg.Args...)
		if len(cfg.Env) > 0 {
			cmd.Env = append(os.Environ(), envList(cfg.Env)...)
		}
		cmd.Stderr = stderr
		return &mcpsdk.CommandTransport{Command: cmd}, nil

	case mcp.TransportStreamableHTTP:
		return &mcpsdk.StreamableClientTransport{
			Endpoint:   cfg.URL,
			HTTPClient: authClient(ctx, cfg.Auth, base),
		}, nil

	case mcp.TransportSSE:
		return &mcpsdk.SSEClientTransport{
			Endpoint:   cfg.URL,
			HTTPClient: authClient(ctx, cfg.Auth, base),
		}, nil
	}
	return nil, fmt.Errorf("mcpclient: unknown transport %q", cfg.Transport)
}

// authClient wraps base with the credentials in auth. With no credentials it
// returns base unchanged (nil means the SDK default).
//
// Token refreshes outlive the connect call, so the token source gets a
// context that is never cancelled.
func authClient(ctx context.Context, auth mcp.AuthConfig, base *http.Client) *http.Client {
	if auth.OAuth == nil && auth.Token == "" {
		return base
	}
	ctx = context.WithoutCancel(ctx)
	if base != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, base)
	}

	if o := auth.OAuth; o != nil {
		cc := clientcredentials.Config{
			ClientID:     o.ClientID,
			ClientSecret: o.ClientSecret,
			TokenURL:     o.TokenURL,
			Scopes:       o.Scopes,
		}
		return cc.Client(ctx)
	}
	return oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: auth.Token,
		TokenType:   "Bearer",
	}))
}

// envList renders env as KEY=VALUE pairs in key order.
func envList(env map[string]string) []string {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+env[k])
	}
	return out
}
