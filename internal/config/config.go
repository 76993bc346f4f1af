// Package config provides the configuration schema, loader, watcher and LLM
// provider registry for weatherbridge.
//
// Every field is optional. A zero [Config] after [Config.ApplyDefaults]
// talks to a local Ollama model over a stdio tool server.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/MrWong99/weatherbridge/internal/mcp"
)

// ErrConfiguration is wrapped by every error caused by invalid user input:
// a bad endpoint argument, a malformed config file or an invalid value.
var ErrConfiguration = errors.New("config: invalid configuration")

// Defaults applied by [Config.ApplyDefaults].
const (
	DefaultLLMProvider     = "ollama"
	DefaultLLMModel        = "llama3.2:1b"
	DefaultServerName      = "weather"
	DefaultServiceName     = "weatherbridge"
	DefaultJournalCapacity = 100
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure.
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Providers    ProvidersConfig    `yaml:"providers"`
	MCP          MCPConfig          `yaml:"mcp"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
	Journal      JournalConfig      `yaml:"journal"`
	Telemetry    TelemetryConfig    `yaml:"telemetry"`
}

// ServerConfig holds the ops listener and logging settings.
type ServerConfig struct {
	// ListenAddr is the ops HTTP address (e.g. ":9090"). Empty disables the
	// ops server.
	ListenAddr string `yaml:"listen_addr"`

	LogLevel LogLevel `yaml:"log_level"`
}

// ProvidersConfig selects the inference backends.
type ProvidersConfig struct {
	LLM ProviderEntry `yaml:"llm"`

	// Fallbacks are tried in order when LLM fails. Empty disables failover.
	Fallbacks []ProviderEntry `yaml:"fallbacks"`
}

// ProviderEntry is the configuration of one LLM backend. Name selects the
// factory in the [Registry].
type ProviderEntry struct {
	Name    string `yaml:"name"`
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`

	// Options holds provider-specific values not covered above.
	Options map[string]any `yaml:"options"`
}

// MCPConfig describes the tool server. The endpoint itself (script path or
// URL) comes from the command line; see [ResolveServer].
type MCPConfig struct {
	Name      string        `yaml:"name"`
	Transport mcp.Transport `yaml:"transport"`

	// Command replaces the interpreter chosen from the script extension
	// (e.g. "python3" or "uv run"). Only the first word is the executable;
	// stdio only.
	Command string `yaml:"command"`

	// Env holds extra environment variables for the stdio subprocess.
	Env map[string]string `yaml:"env"`

	// Auth configures credentials for the HTTP transports.
	Auth *MCPAuthConfig `yaml:"auth"`
}

// MCPAuthConfig configures bearer authentication for HTTP transports.
type MCPAuthConfig struct {
	// Token is a static bearer token. Ignored when OAuth is set.
	Token string `yaml:"token"`

	OAuth *MCPOAuthConfig `yaml:"oauth"`
}

// MCPOAuthConfig configures the OAuth 2.0 client-credentials grant.
type MCPOAuthConfig struct {
	ClientID     string   `yaml:"client_id"`
	ClientSecret string   `yaml:"client_secret"`
	TokenURL     string   `yaml:"token_url"`
	Scopes       []string `yaml:"scopes"`
}

// OrchestratorConfig tunes the query flow. SystemPrompt and Temperature are
// hot-reloadable.
type OrchestratorConfig struct {
	// SystemPrompt overrides the prompt generated from the server's tools.
	SystemPrompt string `yaml:"system_prompt"`

	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`

	// PassCapabilities also sends the tool list as native tool definitions.
	PassCapabilities bool `yaml:"pass_capabilities"`
}

// JournalConfig selects the exchange journal backend.
type JournalConfig struct {
	// PostgresDSN enables the PostgreSQL journal. Empty keeps an in-memory
	// ring of Capacity entries.
	PostgresDSN string `yaml:"postgres_dsn"`

	Capacity int `yaml:"capacity"`
}

// TelemetryConfig names the service in exported telemetry.
type TelemetryConfig struct {
	ServiceName string `yaml:"service_name"`
}

// ApplyDefaults fills unset fields in place.
func (c *Config) ApplyDefaults() {
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = LogInfo
	}
	if c.Providers.LLM.Name == "" {
		c.Providers.LLM.Name = DefaultLLMProvider
		if c.Providers.LLM.Model == "" {
			c.Providers.LLM.Model = DefaultLLMModel
		}
	}
	if c.MCP.Name == "" {
		c.MCP.Name = DefaultServerName
	}
	if c.MCP.Transport == "" {
		c.MCP.Transport = mcp.TransportStdio
	}
	if c.Journal.Capacity <= 0 {
		c.Journal.Capacity = DefaultJournalCapacity
	}
	if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = DefaultServiceName
	}
}

// Default returns a Config with every default applied.
func Default() *Config {
	c := &Config{}
	c.ApplyDefaults()
	return c
}

// ServerForScript builds a stdio server config that runs the script at path.
// The interpreter follows the extension: ".py" runs with python and ".js"
// with node. Any other extension fails with [ErrConfiguration].
func ServerForScript(path string) (mcp.ServerConfig, error) {
	command, args, ok := mcp.ScriptCommand(path)
	if !ok {
		return mcp.ServerConfig{}, fmt.Errorf("%w: server script must be a .py or .js file, got %q", ErrConfiguration, path)
	}
	return mcp.ServerConfig{
		Name:      DefaultServerName,
		Transport: mcp.TransportStdio,
		Command:   command,
		Args:      args,
	}, nil
}

// ResolveServer combines the configured server settings with the endpoint
// argument given on the command line. For stdio the endpoint is a script path
// (see [ServerForScript]); for the HTTP transports it is an http or https
// URL.
func ResolveServer(c MCPConfig, endpoint string) (mcp.ServerConfig, error) {
	transport := c.Transport
	if transport == "" {
		transport = mcp.TransportStdio
	}

	var sc mcp.ServerConfig
	switch {
	case transport == mcp.TransportStdio:
		var err error
		if sc, err = ServerForScript(endpoint); err != nil {
			return mcp.ServerConfig{}, err
		}
		if c.Command != "" {
			words := strings.Fields(c.Command)
			if len(words) == 0 {
				return mcp.ServerConfig{}, fmt.Errorf("%w: mcp.command is blank", ErrConfiguration)
			}
			sc.Command = words[0]
			sc.Args = append(words[1:], endpoint)
		}
		sc.Env = c.Env

	case transport.IsHTTP():
		u, err := url.Parse(endpoint)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return mcp.ServerConfig{}, fmt.Errorf("%w: %s endpoint must be an http or https URL, got %q", ErrConfiguration, transport, endpoint)
		}
		sc = mcp.ServerConfig{Transport: transport, URL: endpoint}
		if a := c.Auth; a != nil {
			sc.Auth.Token = a.Token
			if o := a.OAuth; o != nil {
				sc.Auth.OAuth = &mcp.OAuthConfig{
					ClientID:     o.ClientID,
					ClientSecret: o.ClientSecret,
					TokenURL:     o.TokenURL,
					Scopes:       o.Scopes,
				}
			}
		}

	default:
		return mcp.ServerConfig{}, fmt.Errorf("%w: mcp.transport %q is invalid", ErrConfiguration, c.Transport)
	}

	sc.Name = c.Name
	if sc.Name == "" {
		sc.Name = DefaultServerName
	}
	return sc, nil
}
