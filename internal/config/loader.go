package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// KnownLLMProviders lists the provider names wired in by the weatherbridge
// command. [Validate] warns about any other name.
var KnownLLMProviders = []string{
	"ollama", "openai", "openai-direct", "anthropic", "gemini",
	"deepseek", "mistral", "groq", "llamacpp", "llamafile",
}

// Load reads and validates the YAML file at path. An empty path yields
// [Default].
func Load(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %q: %w", path, err)
	}
	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes YAML from r, applies defaults and validates the
// result. Unknown keys are rejected. An empty document is a valid config.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: decode yaml: %w", ErrConfiguration, err)
	}
	cfg.ApplyDefaults()
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cfg for inconsistent values. All problems are reported
// together, each wrapping [ErrConfiguration].
func Validate(cfg *Config) error {
	var errs []error
	invalid := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrConfiguration}, args...)...))
	}

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		invalid("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel)
	}

	warnUnknownProvider("providers.llm", cfg.Providers.LLM.Name)
	for i, fb := range cfg.Providers.Fallbacks {
		prefix := fmt.Sprintf("providers.fallbacks[%d]", i)
		if fb.Name == "" {
			invalid("%s.name is required", prefix)
			continue
		}
		warnUnknownProvider(prefix, fb.Name)
	}

	if t := cfg.MCP.Transport; t != "" && !t.IsValid() {
		invalid("mcp.transport %q is invalid; valid values: stdio, streamable-http, sse", t)
	}
	if cfg.MCP.Transport.IsHTTP() {
		if cfg.MCP.Command != "" {
			slog.Warn("mcp.command is ignored for HTTP transports", "transport", cfg.MCP.Transport)
		}
		if a := cfg.MCP.Auth; a != nil && a.OAuth != nil {
			if a.OAuth.ClientID == "" {
				invalid("mcp.auth.oauth.client_id is required")
			}
			if a.OAuth.TokenURL == "" {
				invalid("mcp.auth.oauth.token_url is required")
			}
		}
	}

	o := cfg.Orchestrator
	if o.Temperature < 0 || o.Temperature > 2 {
		invalid("orchestrator.temperature %.2f is out of range [0, 2]", o.Temperature)
	}
	if o.MaxTokens < 0 {
		invalid("orchestrator.max_tokens must not be negative")
	}

	if cfg.Journal.Capacity < 0 {
		invalid("journal.capacity must not be negative")
	}

	return errors.Join(errs...)
}

// warnUnknownProvider logs a warning if name is not in [KnownLLMProviders].
func warnUnknownProvider(field, name string) {
	if name == "" || slices.Contains(KnownLLMProviders, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or a third-party provider",
		"field", field,
		"name", name,
		"known", KnownLLMProviders,
	)
}
