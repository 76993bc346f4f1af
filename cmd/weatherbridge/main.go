// Command weatherbridge is an interactive client that answers weather
// questions with a language model and one MCP tool server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/weatherbridge/internal/app"
	"github.com/MrWong99/weatherbridge/internal/config"
	"github.com/MrWong99/weatherbridge/internal/observe"
	"github.com/MrWong99/weatherbridge/internal/resilience"
	"github.com/MrWong99/weatherbridge/pkg/provider/llm"
	"github.com/MrWong99/weatherbridge/pkg/provider/llm/anyllm"
	"github.com/MrWong99/weatherbridge/pkg/provider/llm/openai"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run())
}

func usage() {
	fmt.Fprintln(os.Stderr, "Usage: weatherbridge [-config path] <server_script | server_url>")
	flag.PrintDefaults()
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "", "path to an optional YAML configuration file")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() != 1 {
		usage()
		return 1
	}
	endpoint := flag.Arg(0)

	// ── Logger ────────────────────────────────────────────────────────────────
	level := new(slog.LevelVar)
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	// ── Configuration (+ hot reload) ──────────────────────────────────────────
	var (
		cfg         *config.Config
		application *app.App
		appOpts     []app.Option
	)
	if *configPath == "" {
		cfg = config.Default()
	} else {
		w, err := config.NewWatcher(*configPath, func(old, new *config.Config) {
			d := config.Diff(old, new)
			if d.LogLevelChanged {
				level.Set(slogLevel(d.NewLogLevel))
				slog.Info("log level updated", "level", d.NewLogLevel)
			}
			application.ApplyConfigDiff(d)
		})
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				fmt.Fprintf(os.Stderr, "weatherbridge: config file %q not found\n", *configPath)
			} else {
				fmt.Fprintf(os.Stderr, "weatherbridge: %v\n", err)
			}
			return 1
		}
		cfg = w.Current()
		appOpts = append(appOpts, app.WithBackground(w.Run))
	}
	level.Set(slogLevel(cfg.Server.LogLevel))

	slog.Info("weatherbridge starting",
		"version", version,
		"config", *configPath,
		"endpoint", endpoint,
		"transport", cfg.MCP.Transport,
		"llm", cfg.Providers.LLM.Name,
		"model", cfg.Providers.LLM.Model,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		if err := shutdownTelemetry(context.Background()); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Providers ─────────────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	providers, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	// ── Application ───────────────────────────────────────────────────────────
	application, err = app.New(ctx, cfg, endpoint, providers, appOpts...)
	if err != nil {
		if errors.Is(err, config.ErrConfiguration) {
			fmt.Fprintf(os.Stderr, "weatherbridge: %v\n", err)
			usage()
		} else {
			slog.Error("failed to initialise application", "err", err)
		}
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := application.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "err", err)
		}
	}()

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}
	slog.Debug("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires all built-in LLM factories into reg.
func registerBuiltinProviders(reg *config.Registry) {
	// Hosted backends share the same pattern: optional APIKey + optional
	// BaseURL. Without a key any-llm reads the usual environment variable.
	for _, providerName := range anyllm.Names() {
		if providerName == "ollama" {
			continue
		}
		reg.RegisterLLM(providerName, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			p, err := anyllm.New(providerName, entry.Model, opts...)
			if err != nil {
				return nil, err
			}
			return p, nil
		})
	}

	// ollama is a local server; it uses BaseURL for the address, not an API key.
	reg.RegisterLLM("ollama", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []anyllmlib.Option
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		p, err := anyllm.NewOllama(entry.Model, opts...)
		if err != nil {
			return nil, err
		}
		return p, nil
	})

	// openai-direct talks to any OpenAI-compatible endpoint without any-llm.
	reg.RegisterLLM("openai-direct", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []openai.Option
		if entry.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(entry.BaseURL))
		}
		if org := optString(entry.Options, "organization"); org != "" {
			opts = append(opts, openai.WithOrganization(org))
		}
		if d := optString(entry.Options, "timeout"); d != "" {
			timeout, err := time.ParseDuration(d)
			if err != nil {
				return nil, fmt.Errorf("options.timeout: %w", err)
			}
			opts = append(opts, openai.WithTimeout(timeout))
		}
		if v, ok := entry.Options["tool_calling"].(bool); ok {
			opts = append(opts, openai.WithToolCalling(v))
		}
		p, err := openai.New(entry.APIKey, entry.Model, opts...)
		if err != nil {
			return nil, err
		}
		return p, nil
	})

	for _, name := range reg.LLMNames() {
		slog.Debug("registered provider", "kind", "llm", "name", name)
	}
}

// buildProviders instantiates the primary LLM and its fallbacks.
func buildProviders(cfg *config.Config, reg *config.Registry) (*app.Providers, error) {
	primary := cfg.Providers.LLM
	p, err := reg.CreateLLM(primary)
	if err != nil {
		return nil, fmt.Errorf("create llm provider %q: %w", primary.Name, err)
	}
	slog.Info("provider created", "kind", "llm", "name", primary.Name, "model", primary.Model)

	ps := &app.Providers{LLM: p, LLMName: primary.Name}
	for i, entry := range cfg.Providers.Fallbacks {
		fb, err := reg.CreateLLM(entry)
		if err != nil {
			return nil, fmt.Errorf("create fallback provider %d (%q): %w", i, entry.Name, err)
		}
		ps.Fallbacks = append(ps.Fallbacks, resilience.Member{Name: memberName(entry, i), Provider: fb})
		slog.Info("provider created", "kind", "llm-fallback", "name", entry.Name, "model", entry.Model)
	}
	return ps, nil
}

// memberName labels a fallback. The index keeps labels unique when the same
// backend appears twice with different models.
func memberName(entry config.ProviderEntry, i int) string {
	return fmt.Sprintf("%s#%d", entry.Name, i+1)
}

// ── Helpers ───────────────────────────────────────────────────────────────────

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// optString extracts a string value from a provider Options map.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	s, _ := opts[key].(string)
	return s
}
