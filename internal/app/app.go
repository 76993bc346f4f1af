// Package app wires the weatherbridge subsystems into a running client.
//
// The App struct owns the full lifecycle: New connects to the tool server
// and assembles the query pipeline, Run drives the interactive loop (plus
// the optional ops server and any background tasks), and Shutdown releases
// everything exactly once.
//
// For testing, inject doubles via functional options (WithRegistry,
// WithJournal, etc.). When an option is not provided, New creates the real
// implementation from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/weatherbridge/internal/chat"
	"github.com/MrWong99/weatherbridge/internal/config"
	"github.com/MrWong99/weatherbridge/internal/journal"
	"github.com/MrWong99/weatherbridge/internal/journal/postgres"
	"github.com/MrWong99/weatherbridge/internal/mcp"
	"github.com/MrWong99/weatherbridge/internal/mcp/mcpclient"
	"github.com/MrWong99/weatherbridge/internal/observe"
	"github.com/MrWong99/weatherbridge/internal/ops"
	"github.com/MrWong99/weatherbridge/internal/orchestrator"
	"github.com/MrWong99/weatherbridge/internal/resilience"
	"github.com/MrWong99/weatherbridge/pkg/provider/llm"
)

// Providers holds the inference backends built by main.go via the config
// registry.
type Providers struct {
	// LLM is the primary backend. Required.
	LLM llm.Provider

	// LLMName labels the primary in metrics and readiness output.
	LLMName string

	// Fallbacks are tried in order when LLM fails. Empty means no failover
	// chain is installed.
	Fallbacks []resilience.Member
}

// pinger is implemented by registries that can check liveness. Ping runs on
// the ops goroutine, concurrently with queries.
type pinger interface {
	Ping(ctx context.Context) error
}

// App owns all subsystem lifetimes.
type App struct {
	cfg       *config.Config
	endpoint  string
	providers *Providers

	// Subsystems, initialised in New and torn down in Shutdown.
	metrics      *observe.Metrics
	registry     mcp.Registry
	capabilities []mcp.Capability
	journal      journal.Store
	chain        *resilience.Chain
	orch         *orchestrator.Orchestrator
	ops          *ops.Server

	out        io.Writer
	chatOpts   []chat.Option
	opsLn      net.Listener
	background []func(context.Context) error

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithRegistry injects a capability registry instead of connecting to the
// endpoint. The App takes ownership and closes it in Shutdown.
func WithRegistry(r mcp.Registry) Option {
	return func(a *App) { a.registry = r }
}

// WithJournal injects an exchange journal instead of creating one from
// config. The App takes ownership and closes it in Shutdown.
func WithJournal(s journal.Store) Option {
	return func(a *App) { a.journal = s }
}

// WithMetrics sets the metrics sink. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithOutput sets where user-facing startup messages go. Default: os.Stdout.
// The chat loop has its own output; see [WithChatOptions].
func WithOutput(w io.Writer) Option {
	return func(a *App) { a.out = w }
}

// WithChatOptions passes options through to the interactive loop.
func WithChatOptions(opts ...chat.Option) Option {
	return func(a *App) { a.chatOpts = append(a.chatOpts, opts...) }
}

// WithOpsListener serves the ops routes on ln instead of listening on
// server.listen_addr.
func WithOpsListener(ln net.Listener) Option {
	return func(a *App) { a.opsLn = ln }
}

// WithBackground adds tasks that run alongside the chat loop until it ends,
// such as a config watcher. A task error ends Run.
func WithBackground(tasks ...func(context.Context) error) Option {
	return func(a *App) { a.background = append(a.background, tasks...) }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. endpoint is the
// positional endpoint argument: a script path for stdio or a URL for the HTTP
// transports.
//
// New connects to the tool server and lists its capabilities synchronously.
// If any later step fails, everything acquired so far is released before the
// error is returned.
func New(ctx context.Context, cfg *config.Config, endpoint string, providers *Providers, opts ...Option) (_ *App, err error) {
	a := &App{
		cfg:       cfg,
		endpoint:  endpoint,
		providers: providers,
		out:       os.Stdout,
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	defer func() {
		if err != nil {
			a.runClosers()
		}
	}()

	if providers == nil || providers.LLM == nil {
		return nil, errors.New("app: an llm provider is required")
	}

	// ── 1. MCP session ───────────────────────────────────────────────────
	if err := a.initMCP(ctx); err != nil {
		return nil, fmt.Errorf("app: init mcp: %w", err)
	}

	// ── 2. Journal ───────────────────────────────────────────────────────
	if err := a.initJournal(ctx); err != nil {
		return nil, fmt.Errorf("app: init journal: %w", err)
	}

	// ── 3. Inference (with optional failover) ────────────────────────────
	provider := a.initProvider()

	// ── 4. Orchestrator ──────────────────────────────────────────────────
	oc := cfg.Orchestrator
	a.orch = orchestrator.New(provider, a.registry,
		orchestrator.WithCapabilities(a.capabilities),
		orchestrator.WithSystemPrompt(oc.SystemPrompt),
		orchestrator.WithTemperature(oc.Temperature),
		orchestrator.WithMaxTokens(oc.MaxTokens),
		orchestrator.WithPassCapabilities(oc.PassCapabilities),
		orchestrator.WithMetrics(a.metrics),
		orchestrator.WithJournal(a.journal),
		orchestrator.WithProviderName(a.providerName()),
	)

	// ── 5. Ops server ────────────────────────────────────────────────────
	a.initOps()

	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// initMCP opens the tool session and discovers its capabilities.
func (a *App) initMCP(ctx context.Context) error {
	if a.registry == nil {
		sc, err := config.ResolveServer(a.cfg.MCP, a.endpoint)
		if err != nil {
			return err
		}
		client, err := mcpclient.Connect(ctx, sc, mcpclient.WithMetrics(a.metrics))
		if err != nil {
			return err
		}
		a.registry = client
		slog.Info("connected to MCP server", "name", sc.Name, "transport", sc.Transport)
	}
	a.closers = append(a.closers, a.registry.Close)

	caps, err := a.registry.ListCapabilities(ctx)
	if err != nil {
		return err
	}
	a.capabilities = caps

	names := make([]string, len(caps))
	for i, c := range caps {
		names[i] = c.Name
	}
	slog.Info("discovered capabilities", "tools", names)
	fmt.Fprintf(a.out, "\nConnected to MCP server with tools: %v\n", names)
	return nil
}

// initJournal opens the PostgreSQL journal when a DSN is configured and
// falls back to an in-memory ring otherwise.
func (a *App) initJournal(ctx context.Context) error {
	if a.journal == nil {
		if dsn := a.cfg.Journal.PostgresDSN; dsn != "" {
			store, err := postgres.NewStore(ctx, dsn)
			if err != nil {
				return err
			}
			a.journal = store
			slog.Info("journal backed by postgres")
		} else {
			a.journal = journal.NewRing(a.cfg.Journal.Capacity)
			slog.Debug("journal kept in memory", "capacity", a.cfg.Journal.Capacity)
		}
	}
	a.closers = append(a.closers, a.journal.Close)
	return nil
}

// initProvider wraps the primary in a failover chain when fallbacks exist.
func (a *App) initProvider() llm.Provider {
	if len(a.providers.Fallbacks) == 0 {
		return a.providers.LLM
	}
	a.chain = resilience.NewChain(
		resilience.Member{Name: a.providerName(), Provider: a.providers.LLM},
		a.providers.Fallbacks,
		resilience.BreakerConfig{},
		resilience.WithMetrics(a.metrics),
	)
	slog.Info("llm failover enabled", "fallbacks", len(a.providers.Fallbacks))
	return a.chain
}

// initOps builds the ops server when an address or listener is configured.
func (a *App) initOps() {
	if a.cfg.Server.ListenAddr == "" && a.opsLn == nil {
		return
	}

	checks := []ops.Checker{{Name: "journal", Check: a.journal.Ping}}
	if p, ok := a.registry.(pinger); ok {
		checks = append(checks, ops.Checker{Name: "mcp", Check: p.Ping})
	}
	opts := []ops.Option{
		ops.WithCheckers(checks...),
		ops.WithJournal(a.journal),
		ops.WithMetrics(a.metrics),
	}
	if a.chain != nil {
		opts = append(opts, ops.WithProviderStates(a.chain.States))
	}
	a.ops = ops.New(opts...)
}

func (a *App) providerName() string {
	if a.providers.LLMName != "" {
		return a.providers.LLMName
	}
	return "llm"
}

// ─── Accessors ───────────────────────────────────────────────────────────────

// Capabilities returns the tools discovered at startup.
func (a *App) Capabilities() []mcp.Capability {
	return a.capabilities
}

// Orchestrator returns the query pipeline.
func (a *App) Orchestrator() *orchestrator.Orchestrator {
	return a.orch
}

// ApplyConfigDiff applies the hot-reloadable orchestrator settings in d. The
// log level is owned by the caller's slog.LevelVar.
func (a *App) ApplyConfigDiff(d config.ConfigDiff) {
	if d.SystemPromptChanged {
		a.orch.SetSystemPrompt(d.NewSystemPrompt)
		slog.Info("system prompt updated", "custom", d.NewSystemPrompt != "")
	}
	if d.TemperatureChanged {
		a.orch.SetTemperature(d.NewTemperature)
		slog.Info("temperature updated", "temperature", d.NewTemperature)
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("config changes require a restart", "sections", d.RestartRequired)
	}
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run drives the interactive loop until the user quits, input ends or ctx is
// cancelled. The ops server and background tasks run alongside and are
// stopped when the loop ends.
//
// Run returns nil when the user quits or input ends, ctx.Err() on
// cancellation and the first error of any other participant otherwise.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)

	loop := chat.New(a.orch, a.chatOpts...)
	g.Go(func() error {
		defer cancel()
		return loop.Run(gctx)
	})

	if a.ops != nil {
		g.Go(func() error {
			if a.opsLn != nil {
				return a.ops.Serve(gctx, a.opsLn)
			}
			return a.ops.ListenAndServe(gctx, a.cfg.Server.ListenAddr)
		})
	}

	for _, task := range a.background {
		g.Go(func() error { return task(gctx) })
	}

	slog.Debug("app running", "tools", len(a.capabilities))
	return g.Wait()
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown releases all subsystems in init order. Only the first call has an
// effect. It respects the context deadline: if ctx expires before all
// closers finish, the remaining closers are skipped and the context error is
// returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Debug("shutting down", "closers", len(a.closers))

		var errs []error
		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				errs = append(errs, ctx.Err())
				shutdownErr = errors.Join(errs...)
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
				errs = append(errs, err)
			}
		}
		shutdownErr = errors.Join(errs...)
		slog.Debug("shutdown complete")
	})
	return shutdownErr
}

// runClosers releases what New acquired before it failed.
func (a *App) runClosers() {
	a.stopOnce.Do(func() {
		for _, closer := range a.closers {
			if err := closer(); err != nil {
				slog.Warn("closer error during failed init", "err", err)
			}
		}
	})
}
