// Package ops serves the operations HTTP endpoints.
//
// Routes:
//
//   - GET /healthz   liveness; always 200 while the process serves HTTP.
//   - GET /readyz    readiness; 200 only when every [Checker] passes.
//   - GET /metrics   Prometheus exposition of the OpenTelemetry instruments.
//   - GET /exchanges recent journal entries, newest first (?limit=N).
//
// Every route is wrapped in [observe.Middleware]. JSON bodies carry a
// top-level "status" field ("ok" or "fail").
package ops

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MrWong99/weatherbridge/internal/journal"
	"github.com/MrWong99/weatherbridge/internal/observe"
	"github.com/MrWong99/weatherbridge/internal/resilience"
)

const (
	// checkTimeout bounds a single readiness check.
	checkTimeout = 5 * time.Second

	shutdownTimeout = 5 * time.Second

	defaultExchangeLimit = 20
	maxExchangeLimit     = 500
)

// Checker is a named readiness check. Check returns nil when the dependency
// is usable and must respect ctx cancellation.
type Checker struct {
	Name  string
	Check func(ctx context.Context) error
}

type readiness struct {
	Status    string                   `json:"status"`
	Checks    map[string]string        `json:"checks,omitempty"`
	Providers []resilience.MemberState `json:"providers,omitempty"`
}

type exchangeList struct {
	Status    string          `json:"status"`
	Exchanges []journal.Entry `json:"exchanges"`
}

// Server holds the ops routes. Its configuration is fixed at construction.
type Server struct {
	checkers       []Checker
	journal        journal.Store
	providerStates func() []resilience.MemberState
	metrics        *observe.Metrics
	metricsHandler http.Handler
}

// Option configures a [Server].
type Option func(*Server)

// WithCheckers adds readiness checks, evaluated in order.
func WithCheckers(checks ...Checker) Option {
	return func(s *Server) { s.checkers = append(s.checkers, checks...) }
}

// WithJournal enables GET /exchanges backed by store.
func WithJournal(store journal.Store) Option {
	return func(s *Server) { s.journal = store }
}

// WithProviderStates includes the inference breakers in /readyz. The states
// are informational; an open breaker does not fail readiness.
func WithProviderStates(fn func() []resilience.MemberState) Option {
	return func(s *Server) { s.providerStates = fn }
}

// WithMetrics sets the instruments used by the request middleware.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithMetricsHandler replaces the default promhttp handler on /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) { s.metricsHandler = h }
}

// New returns a Server.
func New(opts ...Option) *Server {
	s := &Server{
		metrics:        observe.DefaultMetrics(),
		metricsHandler: promhttp.Handler(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Handler returns the routed and instrumented handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.healthz)
	mux.HandleFunc("GET /readyz", s.readyz)
	mux.Handle("GET /metrics", s.metricsHandler)
	if s.journal != nil {
		mux.HandleFunc("GET /exchanges", s.exchanges)
	}
	return observe.Middleware(s.metrics)(mux)
}

// ListenAndServe listens on addr and serves until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("ops: listen %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done, then shuts down gracefully. It
// returns nil after a ctx-triggered shutdown.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	slog.Info("ops server listening", "addr", ln.Addr().String())

	select {
	case err := <-errCh:
		return fmt.Errorf("ops: serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("ops: shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("ops: serve: %w", err)
	}
	return nil
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, readiness{Status: "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	res := readiness{Status: "ok", Checks: make(map[string]string, len(s.checkers))}
	code := http.StatusOK

	for _, c := range s.checkers {
		ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
		err := c.Check(ctx)
		cancel()

		if err != nil {
			res.Checks[c.Name] = "fail: " + err.Error()
			res.Status = "fail"
			code = http.StatusServiceUnavailable
			continue
		}
		res.Checks[c.Name] = "ok"
	}
	if s.providerStates != nil {
		res.Providers = s.providerStates()
	}
	writeJSON(w, code, res)
}

func (s *Server) exchanges(w http.ResponseWriter, r *http.Request) {
	limit := defaultExchangeLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"status": "fail",
				"error":  "limit must be a positive integer",
			})
			return
		}
		limit = min(n, maxExchangeLimit)
	}

	entries, err := s.journal.Recent(r.Context(), limit)
	if err != nil {
		observe.Logger(r.Context()).Warn("failed to read journal", "err", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"status": "fail",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, exchangeList{Status: "ok", Exchanges: entries})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("ops: encode response", "err", err)
	}
}
