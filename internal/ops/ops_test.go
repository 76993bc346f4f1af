package ops_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.opentelemetry.io/otel/metric/noop"

	"github.com/MrWong99/weatherbridge/internal/journal"
	"github.com/MrWong99/weatherbridge/internal/observe"
	"github.com/MrWong99/weatherbridge/internal/ops"
	"github.com/MrWong99/weatherbridge/internal/resilience"
)

type body struct {
	Status    string                   `json:"status"`
	Checks    map[string]string        `json:"checks"`
	Providers []resilience.MemberState `json:"providers"`
	Exchanges []journal.Entry          `json:"exchanges"`
	Error     string                   `json:"error"`
}

func newServer(t *testing.T, opts ...ops.Option) *ops.Server {
	t.Helper()
	m, err := observe.NewMetrics(noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	opts = append([]ops.Option{ops.WithMetrics(m)}, opts...)
	return ops.New(opts...)
}

func get(t *testing.T, h http.Handler, path string) (int, body) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

	var b body
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		if err := json.NewDecoder(rec.Body).Decode(&b); err != nil {
			t.Fatalf("decode %s: %v", path, err)
		}
	}
	return rec.Code, b
}

func TestHealthz(t *testing.T) {
	t.Parallel()
	code, b := get(t, newServer(t).Handler(), "/healthz")
	if code != http.StatusOK || b.Status != "ok" {
		t.Errorf("GET /healthz = %d %+v", code, b)
	}
}

func TestReadyz(t *testing.T) {
	t.Parallel()

	ok := ops.Checker{Name: "mcp", Check: func(context.Context) error { return nil }}
	down := ops.Checker{Name: "journal", Check: func(context.Context) error { return errors.New("connection refused") }}

	tests := []struct {
		name       string
		checks     []ops.Checker
		wantCode   int
		wantStatus string
		wantChecks map[string]string
	}{
		{name: "no checks", wantCode: http.StatusOK, wantStatus: "ok", wantChecks: map[string]string{}},
		{
			name:       "all pass",
			checks:     []ops.Checker{ok},
			wantCode:   http.StatusOK,
			wantStatus: "ok",
			wantChecks: map[string]string{"mcp": "ok"},
		},
		{
			name:       "one fails",
			checks:     []ops.Checker{ok, down},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: "fail",
			wantChecks: map[string]string{"mcp": "ok", "journal": "fail: connection refused"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			code, b := get(t, newServer(t, ops.WithCheckers(tt.checks...)).Handler(), "/readyz")
			if code != tt.wantCode || b.Status != tt.wantStatus {
				t.Errorf("GET /readyz = %d %q, want %d %q", code, b.Status, tt.wantCode, tt.wantStatus)
			}
			if fmt.Sprint(b.Checks) != fmt.Sprint(tt.wantChecks) {
				t.Errorf("checks = %v, want %v", b.Checks, tt.wantChecks)
			}
		})
	}
}

func TestReadyz_ProviderStates(t *testing.T) {
	t.Parallel()
	states := func() []resilience.MemberState {
		return []resilience.MemberState{{Name: "ollama", State: "open"}, {Name: "openai", State: "closed"}}
	}
	code, b := get(t, newServer(t, ops.WithProviderStates(states)).Handler(), "/readyz")
	if code != http.StatusOK {
		t.Errorf("status = %d, want 200 even with an open breaker", code)
	}
	if len(b.Providers) != 2 || b.Providers[0].State != "open" {
		t.Errorf("providers = %+v", b.Providers)
	}
}

func TestExchanges(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	ring := journal.NewRing(10)
	for _, q := range []string{"Any storm warnings in CA?", "Tell me a joke", "Forecast for 37.77, -122.42"} {
		_ = ring.Record(ctx, journal.Entry{Query: q})
	}
	h := newServer(t, ops.WithJournal(ring)).Handler()

	code, b := get(t, h, "/exchanges?limit=2")
	if code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if len(b.Exchanges) != 2 || b.Exchanges[0].Query != "Forecast for 37.77, -122.42" {
		t.Errorf("exchanges = %+v", b.Exchanges)
	}

	code, b = get(t, h, "/exchanges")
	if code != http.StatusOK || len(b.Exchanges) != 3 {
		t.Errorf("default limit: %d, %d entries", code, len(b.Exchanges))
	}

	for _, bad := range []string{"0", "-1", "many"} {
		code, b = get(t, h, "/exchanges?limit="+bad)
		if code != http.StatusBadRequest || b.Status != "fail" {
			t.Errorf("limit=%s: %d %+v", bad, code, b)
		}
	}
}

func TestExchanges_DisabledWithoutJournal(t *testing.T) {
	t.Parallel()
	code, _ := get(t, newServer(t).Handler(), "/exchanges")
	if code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", code)
	}
}

type failingStore struct{ journal.Store }

func (failingStore) Recent(context.Context, int) ([]journal.Entry, error) {
	return nil, errors.New("journal store: recent: connection reset")
}

func TestExchanges_StoreError(t *testing.T) {
	t.Parallel()
	code, b := get(t, newServer(t, ops.WithJournal(failingStore{})).Handler(), "/exchanges")
	if code != http.StatusInternalServerError || !strings.Contains(b.Error, "connection reset") {
		t.Errorf("GET /exchanges = %d %+v", code, b)
	}
}

func TestMetricsRoute(t *testing.T) {
	t.Parallel()
	stub := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "weatherbridge_tool_calls_total 3\n")
	})
	h := newServer(t, ops.WithMetricsHandler(stub)).Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "weatherbridge_tool_calls_total") {
		t.Errorf("GET /metrics = %d %q", rec.Code, rec.Body.String())
	}
}

// TestServe_StopsOnContextCancel verifies the listener serves requests and
// that cancelling ctx shuts it down cleanly.
func TestServe_StopsOnContextCancel(t *testing.T) {
	t.Parallel()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- newServer(t).Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}
