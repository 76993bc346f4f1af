package chat_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"slices"
	"strings"
	"sync"
	"testing"
	"testing/iotest"
	"time"

	"github.com/MrWong99/weatherbridge/internal/chat"
)

// fakeProcessor echoes queries and fails those listed in fail.
type fakeProcessor struct {
	mu      sync.Mutex
	queries []string
	fail    map[string]error
}

func (p *fakeProcessor) ProcessQuery(_ context.Context, q string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.queries = append(p.queries, q)
	if err := p.fail[q]; err != nil {
		return "", err
	}
	return "answer to " + q, nil
}

func (p *fakeProcessor) seen() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.queries)
}

func TestRun_Turns(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		input       string
		wantQueries []string
	}{
		{
			name:        "quit stops before later lines",
			input:       "alerts in CA\nquit\nnever read\n",
			wantQueries: []string{"alerts in CA"},
		},
		{
			name:        "quit is trimmed and case-insensitive",
			input:       "first\n   QuIt  \nsecond\n",
			wantQueries: []string{"first"},
		},
		{
			name:        "blank lines are skipped",
			input:       "\n   \n\t\nforecast\n\n",
			wantQueries: []string{"forecast"},
		},
		{
			name:        "queries are trimmed",
			input:       "  forecast for 37.77, -122.42  \n",
			wantQueries: []string{"forecast for 37.77, -122.42"},
		},
		{
			name:        "end of input without quit",
			input:       "one\ntwo",
			wantQueries: []string{"one", "two"},
		},
		{
			name:        "windows line endings",
			input:       "alerts in TX\r\nquit\r\n",
			wantQueries: []string{"alerts in TX"},
		},
		{
			name:  "quitting is not a query",
			input: "quit\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p := &fakeProcessor{}
			var out bytes.Buffer
			l := chat.New(p, chat.WithInput(strings.NewReader(tt.input)), chat.WithOutput(&out))

			if err := l.Run(context.Background()); err != nil {
				t.Fatalf("Run: %v", err)
			}
			if got := p.seen(); !slices.Equal(got, tt.wantQueries) {
				t.Errorf("queries = %q, want %q", got, tt.wantQueries)
			}
		})
	}
}

func TestRun_Output(t *testing.T) {
	t.Parallel()
	p := &fakeProcessor{}
	var out bytes.Buffer
	l := chat.New(p, chat.WithInput(strings.NewReader("alerts in CA\nquit\n")), chat.WithOutput(&out))

	if err := l.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	got := out.String()
	for _, want := range []string{
		"Type a query like:",
		chat.DefaultExamples[0],
		chat.DefaultExamples[1],
		"Type 'quit' to exit.",
		"\nanswer to alerts in CA\n",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
	if strings.Contains(got, chat.Prompt) {
		t.Errorf("prompt printed for non-interactive input:\n%s", got)
	}
}

func TestRun_PromptAndExamples(t *testing.T) {
	t.Parallel()
	var out bytes.Buffer
	l := chat.New(&fakeProcessor{},
		chat.WithInput(strings.NewReader("a\nquit\n")),
		chat.WithOutput(&out),
		chat.WithPrompt(true),
		chat.WithExamples(),
	)
	if err := l.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if n := strings.Count(out.String(), chat.Prompt); n != 2 {
		t.Errorf("prompt count = %d, want 2:\n%s", n, out.String())
	}
	if strings.Contains(out.String(), "Type a query like:") {
		t.Error("examples header printed with no examples")
	}
}

func TestRun_QueryErrorContinues(t *testing.T) {
	t.Parallel()
	p := &fakeProcessor{fail: map[string]error{"bad": errors.New("orchestrator: inference failed: boom")}}
	var out bytes.Buffer
	l := chat.New(p, chat.WithInput(strings.NewReader("bad\ngood\nquit\n")), chat.WithOutput(&out))

	if err := l.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := p.seen(); !slices.Equal(got, []string{"bad", "good"}) {
		t.Errorf("queries = %q", got)
	}
	if !strings.Contains(out.String(), "Error: orchestrator: inference failed: boom") {
		t.Errorf("error not printed:\n%s", out.String())
	}
	if !strings.Contains(out.String(), "answer to good") {
		t.Errorf("loop did not continue after an error:\n%s", out.String())
	}
}

func TestRun_ReadError(t *testing.T) {
	t.Parallel()
	boom := errors.New("tty gone")
	l := chat.New(&fakeProcessor{}, chat.WithInput(io.MultiReader(strings.NewReader("a\n"), iotest.ErrReader(boom))), chat.WithOutput(io.Discard))
	if err := l.Run(context.Background()); !errors.Is(err, boom) {
		t.Errorf("Run = %v, want wrapped read error", err)
	}
}

// TestRun_LongLine verifies that a line far beyond the default scanner buffer
// is one query and does not end the loop.
func TestRun_LongLine(t *testing.T) {
	t.Parallel()
	long := "forecast " + strings.Repeat("x", 256*1024)
	p := &fakeProcessor{}
	l := chat.New(p, chat.WithInput(strings.NewReader(long+"\nnext\nquit\n")), chat.WithOutput(io.Discard))

	if err := l.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	got := p.seen()
	if len(got) != 2 || got[0] != long || got[1] != "next" {
		t.Errorf("got %d queries, want the long line then %q", len(got), "next")
	}
}

// TestRun_CancelWhileWaiting verifies that cancellation ends the loop while
// it is blocked on input.
func TestRun_CancelWhileWaiting(t *testing.T) {
	t.Parallel()
	pr, pw := io.Pipe()
	t.Cleanup(func() { pw.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	l := chat.New(&fakeProcessor{}, chat.WithInput(pr), chat.WithOutput(io.Discard))

	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
