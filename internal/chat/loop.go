// Package chat runs the interactive read-eval-print loop on top of a query
// processor.
//
// Each input line is one turn. "quit" (case-insensitive, surrounding
// whitespace ignored) ends the loop, blank lines are skipped and any other
// line is handed to the [Processor]. A failed query is printed and the loop
// keeps going.
package chat

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"golang.org/x/term"
)

// Prompt is written before each line when the input is interactive.
const Prompt = "Query: "

// DefaultExamples are shown in the banner.
var DefaultExamples = []string{
	"What's the weather forecast for latitude 37.77 and longitude -122.42?",
	"Are there any weather alerts in CA?",
}

// Processor answers a single query.
type Processor interface {
	ProcessQuery(ctx context.Context, query string) (string, error)
}

// Loop reads queries line by line and prints the answers.
type Loop struct {
	proc     Processor
	in       io.Reader
	out      io.Writer
	prompt   bool
	examples []string
}

// Option configures a [Loop].
type Option func(*Loop)

// WithInput reads lines from r instead of os.Stdin. The prompt is disabled
// unless [WithPrompt] is also given.
func WithInput(r io.Reader) Option {
	return func(l *Loop) {
		l.in = r
		l.prompt = false
	}
}

// WithOutput writes the banner, prompts and answers to w instead of
// os.Stdout.
func WithOutput(w io.Writer) Option {
	return func(l *Loop) { l.out = w }
}

// WithPrompt forces the "Query: " prompt on or off.
func WithPrompt(on bool) Option {
	return func(l *Loop) { l.prompt = on }
}

// WithExamples replaces the example queries in the banner. An empty list
// removes them.
func WithExamples(examples ...string) Option {
	return func(l *Loop) { l.examples = examples }
}

// New returns a Loop that sends queries to p. By default it reads os.Stdin
// and shows the prompt only when stdin is a terminal.
func New(p Processor, opts ...Option) *Loop {
	l := &Loop{
		proc:     p,
		in:       os.Stdin,
		out:      os.Stdout,
		prompt:   term.IsTerminal(int(os.Stdin.Fd())),
		examples: DefaultExamples,
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Run prints the banner and processes lines until the user quits, the input
// ends or ctx is cancelled. It returns nil on quit and end of input and
// ctx.Err() on cancellation.
//
// Lines are read on a separate goroutine so cancellation is observed while
// waiting for input. That goroutine stays blocked in Read until the input
// yields a line or is closed.
func (l *Loop) Run(ctx context.Context) error {
	l.banner()

	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		// Lines may be arbitrarily long.
		r := bufio.NewReader(l.in)
		for {
			s, err := r.ReadString('\n')
			if s != "" {
				select {
				case lines <- strings.TrimRight(s, "\r\n"):
				case <-ctx.Done():
					return
				}
			}
			if err != nil {
				if errors.Is(err, io.EOF) {
					err = nil
				}
				readErr <- err
				close(lines)
				return
			}
		}
	}()

	for {
		if l.prompt {
			fmt.Fprint(l.out, "\n"+Prompt)
		}

		var line string
		select {
		case <-ctx.Done():
			return ctx.Err()
		case s, ok := <-lines:
			if !ok {
				if err := <-readErr; err != nil {
					return fmt.Errorf("chat: read input: %w", err)
				}
				return nil
			}
			line = s
		}

		query := strings.TrimSpace(line)
		switch {
		case query == "":
			continue
		case strings.EqualFold(query, "quit"):
			return nil
		}

		answer, err := l.proc.ProcessQuery(ctx, query)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			slog.Debug("query failed", "err", err)
			fmt.Fprintf(l.out, "\nError: %v\n", err)
			continue
		}
		fmt.Fprintf(l.out, "\n%s\n", answer)
	}
}

func (l *Loop) banner() {
	if len(l.examples) > 0 {
		fmt.Fprintln(l.out, "\nType a query like:")
		for _, ex := range l.examples {
			fmt.Fprintf(l.out, "  %s\n", ex)
		}
	}
	fmt.Fprintln(l.out, "Type 'quit' to exit.")
}
