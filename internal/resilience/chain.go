package resilience

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrWong99/weatherbridge/internal/observe"
	"github.com/MrWong99/weatherbridge/pkg/provider/llm"
)

// ErrExhausted is returned by [Chain.Complete] when no backend produced a
// completion.
var ErrExhausted = errors.New("resilience: all providers failed")

// Member is one backend of a [Chain].
type Member struct {
	Name     string
	Provider llm.Provider
}

// MemberState is a point-in-time view of one backend's breaker.
type MemberState struct {
	Name  string `json:"name"`
	State string `json:"state"`
}

type link struct {
	Member
	breaker *Breaker
}

// Chain is an [llm.Provider] that fails over from the primary to each
// fallback in order. Every backend has its own [Breaker]; backends whose
// breaker is open are skipped without being called.
type Chain struct {
	links   []link
	metrics *observe.Metrics
}

var _ llm.Provider = (*Chain)(nil)

// ChainOption configures a [Chain].
type ChainOption func(*Chain)

// WithMetrics records skipped and failed backends on m.
func WithMetrics(m *observe.Metrics) ChainOption {
	return func(c *Chain) { c.metrics = m }
}

// NewChain returns a chain trying primary first and then fallbacks in order.
// Each backend gets a breaker built from cfg with its Name.
func NewChain(primary Member, fallbacks []Member, cfg BreakerConfig, opts ...ChainOption) *Chain {
	c := &Chain{}
	for _, m := range append([]Member{primary}, fallbacks...) {
		bc := cfg
		bc.Name = m.Name
		c.links = append(c.links, link{Member: m, breaker: NewBreaker(bc)})
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Complete implements [llm.Provider]. When every backend fails, the error
// wraps [ErrExhausted] and each backend's error.
func (c *Chain) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	var errs []error
	for i := range c.links {
		l := &c.links[i]
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var resp *llm.CompletionResponse
		err := l.breaker.Do(func() error {
			var err error
			resp, err = l.Provider.Complete(ctx, req)
			return err
		})
		if err == nil {
			if i > 0 {
				observe.Logger(ctx).Info("completion served by fallback", "provider", l.Name)
			}
			return resp, nil
		}

		kind := "failover"
		if errors.Is(err, ErrOpen) {
			kind = "circuit_open"
			observe.Logger(ctx).Debug("skipping provider", "provider", l.Name, "reason", "circuit open")
		} else {
			observe.Logger(ctx).Warn("provider failed", "provider", l.Name, "err", err)
		}
		if c.metrics != nil {
			c.metrics.RecordProviderError(ctx, l.Name, kind)
		}
		errs = append(errs, fmt.Errorf("%s: %w", l.Name, err))
	}
	return nil, fmt.Errorf("%w: %w", ErrExhausted, errors.Join(errs...))
}

// Capabilities implements [llm.Provider] by reporting the primary's.
func (c *Chain) Capabilities() llm.ModelCapabilities {
	return c.links[0].Provider.Capabilities()
}

// States returns each backend's breaker state in chain order.
func (c *Chain) States() []MemberState {
	out := make([]MemberState, len(c.links))
	for i, l := range c.links {
		out[i] = MemberState{Name: l.Name, State: l.breaker.State().String()}
	}
	return out
}
