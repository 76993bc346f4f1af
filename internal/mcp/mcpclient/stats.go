package mcpclient

import (
	"slices"
	"sync"
	"time"
)

// defaultWindowSize is the number of recent invocations kept per tool.
const defaultWindowSize = 100

// ToolStats summarises the recent invocations of one tool.
type ToolStats struct {
	Name      string        `json:"name"`
	Calls     int           `json:"calls"`
	ErrorRate float64       `json:"error_rate"`
	P50       time.Duration `json:"p50"`
	P99       time.Duration `json:"p99"`
}

// window is a ring buffer of the last N invocation latencies of one tool,
// with a parallel ring of error flags. Safe for concurrent use.
type window struct {
	mu      sync.Mutex
	samples []time.Duration
	failed  []bool
	pos     int
	count   int
}

func newWindow(size int) *window {
	if size <= 0 {
		size = defaultWindowSize
	}
	return &window{
		samples: make([]time.Duration, size),
		failed:  make([]bool, size),
	}
}

// record overwrites the oldest slot once the ring is full.
func (w *window) record(d time.Duration, isError bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.samples[w.pos] = d
	w.failed[w.pos] = isError
	w.pos = (w.pos + 1) % len(w.samples)
	w.count++
}

// snapshot computes stats over the samples currently in the ring. Calls is
// the lifetime count.
func (w *window) snapshot(name string) ToolStats {
	w.mu.Lock()
	defer w.mu.Unlock()

	st := ToolStats{Name: name, Calls: w.count}
	n := min(w.count, len(w.samples))
	if n == 0 {
		return st
	}

	sorted := slices.Clone(w.samples[:n])
	slices.Sort(sorted)
	st.P50 = sorted[n/2]
	st.P99 = sorted[int(float64(n-1)*0.99)]

	errs := 0
	for _, f := range w.failed[:n] {
		if f {
			errs++
		}
	}
	st.ErrorRate = float64(errs) / float64(n)
	return st
}
