// Package intent turns raw model output into at most one tool call.
//
// Detection is a chain of probes. Each probe is a total function from text
// to an optional [ToolCall]; the first probe that reports a hit wins. The
// default chain puts a JSON object the model emitted deliberately
// ([StructuredProbe]) ahead of keyword matching on free text
// ([HeuristicProbe]), so a well-formed request is never second-guessed.
//
// The extractor does not check that the detected name exists on the server.
// An unknown name surfaces later as an invocation error.
package intent

// Tool names recognised by [HeuristicProbe].
const (
	ToolForecast = "get_forecast"
	ToolAlerts   = "get_alerts"
)

// ToolCall is a tool invocation requested by the model.
type ToolCall struct {
	Name string

	// Arguments is the raw "arguments" value as decoded from JSON, or the
	// map built by a heuristic. Pass it through [NormalizeArguments] before
	// invoking.
	Arguments any
}

// Probe is one detection strategy.
type Probe struct {
	// Name labels the strategy in logs and metrics.
	Name string

	// Detect must not panic and must not return ok=true with an empty Name
	// in the call.
	Detect func(text string) (call ToolCall, ok bool)
}

// DefaultProbes returns the structured probe followed by the heuristic probe.
func DefaultProbes() []Probe {
	return []Probe{
		{Name: "structured", Detect: StructuredProbe},
		{Name: "heuristic", Detect: HeuristicProbe},
	}
}

// Extractor runs an ordered chain of probes. Safe for concurrent use.
type Extractor struct {
	probes []Probe
}

// NewExtractor returns an extractor over probes, or over [DefaultProbes]
// when none are given.
func NewExtractor(probes ...Probe) *Extractor {
	if len(probes) == 0 {
		probes = DefaultProbes()
	}
	return &Extractor{probes: probes}
}

// Detection is the outcome of a successful extraction.
type Detection struct {
	Call ToolCall

	// Strategy is the Name of the probe that produced Call.
	Strategy string
}

// Extract returns the first hit of the chain. ok is false when no probe
// recognised a tool call.
func (e *Extractor) Extract(text string) (d Detection, ok bool) {
	for _, p := range e.probes {
		if call, hit := p.Detect(text); hit {
			return Detection{Call: call, Strategy: p.Name}, true
		}
	}
	return Detection{}, false
}
