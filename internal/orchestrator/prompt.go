package orchestrator

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/MrWong99/weatherbridge/internal/mcp"
)

// DefaultSystemPrompt is used when no capabilities are known at startup and
// no prompt is configured.
const DefaultSystemPrompt = `You are a helpful weather assistant. You have access to these tools:
1. get_alerts(state: str) - get weather alerts for a U.S. state (e.g., CA, NY)
2. get_forecast(latitude: float, longitude: float) - get a 5-period forecast for given coordinates.

When you want to use a tool, output ONLY a JSON object like this:
{"name": "get_forecast", "arguments": {"latitude": 37.77, "longitude": -122.42}}`

const forecastExample = `{"name": "get_forecast", "arguments": {"latitude": 37.77, "longitude": -122.42}}`

// BuildSystemPrompt documents caps in the form the intent extractor expects
// back from the model. With no caps it returns [DefaultSystemPrompt].
func BuildSystemPrompt(caps []mcp.Capability) string {
	if len(caps) == 0 {
		return DefaultSystemPrompt
	}

	var b strings.Builder
	b.WriteString("You are a helpful weather assistant. You have access to these tools:\n")
	for i, c := range caps {
		fmt.Fprintf(&b, "%d. %s(%s)", i+1, c.Name, strings.Join(signature(c.Schema), ", "))
		if desc := firstLine(c.Description); desc != "" {
			b.WriteString(" - ")
			b.WriteString(desc)
		}
		b.WriteByte('\n')
	}
	b.WriteString("\nWhen you want to use a tool, output ONLY a JSON object like this:\n")
	b.WriteString(example(caps))
	return b.String()
}

// signature renders the schema properties as "name: type", required ones
// first, each group sorted by name.
func signature(schema map[string]any) []string {
	props, _ := schema["properties"].(map[string]any)
	if len(props) == 0 {
		return nil
	}

	required := map[string]bool{}
	if req, ok := schema["required"].([]any); ok {
		for _, r := range req {
			if s, ok := r.(string); ok {
				required[s] = true
			}
		}
	}

	names := make([]string, 0, len(props))
	for name := range props {
		names = append(names, name)
	}
	slices.SortFunc(names, func(a, b string) int {
		if required[a] != required[b] {
			if required[a] {
				return -1
			}
			return 1
		}
		return strings.Compare(a, b)
	})

	out := make([]string, 0, len(names))
	for _, name := range names {
		typ := "any"
		if p, ok := props[name].(map[string]any); ok {
			if t, ok := p["type"].(string); ok {
				typ = t
			}
		}
		out = append(out, name+": "+typ)
	}
	return out
}

func example(caps []mcp.Capability) string {
	for _, c := range caps {
		if c.Name == "get_forecast" {
			return forecastExample
		}
	}

	first := caps[0]
	args := map[string]any{}
	for _, p := range signature(first.Schema) {
		name, _, _ := strings.Cut(p, ":")
		args[name] = "..."
	}
	raw, err := json.Marshal(map[string]any{"name": first.Name, "arguments": args})
	if err != nil {
		return forecastExample
	}
	return string(raw)
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = strings.TrimSpace(s[:i])
	}
	return s
}
