package intent

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// fencedJSON matches the first ```json fenced block holding an object.
var fencedJSON = regexp.MustCompile("(?s)```json\\s*(\\{.*?\\})\\s*```")

// errExtraction marks a candidate that was found but is not a usable call.
var errExtraction = errors.New("intent: structured extraction failed")

// errNoCandidate means the text holds nothing that looks like a call.
var errNoCandidate = errors.New("intent: no structured candidate")

// StructuredProbe looks for a JSON object with a string "name" field: first
// in a ```json fenced block, otherwise in the first balanced brace-delimited
// span that mentions "name" and decodes to such an object. Braces elsewhere
// in the surrounding prose do not affect the result.
func StructuredProbe(text string) (ToolCall, bool) {
	call, err := extractStructured(text)
	if err != nil {
		return ToolCall{}, false
	}
	return call, true
}

func extractStructured(text string) (ToolCall, error) {
	text = strings.TrimSpace(text)

	if m := fencedJSON.FindStringSubmatch(text); m != nil {
		return decodeCall(m[1])
	}

	var firstErr error
	for i := 0; i < len(text); i++ {
		if text[i] != '{' {
			continue
		}
		end := matchBrace(text, i)
		if end < 0 {
			// No closing brace for this one; later ones may still balance.
			continue
		}
		span := text[i : end+1]
		if !strings.Contains(span, `"name"`) {
			continue
		}
		call, err := decodeCall(span)
		if err == nil {
			return call, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	if firstErr != nil {
		return ToolCall{}, firstErr
	}
	return ToolCall{}, errNoCandidate
}

// matchBrace returns the index of the '}' closing the '{' at start, or -1.
// Braces inside JSON string literals are ignored.
func matchBrace(text string, start int) int {
	depth := 0
	inString, escaped := false, false
	for j := start; j < len(text); j++ {
		c := text[j]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return j
			}
		}
	}
	return -1
}

func decodeCall(candidate string) (ToolCall, error) {
	var obj map[string]any
	if err := json.Unmarshal([]byte(candidate), &obj); err != nil {
		return ToolCall{}, fmt.Errorf("%w: %w", errExtraction, err)
	}
	name, ok := obj["name"].(string)
	if !ok || name == "" {
		return ToolCall{}, fmt.Errorf("%w: object has no string name", errExtraction)
	}
	return ToolCall{Name: name, Arguments: obj["arguments"]}, nil
}
