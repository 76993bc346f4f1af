package intent

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	forecastKeywords = []string{"forecast", "temperature", "weather"}
	alertKeywords    = []string{"alert", "warning", "storm"}

	// latLon matches a coordinate pair such as "37.77, -122.42". Both parts
	// need a fractional component.
	latLon = regexp.MustCompile(`(-?\d{1,2}\.\d+)[,\s]+(-?\d{1,3}\.\d+)`)

	// stateCode matches a two-letter token after "in", "for" or "state".
	// The prepositions are matched as written, so "IN CA" does not count.
	stateCode = regexp.MustCompile(`\b(?:in|for|state)\s+([A-Za-z]{2})\b`)
)

// HeuristicProbe maps free text to a weather tool by keyword.
//
// Forecast terms win over alert terms. A forecast hit carries the first
// coordinate pair in the text as float64 latitude and longitude, or no
// arguments at all; an alert hit carries the upper-cased state code, or no
// arguments. Text with neither kind of term is no hit.
func HeuristicProbe(text string) (ToolCall, bool) {
	text = strings.TrimSpace(text)
	lowered := strings.ToLower(text)

	switch {
	case containsAny(lowered, forecastKeywords):
		args := map[string]any{}
		if m := latLon.FindStringSubmatch(text); m != nil {
			lat, errLat := strconv.ParseFloat(m[1], 64)
			lon, errLon := strconv.ParseFloat(m[2], 64)
			if errLat == nil && errLon == nil {
				args["latitude"] = lat
				args["longitude"] = lon
			}
		}
		return ToolCall{Name: ToolForecast, Arguments: args}, true

	case containsAny(lowered, alertKeywords):
		args := map[string]any{}
		if m := stateCode.FindStringSubmatch(text); m != nil {
			args["state"] = strings.ToUpper(m[1])
		}
		return ToolCall{Name: ToolAlerts, Arguments: args}, true
	}
	return ToolCall{}, false
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
