package config

import "reflect"

// ConfigDiff describes what changed between two configs. Only the
// hot-reloadable fields carry new values; everything else is summarised in
// RestartRequired.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	SystemPromptChanged bool
	NewSystemPrompt     string

	TemperatureChanged bool
	NewTemperature     float64

	// RestartRequired names the top-level sections whose changes only take
	// effect after a restart, in schema order.
	RestartRequired []string
}

// Changed reports whether any hot-reloadable field changed.
func (d ConfigDiff) Changed() bool {
	return d.LogLevelChanged || d.SystemPromptChanged || d.TemperatureChanged
}

// Diff compares old and new.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	if old.Orchestrator.SystemPrompt != new.Orchestrator.SystemPrompt {
		d.SystemPromptChanged = true
		d.NewSystemPrompt = new.Orchestrator.SystemPrompt
	}
	if old.Orchestrator.Temperature != new.Orchestrator.Temperature {
		d.TemperatureChanged = true
		d.NewTemperature = new.Orchestrator.Temperature
	}

	if old.Server.ListenAddr != new.Server.ListenAddr {
		d.RestartRequired = append(d.RestartRequired, "server.listen_addr")
	}
	if !reflect.DeepEqual(old.Providers, new.Providers) {
		d.RestartRequired = append(d.RestartRequired, "providers")
	}
	if !reflect.DeepEqual(old.MCP, new.MCP) {
		d.RestartRequired = append(d.RestartRequired, "mcp")
	}
	if old.Orchestrator.MaxTokens != new.Orchestrator.MaxTokens ||
		old.Orchestrator.PassCapabilities != new.Orchestrator.PassCapabilities {
		d.RestartRequired = append(d.RestartRequired, "orchestrator")
	}
	if old.Journal != new.Journal {
		d.RestartRequired = append(d.RestartRequired, "journal")
	}
	if old.Telemetry != new.Telemetry {
		d.RestartRequired = append(d.RestartRequired, "telemetry")
	}
	return d
}
