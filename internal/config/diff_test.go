package config_test

import (
	"slices"
	"testing"

	"github.com/MrWong99/weatherbridge/internal/config"
)

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()
	d := config.Diff(config.Default(), config.Default())
	if d.Changed() || len(d.RestartRequired) != 0 {
		t.Errorf("diff = %+v, want empty", d)
	}
}

func TestDiff_HotReloadable(t *testing.T) {
	t.Parallel()
	old := config.Default()
	updated := config.Default()
	updated.Server.LogLevel = config.LogDebug
	updated.Orchestrator.SystemPrompt = "Answer in one sentence."
	updated.Orchestrator.Temperature = 0.7

	d := config.Diff(old, updated)
	if !d.Changed() {
		t.Fatal("Changed() = false")
	}
	if !d.LogLevelChanged || d.NewLogLevel != config.LogDebug {
		t.Errorf("log level diff = %v %q", d.LogLevelChanged, d.NewLogLevel)
	}
	if !d.SystemPromptChanged || d.NewSystemPrompt != "Answer in one sentence." {
		t.Errorf("prompt diff = %v %q", d.SystemPromptChanged, d.NewSystemPrompt)
	}
	if !d.TemperatureChanged || d.NewTemperature != 0.7 {
		t.Errorf("temperature diff = %v %v", d.TemperatureChanged, d.NewTemperature)
	}
	if len(d.RestartRequired) != 0 {
		t.Errorf("RestartRequired = %v, want none", d.RestartRequired)
	}
}

// TestDiff_PromptCleared verifies that removing the override is reported so
// the generated prompt can be restored.
func TestDiff_PromptCleared(t *testing.T) {
	t.Parallel()
	old := config.Default()
	old.Orchestrator.SystemPrompt = "custom"
	d := config.Diff(old, config.Default())
	if !d.SystemPromptChanged || d.NewSystemPrompt != "" {
		t.Errorf("diff = %+v", d)
	}
}

func TestDiff_RestartRequired(t *testing.T) {
	t.Parallel()
	old := config.Default()
	updated := config.Default()
	updated.Server.ListenAddr = ":9090"
	updated.Providers.LLM.Model = "llama3.1:8b"
	updated.MCP.Env = map[string]string{"NWS_USER_AGENT": "wb"}
	updated.Orchestrator.PassCapabilities = true
	updated.Journal.Capacity = 10
	updated.Telemetry.ServiceName = "wb"

	d := config.Diff(old, updated)
	want := []string{"server.listen_addr", "providers", "mcp", "orchestrator", "journal", "telemetry"}
	if !slices.Equal(d.RestartRequired, want) {
		t.Errorf("RestartRequired = %v, want %v", d.RestartRequired, want)
	}
	if d.Changed() {
		t.Error("Changed() = true for restart-only changes")
	}
}
