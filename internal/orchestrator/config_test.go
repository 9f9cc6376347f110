package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	return Config{
		ProjectRoot:      "/proj",
		SpecPath:         "spec.md",
		PrimaryWorkspace: "ws-main",
		Workers: []WorkerDescriptor{
			{Name: "Antigravity", Workspace: "ws-claude", Role: "The Architect", Invocation: Invocation{Interactive: true}},
			{Name: "Codex", Workspace: "ws-codex", Invocation: Invocation{Command: []string{"codex"}}},
			{Name: "Gemini", Workspace: "/abs/ws-gemini", Invocation: Invocation{Endpoint: "http://localhost:9100"}},
		},
		Window: FullWindow,
	}
}

func TestConfig_Validate(t *testing.T) {
	require.NoError(t, validConfig().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no root", func(c *Config) { c.ProjectRoot = "" }},
		{"relative root", func(c *Config) { c.ProjectRoot = "proj" }},
		{"no spec", func(c *Config) { c.SpecPath = " " }},
		{"no workers", func(c *Config) { c.Workers = nil }},
		{"window start 0", func(c *Config) { c.Window = Window{Start: 0, End: 4} }},
		{"window end 5", func(c *Config) { c.Window = Window{Start: 1, End: 5} }},
		{"window reversed", func(c *Config) { c.Window = Window{Start: 4, End: 2} }},
		{"unnamed worker", func(c *Config) { c.Workers[0].Name = "" }},
		{"duplicate name", func(c *Config) { c.Workers[1].Name = "Antigravity" }},
		{"no workspace", func(c *Config) { c.Workers[1].Workspace = "" }},
		{"shared workspace", func(c *Config) { c.Workers[1].Workspace = "/proj/ws-claude" }},
		{"workspace is primary", func(c *Config) { c.Workers[1].Workspace = "ws-main" }},
		{"workspace is root", func(c *Config) { c.Workers[1].Workspace = "." }},
		{"no invocation", func(c *Config) { c.Workers[1].Invocation = Invocation{} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			cfg.Workers = append([]WorkerDescriptor(nil), cfg.Workers...)
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestConfig_Paths(t *testing.T) {
	cfg := validConfig()
	assert.Equal(t, "/proj/ws-codex", cfg.Path("ws-codex"))
	assert.Equal(t, "/abs/ws-gemini", cfg.Path("/abs/ws-gemini"))
	assert.Equal(t, "/proj/ws-main", cfg.PrimaryPath())

	cfg.PrimaryWorkspace = ""
	assert.Equal(t, "/proj", cfg.PrimaryPath())
}

func TestConfig_Parallelism(t *testing.T) {
	cfg := validConfig()
	assert.Equal(t, 1, cfg.Parallelism())
	cfg.MaxParallel = 3
	assert.Equal(t, 3, cfg.Parallelism())
}

func TestWorkerDescriptor_Label(t *testing.T) {
	assert.Equal(t, "Antigravity (The Architect)", validConfig().Workers[0].Label())
	assert.Equal(t, "Codex", validConfig().Workers[1].Label())
}

func TestPhaseAndState(t *testing.T) {
	assert.Equal(t, "synthesis", PhaseSynthesis.String())
	assert.Equal(t, "unknown", Phase(9).String())
	assert.False(t, Phase(0).Valid())
	assert.Equal(t, StateConvergence, stateBefore(PhaseConvergence))
	assert.Equal(t, StateDone, stateBefore(LastPhase+1))
	assert.Equal(t, "failed", StateFailed.String())
	assert.True(t, Window{Start: 2, End: 3}.Contains(PhaseConvergence))
	assert.False(t, Window{Start: 2, End: 3}.Contains(PhaseSynthesis))
	assert.Equal(t, "[1,4]", FullWindow.String())
}
