package mcptools

import "github.com/dusk-indust/trident/internal/synthesis"

// --- MCP tool types for the trident server mode (--serve-mcp) ---
// A judge agent connected over MCP uses these tools to inspect the
// convergence merge and apply its resolutions one path at a time.

// GetStatusInput is the input for the get_status MCP tool.
type GetStatusInput struct{}

// WorkspaceSummary is one worker's working copy.
type WorkspaceSummary struct {
	Worker  string `json:"worker"`
	Label   string `json:"label"`
	Path    string `json:"path"`
	Exists  bool   `json:"exists"`
	Tip     string `json:"tip,omitempty"`
	Handoff bool   `json:"handoff"`
}

// GetStatusOutput is the result of the get_status MCP tool.
type GetStatusOutput struct {
	Initialized    bool               `json:"initialized"`
	Baseline       string             `json:"baseline,omitempty"`
	Merge          string             `json:"merge,omitempty"`
	Workers        []WorkspaceSummary `json:"workers"`
	ConflictCount  int                `json:"conflictCount"`
	CompletePhases []int              `json:"completePhases"`
	NextPhase      int                `json:"nextPhase"` // 0 when done
	NextPhaseName  string             `json:"nextPhaseName,omitempty"`
}

// ListConflictsInput is the input for the list_conflicts MCP tool.
type ListConflictsInput struct{}

// ConflictSummary is one conflicted path of the primary workspace.
type ConflictSummary struct {
	Path  string   `json:"path"`
	Arity int      `json:"arity"`
	Sides []string `json:"sides"`
	Note  string   `json:"note,omitempty"`
}

// ListConflictsOutput is the result of the list_conflicts MCP tool.
type ListConflictsOutput struct {
	Conflicts []ConflictSummary `json:"conflicts"`
}

// GetResolutionRequestInput is the input for the get_resolution_request
// MCP tool.
type GetResolutionRequestInput struct {
	Path string `json:"path" jsonschema:"conflicted path, relative to the primary workspace"`
}

// GetResolutionRequestOutput is the result of the get_resolution_request
// MCP tool.
type GetResolutionRequestOutput struct {
	Request synthesis.ResolutionRequest `json:"request"`
}

// ApplyResolutionInput is the input for the apply_resolution MCP tool.
type ApplyResolutionInput struct {
	Path    string `json:"path" jsonschema:"conflicted path, relative to the primary workspace"`
	Content string `json:"content" jsonschema:"complete resolved file content without conflict markers"`
}

// ApplyResolutionOutput is the result of the apply_resolution MCP tool.
type ApplyResolutionOutput struct {
	Path      string   `json:"path"`
	Status    string   `json:"status"` // "resolved", "incomplete" or "rejected"
	Remaining []string `json:"remaining,omitempty"`
	Message   string   `json:"message,omitempty"`
}

// RunPhasesInput is the input for the run_phases MCP tool.
type RunPhasesInput struct {
	Start int `json:"start,omitempty" jsonschema:"first phase to run (1-4, default 1)"`
	End   int `json:"end,omitempty" jsonschema:"last phase to run (1-4, default 4)"`
}

// PhaseSummary is the outcome of one executed phase.
type PhaseSummary struct {
	Phase     int      `json:"phase"`
	Name      string   `json:"name"`
	Baseline  string   `json:"baseline,omitempty"`
	Created   []string `json:"created,omitempty"`
	Workers   []string `json:"workers,omitempty"`
	Merge     string   `json:"merge,omitempty"`
	Conflicts []string `json:"conflicts,omitempty"`
	Resolved  []string `json:"resolved,omitempty"`
}

// RunPhasesOutput is the result of the run_phases MCP tool.
type RunPhasesOutput struct {
	Phases  []PhaseSummary `json:"phases"`
	State   string         `json:"state"`
	Status  string         `json:"status"` // "completed" or "failed"
	Message string         `json:"message,omitempty"`
	// Progress holds the formatted progress lines of the run, when the
	// server records them.
	Progress []string `json:"progress,omitempty"`
}
