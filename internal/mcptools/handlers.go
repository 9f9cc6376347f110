package mcptools

import (
	"context"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/dusk-indust/trident/internal/convergence"
	"github.com/dusk-indust/trident/internal/orchestrator"
	"github.com/dusk-indust/trident/internal/status"
	"github.com/dusk-indust/trident/internal/synthesis"
	"github.com/dusk-indust/trident/internal/vcs"
)

// Workflow is the part of *orchestrator.Orchestrator the tools drive.
type Workflow interface {
	Config() orchestrator.Config
	State() orchestrator.State
	RunWindow(ctx context.Context, w orchestrator.Window) ([]orchestrator.PhaseResult, error)
	Conflicts(ctx context.Context) ([]convergence.ConflictRecord, error)
	Requests(ctx context.Context) ([]synthesis.ResolutionRequest, error)
	Apply(ctx context.Context, path, content string) error
}

var _ Workflow = (*orchestrator.Orchestrator)(nil)

// WorkflowService handles MCP tool calls for the trident server mode.
type WorkflowService struct {
	workflow Workflow
	vcs      vcs.VCS
	progress *orchestrator.ProgressLog
}

// ServiceOption configures a WorkflowService.
type ServiceOption func(*WorkflowService)

// WithProgressLog makes run_phases return the events recorded in log while
// the window ran. The workflow must be built with
// orchestrator.WithProgress(log.Record).
func WithProgressLog(log *orchestrator.ProgressLog) ServiceOption {
	return func(s *WorkflowService) { s.progress = log }
}

// NewWorkflowService creates a WorkflowService. v is used for read-only
// status queries.
func NewWorkflowService(w Workflow, v vcs.VCS, opts ...ServiceOption) *WorkflowService {
	s := &WorkflowService{workflow: w, vcs: v}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetStatus reports the workflow's artifacts and the next phase to run.
func (s *WorkflowService) GetStatus(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	_ GetStatusInput,
) (*mcp.CallToolResult, GetStatusOutput, error) {
	r, err := status.Collect(ctx, s.vcs, s.workflow.Config())
	if err != nil {
		return nil, GetStatusOutput{}, fmt.Errorf("collect status: %w", err)
	}

	out := GetStatusOutput{
		Initialized:    r.Initialized,
		Baseline:       string(r.Baseline),
		Merge:          string(r.Merge),
		Workers:        []WorkspaceSummary{},
		ConflictCount:  len(r.Conflicts),
		CompletePhases: []int{},
		NextPhase:      int(r.NextPhase),
	}
	if !r.Done() {
		out.NextPhaseName = r.NextPhase.String()
	}
	for _, w := range r.Workers {
		out.Workers = append(out.Workers, WorkspaceSummary{
			Worker:  w.Worker,
			Label:   w.Label,
			Path:    w.Path,
			Exists:  w.Exists,
			Tip:     string(w.Tip),
			Handoff: w.Handoff,
		})
	}
	for _, p := range r.Phases {
		if p.Complete {
			out.CompletePhases = append(out.CompletePhases, int(p.Phase))
		}
	}
	return nil, out, nil
}

// ListConflicts lists the conflicted paths of the primary workspace with
// the labels of the sides that contributed to each.
func (s *WorkflowService) ListConflicts(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	_ ListConflictsInput,
) (*mcp.CallToolResult, ListConflictsOutput, error) {
	records, err := s.workflow.Conflicts(ctx)
	if err != nil {
		return nil, ListConflictsOutput{}, fmt.Errorf("list conflicts: %w", err)
	}
	out := ListConflictsOutput{Conflicts: []ConflictSummary{}}
	for _, rec := range records {
		sides := make([]string, len(rec.Sides))
		for i, side := range rec.Sides {
			sides[i] = side.Label
		}
		out.Conflicts = append(out.Conflicts, ConflictSummary{Path: rec.Path, Arity: rec.Arity, Sides: sides, Note: rec.Note})
	}
	return nil, out, nil
}

// GetResolutionRequest returns the full resolution request for one path:
// base, sides, specification and judge guidance.
func (s *WorkflowService) GetResolutionRequest(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input GetResolutionRequestInput,
) (*mcp.CallToolResult, GetResolutionRequestOutput, error) {
	if input.Path == "" {
		return nil, GetResolutionRequestOutput{}, fmt.Errorf("path is required")
	}
	reqs, err := s.workflow.Requests(ctx)
	if err != nil {
		return nil, GetResolutionRequestOutput{}, fmt.Errorf("build requests: %w", err)
	}
	for _, req := range reqs {
		if req.Path == input.Path {
			return nil, GetResolutionRequestOutput{Request: req}, nil
		}
	}
	return nil, GetResolutionRequestOutput{}, fmt.Errorf("%s is not conflicted", input.Path)
}

// ApplyResolution writes resolved content for a path and re-checks it.
// Rejections and incomplete resolutions are reported in the output rather
// than as tool errors so the caller can retry.
func (s *WorkflowService) ApplyResolution(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input ApplyResolutionInput,
) (*mcp.CallToolResult, ApplyResolutionOutput, error) {
	if input.Path == "" {
		return nil, ApplyResolutionOutput{}, fmt.Errorf("path is required")
	}
	out := ApplyResolutionOutput{Path: input.Path, Status: "resolved"}

	err := s.workflow.Apply(ctx, input.Path, input.Content)
	var incomplete *synthesis.ResolutionIncompleteError
	switch {
	case err == nil:
	case errors.As(err, &incomplete):
		out.Status = "incomplete"
		out.Remaining = incomplete.Remaining
		out.Message = err.Error()
	case errors.Is(err, synthesis.ErrResidualMarkers),
		errors.Is(err, convergence.ErrInvalidPath),
		errors.Is(err, convergence.ErrNotConflicted):
		out.Status = "rejected"
		out.Message = err.Error()
	default:
		return nil, ApplyResolutionOutput{}, fmt.Errorf("apply resolution: %w", err)
	}
	return nil, out, nil
}

// RunPhases executes a window of phases. A failing phase is reported in
// the output along with the phases that completed before it.
func (s *WorkflowService) RunPhases(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input RunPhasesInput,
) (*mcp.CallToolResult, RunPhasesOutput, error) {
	w := orchestrator.FullWindow
	if input.Start != 0 {
		w.Start = orchestrator.Phase(input.Start)
	}
	if input.End != 0 {
		w.End = orchestrator.Phase(input.End)
	}
	if err := w.Validate(); err != nil {
		return nil, RunPhasesOutput{}, fmt.Errorf("invalid window: %w", err)
	}

	if s.progress != nil {
		s.progress.Drain()
	}
	results, err := s.workflow.RunWindow(ctx, w)
	out := RunPhasesOutput{Phases: []PhaseSummary{}, Status: "completed"}
	for _, r := range results {
		out.Phases = append(out.Phases, summarize(r))
	}
	if s.progress != nil {
		events, dropped := s.progress.Drain()
		for _, ev := range events {
			out.Progress = append(out.Progress, orchestrator.FormatProgress(ev))
		}
		if dropped > 0 {
			out.Progress = append(out.Progress, fmt.Sprintf("  ... %d more event(s)", dropped))
		}
	}
	if err != nil {
		out.Status = "failed"
		out.Message = err.Error()
	}
	out.State = s.workflow.State().String()
	return nil, out, nil
}

func summarize(r orchestrator.PhaseResult) PhaseSummary {
	sum := PhaseSummary{
		Phase:    int(r.Phase),
		Name:     r.Phase.String(),
		Baseline: string(r.Baseline),
		Created:  r.Created,
		Resolved: r.Resolved,
	}
	for _, w := range r.Workers {
		sum.Workers = append(sum.Workers, w.Worker+": "+w.Outcome)
	}
	if r.Merge != nil {
		sum.Merge = string(r.Merge.Revision)
	}
	for _, c := range r.Conflicts {
		sum.Conflicts = append(sum.Conflicts, c.Path)
	}
	return sum
}
