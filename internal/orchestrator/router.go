package orchestrator

import (
	"context"
	"fmt"
	"os"
)

// PhaseExecutor executes a single workflow phase.
type PhaseExecutor interface {
	Execute(ctx context.Context, cfg Config) (*PhaseResult, error)
}

// PhaseFunc adapts a function to PhaseExecutor.
type PhaseFunc func(ctx context.Context, cfg Config) (*PhaseResult, error)

// Execute calls f.
func (f PhaseFunc) Execute(ctx context.Context, cfg Config) (*PhaseResult, error) {
	return f(ctx, cfg)
}

// Router maps phases to their registered executors and checks each
// phase's prerequisites before running it.
type Router struct {
	cfg       Config
	executors map[Phase]PhaseExecutor
}

// NewRouter creates a Router with the given configuration and an empty
// executor registry.
func NewRouter(cfg Config) *Router {
	return &Router{
		cfg:       cfg,
		executors: make(map[Phase]PhaseExecutor),
	}
}

// RegisterExecutor associates an executor with a phase.
func (r *Router) RegisterExecutor(phase Phase, exec PhaseExecutor) {
	r.executors[phase] = exec
}

// Route checks the prerequisites of phase and delegates to its executor.
func (r *Router) Route(ctx context.Context, phase Phase) (*PhaseResult, error) {
	exec, ok := r.executors[phase]
	if !ok {
		return nil, fmt.Errorf("router: no executor registered for phase %d (%s)", phase, phase)
	}
	if err := r.CheckPrerequisites(phase); err != nil {
		return nil, err
	}
	return exec.Execute(ctx, r.cfg)
}

// RouteRange executes the phases of w in order. onPhase, when non-nil, is
// called before each phase starts. Results of completed phases are
// returned even when a later phase fails.
func (r *Router) RouteRange(ctx context.Context, w Window, onPhase func(Phase)) ([]PhaseResult, error) {
	if err := w.Validate(); err != nil {
		return nil, fmt.Errorf("router: %w", err)
	}

	var results []PhaseResult
	for phase := w.Start; phase <= w.End; phase++ {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		if onPhase != nil {
			onPhase(phase)
		}
		result, err := r.Route(ctx, phase)
		if err != nil {
			return results, fmt.Errorf("phase %d (%s): %w", phase, phase, err)
		}
		results = append(results, *result)
	}
	return results, nil
}

// prerequisite is an artifact a phase expects to find.
type prerequisite struct {
	artifact string
	path     string
}

// prerequisites returns what must exist before phase can run. Phase 1
// produces everything and has none.
func (r *Router) prerequisites(phase Phase) []prerequisite {
	var reqs []prerequisite
	if phase == PhaseParallelProduction || phase == PhaseConvergence {
		for _, w := range r.cfg.Workers {
			reqs = append(reqs, prerequisite{artifact: "workspace of " + w.Name, path: r.cfg.Path(w.Workspace)})
		}
	}
	if phase == PhaseConvergence || phase == PhaseSynthesis {
		reqs = append(reqs, prerequisite{artifact: "primary workspace", path: r.cfg.PrimaryPath()})
	}
	return reqs
}

// CheckPrerequisites verifies, without creating anything, that the
// artifacts phase depends on exist.
func (r *Router) CheckPrerequisites(phase Phase) error {
	for _, req := range r.prerequisites(phase) {
		info, err := os.Stat(req.path)
		if err != nil || !info.IsDir() {
			return &PrerequisiteError{Phase: phase, Artifact: req.artifact, Path: req.path}
		}
	}
	return nil
}
