// Package status inspects the repository to report how far a convergence
// workflow has progressed and which phase should run next.
package status

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/dusk-indust/trident/internal/a2a"
	"github.com/dusk-indust/trident/internal/convergence"
	"github.com/dusk-indust/trident/internal/orchestrator"
	"github.com/dusk-indust/trident/internal/vcs"
	"github.com/dusk-indust/trident/internal/workspace"
)

// PhaseInfo describes the completion state of a single phase.
type PhaseInfo struct {
	Phase    orchestrator.Phase
	Name     string
	Complete bool
}

// WorkspaceInfo describes one working copy.
type WorkspaceInfo struct {
	Worker  string // empty for the primary workspace
	Label   string
	Path    string
	Exists  bool
	Tip     vcs.RevisionID
	Handoff bool // a feature change has been created for the worker
}

// JudgeInfo reports whether the configured judge agent answers.
type JudgeInfo struct {
	Endpoint  string
	Reachable bool
	Agent     string
	Err       string
}

// Report is a snapshot of the workflow's artifacts.
type Report struct {
	Initialized bool
	Baseline    vcs.RevisionID
	Workers     []WorkspaceInfo
	Primary     WorkspaceInfo
	Merge       vcs.RevisionID
	Conflicts   []vcs.Conflict
	Phases      []PhaseInfo
	NextPhase   orchestrator.Phase // 0 when every phase is complete
	Judge       *JudgeInfo
}

// Done reports whether nothing is left to run.
func (r *Report) Done() bool { return r.NextPhase == 0 }

// Option configures Collect.
type Option func(*collector)

type collector struct {
	client   a2a.Client
	endpoint string
	timeout  time.Duration
}

// WithJudge makes Collect query the judge agent at endpoint.
func WithJudge(client a2a.Client, endpoint string) Option {
	return func(c *collector) {
		c.client = client
		c.endpoint = endpoint
	}
}

// Collect builds a Report for cfg. It only reads: nothing is created or
// refreshed.
func Collect(ctx context.Context, v vcs.VCS, cfg orchestrator.Config, opts ...Option) (*Report, error) {
	c := &collector{timeout: 5 * time.Second}
	for _, opt := range opts {
		opt(c)
	}

	r := &Report{Initialized: true}
	if c.client != nil && c.endpoint != "" {
		r.Judge = c.judgeInfo(ctx)
	}

	mgr := workspace.NewManager(v, cfg.ProjectRoot)
	baseline, err := mgr.LocateBaseline(ctx)
	switch {
	case err == nil:
		r.Baseline = baseline
	case workspace.IsBaselineNotFound(err):
	case errors.Is(err, vcs.ErrOperationFailed):
		r.Initialized = false
	default:
		return nil, err
	}

	for _, w := range cfg.Workers {
		info := WorkspaceInfo{Worker: w.Name, Label: w.Label(), Path: cfg.Path(w.Workspace)}
		if r.Initialized {
			if err := inspect(ctx, v, &info); err != nil {
				return nil, err
			}
			_, found, err := v.FindByDescription(ctx, cfg.ProjectRoot, orchestrator.FeatureMessage(w.Name))
			if err != nil {
				return nil, err
			}
			info.Handoff = found
		}
		r.Workers = append(r.Workers, info)
	}

	r.Primary = WorkspaceInfo{Label: "primary", Path: cfg.PrimaryPath()}
	if r.Initialized {
		if err := inspect(ctx, v, &r.Primary); err != nil {
			return nil, err
		}
		merge, found, err := v.FindByDescription(ctx, cfg.ProjectRoot, convergence.MergeMessage)
		if err != nil {
			return nil, err
		}
		if found {
			r.Merge = merge
		}
		if r.Primary.Exists {
			conflicts, err := v.Conflicts(ctx, r.Primary.Path)
			if err != nil {
				return nil, err
			}
			r.Conflicts = conflicts
		}
	}

	r.Phases, r.NextPhase = phases(r)
	return r, nil
}

// inspect fills in whether info's workspace exists and its working-copy
// revision.
func inspect(ctx context.Context, v vcs.VCS, info *WorkspaceInfo) error {
	if fi, err := os.Stat(info.Path); err != nil || !fi.IsDir() {
		return nil
	}
	info.Exists = true
	tip, err := vcs.CurrentRevision(ctx, v, info.Path)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		// A directory that is not a jj workspace has no tip.
		return nil
	}
	info.Tip = tip
	return nil
}

// phases derives per-phase completion from the report and the first
// incomplete phase.
func phases(r *Report) ([]PhaseInfo, orchestrator.Phase) {
	initialized := r.Initialized && r.Baseline != "" && r.Primary.Exists
	produced := len(r.Workers) > 0
	for _, w := range r.Workers {
		initialized = initialized && w.Exists
		produced = produced && w.Handoff
	}
	converged := r.Merge != ""
	synthesized := converged && len(r.Conflicts) == 0

	done := map[orchestrator.Phase]bool{
		orchestrator.PhaseInitialization:     initialized,
		orchestrator.PhaseParallelProduction: initialized && produced,
		orchestrator.PhaseConvergence:        initialized && produced && converged,
		orchestrator.PhaseSynthesis:          initialized && produced && synthesized,
	}

	var out []PhaseInfo
	var next orchestrator.Phase
	for p := orchestrator.FirstPhase; p <= orchestrator.LastPhase; p++ {
		out = append(out, PhaseInfo{Phase: p, Name: p.String(), Complete: done[p]})
		if next == 0 && !done[p] {
			next = p
		}
	}
	return out, next
}

func (c *collector) judgeInfo(ctx context.Context) *JudgeInfo {
	info := &JudgeInfo{Endpoint: c.endpoint}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	card, err := c.client.DiscoverAgent(ctx, c.endpoint)
	if err != nil {
		info.Err = err.Error()
		return info
	}
	info.Reachable = true
	info.Agent = card.Name
	return info
}
