package orchestrator

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dusk-indust/trident/internal/synthesis"
	"github.com/dusk-indust/trident/internal/vcs"
	"github.com/dusk-indust/trident/internal/vcs/vcstest"
	"github.com/dusk-indust/trident/internal/worker"
	"github.com/dusk-indust/trident/internal/workspace"
)

// funcInvoker adapts a function to worker.Invoker.
type funcInvoker func(ctx context.Context, h worker.Handoff) (worker.Outcome, error)

func (f funcInvoker) Invoke(ctx context.Context, h worker.Handoff) (worker.Outcome, error) {
	return f(ctx, h)
}

// editInvoker simulates a worker writing content to path in its workspace.
func editInvoker(repo *vcstest.Repo, path, content string, seen *[]worker.Handoff, mu *sync.Mutex) worker.Invoker {
	return funcInvoker(func(_ context.Context, h worker.Handoff) (worker.Outcome, error) {
		if content != "" {
			repo.Edit(h.Workspace, path, content)
		}
		if seen != nil {
			mu.Lock()
			*seen = append(*seen, h)
			mu.Unlock()
		}
		return worker.Outcome{Status: worker.Completed}, nil
	})
}

// countingSignal records every wait.
type countingSignal struct {
	mu      sync.Mutex
	workers []string
	err     error
}

func (s *countingSignal) Wait(_ context.Context, h worker.Handoff) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.workers = append(s.workers, h.Worker)
	return s.err
}

type harness struct {
	t    *testing.T
	repo *vcstest.Repo
	cfg  Config
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "spec.md"), []byte("# Build a counter\n"), 0o644))
	return &harness{
		t:    t,
		repo: vcstest.New(),
		cfg: Config{
			ProjectRoot:      root,
			SpecPath:         "spec.md",
			PrimaryWorkspace: "ws-main",
			Workers: []WorkerDescriptor{
				{Name: "Antigravity", Workspace: "ws-claude", Role: "The Architect", Invocation: Invocation{Command: []string{"true"}}, PromptTemplate: "{{.Spec}}\nsafety"},
				{Name: "Codex", Workspace: "ws-codex", Role: "The Optimizer", Invocation: Invocation{Command: []string{"true"}}},
				{Name: "Gemini", Workspace: "ws-gemini", Role: "The Innovator", Invocation: Invocation{Command: []string{"true"}}},
			},
			Window: FullWindow,
		},
	}
}

func (h *harness) orchestrator(opts ...Option) *Orchestrator {
	h.t.Helper()
	o, err := New(h.cfg, h.repo, opts...)
	require.NoError(h.t, err)
	return o
}

// edits returns options making each worker write contents[i] to x.txt.
func (h *harness) edits(contents ...string) []Option {
	var opts []Option
	for i, w := range h.cfg.Workers {
		c := ""
		if i < len(contents) {
			c = contents[i]
		}
		opts = append(opts, WithInvoker(w.Name, editInvoker(h.repo, "x.txt", c, nil, nil)))
	}
	return opts
}

func TestNew_InvalidConfig(t *testing.T) {
	h := newHarness(t)
	h.cfg.Workers = nil
	_, err := New(h.cfg, h.repo)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestPhase1_CreatesWorkspacesAndIsIdempotent(t *testing.T) {
	h := newHarness(t)
	h.cfg.Window = Window{Start: 1, End: 1}
	o := h.orchestrator()
	ctx := context.Background()

	results, err := o.Run(ctx)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Len(t, results[0].Created, 4)
	assert.NotEmpty(t, results[0].Baseline)
	assert.Equal(t, results[0].Baseline, o.Baseline())
	assert.Equal(t, StateParallelProduction, o.State())

	for _, w := range h.cfg.Workers {
		wc, ok := h.repo.WorkingCopy(h.cfg.Path(w.Workspace))
		require.True(t, ok, w.Name)
		assert.Equal(t, []vcs.RevisionID{o.Baseline()}, h.repo.ParentsOf(wc))
	}

	// Re-running phase 1, even from a fresh orchestrator, changes nothing.
	again, err := h.orchestrator().Run(ctx)
	require.NoError(t, err)
	assert.Empty(t, again[0].Created)
	assert.Equal(t, results[0].Baseline, again[0].Baseline)
	assert.Equal(t, 1, h.repo.CountOp(vcstest.OpCommit))
	assert.Equal(t, 4, h.repo.CountOp(vcstest.OpWorkspaceAdd))
}

func TestFeatureMessage_LowercasesWorkerName(t *testing.T) {
	assert.Equal(t, "feat(codex): implementation based on specification", FeatureMessage("Codex"))
	assert.Equal(t, FeatureMessage("gemini"), FeatureMessage("Gemini"))
}

func TestConvergenceEngine_PicksUpBaselineRecordedLater(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.repo.Init(ctx, h.cfg.ProjectRoot))
	o := h.orchestrator(h.edits("claude\n", "codex\n", "gemini\n")...)

	// Asked before any baseline exists, the engine starts without one.
	engine, err := o.convergenceEngine(ctx)
	require.NoError(t, err)
	assert.Empty(t, engine.Baseline())

	_, err = o.RunWindow(ctx, Window{Start: 1, End: 3})
	require.NoError(t, err)
	require.NotEmpty(t, o.Baseline())

	again, err := o.convergenceEngine(ctx)
	require.NoError(t, err)
	assert.Same(t, engine, again)
	assert.Equal(t, o.Baseline(), again.Baseline())

	records, err := o.Conflicts(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, o.Baseline(), records[0].Base.Revision)
}

func TestPhase1_PrimaryAtProjectRootIsNotCreated(t *testing.T) {
	h := newHarness(t)
	h.cfg.PrimaryWorkspace = ""
	h.cfg.Window = Window{Start: 1, End: 1}

	results, err := h.orchestrator().Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, results[0].Created, 3)
}

func TestDivergentEditsConflictThreeWays(t *testing.T) {
	h := newHarness(t)
	h.cfg.MaxParallel = 3
	// Baseline content for x.txt, committed with the specification.
	require.NoError(t, h.repo.Init(context.Background(), h.cfg.ProjectRoot))
	h.repo.Edit(h.cfg.ProjectRoot, "x.txt", "original\n")

	var events []ProgressEvent
	var mu sync.Mutex
	opts := append(h.edits("claude\n", "codex\n", "gemini\n"), WithProgress(func(ev ProgressEvent) {
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
	}))
	o := h.orchestrator(opts...)

	results, err := o.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 4)
	assert.Equal(t, StateDone, o.State())

	merge := results[2].Merge
	require.NotNil(t, merge)
	assert.Len(t, merge.Parents, 3)
	require.Len(t, merge.Conflicts, 1)
	assert.Equal(t, vcs.Conflict{Path: "x.txt", Arity: 3}, merge.Conflicts[0])
	assert.Equal(t, "merge: integrate worker outputs", h.repo.Description(merge.Revision))

	synth := results[3]
	require.Len(t, synth.Requests, 1)
	req := synth.Requests[0]
	assert.Equal(t, "original\n", req.Base)
	assert.Equal(t, "# Build a counter\n", req.Specification)
	require.Len(t, req.Sides, 3)
	assert.Equal(t, "Antigravity (The Architect)", req.Sides[0].Label)
	assert.Equal(t, "codex\n", req.Sides[1].Content)
	assert.Contains(t, req.Guidance, "Side #3 (Gemini (The Innovator))")
	assert.Empty(t, synth.Resolved)

	mu.Lock()
	defer mu.Unlock()
	var pending bool
	for _, ev := range events {
		if ev.Phase == PhaseSynthesis && ev.Subject == "x.txt" && ev.Status == ProgressPending {
			pending = true
		}
	}
	assert.True(t, pending, "resolution request should be published as progress")
}

func TestMergeParentsAreWorkerTips(t *testing.T) {
	h := newHarness(t)
	h.cfg.MaxParallel = 3
	h.cfg.Window = Window{Start: 1, End: 3}
	o := h.orchestrator(h.edits("a\n", "b\n", "")...)

	results, err := o.Run(context.Background())
	require.NoError(t, err)

	var tips []vcs.RevisionID
	for _, w := range h.cfg.Workers {
		tip, ok := h.repo.WorkingCopy(h.cfg.Path(w.Workspace))
		require.True(t, ok)
		assert.Equal(t, FeatureMessage(w.Name), h.repo.Description(tip))
		tips = append(tips, tip)
	}
	assert.Equal(t, tips, results[2].Merge.Parents)
	assert.Equal(t, StateSynthesis, o.State())
}

func TestUnchangedWorkersNeedNoResolution(t *testing.T) {
	h := newHarness(t)
	resolver := &synthesis.StaticResolver{}
	o := h.orchestrator(append(h.edits(), WithResolver(resolver))...)

	results, err := o.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, results[2].Merge.Conflicts)
	assert.Empty(t, results[3].Conflicts)
	assert.Empty(t, resolver.Calls())
	assert.Equal(t, StateDone, o.State())
}

func TestReentryAtConvergenceRunsOnlyMerge(t *testing.T) {
	h := newHarness(t)
	h.cfg.Window = Window{Start: 1, End: 2}
	_, err := h.orchestrator(h.edits("a\n", "b\n", "c\n")...).Run(context.Background())
	require.NoError(t, err)
	adds := h.repo.CountOp(vcstest.OpWorkspaceAdd)
	inits := h.repo.CountOp(vcstest.OpInit)

	h.cfg.Window = Window{Start: 3, End: 3}
	o := h.orchestrator()
	assert.Equal(t, StateConvergence, o.State())

	results, err := o.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, PhaseConvergence, results[0].Phase)
	assert.Len(t, results[0].Conflicts, 1)
	assert.Equal(t, adds, h.repo.CountOp(vcstest.OpWorkspaceAdd))
	assert.Equal(t, inits, h.repo.CountOp(vcstest.OpInit))
	assert.Equal(t, 1, h.repo.CountOp(vcstest.OpCommit))
	assert.NotEmpty(t, o.Baseline(), "baseline should be read back from history")
	assert.Equal(t, StateSynthesis, o.State())
}

func TestMissingSpecificationCreatesNoWorkspaces(t *testing.T) {
	h := newHarness(t)
	h.cfg.SpecPath = "absent.md"
	o := h.orchestrator()

	_, err := o.Run(context.Background())
	require.Error(t, err)
	assert.True(t, workspace.IsSpecificationNotFound(err))
	assert.Zero(t, h.repo.CountOp(vcstest.OpWorkspaceAdd))
	assert.Equal(t, StateFailed, o.State())
	for _, w := range h.cfg.Workers {
		_, statErr := os.Stat(h.cfg.Path(w.Workspace))
		assert.True(t, os.IsNotExist(statErr))
	}
}

func TestReentry_PrerequisiteMissing(t *testing.T) {
	h := newHarness(t)
	h.cfg.Window = Window{Start: 3, End: 4}
	o := h.orchestrator()

	_, err := o.Run(context.Background())
	require.Error(t, err)
	assert.True(t, IsPrerequisiteMissing(err))
	assert.Equal(t, StateFailed, o.State())
	assert.Zero(t, h.repo.CountOp(vcstest.OpNew))
}

func TestPhase2_FailuresIsolatedAndJoined(t *testing.T) {
	h := newHarness(t)
	h.cfg.Window = Window{Start: 1, End: 2}

	var seen []worker.Handoff
	var mu sync.Mutex
	boom := errors.New("model quota exceeded")
	o := h.orchestrator(
		WithInvoker("Antigravity", funcInvoker(func(context.Context, worker.Handoff) (worker.Outcome, error) {
			return worker.Outcome{}, &worker.HandoffError{Worker: "Antigravity", ExitCode: 2, Err: boom}
		})),
		WithInvoker("Codex", editInvoker(h.repo, "x.txt", "codex\n", &seen, &mu)),
		WithInvoker("Gemini", funcInvoker(func(context.Context, worker.Handoff) (worker.Outcome, error) {
			return worker.Outcome{}, errors.New("unreachable")
		})),
	)

	results, err := o.Run(context.Background())
	require.Error(t, err)
	assert.True(t, worker.IsHandoffFailed(err))
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "unreachable")
	assert.Len(t, results, 1, "phase 1 result is kept")
	require.Len(t, seen, 1)
	assert.Equal(t, "Codex", seen[0].Worker)
	assert.Equal(t, StateFailed, o.State())
}

func TestPhase2_PromptAndChange(t *testing.T) {
	h := newHarness(t)
	h.cfg.Window = Window{Start: 1, End: 2}

	var seen []worker.Handoff
	var mu sync.Mutex
	var opts []Option
	for _, w := range h.cfg.Workers {
		opts = append(opts, WithInvoker(w.Name, editInvoker(h.repo, "x.txt", "", &seen, &mu)))
	}
	_, err := h.orchestrator(opts...).Run(context.Background())
	require.NoError(t, err)

	require.Len(t, seen, 3)
	assert.Equal(t, "# Build a counter\n\nsafety", seen[0].Prompt)
	assert.Contains(t, seen[1].Prompt, "[Codex] Please implement the specification in "+h.cfg.Path("ws-codex"))
	assert.Equal(t, "The Innovator", seen[2].Role)
	assert.Equal(t, 3, h.repo.CountOp(vcstest.OpUpdateStale))
}

func TestPhase2_InteractiveWaitsForSignal(t *testing.T) {
	h := newHarness(t)
	h.cfg.Window = Window{Start: 1, End: 2}
	h.cfg.Interactive = true
	h.cfg.Workers[0].Invocation = Invocation{Interactive: true}

	var out bytes.Buffer
	signal := &countingSignal{}
	o := h.orchestrator(WithSignal(signal), WithOutput(&out),
		WithInvoker("Codex", editInvoker(h.repo, "x.txt", "", nil, nil)),
		WithInvoker("Gemini", editInvoker(h.repo, "x.txt", "", nil, nil)),
	)

	results, err := o.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"Antigravity"}, signal.workers)
	assert.Equal(t, OutcomeSignalled, results[1].Workers[0].Outcome)
	assert.Equal(t, OutcomeCompleted, results[1].Workers[1].Outcome)
	assert.Contains(t, out.String(), "[ACTION REQUIRED] Antigravity")
}

func TestPhase2_NonInteractiveSkipsWait(t *testing.T) {
	h := newHarness(t)
	h.cfg.Window = Window{Start: 1, End: 2}
	h.cfg.Workers[0].Invocation = Invocation{Interactive: true}

	signal := &countingSignal{}
	o := h.orchestrator(WithSignal(signal), WithOutput(&bytes.Buffer{}),
		WithInvoker("Codex", editInvoker(h.repo, "x.txt", "", nil, nil)),
		WithInvoker("Gemini", editInvoker(h.repo, "x.txt", "", nil, nil)),
	)

	results, err := o.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, signal.workers)
	assert.Equal(t, OutcomeSkipped, results[1].Workers[0].Outcome)
}

func TestPhase2_SignalAbort(t *testing.T) {
	h := newHarness(t)
	h.cfg.Window = Window{Start: 1, End: 2}
	h.cfg.Interactive = true
	h.cfg.Workers[0].Invocation = Invocation{Interactive: true}

	signal := &countingSignal{err: worker.ErrAborted}
	o := h.orchestrator(WithSignal(signal), WithOutput(&bytes.Buffer{}),
		WithInvoker("Codex", editInvoker(h.repo, "x.txt", "", nil, nil)),
		WithInvoker("Gemini", editInvoker(h.repo, "x.txt", "", nil, nil)),
	)

	_, err := o.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, worker.ErrAborted)
	assert.True(t, worker.IsHandoffFailed(err))
}

func TestPhase3_MergeFailureIsFatal(t *testing.T) {
	h := newHarness(t)
	h.cfg.Window = Window{Start: 1, End: 2}
	_, err := h.orchestrator(h.edits()...).Run(context.Background())
	require.NoError(t, err)

	boom := errors.New("jj exploded")
	h.repo.FailOn(vcstest.OpNew, boom)
	h.cfg.Window = Window{Start: 3, End: 4}
	o := h.orchestrator()

	results, err := o.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, results)
	assert.Equal(t, StateFailed, o.State())
}

func TestPhase3_RefreshFailuresAreIgnored(t *testing.T) {
	h := newHarness(t)
	h.cfg.Window = Window{Start: 1, End: 3}
	o := h.orchestrator(h.edits("a\n", "b\n")...)
	h.repo.FailOn(vcstest.OpUpdateStale, errors.New("stale"))

	results, err := o.Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, results[2].Merge.Parents, 3)
}

func TestPhase4_ResolvesWithResolver(t *testing.T) {
	h := newHarness(t)
	resolver := &synthesis.StaticResolver{Contents: map[string]string{"x.txt": "best of all\n"}}
	o := h.orchestrator(append(h.edits("a\n", "b\n", "c\n"), WithResolver(resolver))...)

	results, err := o.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"x.txt"}, results[3].Resolved)
	assert.Equal(t, []string{"x.txt"}, resolver.Calls())

	data, err := os.ReadFile(filepath.Join(h.cfg.PrimaryPath(), "x.txt"))
	require.NoError(t, err)
	assert.Equal(t, "best of all\n", string(data))

	remaining, err := o.Conflicts(context.Background())
	require.NoError(t, err)
	assert.Empty(t, remaining)
}

func TestPhase4_IncompleteResolutionFails(t *testing.T) {
	h := newHarness(t)
	h.repo.KeepConflicted("x.txt")
	resolver := &synthesis.StaticResolver{Contents: map[string]string{"x.txt": "merged\n"}}
	o := h.orchestrator(append(h.edits("a\n", "b\n"), WithResolver(resolver))...)

	_, err := o.Run(context.Background())
	require.Error(t, err)
	assert.True(t, synthesis.IsResolutionIncomplete(err))
	assert.Equal(t, StateFailed, o.State())
}

func TestRequestsAndApply(t *testing.T) {
	h := newHarness(t)
	h.cfg.Window = Window{Start: 1, End: 3}
	o := h.orchestrator(h.edits("a\n", "b\n")...)
	_, err := o.Run(context.Background())
	require.NoError(t, err)

	reqs, err := o.Requests(context.Background())
	require.NoError(t, err)
	require.Len(t, reqs, 1)
	assert.Len(t, reqs[0].Sides, 2)

	err = o.Apply(context.Background(), "x.txt", "<<<<<<< nope\n")
	assert.ErrorIs(t, err, synthesis.ErrResidualMarkers)

	require.NoError(t, o.Apply(context.Background(), "x.txt", "a and b\n"))
	reqs, err = o.Requests(context.Background())
	require.NoError(t, err)
	assert.Empty(t, reqs)
}
