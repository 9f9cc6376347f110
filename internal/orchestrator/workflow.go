package orchestrator

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/dusk-indust/trident/internal/a2a"
	"github.com/dusk-indust/trident/internal/convergence"
	"github.com/dusk-indust/trident/internal/prompts"
	"github.com/dusk-indust/trident/internal/synthesis"
	"github.com/dusk-indust/trident/internal/vcs"
	"github.com/dusk-indust/trident/internal/worker"
	"github.com/dusk-indust/trident/internal/workspace"
)

// Orchestrator drives the four-phase convergence workflow for one
// configuration. It owns the baseline revision: set once by phase 1, or
// read back from history when a run starts later.
type Orchestrator struct {
	cfg      Config
	vcs      vcs.VCS
	ws       *workspace.Manager
	invokers map[string]worker.Invoker
	signal   worker.Signal
	resolver synthesis.Resolver
	client   a2a.Client
	out      io.Writer
	logger   *slog.Logger
	progress func(ProgressEvent)

	runMu sync.Mutex // one Run at a time

	mu       sync.Mutex // guards the fields below
	state    State
	baseline vcs.RevisionID
	engine   *convergence.Engine
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the orchestrator's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithInvoker overrides the invoker of the named worker.
func WithInvoker(name string, inv worker.Invoker) Option {
	return func(o *Orchestrator) { o.invokers[name] = inv }
}

// WithSignal sets how interactive runs wait for out-of-band workers.
func WithSignal(s worker.Signal) Option {
	return func(o *Orchestrator) { o.signal = s }
}

// WithResolver enables automatic conflict resolution in phase 4.
func WithResolver(r synthesis.Resolver) Option {
	return func(o *Orchestrator) { o.resolver = r }
}

// WithA2AClient sets the client used for workers with an endpoint.
func WithA2AClient(c a2a.Client) Option {
	return func(o *Orchestrator) { o.client = c }
}

// WithOutput sets where interactive instructions are printed.
func WithOutput(w io.Writer) Option {
	return func(o *Orchestrator) { o.out = w }
}

// WithProgress registers a callback for progress events. It is called
// from worker goroutines and must be safe for concurrent use.
func WithProgress(fn func(ProgressEvent)) Option {
	return func(o *Orchestrator) { o.progress = fn }
}

// New validates cfg and returns an Orchestrator using v for all VCS
// access.
func New(cfg Config, v vcs.VCS, opts ...Option) (*Orchestrator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := &Orchestrator{
		cfg:      cfg,
		vcs:      v,
		invokers: make(map[string]worker.Invoker),
		out:      os.Stdout,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		state:    stateBefore(cfg.Window.Start),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.ws = workspace.NewManager(v, cfg.ProjectRoot, workspace.WithLogger(o.logger))
	for _, w := range cfg.Workers {
		if _, ok := o.invokers[w.Name]; !ok {
			o.invokers[w.Name] = o.defaultInvoker(w)
		}
	}
	return o, nil
}

func (o *Orchestrator) defaultInvoker(w WorkerDescriptor) worker.Invoker {
	switch {
	case w.Invocation.Interactive:
		return &worker.InteractiveInvoker{Out: o.out}
	case w.Invocation.Endpoint != "":
		client := o.client
		if client == nil {
			client = a2a.NewHTTPClient(a2a.WithTimeout(0))
		}
		return worker.NewA2AInvoker(client, w.Invocation.Endpoint)
	default:
		return &worker.CommandInvoker{Command: w.Invocation.Command, Logger: o.logger}
	}
}

// Config returns the orchestrator's configuration.
func (o *Orchestrator) Config() Config { return o.cfg }

// State returns the current state of the workflow.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Baseline returns the baseline revision, empty until known.
func (o *Orchestrator) Baseline() vcs.RevisionID {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.baseline
}

func (o *Orchestrator) setState(s State) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()
}

func (o *Orchestrator) emit(ev ProgressEvent) {
	if o.progress != nil {
		o.progress(ev)
	}
}

// Run executes every phase of the configured window. Phases outside the
// window are skipped. The first failing phase stops the run and leaves
// the state machine in StateFailed.
func (o *Orchestrator) Run(ctx context.Context) ([]PhaseResult, error) {
	return o.RunWindow(ctx, o.cfg.Window)
}

// RunWindow is Run with an explicit phase window.
func (o *Orchestrator) RunWindow(ctx context.Context, w Window) ([]PhaseResult, error) {
	o.runMu.Lock()
	defer o.runMu.Unlock()

	router := NewRouter(o.cfg)
	router.RegisterExecutor(PhaseInitialization, PhaseFunc(o.initialize))
	router.RegisterExecutor(PhaseParallelProduction, PhaseFunc(o.produce))
	router.RegisterExecutor(PhaseConvergence, PhaseFunc(o.converge))
	router.RegisterExecutor(PhaseSynthesis, PhaseFunc(o.synthesize))

	o.logger.Info("workflow starting", "window", w.String(), "workers", len(o.cfg.Workers))
	results, err := router.RouteRange(ctx, w, func(p Phase) {
		o.setState(stateBefore(p))
		o.logger.Info("phase starting", "phase", int(p), "name", p.String())
	})
	if err != nil {
		o.setState(StateFailed)
		o.logger.Error("workflow failed", "err", err)
		return results, err
	}

	next := w.End + 1
	o.setState(stateBefore(next))
	o.logger.Info("workflow complete", "state", o.State().String())
	return results, nil
}

// --- Phase 1 ---

func (o *Orchestrator) initialize(ctx context.Context, cfg Config) (*PhaseResult, error) {
	if err := o.ws.EnsureRepository(ctx); err != nil {
		return nil, err
	}
	baseline, err := o.ws.RecordSpecification(ctx, cfg.SpecPath)
	if err != nil {
		return nil, err
	}
	o.mu.Lock()
	if o.baseline == "" {
		o.baseline = baseline
	}
	baseline = o.baseline
	o.mu.Unlock()
	o.emit(ProgressEvent{Phase: PhaseInitialization, Subject: "baseline", Status: ProgressComplete, Message: baseline.Short()})

	result := &PhaseResult{Phase: PhaseInitialization, Baseline: baseline}
	paths := make([]string, 0, len(cfg.Workers)+1)
	for _, w := range cfg.Workers {
		paths = append(paths, cfg.Path(w.Workspace))
	}
	if primary := cfg.PrimaryPath(); primary != cfg.Path(".") {
		paths = append(paths, primary)
	}

	for _, p := range paths {
		created, err := o.ws.CreateWorkspace(ctx, p, baseline)
		if err != nil {
			return result, err
		}
		status, msg := ProgressSkipped, "exists"
		if created {
			status, msg = ProgressComplete, "created at "+baseline.Short()
			result.Created = append(result.Created, p)
		}
		o.emit(ProgressEvent{Phase: PhaseInitialization, Subject: p, Status: status, Message: msg})
	}
	return result, nil
}

// --- Phase 2 ---

// FeatureMessage is the description of the change a worker implements in.
// The scope is the lowercased worker name.
func FeatureMessage(name string) string {
	return fmt.Sprintf("feat(%s): implementation based on specification", strings.ToLower(name))
}

func (o *Orchestrator) produce(ctx context.Context, cfg Config) (*PhaseResult, error) {
	spec, err := o.readSpec()
	if err != nil {
		return nil, err
	}

	jobs := make([]WorkerJob, len(cfg.Workers))
	for i, w := range cfg.Workers {
		jobs[i] = WorkerJob{Worker: w.Name, Run: func(ctx context.Context) (WorkerResult, error) {
			return o.handOff(ctx, w, spec)
		}}
	}

	results, err := NewFanOut(cfg.Parallelism(), o.progress).Run(ctx, jobs)
	return &PhaseResult{Phase: PhaseParallelProduction, Baseline: o.Baseline(), Workers: results}, err
}

func (o *Orchestrator) handOff(ctx context.Context, w WorkerDescriptor, spec string) (WorkerResult, error) {
	dir := o.cfg.Path(w.Workspace)
	o.ws.Refresh(ctx, dir)

	fail := func(err error) (WorkerResult, error) {
		if worker.IsHandoffFailed(err) {
			return WorkerResult{}, err
		}
		return WorkerResult{}, &worker.HandoffError{Worker: w.Name, ExitCode: -1, Err: err}
	}

	if err := o.vcs.NewChange(ctx, dir, FeatureMessage(w.Name)); err != nil {
		return fail(err)
	}

	tmpl := w.PromptTemplate
	if tmpl == "" {
		tmpl = prompts.DefaultWorkerTemplate
	}
	prompt, err := worker.RenderPrompt(tmpl, worker.PromptData{Spec: spec, Worker: w.Name, Role: w.Role, Workspace: dir})
	if err != nil {
		return fail(err)
	}

	h := worker.Handoff{Worker: w.Name, Role: w.Role, Workspace: dir, Prompt: prompt}
	outcome, err := o.invokers[w.Name].Invoke(ctx, h)
	if err != nil {
		return fail(err)
	}
	if outcome.Status == worker.Completed {
		return WorkerResult{Outcome: OutcomeCompleted, Detail: outcome.Detail}, nil
	}

	if !o.cfg.Interactive || o.signal == nil {
		o.logger.Info("skipping completion wait", "worker", w.Name, "interactive", o.cfg.Interactive)
		return WorkerResult{Outcome: OutcomeSkipped, Detail: "completion assumed"}, nil
	}
	o.emit(ProgressEvent{Phase: PhaseParallelProduction, Subject: w.Name, Status: ProgressWaiting, Message: dir})
	if err := o.signal.Wait(ctx, h); err != nil {
		return fail(err)
	}
	return WorkerResult{Outcome: OutcomeSignalled, Detail: outcome.Detail}, nil
}

func (o *Orchestrator) readSpec() (string, error) {
	path := o.cfg.Path(o.cfg.SpecPath)
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("orchestrator: %w: %s", workspace.ErrSpecificationNotFound, path)
	}
	return string(data), nil
}

// --- Phase 3 ---

func (o *Orchestrator) converge(ctx context.Context, cfg Config) (*PhaseResult, error) {
	var refresh errgroup.Group
	for _, w := range cfg.Workers {
		dir := cfg.Path(w.Workspace)
		refresh.Go(func() error {
			o.ws.Refresh(ctx, dir)
			return nil
		})
	}
	_ = refresh.Wait()

	tips, err := o.workerTips(ctx)
	if err != nil {
		return nil, err
	}
	o.ws.Refresh(ctx, cfg.PrimaryPath())

	engine, err := o.convergenceEngine(ctx)
	if err != nil {
		return nil, err
	}
	merge, err := engine.Merge(ctx, tips)
	if err != nil {
		return nil, err
	}

	msg := fmt.Sprintf("%s with %d parents, %d conflicts", merge.Revision.Short(), len(merge.Parents), len(merge.Conflicts))
	o.emit(ProgressEvent{Phase: PhaseConvergence, Subject: "merge", Status: ProgressComplete, Message: msg})
	for _, c := range merge.Conflicts {
		o.emit(ProgressEvent{Phase: PhaseConvergence, Subject: c.Path, Status: ProgressPending, Message: fmt.Sprintf("%d-sided conflict", c.Arity)})
	}
	return &PhaseResult{Phase: PhaseConvergence, Baseline: engine.Baseline(), Merge: merge, Conflicts: merge.Conflicts}, nil
}

// workerTips reads the working-copy revision of every worker workspace,
// in descriptor order.
func (o *Orchestrator) workerTips(ctx context.Context) ([]vcs.RevisionID, error) {
	tips := make([]vcs.RevisionID, len(o.cfg.Workers))
	g, gctx := errgroup.WithContext(ctx)
	for i, w := range o.cfg.Workers {
		dir := o.cfg.Path(w.Workspace)
		g.Go(func() error {
			tip, err := vcs.CurrentRevision(gctx, o.vcs, dir)
			if err != nil {
				return fmt.Errorf("orchestrator: read tip of %s: %w", w.Name, err)
			}
			tips[i] = tip
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return tips, nil
}

// convergenceEngine returns the engine for the primary workspace, looking
// the baseline up in history when this run did not record it. A missing
// baseline is tolerated: conflict sides are then reported in full until a
// later lookup or phase 1 finds one.
func (o *Orchestrator) convergenceEngine(ctx context.Context) (*convergence.Engine, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.baseline == "" {
		rev, err := o.ws.LocateBaseline(ctx)
		switch {
		case err == nil:
			o.baseline = rev
		case workspace.IsBaselineNotFound(err):
			o.logger.Warn("no recorded baseline; conflict sides will not be filtered")
		default:
			return nil, err
		}
	}
	if o.engine == nil {
		o.engine = convergence.NewEngine(o.vcs, o.cfg.PrimaryPath(),
			convergence.WithBaseline(o.baseline),
			convergence.WithLogger(o.logger),
		)
	} else if o.engine.Baseline() != o.baseline {
		o.engine.SetBaseline(o.baseline)
	}
	return o.engine, nil
}

// --- Phase 4 ---

func (o *Orchestrator) synthesize(ctx context.Context, _ Config) (*PhaseResult, error) {
	engine, err := o.convergenceEngine(ctx)
	if err != nil {
		return nil, err
	}
	result := &PhaseResult{Phase: PhaseSynthesis, Baseline: engine.Baseline()}

	conflicts, err := engine.List(ctx)
	if err != nil {
		return nil, err
	}
	result.Conflicts = conflicts
	if len(conflicts) == 0 {
		o.emit(ProgressEvent{Phase: PhaseSynthesis, Subject: "conflicts", Status: ProgressComplete, Message: "none to resolve"})
		return result, nil
	}

	driver, records, err := o.synthesis(ctx, engine)
	if err != nil {
		return nil, err
	}
	report, err := driver.Run(ctx, records)
	if report != nil {
		result.Requests = report.Requests
		result.Resolved = report.Resolved
		for _, req := range report.Requests {
			status, msg := ProgressPending, fmt.Sprintf("resolution request with %d sides", len(req.Sides))
			if containsPath(report.Resolved, req.Path) {
				status, msg = ProgressComplete, "resolved"
			}
			o.emit(ProgressEvent{Phase: PhaseSynthesis, Subject: req.Path, Status: status, Message: msg})
		}
	}
	return result, err
}

func (o *Orchestrator) synthesis(ctx context.Context, engine *convergence.Engine) (*synthesis.Driver, []convergence.ConflictRecord, error) {
	spec, err := o.readSpec()
	if err != nil {
		return nil, nil, err
	}
	labels, err := o.labels(ctx)
	if err != nil {
		return nil, nil, err
	}
	records, err := engine.Conflicts(ctx, labels)
	if err != nil {
		return nil, nil, err
	}
	opts := []synthesis.DriverOption{synthesis.WithLogger(o.logger)}
	if o.resolver != nil {
		opts = append(opts, synthesis.WithResolver(o.resolver))
	}
	return synthesis.NewDriver(engine, spec, opts...), records, nil
}

// labels maps each worker's current tip to its label. Workers whose
// workspace cannot be read are left out and fall back to revision ids.
func (o *Orchestrator) labels(ctx context.Context) (map[vcs.RevisionID]string, error) {
	labels := make(map[vcs.RevisionID]string, len(o.cfg.Workers))
	for _, w := range o.cfg.Workers {
		tip, err := vcs.CurrentRevision(ctx, o.vcs, o.cfg.Path(w.Workspace))
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			o.logger.Debug("no tip for label", "worker", w.Name, "err", err)
			continue
		}
		labels[tip] = w.Label()
	}
	return labels, nil
}

// Conflicts returns a record for every conflicted path of the primary
// workspace.
func (o *Orchestrator) Conflicts(ctx context.Context) ([]convergence.ConflictRecord, error) {
	engine, err := o.convergenceEngine(ctx)
	if err != nil {
		return nil, err
	}
	labels, err := o.labels(ctx)
	if err != nil {
		return nil, err
	}
	return engine.Conflicts(ctx, labels)
}

// Requests builds the resolution request of every conflicted path.
func (o *Orchestrator) Requests(ctx context.Context) ([]synthesis.ResolutionRequest, error) {
	engine, err := o.convergenceEngine(ctx)
	if err != nil {
		return nil, err
	}
	driver, records, err := o.synthesis(ctx, engine)
	if err != nil {
		return nil, err
	}
	reqs := make([]synthesis.ResolutionRequest, 0, len(records))
	for _, rec := range records {
		req, err := driver.BuildRequest(rec)
		if err != nil {
			return nil, err
		}
		reqs = append(reqs, req)
	}
	return reqs, nil
}

// Apply writes content as the resolution of path in the primary
// workspace and verifies the path is no longer conflicted.
func (o *Orchestrator) Apply(ctx context.Context, path, content string) error {
	engine, err := o.convergenceEngine(ctx)
	if err != nil {
		return err
	}
	return synthesis.NewDriver(engine, "", synthesis.WithLogger(o.logger)).Apply(ctx, path, content)
}

func containsPath(paths []string, p string) bool {
	for _, x := range paths {
		if x == p {
			return true
		}
	}
	return false
}
