package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/dusk-indust/trident/internal/a2a"
	"github.com/dusk-indust/trident/internal/config"
	"github.com/dusk-indust/trident/internal/mcptools"
	"github.com/dusk-indust/trident/internal/orchestrator"
	"github.com/dusk-indust/trident/internal/synthesis"
	"github.com/dusk-indust/trident/internal/vcs"
	"github.com/dusk-indust/trident/internal/worker"
)

// setup is everything a command needs to act on one project.
// The worker client is never time-bounded; judge.timeout applies to the
// judge client only.
type setup struct {
	project     *config.ProjectConfig
	cfg         orchestrator.Config
	vcs         vcs.VCS
	judge       string
	workers     *a2a.HTTPClient
	judgeClient *a2a.HTTPClient
}

// load reads the project config and applies flag overrides.
func load(flags cliFlags, logger *slog.Logger) (*setup, error) {
	root, err := filepath.Abs(flags.ProjectRoot)
	if err != nil {
		return nil, fmt.Errorf("resolving project root: %w", err)
	}

	var project *config.ProjectConfig
	if flags.ConfigFile != "" {
		project, err = config.LoadFile(flags.ConfigFile)
	} else {
		project, err = config.Load(root)
	}
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if project.Source != "" {
		logger.Debug("config loaded", "path", project.Source)
	} else {
		logger.Debug("no trident.yml found, using defaults", "root", root)
	}

	if flags.Spec != "" {
		project.Spec = flags.Spec
	}
	if flags.MaxParallel > 0 {
		project.MaxParallel = flags.MaxParallel
	}
	if flags.NonInteractive {
		off := false
		project.Interactive = &off
	}
	judge := project.Judge.Endpoint
	if flags.Judge != "" {
		judge = flags.Judge
	}

	cfg, err := project.Workflow(root)
	if err != nil {
		return nil, err
	}
	if flags.StartPhase != 0 || flags.EndPhase != 0 {
		cfg.Window = orchestrator.Window{
			Start: orchestrator.Phase(flags.StartPhase),
			End:   orchestrator.Phase(flags.EndPhase),
		}
	}

	timeout, err := project.JudgeTimeout()
	if err != nil {
		return nil, err
	}
	gateway := vcs.NewGateway(vcs.WithBinary(project.Binary()), vcs.WithLogger(logger))
	return &setup{
		project:     project,
		cfg:         cfg,
		vcs:         vcs.NewJJ(gateway),
		judge:       judge,
		workers:     a2a.NewHTTPClient(a2a.WithTimeout(0)),
		judgeClient: a2a.NewHTTPClient(a2a.WithTimeout(timeout)),
	}, nil
}

// workflow builds the orchestrator with the options shared by every
// command. Extra options are applied last.
func (s *setup) workflow(logger *slog.Logger, extra ...orchestrator.Option) (*orchestrator.Orchestrator, error) {
	opts := []orchestrator.Option{
		orchestrator.WithLogger(logger),
		orchestrator.WithA2AClient(s.workers),
	}
	if s.judge != "" {
		opts = append(opts, orchestrator.WithResolver(synthesis.NewA2AResolver(s.judgeClient, s.judge)))
	}
	return orchestrator.New(s.cfg, s.vcs, append(opts, extra...)...)
}

// runWorkflow executes the configured phase window.
func runWorkflow(ctx context.Context, flags cliFlags, stdout io.Writer, logger *slog.Logger) error {
	s, err := load(flags, logger)
	if err != nil {
		return err
	}

	var sig worker.Signal
	if stdinIsTerminal() {
		sig = &worker.TerminalSignal{In: os.Stdin, Out: stdout}
	} else {
		sig = &worker.LineSignal{In: os.Stdin, Out: stdout}
	}

	p := newPrinter(stdout)
	wf, err := s.workflow(logger,
		orchestrator.WithSignal(sig),
		orchestrator.WithOutput(stdout),
		orchestrator.WithProgress(p.progress),
	)
	if err != nil {
		return err
	}

	fmt.Fprintf(stdout, "Starting trident workflow (phases %s) in %s\n", s.cfg.Window, s.cfg.ProjectRoot)
	results, err := wf.Run(ctx)
	if err != nil {
		return err
	}
	p.summary(results, wf.State())
	return nil
}

// runServe exposes the workflow as MCP tools. Interactive waits are
// disabled: no operator is attached to the server's stdin.
func runServe(ctx context.Context, flags cliFlags, logger *slog.Logger) error {
	flags.NonInteractive = true
	s, err := load(flags, logger)
	if err != nil {
		return err
	}
	progress := orchestrator.NewProgressLog(0)
	wf, err := s.workflow(logger,
		orchestrator.WithOutput(io.Discard),
		orchestrator.WithProgress(progress.Record),
	)
	if err != nil {
		return err
	}

	svc := mcptools.NewWorkflowService(wf, s.vcs, mcptools.WithProgressLog(progress))
	server := mcptools.NewMCPServer(svc)
	if flags.MCPAddr != "" {
		logger.Info("serving MCP over HTTP", "addr", flags.MCPAddr)
		return mcptools.RunHTTP(ctx, server, flags.MCPAddr)
	}
	return mcptools.RunStdio(ctx, server)
}
