package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/dusk-indust/trident/internal/status"
)

func runStatus(ctx context.Context, flags cliFlags, stdout io.Writer, logger *slog.Logger) error {
	s, err := load(flags, logger)
	if err != nil {
		return err
	}

	var opts []status.Option
	if s.judge != "" {
		opts = append(opts, status.WithJudge(s.judgeClient, s.judge))
	}
	r, err := status.Collect(ctx, s.vcs, s.cfg, opts...)
	if err != nil {
		return err
	}
	printStatus(stdout, r)
	return nil
}

func printStatus(out io.Writer, r *status.Report) {
	if !r.Initialized {
		fmt.Fprintln(out, "No jj repository found.")
		fmt.Fprintln(out, "Run 'trident' to initialize the workflow.")
		return
	}

	baseline := "not recorded"
	if r.Baseline != "" {
		baseline = r.Baseline.Short()
	}
	fmt.Fprintf(out, "Baseline: %s\n\n", baseline)

	fmt.Fprintln(out, "Workspaces:")
	for _, w := range append(r.Workers, r.Primary) {
		state := mutedStyle.Render("missing")
		if w.Exists {
			state = "@ " + w.Tip.Short()
		}
		handoff := ""
		if w.Handoff {
			handoff = okStyle.Render(" [handed off]")
		}
		fmt.Fprintf(out, "  %-32s %-20s %s%s\n", w.Label, w.Path, state, handoff)
	}

	fmt.Fprintln(out)
	for _, p := range r.Phases {
		marker, label := "  ", "pending"
		if p.Complete {
			label = "complete"
		}
		if p.Phase == r.NextPhase {
			marker, label = "->", "next"
		}
		fmt.Fprintf(out, "  %s Phase %d: %-20s [%s]\n", marker, int(p.Phase), p.Name, label)
	}
	if r.Done() {
		fmt.Fprintln(out, "  All phases complete.")
	}

	if len(r.Conflicts) > 0 {
		fmt.Fprintf(out, "\nConflicts in the primary workspace:\n")
		for _, c := range r.Conflicts {
			fmt.Fprintf(out, "  %s (%d-sided)\n", c.Path, c.Arity)
		}
	}

	if r.Judge != nil {
		if r.Judge.Reachable {
			fmt.Fprintf(out, "\nJudge: %s at %s\n", r.Judge.Agent, r.Judge.Endpoint)
		} else {
			fmt.Fprintf(out, "\nJudge: %s %s\n", r.Judge.Endpoint, failStyle.Render("unreachable: "+r.Judge.Err))
		}
	}
}
