package main

import (
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"github.com/dusk-indust/trident/internal/orchestrator"
)

var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	failStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	waitStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	summaryStyle = lipgloss.NewStyle().Bold(true)
)

// printer writes phase headers and progress lines. Progress arrives from
// worker goroutines, so writes are serialized.
type printer struct {
	mu   sync.Mutex
	out  io.Writer
	last orchestrator.Phase
}

func newPrinter(out io.Writer) *printer {
	return &printer{out: out}
}

func (p *printer) progress(ev orchestrator.ProgressEvent) {
	line := orchestrator.FormatProgress(ev)
	switch ev.Status {
	case orchestrator.ProgressComplete:
		line = okStyle.Render(line)
	case orchestrator.ProgressFailed:
		line = failStyle.Render(line)
	case orchestrator.ProgressWaiting, orchestrator.ProgressPending:
		line = waitStyle.Render(line)
	case orchestrator.ProgressSkipped:
		line = mutedStyle.Render(line)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if ev.Phase != p.last {
		p.last = ev.Phase
		fmt.Fprintf(p.out, "\n%s\n", headerStyle.Render(orchestrator.FormatPhaseHeader(ev.Phase)))
	}
	fmt.Fprintln(p.out, line)
}

func (p *printer) summary(results []orchestrator.PhaseResult, state orchestrator.State) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var unresolved []string
	for _, r := range results {
		if r.Phase != orchestrator.PhaseSynthesis {
			continue
		}
		for _, req := range r.Requests {
			if !contains(r.Resolved, req.Path) {
				unresolved = append(unresolved, req.Path)
			}
		}
	}

	fmt.Fprintln(p.out)
	if len(unresolved) > 0 {
		fmt.Fprintln(p.out, waitStyle.Render(fmt.Sprintf("%d conflicted path(s) await a resolution:", len(unresolved))))
		for _, path := range unresolved {
			fmt.Fprintf(p.out, "  %s\n", path)
		}
		fmt.Fprintln(p.out, mutedStyle.Render("Configure judge.endpoint, or connect a judge with 'trident --serve-mcp'."))
	}
	fmt.Fprintln(p.out, summaryStyle.Render(fmt.Sprintf("Workflow complete (%s).", state)))
}

func contains(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}
