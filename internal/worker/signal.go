package worker

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Signal blocks until an out-of-band worker reports completion. Waits are
// serialized: only one worker is waited on at a time.
type Signal interface {
	Wait(ctx context.Context, h Handoff) error
}

// Compile-time interface checks.
var (
	_ Signal = (*LineSignal)(nil)
	_ Signal = (*TerminalSignal)(nil)
)

// LineSignal waits for a line on In. It suits non-terminal input such as
// a pipe. One goroutine owns In for the signal's lifetime, so a wait that
// was cancelled leaves no reader behind; a line arriving between waits
// completes the next one.
type LineSignal struct {
	In  io.Reader
	Out io.Writer

	mu    sync.Mutex
	once  sync.Once
	lines chan struct{}
	err   error // read error, set before lines is closed
}

func (s *LineSignal) start() {
	s.lines = make(chan struct{})
	go func() {
		r := bufio.NewReader(s.In)
		for {
			if _, err := r.ReadString('\n'); err != nil {
				s.err = err
				close(s.lines)
				return
			}
			s.lines <- struct{}{}
		}
	}()
}

// Wait prompts on Out and returns once a line is read.
func (s *LineSignal) Wait(ctx context.Context, h Handoff) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.once.Do(s.start)
	if s.Out != nil {
		fmt.Fprintf(s.Out, "Press Enter when %s has finished the implementation...\n", h.Worker)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case _, ok := <-s.lines:
		if ok {
			return nil
		}
		if s.err == io.EOF {
			return fmt.Errorf("worker: waiting for %s: %w", h.Worker, ErrAborted)
		}
		return fmt.Errorf("worker: read completion signal: %w", s.err)
	}
}

// TerminalSignal shows a spinner on a terminal until the operator presses
// enter. ctrl+c aborts the wait.
type TerminalSignal struct {
	In  io.Reader
	Out io.Writer

	mu sync.Mutex
}

// Wait runs the waiting screen for h.
func (s *TerminalSignal) Wait(ctx context.Context, h Handoff) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	opts := []tea.ProgramOption{tea.WithContext(ctx)}
	if s.In != nil {
		opts = append(opts, tea.WithInput(s.In))
	}
	if s.Out != nil {
		opts = append(opts, tea.WithOutput(s.Out))
	}
	final, err := tea.NewProgram(newWaitModel(h), opts...).Run()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if err != nil {
		return fmt.Errorf("worker: completion prompt: %w", err)
	}
	if m, ok := final.(waitModel); ok && m.aborted {
		return fmt.Errorf("worker: waiting for %s: %w", h.Worker, ErrAborted)
	}
	return nil
}

type waitKeys struct {
	Done  key.Binding
	Abort key.Binding
}

var defaultWaitKeys = waitKeys{
	Done: key.NewBinding(
		key.WithKeys("enter"),
		key.WithHelp("enter", "done"),
	),
	Abort: key.NewBinding(
		key.WithKeys("ctrl+c", "esc"),
		key.WithHelp("ctrl+c", "abort"),
	),
}

var (
	waitWorkerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	waitHelpStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	waitDoneStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
)

// waitModel is the bubbletea model of the waiting screen.
type waitModel struct {
	spinner spinner.Model
	keys    waitKeys
	handoff Handoff
	done    bool
	aborted bool
}

func newWaitModel(h Handoff) waitModel {
	return waitModel{
		spinner: spinner.New(spinner.WithSpinner(spinner.Dot)),
		keys:    defaultWaitKeys,
		handoff: h,
	}
}

func (m waitModel) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m waitModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Done):
			m.done = true
			return m, tea.Quit
		case key.Matches(msg, m.keys.Abort):
			m.aborted = true
			return m, tea.Quit
		}
		return m, nil
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m waitModel) View() string {
	name := waitWorkerStyle.Render(m.handoff.Worker)
	switch {
	case m.done:
		return waitDoneStyle.Render("✓ ") + name + " finished\n"
	case m.aborted:
		return "aborted while waiting for " + name + "\n"
	}
	help := strings.Join([]string{
		m.keys.Done.Help().Key + " " + m.keys.Done.Help().Desc,
		m.keys.Abort.Help().Key + " " + m.keys.Abort.Help().Desc,
	}, " • ")
	return fmt.Sprintf("%s Waiting for %s in %s\n%s\n", m.spinner.View(), name, m.handoff.Workspace, waitHelpStyle.Render(help))
}
