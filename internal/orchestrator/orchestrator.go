package orchestrator

import (
	"fmt"

	"github.com/dusk-indust/trident/internal/convergence"
	"github.com/dusk-indust/trident/internal/synthesis"
	"github.com/dusk-indust/trident/internal/vcs"
)

// Phase identifies a workflow phase (1-4).
type Phase int

const (
	PhaseInitialization     Phase = 1
	PhaseParallelProduction Phase = 2
	PhaseConvergence        Phase = 3
	PhaseSynthesis          Phase = 4
)

// FirstPhase and LastPhase bound every Window.
const (
	FirstPhase = PhaseInitialization
	LastPhase  = PhaseSynthesis
)

func (p Phase) String() string {
	switch p {
	case PhaseInitialization:
		return "initialization"
	case PhaseParallelProduction:
		return "parallel-production"
	case PhaseConvergence:
		return "convergence"
	case PhaseSynthesis:
		return "synthesis"
	default:
		return "unknown"
	}
}

// Valid reports whether p is one of the four phases.
func (p Phase) Valid() bool {
	return p >= FirstPhase && p <= LastPhase
}

// State is the position of the workflow state machine.
type State int

const (
	StateInit State = iota
	StateParallelProduction
	StateConvergence
	StateSynthesis
	StateDone
	StateFailed
)

func (s State) String() string {
	names := [...]string{"init", "parallel-production", "convergence", "synthesis", "done", "failed"}
	if int(s) >= 0 && int(s) < len(names) {
		return names[s]
	}
	return "unknown"
}

// stateBefore returns the state the machine is in while about to run p.
func stateBefore(p Phase) State {
	switch p {
	case PhaseInitialization:
		return StateInit
	case PhaseParallelProduction:
		return StateParallelProduction
	case PhaseConvergence:
		return StateConvergence
	case PhaseSynthesis:
		return StateSynthesis
	default:
		return StateDone
	}
}

// Window is the inclusive range of phases a run executes.
type Window struct {
	Start Phase
	End   Phase
}

// FullWindow runs every phase.
var FullWindow = Window{Start: FirstPhase, End: LastPhase}

// Contains reports whether p lies inside the window.
func (w Window) Contains(p Phase) bool {
	return p >= w.Start && p <= w.End
}

// Validate checks 1 <= Start <= End <= 4.
func (w Window) Validate() error {
	if !w.Start.Valid() || !w.End.Valid() {
		return invalidf("phase window [%d,%d] outside [%d,%d]", w.Start, w.End, FirstPhase, LastPhase)
	}
	if w.Start > w.End {
		return invalidf("phase window start %d after end %d", w.Start, w.End)
	}
	return nil
}

func (w Window) String() string {
	return fmt.Sprintf("[%d,%d]", int(w.Start), int(w.End))
}

// Worker outcomes recorded in phase 2.
const (
	OutcomeCompleted = "completed" // the invoker reported completion
	OutcomeSignalled = "signalled" // an interactive worker signalled completion
	OutcomeSkipped   = "skipped"   // the wait was skipped in non-interactive mode
)

// WorkerResult is the outcome of one worker's handoff in phase 2.
type WorkerResult struct {
	Worker  string
	Outcome string
	Detail  string
	Err     error
}

// PhaseResult holds what a completed phase produced.
type PhaseResult struct {
	Phase    Phase
	Baseline vcs.RevisionID

	// Phase 1.
	Created []string // workspace paths created by this run

	// Phase 2.
	Workers []WorkerResult

	// Phase 3.
	Merge *convergence.MergeResult

	// Phase 4.
	Conflicts []vcs.Conflict
	Requests  []synthesis.ResolutionRequest
	Resolved  []string
}

// ProgressEvent is emitted to the user during workflow execution.
type ProgressEvent struct {
	Phase   Phase
	Subject string // worker name, workspace or path
	Status  ProgressStatus
	Message string
}

// ProgressStatus is the state of one subject within a phase.
type ProgressStatus string

const (
	ProgressPending  ProgressStatus = "pending"
	ProgressWorking  ProgressStatus = "working"
	ProgressWaiting  ProgressStatus = "waiting"
	ProgressSkipped  ProgressStatus = "skipped"
	ProgressComplete ProgressStatus = "complete"
	ProgressFailed   ProgressStatus = "failed"
)
