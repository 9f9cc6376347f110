// Package worker hands the specification to the external workers that
// implement it. Invokers cover a local command, a human working in the
// workspace, and a remote agent reached over A2A.
package worker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/dusk-indust/trident/internal/a2a"
)

// Status is the result kind of a handoff.
type Status int

const (
	// Completed means the worker finished and its output is in the
	// workspace.
	Completed Status = iota
	// AwaitingExternalSignal means the worker is working outside trident
	// and completion has to be signalled by someone else.
	AwaitingExternalSignal
)

func (s Status) String() string {
	switch s {
	case Completed:
		return "completed"
	case AwaitingExternalSignal:
		return "awaiting external signal"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Outcome is what an Invoker reports for one handoff.
type Outcome struct {
	Status Status
	Detail string
}

// Handoff is one worker's assignment.
type Handoff struct {
	Worker    string
	Role      string
	Workspace string // absolute path of the worker's working copy
	Prompt    string
}

// Invoker hands an assignment to a worker.
type Invoker interface {
	Invoke(ctx context.Context, h Handoff) (Outcome, error)
}

// Compile-time interface checks.
var (
	_ Invoker = (*CommandInvoker)(nil)
	_ Invoker = (*InteractiveInvoker)(nil)
	_ Invoker = (*A2AInvoker)(nil)
)

// CommandInvoker runs a local command inside the worker's workspace with
// the prompt on stdin. A non-zero exit is a failed handoff.
type CommandInvoker struct {
	Command []string
	Stdout  io.Writer // defaults to discarding output
	Logger  *slog.Logger
}

// Invoke runs the command and waits for it to exit.
func (c *CommandInvoker) Invoke(ctx context.Context, h Handoff) (Outcome, error) {
	if len(c.Command) == 0 {
		return Outcome{}, &HandoffError{Worker: h.Worker, ExitCode: -1, Err: errors.New("no command configured")}
	}
	logger := c.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, c.Command[0], c.Command[1:]...)
	cmd.Dir = h.Workspace
	cmd.Stdin = strings.NewReader(h.Prompt)
	cmd.Stdout = c.Stdout
	if cmd.Stdout == nil {
		cmd.Stdout = io.Discard
	}
	cmd.Stderr = &stderr
	cmd.Env = append(os.Environ(),
		"TRIDENT_WORKER="+h.Worker,
		"TRIDENT_ROLE="+h.Role,
		"TRIDENT_WORKSPACE="+h.Workspace,
	)

	logger.Info("worker exec", "worker", h.Worker, "command", strings.Join(c.Command, " "), "dir", h.Workspace)
	if err := cmd.Run(); err != nil {
		code := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code = exitErr.ExitCode()
		}
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			err = fmt.Errorf("%w: %s", err, msg)
		}
		return Outcome{}, &HandoffError{Worker: h.Worker, ExitCode: code, Err: err}
	}
	return Outcome{Status: Completed}, nil
}

// InteractiveInvoker tells a human operator what to do and returns
// without waiting.
type InteractiveInvoker struct {
	Out io.Writer
}

// Invoke prints the instructions for h.
func (i *InteractiveInvoker) Invoke(_ context.Context, h Handoff) (Outcome, error) {
	out := i.Out
	if out == nil {
		out = os.Stdout
	}
	fmt.Fprintf(out, "\n[ACTION REQUIRED] %s: please implement the specification in %s\n", h.Worker, h.Workspace)
	fmt.Fprintln(out, "1. Open a new terminal or use your IDE.")
	fmt.Fprintf(out, "2. Go to %s\n", h.Workspace)
	fmt.Fprintln(out, "3. Implement the requirements of the specification.")
	fmt.Fprintln(out, "4. Record your changes with 'jj commit' or leave them in the working copy.")
	return Outcome{Status: AwaitingExternalSignal, Detail: "waiting for " + h.Worker}, nil
}

// A2AInvoker hands the assignment to a remote agent and waits until its
// task settles.
type A2AInvoker struct {
	client   a2a.Client
	endpoint string
	poll     time.Duration
}

// NewA2AInvoker returns an invoker for the agent at endpoint.
func NewA2AInvoker(client a2a.Client, endpoint string) *A2AInvoker {
	return &A2AInvoker{client: client, endpoint: endpoint, poll: 2 * time.Second}
}

type assignment struct {
	Worker    string `json:"worker"`
	Role      string `json:"role,omitempty"`
	Workspace string `json:"workspace"`
}

// Invoke sends the prompt and maps the task state to an Outcome.
func (a *A2AInvoker) Invoke(ctx context.Context, h Handoff) (Outcome, error) {
	data, err := a2a.DataPart(assignment{Worker: h.Worker, Role: h.Role, Workspace: h.Workspace})
	if err != nil {
		return Outcome{}, &HandoffError{Worker: h.Worker, ExitCode: -1, Err: err}
	}
	task, err := a.client.SendMessage(ctx, a.endpoint, a2a.SendMessageRequest{
		Message: a2a.Message{
			MessageID: fmt.Sprintf("trident-%s-%d", h.Worker, time.Now().UnixNano()),
			Role:      a2a.RoleUser,
			Parts:     []a2a.Part{a2a.TextPart(h.Prompt), data},
		},
		Configuration: &a2a.SendMessageConfig{Blocking: true},
	})
	if err != nil {
		return Outcome{}, &HandoffError{Worker: h.Worker, ExitCode: -1, Err: err}
	}
	task, err = a2a.Await(ctx, a.client, a.endpoint, task, a.poll)
	if err != nil {
		if ctx.Err() != nil {
			err = errors.Join(err, a.cancel(task.ID))
		}
		return Outcome{}, &HandoffError{Worker: h.Worker, ExitCode: -1, Err: err}
	}

	switch task.Status.State {
	case a2a.TaskStateCompleted:
		return Outcome{Status: Completed, Detail: "task " + task.ID}, nil
	case a2a.TaskStateInputRequired, a2a.TaskStateAuthRequired:
		return Outcome{Status: AwaitingExternalSignal, Detail: fmt.Sprintf("task %s %s", task.ID, task.Status.State)}, nil
	default:
		return Outcome{}, &HandoffError{
			Worker:   h.Worker,
			ExitCode: -1,
			Err:      fmt.Errorf("task %s ended %s: %s", task.ID, task.Status.State, a2a.TaskText(task)),
		}
	}
}

// cancel stops a task abandoned by the caller. An agent that no longer
// knows the task has nothing to stop.
func (a *A2AInvoker) cancel(id string) error {
	ctx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	_, err := a.client.CancelTask(ctx, a.endpoint, a2a.CancelTaskRequest{ID: id})
	if err != nil && !a2a.IsTaskNotFound(err) {
		return fmt.Errorf("cancel task %s: %w", id, err)
	}
	return nil
}
