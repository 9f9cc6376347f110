// Package a2a is a minimal A2A (agent-to-agent) JSON-RPC client. trident
// uses it to hand work to remote worker agents and to ask a judge agent
// for conflict resolutions.
package a2a

import (
	"context"
	"strings"
	"time"
)

// Client sends tasks to remote agents.
type Client interface {
	// SendMessage sends a message to an agent and returns the task. With
	// blocking configuration the agent answers once the task is terminal
	// or interrupted.
	SendMessage(ctx context.Context, endpoint string, req SendMessageRequest) (*Task, error)

	// GetTask retrieves a task by ID from a specific agent.
	GetTask(ctx context.Context, endpoint string, req GetTaskRequest) (*Task, error)

	// CancelTask cancels a running task.
	CancelTask(ctx context.Context, endpoint string, req CancelTaskRequest) (*Task, error)

	// DiscoverAgent fetches the Agent Card from a well-known URI.
	DiscoverAgent(ctx context.Context, baseURL string) (*AgentCard, error)
}

// Await polls task until it is terminal or needs input, waiting interval
// between polls. A task that is already settled is returned as is.
func Await(ctx context.Context, c Client, endpoint string, task *Task, interval time.Duration) (*Task, error) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for !task.Status.State.IsSettled() {
		select {
		case <-ctx.Done():
			return task, ctx.Err()
		case <-ticker.C:
		}
		next, err := c.GetTask(ctx, endpoint, GetTaskRequest{ID: task.ID})
		if err != nil {
			return task, err
		}
		task = next
	}
	return task, nil
}

// TaskText concatenates the text parts of a task's artifacts. When the
// task has no artifacts the status message text is used instead.
func TaskText(task *Task) string {
	var b strings.Builder
	for _, a := range task.Artifacts {
		for _, p := range a.Parts {
			b.WriteString(p.Text)
		}
	}
	if b.Len() == 0 && task.Status.Message != nil {
		for _, p := range task.Status.Message.Parts {
			b.WriteString(p.Text)
		}
	}
	return b.String()
}
