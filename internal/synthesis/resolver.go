package synthesis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dusk-indust/trident/internal/a2a"
)

// Resolver produces the merged content of one conflicted path.
type Resolver interface {
	Resolve(ctx context.Context, req ResolutionRequest) (string, error)
}

// ErrJudgeFailed is returned when the judge agent ends a task without a
// resolution.
var ErrJudgeFailed = errors.New("judge did not produce a resolution")

// Compile-time interface checks.
var (
	_ Resolver = (*A2AResolver)(nil)
	_ Resolver = (*StaticResolver)(nil)
)

// A2AResolver asks a judge agent over A2A JSON-RPC for each resolution.
// The request goes out as the guidance text plus the request as data; the
// judge's text reply is the resolved content.
type A2AResolver struct {
	client   a2a.Client
	endpoint string
	poll     time.Duration
}

// NewA2AResolver returns a resolver talking to the judge at endpoint.
func NewA2AResolver(client a2a.Client, endpoint string) *A2AResolver {
	return &A2AResolver{client: client, endpoint: endpoint, poll: time.Second}
}

// Resolve sends req to the judge and waits for its answer.
func (r *A2AResolver) Resolve(ctx context.Context, req ResolutionRequest) (string, error) {
	data, err := a2a.DataPart(req)
	if err != nil {
		return "", fmt.Errorf("synthesis: encode request: %w", err)
	}
	msg := a2a.Message{
		MessageID: fmt.Sprintf("trident-resolve-%d", time.Now().UnixNano()),
		Role:      a2a.RoleUser,
		Parts:     []a2a.Part{a2a.TextPart(req.Guidance), data},
	}

	task, err := r.client.SendMessage(ctx, r.endpoint, a2a.SendMessageRequest{
		Message:       msg,
		Configuration: &a2a.SendMessageConfig{Blocking: true, AcceptedOutputModes: []string{"text/plain"}},
	})
	if err != nil {
		return "", fmt.Errorf("synthesis: send to judge: %w", err)
	}
	task, err = a2a.Await(ctx, r.client, r.endpoint, task, r.poll)
	if err != nil {
		return "", fmt.Errorf("synthesis: wait for judge: %w", err)
	}
	if task.Status.State != a2a.TaskStateCompleted {
		return "", fmt.Errorf("synthesis: %s: %w (task %s %s)", req.Path, ErrJudgeFailed, task.ID, task.Status.State)
	}

	text := a2a.TaskText(task)
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("synthesis: %s: %w (empty reply)", req.Path, ErrJudgeFailed)
	}
	return stripFence(text), nil
}

// stripFence removes one fenced code block wrapping the whole reply.
func stripFence(s string) string {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "```") || !strings.HasSuffix(trimmed, "```") || len(trimmed) < 6 {
		return s
	}
	body := strings.TrimSuffix(trimmed, "```")
	nl := strings.IndexByte(body, '\n')
	if nl < 0 {
		return s
	}
	return body[nl+1:]
}

// ErrNoStaticResolution is returned by StaticResolver for unknown paths.
var ErrNoStaticResolution = errors.New("no static resolution for path")

// StaticResolver answers from fixed per-path content. It records every
// path it was asked about.
type StaticResolver struct {
	Contents map[string]string
	Errors   map[string]error

	mu    sync.Mutex
	calls []string
}

// Resolve returns the configured content or error for req.Path.
func (r *StaticResolver) Resolve(_ context.Context, req ResolutionRequest) (string, error) {
	r.mu.Lock()
	r.calls = append(r.calls, req.Path)
	r.mu.Unlock()

	if err, ok := r.Errors[req.Path]; ok {
		return "", err
	}
	content, ok := r.Contents[req.Path]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNoStaticResolution, req.Path)
	}
	return content, nil
}

// Calls returns the paths resolved so far, in order.
func (r *StaticResolver) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}
