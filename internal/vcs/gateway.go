// Package vcs is the only path through which trident touches version
// control. Gateway runs the jj binary against a working-copy directory and
// turns non-zero exits into *OperationError; JJ layers the typed operations
// the convergence workflow needs on top of it.
package vcs

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
)

// Result is the captured output of one jj invocation.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Runner executes a single VCS command in a working directory.
type Runner interface {
	Execute(ctx context.Context, dir string, args ...string) (Result, error)
}

// Compile-time interface check.
var _ Runner = (*Gateway)(nil)

// Gateway runs jj commands. Invocations against the same directory are
// serialized; distinct directories run concurrently.
type Gateway struct {
	binary     string
	globalArgs []string
	env        []string
	logger     *slog.Logger

	locks sync.Map // cleaned dir -> *sync.Mutex
}

// GatewayOption configures a Gateway.
type GatewayOption func(*Gateway)

// WithBinary overrides the jj executable (default "jj").
func WithBinary(path string) GatewayOption {
	return func(g *Gateway) {
		if path != "" {
			g.binary = path
		}
	}
}

// WithLogger sets the logger that records every invocation.
func WithLogger(logger *slog.Logger) GatewayOption {
	return func(g *Gateway) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// WithEnv appends KEY=VALUE pairs to the inherited environment.
func WithEnv(env ...string) GatewayOption {
	return func(g *Gateway) {
		g.env = append(g.env, env...)
	}
}

// NewGateway creates a Gateway for the jj binary.
func NewGateway(opts ...GatewayOption) *Gateway {
	g := &Gateway{
		binary:     "jj",
		globalArgs: []string{"--color=never", "--no-pager"},
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Binary returns the jj executable the gateway invokes.
func (g *Gateway) Binary() string {
	return g.binary
}

// Execute runs jj with args in dir. A non-zero exit returns the captured
// output together with an *OperationError.
func (g *Gateway) Execute(ctx context.Context, dir string, args ...string) (Result, error) {
	unlock := g.lock(dir)
	defer unlock()

	fullArgs := append(append([]string{}, g.globalArgs...), args...)
	command := append([]string{g.binary}, args...)

	g.logger.Info("jj exec", "command", strings.Join(command, " "), "dir", dir)

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, g.binary, fullArgs...)
	cmd.Dir = dir
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if len(g.env) > 0 {
		cmd.Env = append(os.Environ(), g.env...)
	}

	err := cmd.Run()
	result := Result{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}
	if err != nil {
		result.ExitCode = -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		}
		g.logger.Debug("jj failed", "command", strings.Join(command, " "), "exit", result.ExitCode, "stderr", strings.TrimSpace(result.Stderr))
		return result, &OperationError{
			Command:  command,
			Dir:      dir,
			Stderr:   result.Stderr,
			ExitCode: result.ExitCode,
			Err:      err,
		}
	}
	return result, nil
}

// lock acquires the mutex guarding dir and returns its release func.
func (g *Gateway) lock(dir string) func() {
	key := dir
	if abs, err := filepath.Abs(dir); err == nil {
		key = abs
	}
	key = filepath.Clean(key)

	m, _ := g.locks.LoadOrStore(key, &sync.Mutex{})
	mu := m.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}
