// Package workspace manages the repository and the working copies the
// convergence workflow runs in: initialization, the recorded
// specification baseline, per-worker workspaces and staleness repair.
package workspace

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/dusk-indust/trident/internal/vcs"
)

// BaselineMarker is the description prefix of the change that records the
// specification. Phase 1 looks for it before committing again.
const BaselineMarker = "trident: record specification"

// RefreshResult reports the outcome of a best-effort staleness repair.
// Callers are free to ignore it.
type RefreshResult struct {
	Path string
	Err  error
}

// OK reports whether the refresh succeeded.
func (r RefreshResult) OK() bool { return r.Err == nil }

// Manager performs workspace lifecycle operations rooted at a project
// directory.
type Manager struct {
	vcs    vcs.VCS
	root   string
	logger *slog.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the manager's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewManager returns a Manager for the repository at root.
func NewManager(v vcs.VCS, root string, opts ...Option) *Manager {
	m := &Manager{
		vcs:    v,
		root:   root,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Root returns the project root.
func (m *Manager) Root() string { return m.root }

// Path resolves p against the project root unless it is absolute.
func (m *Manager) Path(p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(m.root, p)
}

// Exists reports whether the workspace directory at p exists.
func (m *Manager) Exists(p string) bool {
	info, err := os.Stat(m.Path(p))
	return err == nil && info.IsDir()
}

// EnsureRepository initializes the repository at the project root. An
// existing repository is not an error.
func (m *Manager) EnsureRepository(ctx context.Context) error {
	err := m.vcs.Init(ctx, m.root)
	switch {
	case err == nil:
		m.logger.Info("initialized repository", "root", m.root)
		return nil
	case vcs.IsAlreadyInitialized(err):
		m.logger.Debug("repository already initialized", "root", m.root)
		return nil
	default:
		return fmt.Errorf("workspace: init repository: %w", err)
	}
}

// RecordSpecification commits the specification at specPath and returns
// the recorded revision. A spec outside the project root is copied in
// first. When history already holds a recorded specification, that
// revision is returned and nothing is committed.
func (m *Manager) RecordSpecification(ctx context.Context, specPath string) (vcs.RevisionID, error) {
	src := m.Path(specPath)
	info, err := os.Stat(src)
	if err != nil || info.IsDir() {
		return "", fmt.Errorf("workspace: %w: %s", ErrSpecificationNotFound, src)
	}

	if rev, ok, err := m.vcs.FindByDescription(ctx, m.root, BaselineMarker); err != nil {
		return "", fmt.Errorf("workspace: look up baseline: %w", err)
	} else if ok {
		m.logger.Info("specification already recorded", "revision", rev.Short())
		return rev, nil
	}

	name := filepath.Base(src)
	if !within(m.root, src) {
		if err := copyFile(src, filepath.Join(m.root, name)); err != nil {
			return "", fmt.Errorf("workspace: copy specification: %w", err)
		}
	}

	message := fmt.Sprintf("%s (%s)", BaselineMarker, name)
	if err := m.vcs.Commit(ctx, m.root, message); err != nil {
		return "", fmt.Errorf("workspace: commit specification: %w", err)
	}
	rev, err := m.vcs.Resolve(ctx, m.root, "@-")
	if err != nil {
		return "", fmt.Errorf("workspace: read baseline: %w", err)
	}
	m.logger.Info("recorded specification", "revision", rev.Short(), "spec", name)
	return rev, nil
}

// LocateBaseline returns the revision recorded by an earlier
// RecordSpecification.
func (m *Manager) LocateBaseline(ctx context.Context) (vcs.RevisionID, error) {
	rev, ok, err := m.vcs.FindByDescription(ctx, m.root, BaselineMarker)
	if err != nil {
		return "", fmt.Errorf("workspace: look up baseline: %w", err)
	}
	if !ok {
		return "", ErrBaselineNotFound
	}
	return rev, nil
}

// CreateWorkspace adds a working copy at path anchored to anchor. It does
// nothing and returns false when path already exists.
func (m *Manager) CreateWorkspace(ctx context.Context, path string, anchor vcs.RevisionID) (bool, error) {
	abs := m.Path(path)
	if _, err := os.Stat(abs); err == nil {
		m.logger.Debug("workspace exists", "path", abs)
		return false, nil
	}
	if err := m.vcs.AddWorkspace(ctx, m.root, abs, anchor); err != nil {
		return false, fmt.Errorf("workspace: add %s: %w", abs, err)
	}
	m.logger.Info("created workspace", "path", abs, "anchor", anchor.Short())
	return true, nil
}

// Refresh repairs a stale working copy at path. Failures are logged and
// returned in the result, never raised.
func (m *Manager) Refresh(ctx context.Context, path string) RefreshResult {
	abs := m.Path(path)
	err := m.vcs.UpdateStale(ctx, abs)
	if err != nil {
		m.logger.Debug("refresh failed", "path", abs, "err", err)
	}
	return RefreshResult{Path: abs, Err: err}
}

func within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel != ".." && !filepath.IsAbs(rel) && !startsWithParent(rel)
}

func startsWithParent(rel string) bool {
	return len(rel) >= 3 && rel[:3] == ".."+string(filepath.Separator)
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0o644)
}
