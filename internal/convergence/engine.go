// Package convergence merges worker tips into a single revision in the
// primary workspace and describes the conflicts that merge leaves behind.
// Everything it reports is read back from VCS state; nothing is cached.
package convergence

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/dusk-indust/trident/internal/vcs"
)

// MergeMessage is the description given to the merge revision.
const MergeMessage = "merge: integrate worker outputs"

var (
	// ErrNoTips is returned by Merge when called without any worker tips.
	ErrNoTips = errors.New("convergence: no tips to merge")

	// ErrInvalidPath is returned for a resolution path that is not a
	// relative path inside the primary workspace.
	ErrInvalidPath = errors.New("path is not local to the primary workspace")

	// ErrNotConflicted is returned for a resolution of a path the primary
	// working copy does not list as conflicted.
	ErrNotConflicted = errors.New("path is not conflicted")
)

// Side is one parent's version of a conflicted path.
type Side struct {
	Label    string         `json:"label"`
	Revision vcs.RevisionID `json:"revision"`
	Content  []byte         `json:"-"`
	Present  bool           `json:"present"`
}

// ConflictRecord describes one conflicted path of the merge revision.
type ConflictRecord struct {
	Path  string
	Arity int
	Note  string
	Base  Side   // baseline version; Present is false when unknown or absent
	Sides []Side // parents whose content differs from Base
}

// MergeResult is the outcome of a merge in the primary workspace.
type MergeResult struct {
	Revision  vcs.RevisionID
	Parents   []vcs.RevisionID
	Conflicts []vcs.Conflict
}

// Engine runs merge and conflict passes against the primary workspace.
// Passes are mutually exclusive.
type Engine struct {
	vcs      vcs.VCS
	primary  string
	baseline vcs.RevisionID
	logger   *slog.Logger

	mu sync.Mutex
}

// Option configures an Engine.
type Option func(*Engine)

// WithBaseline sets the revision conflict sides are compared against.
func WithBaseline(rev vcs.RevisionID) Option {
	return func(e *Engine) { e.baseline = rev }
}

// WithLogger sets the engine's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewEngine returns an Engine for the primary workspace directory.
func NewEngine(v vcs.VCS, primary string, opts ...Option) *Engine {
	e := &Engine{
		vcs:     v,
		primary: primary,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Primary returns the primary workspace directory.
func (e *Engine) Primary() string { return e.primary }

// Baseline returns the baseline revision, empty when unknown.
func (e *Engine) Baseline() vcs.RevisionID {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.baseline
}

// SetBaseline replaces the revision conflict sides are compared against.
// It waits for a running pass to finish.
func (e *Engine) SetBaseline(rev vcs.RevisionID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.baseline = rev
}

// Merge creates one revision in the primary workspace whose parents are
// exactly tips, then lists the conflicts it carries.
func (e *Engine) Merge(ctx context.Context, tips []vcs.RevisionID) (*MergeResult, error) {
	if len(tips) == 0 {
		return nil, ErrNoTips
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.vcs.NewChange(ctx, e.primary, MergeMessage, tips...); err != nil {
		return nil, fmt.Errorf("convergence: create merge: %w", err)
	}
	rev, err := vcs.CurrentRevision(ctx, e.vcs, e.primary)
	if err != nil {
		return nil, fmt.Errorf("convergence: read merge revision: %w", err)
	}
	parents, err := e.vcs.Parents(ctx, e.primary, rev)
	if err != nil {
		return nil, fmt.Errorf("convergence: read merge parents: %w", err)
	}
	conflicts, err := e.vcs.Conflicts(ctx, e.primary)
	if err != nil {
		return nil, fmt.Errorf("convergence: list conflicts: %w", err)
	}

	e.logger.Info("merged worker tips", "revision", rev.Short(), "parents", len(parents), "conflicts", len(conflicts))
	return &MergeResult{Revision: rev, Parents: parents, Conflicts: conflicts}, nil
}

// List returns the conflicted paths of the primary working copy.
func (e *Engine) List(ctx context.Context) ([]vcs.Conflict, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.list(ctx)
}

func (e *Engine) list(ctx context.Context) ([]vcs.Conflict, error) {
	conflicts, err := e.vcs.Conflicts(ctx, e.primary)
	if err != nil {
		return nil, fmt.Errorf("convergence: list conflicts: %w", err)
	}
	return conflicts, nil
}

// Conflicts builds a record for every conflicted path of the primary
// working copy. labels names parent revisions; unknown parents are
// labelled with their short id.
func (e *Engine) Conflicts(ctx context.Context, labels map[vcs.RevisionID]string) ([]ConflictRecord, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	conflicts, err := e.list(ctx)
	if err != nil {
		return nil, err
	}
	if len(conflicts) == 0 {
		return nil, nil
	}

	rev, err := vcs.CurrentRevision(ctx, e.vcs, e.primary)
	if err != nil {
		return nil, fmt.Errorf("convergence: read merge revision: %w", err)
	}
	parents, err := e.vcs.Parents(ctx, e.primary, rev)
	if err != nil {
		return nil, fmt.Errorf("convergence: read merge parents: %w", err)
	}

	records := make([]ConflictRecord, 0, len(conflicts))
	for _, c := range conflicts {
		rec, err := e.record(ctx, c, parents, labels)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

func (e *Engine) record(ctx context.Context, c vcs.Conflict, parents []vcs.RevisionID, labels map[vcs.RevisionID]string) (ConflictRecord, error) {
	rec := ConflictRecord{Path: c.Path, Arity: c.Arity, Note: c.Note}

	known := e.baseline != ""
	if known {
		content, ok, err := e.vcs.FileAt(ctx, e.primary, e.baseline, c.Path)
		if err != nil {
			return rec, fmt.Errorf("convergence: read %s at baseline: %w", c.Path, err)
		}
		rec.Base = Side{Label: "base", Revision: e.baseline, Content: content, Present: ok}
	}

	for _, p := range parents {
		content, ok, err := e.vcs.FileAt(ctx, e.primary, p, c.Path)
		if err != nil {
			return rec, fmt.Errorf("convergence: read %s at %s: %w", c.Path, p.Short(), err)
		}
		if known && ok == rec.Base.Present && bytes.Equal(content, rec.Base.Content) {
			continue
		}
		label, found := labels[p]
		if !found {
			label = p.Short()
		}
		rec.Sides = append(rec.Sides, Side{Label: label, Revision: p, Content: content, Present: ok})
	}
	return rec, nil
}

// WriteResolution writes content to path in the primary workspace and
// returns the conflicts that remain afterwards. path must be local and
// currently conflicted.
func (e *Engine) WriteResolution(ctx context.Context, path string, content []byte) ([]vcs.Conflict, error) {
	if !filepath.IsLocal(filepath.FromSlash(path)) {
		return nil, fmt.Errorf("convergence: %q: %w", path, ErrInvalidPath)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	before, err := e.list(ctx)
	if err != nil {
		return nil, err
	}
	if !slices.ContainsFunc(before, func(c vcs.Conflict) bool { return c.Path == path }) {
		return nil, fmt.Errorf("convergence: %s: %w", path, ErrNotConflicted)
	}

	full := filepath.Join(e.primary, filepath.FromSlash(path))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return nil, fmt.Errorf("convergence: write %s: %w", path, err)
	}
	if err := os.WriteFile(full, content, 0o644); err != nil {
		return nil, fmt.Errorf("convergence: write %s: %w", path, err)
	}
	e.logger.Debug("wrote resolution", "path", path, "bytes", len(content))
	return e.list(ctx)
}
