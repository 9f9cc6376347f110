// Package vcstest provides an in-memory stand-in for vcs.VCS. It models
// changes, working copies, multi-parent merges and first-class conflicts
// closely enough to drive the convergence workflow without a jj binary.
package vcstest

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/dusk-indust/trident/internal/vcs"
)

// Op names used by Calls and FailOn.
const (
	OpInit         = "init"
	OpCommit       = "commit"
	OpNew          = "new"
	OpResolve      = "resolve"
	OpFind         = "find"
	OpParents      = "parents"
	OpWorkspaceAdd = "workspace add"
	OpUpdateStale  = "update-stale"
	OpConflicts    = "conflicts"
	OpFileAt       = "file show"
)

// Call records one operation against the fake.
type Call struct {
	Op   string
	Dir  string
	Args []string
}

type change struct {
	id          vcs.RevisionID
	seq         int
	parents     []vcs.RevisionID
	description string
	files       map[string]string
	conflicts   map[string]int
}

// Compile-time interface check.
var _ vcs.VCS = (*Repo)(nil)

// Repo is a fake jj repository shared by any number of workspaces.
type Repo struct {
	mu          sync.Mutex
	initialized bool
	seq         int
	changes     map[vcs.RevisionID]*change
	workspaces  map[string]vcs.RevisionID
	failures    map[string]error
	sticky      map[string]bool
	calls       []Call
}

// New returns an empty, uninitialized fake repository.
func New() *Repo {
	return &Repo{
		changes:    make(map[vcs.RevisionID]*change),
		workspaces: make(map[string]vcs.RevisionID),
		failures:   make(map[string]error),
		sticky:     make(map[string]bool),
	}
}

// FailOn makes every later call of op return err. A nil err clears it.
func (r *Repo) FailOn(op string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err == nil {
		delete(r.failures, op)
		return
	}
	r.failures[op] = err
}

// KeepConflicted makes path stay conflicted whatever is written to disk.
func (r *Repo) KeepConflicted(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sticky[path] = true
}

// Edit sets path's content in the working-copy change of dir, as if a
// worker had written the file and jj had snapshotted it.
func (r *Repo) Edit(dir, path, content string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	wc := r.mustWorkingCopy(dir)
	wc.files[path] = content
}

// Calls returns the operations recorded so far.
func (r *Repo) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Call(nil), r.calls...)
}

// CountOp returns how many times op was called.
func (r *Repo) CountOp(op string) int {
	n := 0
	for _, c := range r.Calls() {
		if c.Op == op {
			n++
		}
	}
	return n
}

// ParentsOf returns the recorded parents of rev.
func (r *Repo) ParentsOf(rev vcs.RevisionID) []vcs.RevisionID {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ch, ok := r.changes[rev]; ok {
		return append([]vcs.RevisionID(nil), ch.parents...)
	}
	return nil
}

// WorkingCopy returns the working-copy change of dir.
func (r *Repo) WorkingCopy(dir string) (vcs.RevisionID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.workspaces[clean(dir)]
	return id, ok
}

// Description returns the description of rev.
func (r *Repo) Description(rev vcs.RevisionID) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ch, ok := r.changes[rev]; ok {
		return ch.description
	}
	return ""
}

// Init implements vcs.VCS.
func (r *Repo) Init(_ context.Context, dir string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.record(OpInit, dir); err != nil {
		return err
	}
	if r.initialized {
		return fmt.Errorf("%w: %w", vcs.ErrAlreadyInitialized, r.opError(dir, "Error: The destination repo already exists", "git", "init"))
	}
	r.initialized = true
	root := r.newChange(nil, "")
	r.workspaces[clean(dir)] = root.id
	return nil
}

// Commit implements vcs.VCS.
func (r *Repo) Commit(_ context.Context, dir, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.record(OpCommit, dir, message); err != nil {
		return err
	}
	wc, err := r.workingCopy(dir)
	if err != nil {
		return err
	}
	wc.description = message
	next := r.newChange([]vcs.RevisionID{wc.id}, "")
	r.workspaces[clean(dir)] = next.id
	return nil
}

// NewChange implements vcs.VCS.
func (r *Repo) NewChange(_ context.Context, dir, message string, parents ...vcs.RevisionID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	args := []string{message}
	for _, p := range parents {
		args = append(args, string(p))
	}
	if err := r.record(OpNew, dir, args...); err != nil {
		return err
	}
	wc, err := r.workingCopy(dir)
	if err != nil {
		return err
	}
	if len(parents) == 0 {
		parents = []vcs.RevisionID{wc.id}
	}
	for _, p := range parents {
		if _, ok := r.changes[p]; !ok {
			return r.opError(dir, fmt.Sprintf("Error: Revision %q doesn't exist", p), "new", string(p))
		}
	}
	next := r.newChange(parents, message)
	r.workspaces[clean(dir)] = next.id
	r.materialize(dir, next)
	return nil
}

// Resolve implements vcs.VCS. Only "@", "@-" and plain change ids are
// understood.
func (r *Repo) Resolve(_ context.Context, dir, revset string) (vcs.RevisionID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.record(OpResolve, dir, revset); err != nil {
		return "", err
	}
	switch revset {
	case "@":
		wc, err := r.workingCopy(dir)
		if err != nil {
			return "", err
		}
		return wc.id, nil
	case "@-":
		wc, err := r.workingCopy(dir)
		if err != nil {
			return "", err
		}
		if len(wc.parents) == 0 {
			return "", fmt.Errorf("%w: %s", vcs.ErrRevisionNotFound, revset)
		}
		return wc.parents[0], nil
	}
	if _, ok := r.changes[vcs.RevisionID(revset)]; ok {
		return vcs.RevisionID(revset), nil
	}
	return "", fmt.Errorf("%w: %s", vcs.ErrRevisionNotFound, revset)
}

// FindByDescription implements vcs.VCS.
func (r *Repo) FindByDescription(_ context.Context, dir, marker string) (vcs.RevisionID, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.record(OpFind, dir, marker); err != nil {
		return "", false, err
	}
	var best *change
	for _, ch := range r.changes {
		if strings.Contains(ch.description, marker) && (best == nil || ch.seq > best.seq) {
			best = ch
		}
	}
	if best == nil {
		return "", false, nil
	}
	return best.id, true, nil
}

// Parents implements vcs.VCS.
func (r *Repo) Parents(_ context.Context, dir string, rev vcs.RevisionID) ([]vcs.RevisionID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.record(OpParents, dir, string(rev)); err != nil {
		return nil, err
	}
	ch, ok := r.changes[rev]
	if !ok {
		return nil, r.opError(dir, fmt.Sprintf("Error: Revision %q doesn't exist", rev), "log", "-r", string(rev))
	}
	return append([]vcs.RevisionID(nil), ch.parents...), nil
}

// AddWorkspace implements vcs.VCS. Like jj it creates the directory.
func (r *Repo) AddWorkspace(_ context.Context, dir, path string, anchor vcs.RevisionID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.record(OpWorkspaceAdd, dir, path, string(anchor)); err != nil {
		return err
	}
	if _, ok := r.changes[anchor]; !ok {
		return r.opError(dir, fmt.Sprintf("Error: Revision %q doesn't exist", anchor), "workspace", "add")
	}
	if _, exists := r.workspaces[clean(path)]; exists {
		return r.opError(dir, "Error: Workspace already exists", "workspace", "add")
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return err
	}
	wc := r.newChange([]vcs.RevisionID{anchor}, "")
	r.workspaces[clean(path)] = wc.id
	return nil
}

// UpdateStale implements vcs.VCS.
func (r *Repo) UpdateStale(_ context.Context, dir string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.record(OpUpdateStale, dir); err != nil {
		return err
	}
	_, err := r.workingCopy(dir)
	return err
}

// Conflicts implements vcs.VCS. Files rewritten on disk without conflict
// markers count as resolved, mirroring jj's working-copy snapshot.
func (r *Repo) Conflicts(_ context.Context, dir string) ([]vcs.Conflict, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.record(OpConflicts, dir); err != nil {
		return nil, err
	}
	wc, err := r.workingCopy(dir)
	if err != nil {
		return nil, err
	}

	var out []vcs.Conflict
	for path, arity := range wc.conflicts {
		data, readErr := os.ReadFile(filepath.Join(dir, path))
		if readErr == nil && !bytes.Contains(data, []byte("<<<<<<<")) && !r.sticky[path] {
			delete(wc.conflicts, path)
			wc.files[path] = string(data)
			continue
		}
		out = append(out, vcs.Conflict{Path: path, Arity: arity})
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Path < out[b].Path })
	return out, nil
}

// FileAt implements vcs.VCS.
func (r *Repo) FileAt(_ context.Context, dir string, rev vcs.RevisionID, path string) ([]byte, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.record(OpFileAt, dir, string(rev), path); err != nil {
		return nil, false, err
	}
	ch, ok := r.changes[rev]
	if !ok {
		return nil, false, r.opError(dir, fmt.Sprintf("Error: Revision %q doesn't exist", rev), "file", "show")
	}
	content, ok := ch.files[path]
	if !ok {
		return nil, false, nil
	}
	return []byte(content), true, nil
}

// --- internals (callers hold r.mu) ---

func (r *Repo) record(op, dir string, args ...string) error {
	r.calls = append(r.calls, Call{Op: op, Dir: clean(dir), Args: args})
	if err, ok := r.failures[op]; ok {
		return err
	}
	if op != OpInit && !r.initialized {
		return r.opError(dir, `Error: There is no jj repo in "."`, op)
	}
	return nil
}

func (r *Repo) opError(dir, stderr string, args ...string) error {
	return &vcs.OperationError{
		Command:  append([]string{"jj"}, args...),
		Dir:      dir,
		Stderr:   stderr + "\n",
		ExitCode: 1,
	}
}

func (r *Repo) workingCopy(dir string) (*change, error) {
	id, ok := r.workspaces[clean(dir)]
	if !ok {
		return nil, r.opError(dir, `Error: There is no jj repo in "."`, "status")
	}
	return r.changes[id], nil
}

func (r *Repo) mustWorkingCopy(dir string) *change {
	wc, err := r.workingCopy(dir)
	if err != nil {
		panic(fmt.Sprintf("vcstest: %s is not a workspace", dir))
	}
	return wc
}

func (r *Repo) newChange(parents []vcs.RevisionID, description string) *change {
	r.seq++
	ch := &change{
		id:          vcs.RevisionID(fmt.Sprintf("%s%04d", "zzzzfake", r.seq)),
		seq:         r.seq,
		parents:     parents,
		description: description,
		files:       make(map[string]string),
		conflicts:   make(map[string]int),
	}
	switch len(parents) {
	case 0:
	case 1:
		p := r.changes[parents[0]]
		for k, v := range p.files {
			ch.files[k] = v
		}
		for k, v := range p.conflicts {
			ch.conflicts[k] = v
		}
	default:
		r.merge(ch)
	}
	r.changes[ch.id] = ch
	return ch
}

// merge computes ch's tree from its parents against their newest common
// ancestor. A path changed differently by two or more parents conflicts.
func (r *Repo) merge(ch *change) {
	base := r.commonAncestor(ch.parents)
	baseFiles := map[string]string{}
	if base != nil {
		baseFiles = base.files
	}

	paths := map[string]bool{}
	for k := range baseFiles {
		paths[k] = true
	}
	for _, p := range ch.parents {
		for k := range r.changes[p].files {
			paths[k] = true
		}
	}

	for path := range paths {
		baseContent, inBase := baseFiles[path]
		var changed []string
		for _, p := range ch.parents {
			content, ok := r.changes[p].files[path]
			if ok == inBase && content == baseContent {
				continue
			}
			if !ok {
				content = "\x00deleted"
			}
			changed = append(changed, content)
		}

		distinct := map[string]bool{}
		for _, c := range changed {
			distinct[c] = true
		}
		switch {
		case len(changed) == 0:
			if inBase {
				ch.files[path] = baseContent
			}
		case len(distinct) == 1:
			if changed[0] != "\x00deleted" {
				ch.files[path] = changed[0]
			}
		default:
			ch.conflicts[path] = len(changed)
		}
	}
}

func (r *Repo) commonAncestor(parents []vcs.RevisionID) *change {
	var common map[vcs.RevisionID]bool
	for _, p := range parents {
		anc := r.ancestors(p)
		if common == nil {
			common = anc
			continue
		}
		for id := range common {
			if !anc[id] {
				delete(common, id)
			}
		}
	}
	var best *change
	for id := range common {
		if ch := r.changes[id]; best == nil || ch.seq > best.seq {
			best = ch
		}
	}
	return best
}

func (r *Repo) ancestors(id vcs.RevisionID) map[vcs.RevisionID]bool {
	seen := map[vcs.RevisionID]bool{}
	queue := []vcs.RevisionID{id}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if seen[cur] {
			continue
		}
		seen[cur] = true
		queue = append(queue, r.changes[cur].parents...)
	}
	return seen
}

// materialize writes conflict markers for ch's conflicted paths into dir,
// as jj does when it checks out a conflicted change.
func (r *Repo) materialize(dir string, ch *change) {
	if _, err := os.Stat(dir); err != nil {
		return
	}
	for path, arity := range ch.conflicts {
		full := filepath.Join(dir, path)
		_ = os.MkdirAll(filepath.Dir(full), 0o755)
		body := fmt.Sprintf("<<<<<<< Conflict 1 of 1\n(%d sides)\n>>>>>>> Conflict 1 of 1 ends\n", arity)
		_ = os.WriteFile(full, []byte(body), 0o644)
	}
}

func clean(dir string) string {
	if abs, err := filepath.Abs(dir); err == nil {
		return abs
	}
	return filepath.Clean(dir)
}
