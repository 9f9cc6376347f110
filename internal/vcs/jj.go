package vcs

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// RevisionID is a jj change id. It names the same change in every
// workspace that shares the repository.
type RevisionID string

// Short returns the 12-character prefix jj shows by default.
func (r RevisionID) Short() string {
	if len(r) > 12 {
		return string(r[:12])
	}
	return string(r)
}

// Conflict is one entry of `jj resolve --list`.
type Conflict struct {
	Path  string
	Arity int    // number of sides, e.g. 3 for "3-sided conflict"
	Note  string // trailing detail such as "including 1 deletion"
}

// VCS is the operation surface the convergence workflow consumes.
type VCS interface {
	// Init creates a repository in dir. Returns an error matching
	// ErrAlreadyInitialized when one exists.
	Init(ctx context.Context, dir string) error

	// Commit records the working copy of dir with message and starts a
	// new empty change on top of it.
	Commit(ctx context.Context, dir, message string) error

	// NewChange starts a new change in dir. With no parents the change is
	// created on top of the current working-copy change; with several
	// parents it is a merge.
	NewChange(ctx context.Context, dir, message string, parents ...RevisionID) error

	// Resolve returns the change id of a single-revision revset.
	Resolve(ctx context.Context, dir, revset string) (RevisionID, error)

	// FindByDescription returns the newest change whose description
	// contains marker. The bool is false when none exists.
	FindByDescription(ctx context.Context, dir, marker string) (RevisionID, bool, error)

	// Parents returns the parent change ids of rev.
	Parents(ctx context.Context, dir string, rev RevisionID) ([]RevisionID, error)

	// AddWorkspace creates a working copy at path whose working-copy
	// change sits on top of anchor.
	AddWorkspace(ctx context.Context, dir, path string, anchor RevisionID) error

	// UpdateStale reconciles a stale working copy.
	UpdateStale(ctx context.Context, dir string) error

	// Conflicts lists the conflicted paths of the working-copy change.
	Conflicts(ctx context.Context, dir string) ([]Conflict, error)

	// FileAt returns path's content at rev. The bool is false when the
	// path does not exist in that revision.
	FileAt(ctx context.Context, dir string, rev RevisionID, path string) ([]byte, bool, error)
}

// CurrentRevision returns the working-copy change id of dir.
func CurrentRevision(ctx context.Context, v VCS, dir string) (RevisionID, error) {
	return v.Resolve(ctx, dir, "@")
}

// Compile-time interface check.
var _ VCS = (*JJ)(nil)

// JJ implements VCS on top of the jj command line.
type JJ struct {
	run Runner
}

// NewJJ returns a JJ that executes through r.
func NewJJ(r Runner) *JJ {
	return &JJ{run: r}
}

// Init runs `jj git init` in dir.
func (j *JJ) Init(ctx context.Context, dir string) error {
	_, err := j.run.Execute(ctx, dir, "git", "init")
	if err != nil {
		if stderrContains(err, "already exists") {
			return fmt.Errorf("%w: %w", ErrAlreadyInitialized, err)
		}
		return err
	}
	return nil
}

// Commit runs `jj commit -m message` in dir.
func (j *JJ) Commit(ctx context.Context, dir, message string) error {
	_, err := j.run.Execute(ctx, dir, "commit", "-m", message)
	return err
}

// NewChange runs `jj new [parents...] -m message` in dir.
func (j *JJ) NewChange(ctx context.Context, dir, message string, parents ...RevisionID) error {
	args := []string{"new"}
	for _, p := range parents {
		args = append(args, string(p))
	}
	args = append(args, "-m", message)
	_, err := j.run.Execute(ctx, dir, args...)
	return err
}

// Resolve runs `jj log` limited to one revision and returns its change id.
func (j *JJ) Resolve(ctx context.Context, dir, revset string) (RevisionID, error) {
	res, err := j.run.Execute(ctx, dir, "log", "--no-graph", "--limit", "1", "-r", revset, "-T", "change_id")
	if err != nil {
		return "", err
	}
	id := strings.TrimSpace(res.Stdout)
	if id == "" {
		return "", fmt.Errorf("%w: %s", ErrRevisionNotFound, revset)
	}
	return RevisionID(id), nil
}

// FindByDescription searches history for a change whose description
// contains marker.
func (j *JJ) FindByDescription(ctx context.Context, dir, marker string) (RevisionID, bool, error) {
	revset := fmt.Sprintf("latest(description(substring:%s))", quoteLiteral(marker))
	ids, err := j.list(ctx, dir, revset)
	if err != nil {
		return "", false, err
	}
	if len(ids) == 0 {
		return "", false, nil
	}
	return ids[0], true, nil
}

// Parents lists the parents of rev.
func (j *JJ) Parents(ctx context.Context, dir string, rev RevisionID) ([]RevisionID, error) {
	return j.list(ctx, dir, fmt.Sprintf("parents(%s)", rev))
}

// AddWorkspace runs `jj workspace add -r anchor path` from dir.
func (j *JJ) AddWorkspace(ctx context.Context, dir, path string, anchor RevisionID) error {
	_, err := j.run.Execute(ctx, dir, "workspace", "add", "-r", string(anchor), path)
	return err
}

// UpdateStale runs `jj workspace update-stale` in dir.
func (j *JJ) UpdateStale(ctx context.Context, dir string) error {
	_, err := j.run.Execute(ctx, dir, "workspace", "update-stale")
	return err
}

// Conflicts runs `jj resolve --list` in dir. jj exits non-zero when the
// working copy has no conflicts; that case is an empty list.
func (j *JJ) Conflicts(ctx context.Context, dir string) ([]Conflict, error) {
	res, err := j.run.Execute(ctx, dir, "resolve", "--list")
	if err != nil {
		if stderrContains(err, "no conflicts") {
			return nil, nil
		}
		return nil, err
	}
	return ParseConflictList(res.Stdout), nil
}

// FileAt runs `jj file show -r rev root-file:"path"` in dir.
func (j *JJ) FileAt(ctx context.Context, dir string, rev RevisionID, path string) ([]byte, bool, error) {
	res, err := j.run.Execute(ctx, dir, "file", "show", "-r", string(rev), "root-file:"+quoteLiteral(path))
	if err != nil {
		if stderrContains(err, "no such path") || stderrContains(err, "no matching entries") {
			return nil, false, nil
		}
		return nil, false, err
	}
	if res.Stdout == "" && strings.Contains(strings.ToLower(res.Stderr), "no matching entries") {
		return nil, false, nil
	}
	return []byte(res.Stdout), true, nil
}

// list returns the change ids a revset resolves to, newest first.
func (j *JJ) list(ctx context.Context, dir, revset string) ([]RevisionID, error) {
	res, err := j.run.Execute(ctx, dir, "log", "--no-graph", "-r", revset, "-T", `change_id ++ "\n"`)
	if err != nil {
		return nil, err
	}
	var ids []RevisionID
	for _, line := range strings.Split(res.Stdout, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			ids = append(ids, RevisionID(line))
		}
	}
	return ids, nil
}

// conflictLine matches "path    3-sided conflict including 1 deletion".
var conflictLine = regexp.MustCompile(`^(.*\S)\s+(\d+)-sided conflict(.*)$`)

// ParseConflictList parses the output of `jj resolve --list`. Lines that do
// not carry an arity are kept as 2-sided conflicts.
func ParseConflictList(out string) []Conflict {
	var conflicts []Conflict
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		m := conflictLine.FindStringSubmatch(line)
		if m == nil {
			conflicts = append(conflicts, Conflict{Path: strings.TrimSpace(line), Arity: 2})
			continue
		}
		arity, _ := strconv.Atoi(m[2])
		conflicts = append(conflicts, Conflict{
			Path:  strings.TrimSpace(m[1]),
			Arity: arity,
			Note:  strings.TrimSpace(m[3]),
		})
	}
	sort.Slice(conflicts, func(a, b int) bool { return conflicts[a].Path < conflicts[b].Path })
	return conflicts
}

// ConflictPaths extracts the paths of a conflict list.
func ConflictPaths(conflicts []Conflict) []string {
	paths := make([]string, len(conflicts))
	for i, c := range conflicts {
		paths[i] = c.Path
	}
	return paths
}

// quoteLiteral renders s as a jj string literal.
func quoteLiteral(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`)
	return `"` + r.Replace(s) + `"`
}

// IsRevisionNotFound returns true if err is ErrRevisionNotFound.
func IsRevisionNotFound(err error) bool {
	return errors.Is(err, ErrRevisionNotFound)
}
