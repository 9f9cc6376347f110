package orchestrator

import (
	"path/filepath"
	"strings"
)

// Invocation describes how a worker receives its assignment. Exactly one
// mode applies: Interactive, then Endpoint, then Command.
type Invocation struct {
	// Command is run inside the worker's workspace with the prompt on stdin.
	Command []string

	// Interactive marks a human worker. trident prints instructions and,
	// when the run is interactive, waits for a completion signal.
	Interactive bool

	// Endpoint is the URL of a remote A2A agent.
	Endpoint string
}

// WorkerDescriptor identifies one worker. Immutable once the workflow
// starts.
type WorkerDescriptor struct {
	Name string

	// Workspace is the worker's working-copy path, relative to the project
	// root unless absolute.
	Workspace string

	// Role is a short description of the worker's approach, e.g.
	// "The Optimizer".
	Role string

	Invocation Invocation

	// PromptTemplate is a text/template rendered with the specification
	// text as {{.Spec}}.
	PromptTemplate string
}

// Label is how the worker is named in conflict sides and the judge prompt.
func (w WorkerDescriptor) Label() string {
	if w.Role == "" {
		return w.Name
	}
	return w.Name + " (" + w.Role + ")"
}

// Config holds the validated, read-only configuration of one workflow run.
type Config struct {
	// ProjectRoot is the absolute path of the repository root.
	ProjectRoot string

	// SpecPath is the specification file, relative to ProjectRoot unless
	// absolute.
	SpecPath string

	// PrimaryWorkspace is where worker tips are merged. Empty means the
	// project root.
	PrimaryWorkspace string

	// Workers in dispatch order. Must not be empty.
	Workers []WorkerDescriptor

	// Window is the range of phases to execute.
	Window Window

	// Interactive makes phase 2 wait for interactive workers to signal
	// completion. When false the wait is skipped and completion assumed.
	Interactive bool

	// MaxParallel bounds concurrent worker handoffs in phase 2. Values
	// below 1 mean sequential dispatch.
	MaxParallel int
}

// Path resolves p against the project root unless it is absolute.
func (c Config) Path(p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(c.ProjectRoot, p)
}

// PrimaryPath is the absolute path of the primary workspace.
func (c Config) PrimaryPath() string {
	if c.PrimaryWorkspace == "" {
		return filepath.Clean(c.ProjectRoot)
	}
	return c.Path(c.PrimaryWorkspace)
}

// Parallelism returns the effective worker pool size.
func (c Config) Parallelism() int {
	if c.MaxParallel < 1 {
		return 1
	}
	return c.MaxParallel
}

// Validate checks the configuration once before a run.
func (c Config) Validate() error {
	if c.ProjectRoot == "" {
		return invalidf("project root is required")
	}
	if !filepath.IsAbs(c.ProjectRoot) {
		return invalidf("project root %q must be absolute", c.ProjectRoot)
	}
	if strings.TrimSpace(c.SpecPath) == "" {
		return invalidf("specification path is required")
	}
	if len(c.Workers) == 0 {
		return invalidf("at least one worker is required")
	}
	if err := c.Window.Validate(); err != nil {
		return err
	}

	primary := c.PrimaryPath()
	names := make(map[string]bool, len(c.Workers))
	paths := make(map[string]string, len(c.Workers))
	for i, w := range c.Workers {
		if strings.TrimSpace(w.Name) == "" {
			return invalidf("worker %d has no name", i+1)
		}
		if names[w.Name] {
			return invalidf("duplicate worker name %q", w.Name)
		}
		names[w.Name] = true

		if strings.TrimSpace(w.Workspace) == "" {
			return invalidf("worker %s has no workspace", w.Name)
		}
		p := c.Path(w.Workspace)
		if other, dup := paths[p]; dup {
			return invalidf("workers %s and %s share workspace %s", other, w.Name, p)
		}
		paths[p] = w.Name
		if p == primary || p == filepath.Clean(c.ProjectRoot) {
			return invalidf("worker %s workspace %s collides with the primary workspace or project root", w.Name, p)
		}

		inv := w.Invocation
		if !inv.Interactive && inv.Endpoint == "" && len(inv.Command) == 0 {
			return invalidf("worker %s needs a command, an endpoint or interactive mode", w.Name)
		}
	}
	return nil
}
