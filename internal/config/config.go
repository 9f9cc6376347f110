// Package config loads trident.yml, the project-level description of the
// workers, workspaces and judge of a convergence workflow.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dusk-indust/trident/internal/orchestrator"
	"github.com/dusk-indust/trident/internal/prompts"
)

// FileNames are the config file names looked up in the project root, in
// order.
var FileNames = []string{"trident.yml", "trident.yaml"}

// DefaultJudgeTimeout is used when judge.timeout is unset. Zero leaves
// judge requests unbounded; callers impose their own deadline.
const DefaultJudgeTimeout time.Duration = 0

// ProjectConfig holds project-level settings loaded from trident.yml.
type ProjectConfig struct {
	Spec             string         `yaml:"spec,omitempty"`
	PrimaryWorkspace string         `yaml:"primary_workspace,omitempty"`
	MaxParallel      int            `yaml:"max_parallel,omitempty"`
	Interactive      *bool          `yaml:"interactive,omitempty"`
	VCS              VCSConfig      `yaml:"vcs,omitempty"`
	Judge            JudgeConfig    `yaml:"judge,omitempty"`
	Workers          []WorkerConfig `yaml:"workers,omitempty"`

	// Source is the file the config was read from, empty for defaults.
	Source string `yaml:"-"`
}

// VCSConfig selects the jj binary.
type VCSConfig struct {
	Binary string `yaml:"binary,omitempty"`
}

// JudgeConfig points at the A2A agent resolving conflicts in phase 4.
type JudgeConfig struct {
	Endpoint string `yaml:"endpoint,omitempty"`
	Timeout  string `yaml:"timeout,omitempty"`
}

// WorkerConfig is one entry of the workers list.
type WorkerConfig struct {
	Name           string   `yaml:"name"`
	Workspace      string   `yaml:"workspace"`
	Role           string   `yaml:"role,omitempty"`
	Command        []string `yaml:"command,omitempty"`
	Interactive    bool     `yaml:"interactive,omitempty"`
	Endpoint       string   `yaml:"endpoint,omitempty"`
	PromptTemplate string   `yaml:"prompt_template,omitempty"`
}

// Default returns the built-in three-worker configuration.
func Default() *ProjectConfig {
	cfg, err := Parse(prompts.DefaultConfig())
	if err != nil {
		panic("config: embedded default is invalid: " + err.Error())
	}
	return cfg
}

// Parse decodes a trident.yml document.
func Parse(data []byte) (*ProjectConfig, error) {
	var cfg ProjectConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return &cfg, nil
}

// Load reads trident.yml or trident.yaml from dir. Returns the default
// configuration (not an error) if no config file exists.
func Load(dir string) (*ProjectConfig, error) {
	for _, name := range FileNames {
		cfg, err := LoadFile(filepath.Join(dir, name))
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		return cfg, err
	}
	return Default(), nil
}

// LoadFile reads the config at path.
func LoadFile(path string) (*ProjectConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, errors.Unwrap(err))
	}
	cfg.Source = path
	return cfg, nil
}

// InteractiveRun reports whether phase 2 waits for interactive workers.
// Unset means true.
func (c *ProjectConfig) InteractiveRun() bool {
	return c.Interactive == nil || *c.Interactive
}

// Binary returns the jj executable to run.
func (c *ProjectConfig) Binary() string {
	if c.VCS.Binary == "" {
		return "jj"
	}
	return c.VCS.Binary
}

// JudgeTimeout parses judge.timeout. It applies to resolver requests only.
func (c *ProjectConfig) JudgeTimeout() (time.Duration, error) {
	if c.Judge.Timeout == "" {
		return DefaultJudgeTimeout, nil
	}
	d, err := time.ParseDuration(c.Judge.Timeout)
	if err != nil {
		return 0, fmt.Errorf("config: judge.timeout: %w", err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("config: judge.timeout must be positive, got %s", c.Judge.Timeout)
	}
	return d, nil
}

// Workflow converts the file into an orchestrator configuration rooted
// at root, running every phase. The result is validated by
// orchestrator.New.
func (c *ProjectConfig) Workflow(root string) (orchestrator.Config, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return orchestrator.Config{}, fmt.Errorf("config: project root: %w", err)
	}
	spec := c.Spec
	if spec == "" {
		spec = "spec.md"
	}

	out := orchestrator.Config{
		ProjectRoot:      abs,
		SpecPath:         spec,
		PrimaryWorkspace: c.PrimaryWorkspace,
		Window:           orchestrator.FullWindow,
		Interactive:      c.InteractiveRun(),
		MaxParallel:      c.MaxParallel,
	}
	for _, w := range c.Workers {
		out.Workers = append(out.Workers, orchestrator.WorkerDescriptor{
			Name:      w.Name,
			Workspace: w.Workspace,
			Role:      w.Role,
			Invocation: orchestrator.Invocation{
				Command:     append([]string(nil), w.Command...),
				Interactive: w.Interactive,
				Endpoint:    w.Endpoint,
			},
			PromptTemplate: w.PromptTemplate,
		})
	}
	return out, nil
}
