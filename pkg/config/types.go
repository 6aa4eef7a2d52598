// Package config loads, validates, and finalizes matrix declarations from
// YAML or CUE documents.
package config

import (
	"time"

	"github.com/gridci/gridci/pkg/matrix"
)

// MatrixConfig is the declaration document for one compatibility matrix.
// It is loaded once at process start and treated as immutable for the
// duration of the run.
type MatrixConfig struct {
	// Name identifies the matrix in logs, reports, and run history.
	Name string `yaml:"name" json:"name" validate:"required"`

	// Axes is the ordered list of matrix dimensions.
	Axes []AxisConfig `yaml:"axes" json:"axes" validate:"required,min=1,dive"`

	// Exclude lists partial axis→value mappings; matching jobs are removed
	// before execution.
	Exclude []map[string]string `yaml:"exclude,omitempty" json:"exclude,omitempty"`

	// AllowFailures lists partial axis→value mappings; matching jobs run but
	// their failure does not fail the run.
	AllowFailures []map[string]string `yaml:"allow_failures,omitempty" json:"allow_failures,omitempty"`

	// Env is extra environment applied to every job; values may reference
	// axes via ${axis} placeholders.
	Env map[string]string `yaml:"env,omitempty" json:"env,omitempty"`

	// Install is the ordered list of setup commands run before the script.
	Install []string `yaml:"install,omitempty" json:"install,omitempty"`

	// Script is the test invocation command template.
	Script string `yaml:"script" json:"script" validate:"required"`

	// Generate is an optional Starlark source that computes additional axes
	// and exclusions; it runs once at load time.
	Generate string `yaml:"generate,omitempty" json:"generate,omitempty"`

	// Runner configures execution behavior.
	Runner RunnerConfig `yaml:"runner,omitempty" json:"runner,omitempty"`

	// Remote configures SSH execution; nil means local execution.
	Remote *RemoteConfig `yaml:"remote,omitempty" json:"remote,omitempty"`
}

// AxisConfig declares one axis.
type AxisConfig struct {
	// Name is the axis name, unique within the matrix.
	Name string `yaml:"name" json:"name" validate:"required"`

	// Values is the ordered list of axis values.
	Values []string `yaml:"values" json:"values" validate:"required,min=1,dive,required"`
}

// RunnerConfig configures how jobs execute.
type RunnerConfig struct {
	// Parallel is the number of jobs executed concurrently. Zero or one runs
	// jobs sequentially, matching conventional CI behavior.
	Parallel int `yaml:"parallel,omitempty" json:"parallel,omitempty" validate:"gte=0"`

	// Shell is the shell used for command invocation. Defaults to /bin/sh.
	Shell string `yaml:"shell,omitempty" json:"shell,omitempty"`

	// Timeout bounds a single job's execution, e.g. "30m". Empty means no
	// timeout.
	Timeout string `yaml:"timeout,omitempty" json:"timeout,omitempty"`
}

// JobTimeout parses the configured per-job timeout. Zero when unset.
func (r RunnerConfig) JobTimeout() (time.Duration, error) {
	if r.Timeout == "" {
		return 0, nil
	}
	return time.ParseDuration(r.Timeout)
}

// RemoteConfig configures SSH job execution.
type RemoteConfig struct {
	// Host is the remote host, optionally host:port.
	Host string `yaml:"host" json:"host" validate:"required"`

	// User is the SSH user name.
	User string `yaml:"user" json:"user" validate:"required"`

	// KeyFile is the path to the private key. Empty falls back to the SSH
	// agent.
	KeyFile string `yaml:"key_file,omitempty" json:"key_file,omitempty"`

	// KnownHostsFile overrides the known_hosts path used for host key checks.
	KnownHostsFile string `yaml:"known_hosts_file,omitempty" json:"known_hosts_file,omitempty"`

	// WorkDir is the remote directory commands run in.
	WorkDir string `yaml:"work_dir,omitempty" json:"work_dir,omitempty"`

	// Upload lists local files staged to WorkDir before the first command.
	Upload []string `yaml:"upload,omitempty" json:"upload,omitempty"`
}

// ToAxes converts the declarations to matrix axes in declaration order.
func (c *MatrixConfig) ToAxes() []matrix.Axis {
	axes := make([]matrix.Axis, 0, len(c.Axes))
	for _, a := range c.Axes {
		values := make([]string, len(a.Values))
		copy(values, a.Values)
		axes = append(axes, matrix.Axis{Name: a.Name, Values: values})
	}
	return axes
}

// ExcludeRules converts the exclusion declarations to matcher rules.
func (c *MatrixConfig) ExcludeRules() []matrix.Rule {
	return toRules(c.Exclude)
}

// AllowFailureRules converts the allow-failure declarations to matcher rules.
func (c *MatrixConfig) AllowFailureRules() []matrix.Rule {
	return toRules(c.AllowFailures)
}

// Commands returns the per-job command templates: install steps followed by
// the script step.
func (c *MatrixConfig) Commands() []string {
	cmds := make([]string, 0, len(c.Install)+1)
	cmds = append(cmds, c.Install...)
	cmds = append(cmds, c.Script)
	return cmds
}

func toRules(maps []map[string]string) []matrix.Rule {
	rules := make([]matrix.Rule, 0, len(maps))
	for _, m := range maps {
		rule := make(matrix.Rule, len(m))
		for k, v := range m {
			rule[k] = v
		}
		rules = append(rules, rule)
	}
	return rules
}
