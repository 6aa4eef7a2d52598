package config

import (
	"fmt"
	"regexp"

	"github.com/gridci/gridci/pkg/matrix"
)

var placeholderPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// ExpandTemplate substitutes ${axis} placeholders in a command or environment
// template with the job's axis values. Placeholders are checked against axis
// names at load time, so an unknown placeholder here is a programming error
// and is left in place.
func ExpandTemplate(template string, job matrix.Job) string {
	return placeholderPattern.ReplaceAllStringFunc(template, func(m string) string {
		name := placeholderPattern.FindStringSubmatch(m)[1]
		if value, ok := job.Assignments[name]; ok {
			return value
		}
		return m
	})
}

// ResolvedJob is a job's fully-expanded command sequence and static
// environment, ready for execution.
type ResolvedJob struct {
	// Commands is the expanded install steps followed by the expanded script.
	Commands []string

	// Env is the expanded static environment from the declaration. Axis
	// variables are synthesized by the runner, not here.
	Env map[string]string
}

// ResolveJob expands the declaration's command and environment templates for
// one job.
func (c *MatrixConfig) ResolveJob(job matrix.Job) ResolvedJob {
	commands := make([]string, 0, len(c.Install)+1)
	for _, cmd := range c.Commands() {
		commands = append(commands, ExpandTemplate(cmd, job))
	}

	env := make(map[string]string, len(c.Env))
	for key, value := range c.Env {
		env[key] = ExpandTemplate(value, job)
	}

	return ResolvedJob{Commands: commands, Env: env}
}

// placeholders returns the placeholder names referenced by a template.
func placeholders(template string) []string {
	matches := placeholderPattern.FindAllStringSubmatch(template, -1)
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		names = append(names, m[1])
	}
	return names
}

// checkPlaceholders verifies every ${name} in the template names a declared
// axis.
func checkPlaceholders(template, location string, axes map[string]struct{}) error {
	for _, name := range placeholders(template) {
		if _, ok := axes[name]; !ok {
			return matrix.NewConfigurationError(
				fmt.Sprintf("%s references unknown axis %q", location, name), nil).
				WithCode(matrix.ErrCodeTemplate)
		}
	}
	return nil
}
