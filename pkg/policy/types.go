// Package policy evaluates admission policies against a resolved matrix
// before any job runs. Policies are Rego documents; every policy uses
// `package gridci` and emits violations through `deny contains msg`.
package policy

// Policy is one named Rego policy.
type Policy struct {
	// Name identifies the policy in violations and logs.
	Name string

	// Description explains what the policy enforces.
	Description string

	// Source is the Rego source text.
	Source string

	// Builtin marks policies shipped with gridci.
	Builtin bool
}

// Violation is a single policy denial.
type Violation struct {
	// Policy is the name of the violated policy.
	Policy string `json:"policy"`

	// Message is the denial message produced by the rule.
	Message string `json:"message"`
}

// Result is the outcome of evaluating all policies against one matrix.
type Result struct {
	// Allowed is true when no policy denied the matrix.
	Allowed bool `json:"allowed"`

	// Violations lists every denial across all policies.
	Violations []Violation `json:"violations,omitempty"`
}

// Input is the document policies evaluate against. It describes the resolved
// matrix, not individual jobs: admission happens once, before execution.
type Input struct {
	// Name is the matrix name.
	Name string `json:"name"`

	// Axes mirrors the declaration's axes.
	Axes []AxisInput `json:"axes"`

	// JobCount is the size of the full Cartesian product.
	JobCount int `json:"job_count"`

	// SelectedCount is the number of jobs surviving exclusion rules.
	SelectedCount int `json:"selected_count"`

	// AllowedCount is the number of surviving jobs marked allow-failure.
	AllowedCount int `json:"allowed_count"`

	// MaxJobs is the configured job budget; zero means unlimited.
	MaxJobs int `json:"max_jobs"`
}

// AxisInput is one axis in the policy input document.
type AxisInput struct {
	Name   string   `json:"name"`
	Values []string `json:"values"`
}
