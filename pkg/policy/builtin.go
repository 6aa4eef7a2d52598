package policy

// Built-in policies enforced on every matrix unless the engine is created
// without them.

const budgetPolicy = `package gridci

import rego.v1

deny contains msg if {
	input.max_jobs > 0
	input.job_count > input.max_jobs
	msg := sprintf("matrix expands to %d jobs, exceeding the budget of %d", [input.job_count, input.max_jobs])
}
`

const emptySelectionPolicy = `package gridci

import rego.v1

deny contains msg if {
	input.job_count > 0
	input.selected_count == 0
	msg := "exclusion rules remove every job; nothing would run"
}
`

const softMatrixPolicy = `package gridci

import rego.v1

deny contains msg if {
	input.selected_count > 0
	input.allowed_count == input.selected_count
	msg := "every selected job is allowed to fail; the run can never fail and carries no signal"
}
`

// BuiltinPolicies returns the policies shipped with gridci.
func BuiltinPolicies() []Policy {
	return []Policy{
		{
			Name:        "job-budget",
			Description: "Denies matrices whose expansion exceeds the configured job budget.",
			Source:      budgetPolicy,
			Builtin:     true,
		},
		{
			Name:        "non-empty-selection",
			Description: "Denies matrices whose exclusion rules remove every job.",
			Source:      emptySelectionPolicy,
			Builtin:     true,
		},
		{
			Name:        "meaningful-verdict",
			Description: "Denies matrices where every selected job is allowed to fail.",
			Source:      softMatrixPolicy,
			Builtin:     true,
		},
	}
}
