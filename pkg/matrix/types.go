package matrix

import (
	"sort"
	"strings"
	"time"
)

// Axis is one dimension of the test matrix: a named, ordered set of discrete
// string values.
type Axis struct {
	// Name is the axis name, unique within a matrix.
	Name string `json:"name"`

	// Values is the ordered list of values. Must contain at least one entry.
	Values []string `json:"values"`
}

// Job is one fully-specified point in the Cartesian product: a mapping from
// axis name to one selected value. Jobs are immutable once generated and are
// never persisted between runs.
type Job struct {
	// Assignments maps axis name to the selected value.
	Assignments map[string]string `json:"assignments"`

	// AxisOrder preserves the declaration order of the axes, so labels and
	// environment synthesis are deterministic.
	AxisOrder []string `json:"axis_order"`
}

// Value returns the assigned value for an axis, or "" when the axis is not
// part of this job.
func (j Job) Value(axis string) string {
	return j.Assignments[axis]
}

// Label renders a stable human-readable identifier such as
// "python=2.7 db=sqlite", following axis declaration order.
func (j Job) Label() string {
	parts := make([]string, 0, len(j.AxisOrder))
	for _, name := range j.AxisOrder {
		parts = append(parts, name+"="+j.Assignments[name])
	}
	return strings.Join(parts, " ")
}

// Clone returns a deep copy. Rule application hands jobs to callers that must
// not be able to mutate the generated matrix.
func (j Job) Clone() Job {
	assignments := make(map[string]string, len(j.Assignments))
	for k, v := range j.Assignments {
		assignments[k] = v
	}
	order := make([]string, len(j.AxisOrder))
	copy(order, j.AxisOrder)
	return Job{Assignments: assignments, AxisOrder: order}
}

// Rule is a partial axis→value mapping used for both exclusion and
// allow-failure matching. A job matches when every pair in the rule equals the
// job's assignment; axes not named by the rule are wildcards.
type Rule map[string]string

// Matches reports whether every axis/value pair of the rule is present in the
// job with an equal value. A rule naming an axis or value absent from the job
// matches nothing; that is not an error.
func (r Rule) Matches(j Job) bool {
	if len(r) == 0 {
		return false
	}
	for axis, want := range r {
		got, ok := j.Assignments[axis]
		if !ok || got != want {
			return false
		}
	}
	return true
}

// String renders the rule deterministically for logs and reports.
func (r Rule) String() string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+r[k])
	}
	return strings.Join(parts, " ")
}

// Selection is a job that survived rule application, annotated with its
// allow-failure flag.
type Selection struct {
	Job          Job  `json:"job"`
	AllowFailure bool `json:"allow_failure"`
}

// JobStatus is the outcome of a single job.
type JobStatus string

const (
	// JobStatusPending means the job has not started yet.
	JobStatusPending JobStatus = "pending"

	// JobStatusRunning means the job's command sequence is executing.
	JobStatusRunning JobStatus = "running"

	// JobStatusPassed means every command exited zero.
	JobStatusPassed JobStatus = "passed"

	// JobStatusFailed means a command exited non-zero and the job is not
	// allowed to fail.
	JobStatusFailed JobStatus = "failed"

	// JobStatusSoftFailed means a command exited non-zero but the job matched
	// an allow-failure rule; it is reported and does not fail the run.
	JobStatusSoftFailed JobStatus = "soft_failed"

	// JobStatusError means a command could not be started at all.
	JobStatusError JobStatus = "error"

	// JobStatusAborted means the run was cancelled before the job finished.
	// Aborted jobs appear in the report; they are never silently omitted.
	JobStatusAborted JobStatus = "aborted"
)

// IsTerminal reports whether the status is final.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusPassed, JobStatusFailed, JobStatusSoftFailed, JobStatusError, JobStatusAborted:
		return true
	}
	return false
}

// Failing reports whether the status counts as a failure before allow-failure
// logic is applied. Command-start errors fail exactly like non-zero exits.
func (s JobStatus) Failing() bool {
	return s == JobStatusFailed || s == JobStatusSoftFailed || s == JobStatusError
}

// CommandResult records one executed command within a job.
type CommandResult struct {
	// Command is the expanded command line that was run.
	Command string `json:"command"`

	// ExitCode is the process exit status. -1 when the process could not be
	// started or was killed by cancellation.
	ExitCode int `json:"exit_code"`

	// Stdout and Stderr hold captured output, possibly truncated.
	Stdout string `json:"stdout,omitempty"`
	Stderr string `json:"stderr,omitempty"`

	// Duration is the wall-clock execution time.
	Duration time.Duration `json:"duration"`

	// Err is set when the command could not start or was cancelled.
	Err error `json:"-"`
}

// JobResult is the immutable outcome of one executed (or aborted) job,
// consumed only by aggregation and reporting.
type JobResult struct {
	// Job is the executed job.
	Job Job `json:"job"`

	// AllowFailure carries the rule engine annotation into aggregation.
	AllowFailure bool `json:"allow_failure"`

	// Status is the final job status.
	Status JobStatus `json:"status"`

	// ExitCode is the exit status of the last executed command; 0 for a pass,
	// -1 for a command-start error or abort.
	ExitCode int `json:"exit_code"`

	// Commands lists the commands that actually ran, in order. A failing
	// command is the last entry: remaining commands for the job are skipped.
	Commands []CommandResult `json:"commands,omitempty"`

	// StartedAt and FinishedAt bound the job's execution window. Zero for
	// jobs aborted before starting.
	StartedAt  time.Time `json:"started_at,omitempty"`
	FinishedAt time.Time `json:"finished_at,omitempty"`

	// Err carries the classified error for failed/error/aborted jobs.
	Err error `json:"-"`
}

// Duration returns the job's wall-clock duration.
func (r JobResult) Duration() time.Duration {
	if r.StartedAt.IsZero() || r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Verdict is the aggregate outcome of a run.
type Verdict string

const (
	// VerdictPass means no disallowed job failed.
	VerdictPass Verdict = "pass"

	// VerdictFail means at least one job failed without an allow-failure
	// annotation.
	VerdictFail Verdict = "fail"
)
