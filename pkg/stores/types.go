// Package stores persists run history so past matrix runs can be listed and
// inspected. Jobs themselves are never persisted ahead of execution; only
// completed results are recorded.
package stores

import "time"

// RunRecord is one persisted matrix run.
type RunRecord struct {
	ID         string     `json:"id"`
	Matrix     string     `json:"matrix"`
	ConfigPath string     `json:"config_path"`
	Verdict    string     `json:"verdict"`
	Total      int        `json:"total"`
	Passed     int        `json:"passed"`
	Failed     int        `json:"failed"`
	SoftFailed int        `json:"soft_failed"`
	Errored    int        `json:"errored"`
	Aborted    int        `json:"aborted"`
	Excluded   int        `json:"excluded"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// JobRecord is one persisted job result belonging to a run.
type JobRecord struct {
	ID       int64  `json:"id"`
	RunID    string `json:"run_id"`
	Label    string `json:"label"`
	Axes     string `json:"axes"` // JSON object of axis assignments
	Status   string `json:"status"`
	ExitCode int    `json:"exit_code"`
	Allowed  bool   `json:"allowed"`
	Duration int64  `json:"duration_ms"`
	Error    string `json:"error,omitempty"`
}
