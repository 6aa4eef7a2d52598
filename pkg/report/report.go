// Package report assembles per-job results into the final run report and
// renders it for humans and machines.
package report

import (
	"time"

	"github.com/google/uuid"

	"github.com/gridci/gridci/pkg/matrix"
)

// Report is the complete outcome of one matrix run: the verdict plus one
// entry for every selected job. Excluded jobs never appear; aborted jobs
// always do.
type Report struct {
	// RunID uniquely identifies this run.
	RunID string `json:"run_id"`

	// Matrix is the declaration name.
	Matrix string `json:"matrix"`

	// ConfigPath is the declaration file the run was resolved from.
	ConfigPath string `json:"config_path,omitempty"`

	// Verdict is the aggregate outcome.
	Verdict matrix.Verdict `json:"verdict"`

	// Summary holds the outcome counts.
	Summary matrix.Summary `json:"summary"`

	// Results lists every executed or aborted job in resolution order.
	Results []matrix.JobResult `json:"results"`

	// StartedAt and FinishedAt bound the run.
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// New aggregates results into a report.
func New(name, configPath string, excluded int, results []matrix.JobResult, startedAt time.Time) *Report {
	verdict, summary := matrix.Aggregate(results)
	summary.Excluded = excluded
	finished := time.Now()
	summary.Duration = finished.Sub(startedAt)

	return &Report{
		RunID:      uuid.New().String(),
		Matrix:     name,
		ConfigPath: configPath,
		Verdict:    verdict,
		Summary:    summary,
		Results:    results,
		StartedAt:  startedAt,
		FinishedAt: finished,
	}
}

// ExitCode maps the verdict to the conventional CI process exit status.
func (r *Report) ExitCode() int {
	if r.Verdict == matrix.VerdictPass {
		return 0
	}
	return 1
}
