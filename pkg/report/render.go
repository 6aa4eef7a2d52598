package report

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/gridci/gridci/pkg/matrix"
)

// WriteText renders the report as a human-readable table followed by the
// summary line and verdict.
func (r *Report) WriteText(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 2, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "JOB\tSTATUS\tEXIT\tDURATION\n")
	for _, res := range r.Results {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
			res.Job.Label(),
			statusLabel(res),
			exitLabel(res),
			durationLabel(res.Duration()),
		)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	s := r.Summary
	fmt.Fprintf(w, "\n%d jobs: %d passed, %d failed, %d allowed failures, %d errored, %d aborted (%d excluded)\n",
		s.Total, s.Passed, s.Failed, s.SoftFailed, s.Errored, s.Aborted, s.Excluded)
	fmt.Fprintf(w, "verdict: %s (%s)\n", r.Verdict, durationLabel(s.Duration))
	return nil
}

// WriteJSON renders the full report as indented JSON, including command-level
// detail and error strings.
func (r *Report) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r.jsonView())
}

// jsonView mirrors Report with error chains flattened to strings.
type jsonReport struct {
	RunID      string          `json:"run_id"`
	Matrix     string          `json:"matrix"`
	ConfigPath string          `json:"config_path,omitempty"`
	Verdict    matrix.Verdict  `json:"verdict"`
	Summary    matrix.Summary  `json:"summary"`
	Results    []jsonJobResult `json:"results"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
}

type jsonJobResult struct {
	Job          map[string]string   `json:"job"`
	Label        string              `json:"label"`
	AllowFailure bool                `json:"allow_failure"`
	Status       matrix.JobStatus    `json:"status"`
	ExitCode     int                 `json:"exit_code"`
	Duration     string              `json:"duration"`
	Error        string              `json:"error,omitempty"`
	Commands     []jsonCommandResult `json:"commands,omitempty"`
}

type jsonCommandResult struct {
	Command  string `json:"command"`
	ExitCode int    `json:"exit_code"`
	Duration string `json:"duration"`
	Stdout   string `json:"stdout,omitempty"`
	Stderr   string `json:"stderr,omitempty"`
	Error    string `json:"error,omitempty"`
}

func (r *Report) jsonView() jsonReport {
	view := jsonReport{
		RunID:      r.RunID,
		Matrix:     r.Matrix,
		ConfigPath: r.ConfigPath,
		Verdict:    r.Verdict,
		Summary:    r.Summary,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
		Results:    make([]jsonJobResult, 0, len(r.Results)),
	}

	for _, res := range r.Results {
		jr := jsonJobResult{
			Job:          res.Job.Assignments,
			Label:        res.Job.Label(),
			AllowFailure: res.AllowFailure,
			Status:       res.Status,
			ExitCode:     res.ExitCode,
			Duration:     res.Duration().String(),
		}
		if res.Err != nil {
			jr.Error = res.Err.Error()
		}
		for _, cmd := range res.Commands {
			jc := jsonCommandResult{
				Command:  cmd.Command,
				ExitCode: cmd.ExitCode,
				Duration: cmd.Duration.String(),
				Stdout:   cmd.Stdout,
				Stderr:   cmd.Stderr,
			}
			if cmd.Err != nil {
				jc.Error = cmd.Err.Error()
			}
			jr.Commands = append(jr.Commands, jc)
		}
		view.Results = append(view.Results, jr)
	}

	return view
}

func statusLabel(res matrix.JobResult) string {
	if res.Status == matrix.JobStatusSoftFailed {
		return "failed (allowed)"
	}
	return string(res.Status)
}

func exitLabel(res matrix.JobResult) string {
	if res.Status == matrix.JobStatusAborted && len(res.Commands) == 0 {
		return "-"
	}
	return fmt.Sprintf("%d", res.ExitCode)
}

func durationLabel(d time.Duration) string {
	if d == 0 {
		return "-"
	}
	return d.Round(time.Millisecond).String()
}
