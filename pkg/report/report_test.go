package report

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/gridci/gridci/pkg/matrix"
)

func jobResult(python, db string, status matrix.JobStatus, allow bool) matrix.JobResult {
	return matrix.JobResult{
		Job: matrix.Job{
			Assignments: map[string]string{"python": python, "db": db},
			AxisOrder:   []string{"python", "db"},
		},
		AllowFailure: allow,
		Status:       status,
	}
}

func TestNewReportVerdictAndCounts(t *testing.T) {
	results := []matrix.JobResult{
		jobResult("2.7", "sqlite", matrix.JobStatusPassed, false),
		jobResult("3.4", "sqlite", matrix.JobStatusPassed, false),
		jobResult("3.5", "postgres", matrix.JobStatusSoftFailed, true),
	}

	rep := New("wafer-ci", "matrix.yaml", 1, results, time.Now().Add(-time.Second))
	if rep.Verdict != matrix.VerdictPass {
		t.Errorf("expected pass, got %s", rep.Verdict)
	}
	if rep.ExitCode() != 0 {
		t.Errorf("expected exit 0, got %d", rep.ExitCode())
	}
	if rep.Summary.Excluded != 1 {
		t.Errorf("excluded count lost: %+v", rep.Summary)
	}
	if rep.RunID == "" {
		t.Error("missing run id")
	}
}

func TestReportFailExitCode(t *testing.T) {
	rep := New("wafer-ci", "", 0, []matrix.JobResult{
		jobResult("2.7", "sqlite", matrix.JobStatusFailed, false),
	}, time.Now())
	if rep.ExitCode() != 1 {
		t.Errorf("expected exit 1, got %d", rep.ExitCode())
	}
}

func TestWriteTextListsEveryJob(t *testing.T) {
	results := []matrix.JobResult{
		jobResult("2.7", "sqlite", matrix.JobStatusPassed, false),
		jobResult("3.4", "sqlite", matrix.JobStatusFailed, false),
		jobResult("3.5", "sqlite", matrix.JobStatusSoftFailed, true),
		jobResult("3.5", "postgres", matrix.JobStatusAborted, false),
	}
	rep := New("wafer-ci", "", 0, results, time.Now())

	var buf bytes.Buffer
	if err := rep.WriteText(&buf); err != nil {
		t.Fatalf("WriteText failed: %v", err)
	}
	out := buf.String()

	for _, want := range []string{
		"python=2.7 db=sqlite",
		"python=3.4 db=sqlite",
		"python=3.5 db=sqlite",
		"python=3.5 db=postgres",
		"failed (allowed)",
		"aborted",
		"verdict: fail",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("text report missing %q:\n%s", want, out)
		}
	}
}

func TestWriteJSONRoundTrips(t *testing.T) {
	results := []matrix.JobResult{
		jobResult("3.5", "sqlite", matrix.JobStatusPassed, false),
	}
	results[0].Commands = []matrix.CommandResult{
		{Command: "pip install Django", ExitCode: 0, Stdout: "ok"},
	}
	rep := New("wafer-ci", "matrix.yaml", 0, results, time.Now())

	var buf bytes.Buffer
	if err := rep.WriteJSON(&buf); err != nil {
		t.Fatalf("WriteJSON failed: %v", err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("report JSON does not parse: %v", err)
	}
	if decoded["verdict"] != "pass" {
		t.Errorf("unexpected verdict in JSON: %v", decoded["verdict"])
	}
	resultsJSON, ok := decoded["results"].([]interface{})
	if !ok || len(resultsJSON) != 1 {
		t.Fatalf("unexpected results in JSON: %v", decoded["results"])
	}
}
