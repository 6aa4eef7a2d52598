package matrix

import "testing"

func result(label string, status JobStatus, allow bool) JobResult {
	return JobResult{
		Job: Job{
			Assignments: map[string]string{"job": label},
			AxisOrder:   []string{"job"},
		},
		AllowFailure: allow,
		Status:       status,
	}
}

func TestAggregateAllPassed(t *testing.T) {
	verdict, summary := Aggregate([]JobResult{
		result("a", JobStatusPassed, false),
		result("b", JobStatusPassed, false),
	})
	if verdict != VerdictPass {
		t.Errorf("expected pass, got %s", verdict)
	}
	if summary.Passed != 2 || summary.Total != 2 {
		t.Errorf("unexpected summary: %+v", summary)
	}
}

func TestAggregateAnyDisallowedFailureFails(t *testing.T) {
	// The verdict is order-independent: any non-empty subset of disallowed
	// failures fails the run, regardless of which jobs are in it.
	cases := [][]JobResult{
		{
			result("a", JobStatusFailed, false),
			result("b", JobStatusPassed, false),
		},
		{
			result("a", JobStatusPassed, false),
			result("b", JobStatusFailed, false),
		},
		{
			result("a", JobStatusFailed, false),
			result("b", JobStatusFailed, false),
		},
	}

	for i, results := range cases {
		verdict, _ := Aggregate(results)
		if verdict != VerdictFail {
			t.Errorf("case %d: expected fail, got %s", i, verdict)
		}
	}
}

func TestAggregateAllowedFailuresPass(t *testing.T) {
	verdict, summary := Aggregate([]JobResult{
		result("a", JobStatusPassed, false),
		result("b", JobStatusSoftFailed, true),
		result("c", JobStatusSoftFailed, true),
	})
	if verdict != VerdictPass {
		t.Errorf("failing allowed jobs must not fail the run, got %s", verdict)
	}
	if summary.SoftFailed != 2 {
		t.Errorf("expected 2 soft failures, got %d", summary.SoftFailed)
	}
}

func TestAggregateCommandErrorCountsAsFailure(t *testing.T) {
	verdict, summary := Aggregate([]JobResult{
		result("a", JobStatusError, false),
	})
	if verdict != VerdictFail {
		t.Errorf("command-start error must fail the run, got %s", verdict)
	}
	if summary.Errored != 1 {
		t.Errorf("expected 1 errored job, got %d", summary.Errored)
	}
}

func TestAggregateCommandErrorHonorsAllowFailure(t *testing.T) {
	verdict, _ := Aggregate([]JobResult{
		result("a", JobStatusError, true),
	})
	if verdict != VerdictPass {
		t.Errorf("allowed command error must not fail the run, got %s", verdict)
	}
}

func TestAggregateAbortedJobFailsRun(t *testing.T) {
	verdict, summary := Aggregate([]JobResult{
		result("a", JobStatusPassed, false),
		result("b", JobStatusAborted, false),
	})
	if verdict != VerdictFail {
		t.Errorf("partial run must not read as a pass, got %s", verdict)
	}
	if summary.Aborted != 1 {
		t.Errorf("expected 1 aborted job, got %d", summary.Aborted)
	}
}

// The worked end-to-end example: a 3x2 matrix, one exclusion removing exactly
// one job, one allow-failure rule matching one survivor that fails.
func TestAggregateMatrixExample(t *testing.T) {
	jobs, err := Expand(testAxes())
	if err != nil {
		t.Fatalf("Expand failed: %v", err)
	}

	selections := ApplyRules(jobs,
		[]Rule{{"python": "2.7", "db": "postgres"}},
		[]Rule{{"python": "3.5", "db": "postgres"}},
	)
	if len(selections) != 5 {
		t.Fatalf("expected 5 selections, got %d", len(selections))
	}

	results := make([]JobResult, 0, len(selections))
	for _, sel := range selections {
		status := JobStatusPassed
		if sel.AllowFailure {
			status = JobStatusSoftFailed
		}
		results = append(results, JobResult{
			Job:          sel.Job,
			AllowFailure: sel.AllowFailure,
			Status:       status,
		})
	}

	verdict, summary := Aggregate(results)
	if verdict != VerdictPass {
		t.Errorf("expected pass, got %s", verdict)
	}
	if summary.Passed != 4 || summary.SoftFailed != 1 {
		t.Errorf("unexpected summary: %+v", summary)
	}
}
