package matrix

import "time"

// Summary counts job outcomes for a completed run.
type Summary struct {
	Total      int `json:"total"`
	Passed     int `json:"passed"`
	Failed     int `json:"failed"`
	SoftFailed int `json:"soft_failed"`
	Errored    int `json:"errored"`
	Aborted    int `json:"aborted"`

	// Excluded is the number of jobs removed by exclusion rules before
	// execution. Filled in by the caller; aggregation only sees survivors.
	Excluded int `json:"excluded"`

	// Duration is the wall-clock duration of the whole run.
	Duration time.Duration `json:"duration"`
}

// Aggregate combines per-job results into the overall run verdict.
//
// The verdict is FAIL iff at least one result carries a failing status without
// an allow-failure annotation; which particular jobs failed does not matter.
// Failed-but-allowed jobs are counted but never flip the verdict. Aggregation
// never terminates early: every result is inspected so the report lists every
// job.
//
// An aborted job fails the run unless it was allowed to fail: a verdict
// computed from a partial run must not read as a pass.
func Aggregate(results []JobResult) (Verdict, Summary) {
	summary := Summary{Total: len(results)}
	verdict := VerdictPass

	for _, res := range results {
		switch res.Status {
		case JobStatusPassed:
			summary.Passed++
		case JobStatusSoftFailed:
			summary.SoftFailed++
		case JobStatusFailed:
			summary.Failed++
		case JobStatusError:
			summary.Errored++
		case JobStatusAborted:
			summary.Aborted++
		}

		blocking := res.Status.Failing() || res.Status == JobStatusAborted
		if blocking && !res.AllowFailure {
			verdict = VerdictFail
		}
	}

	return verdict, summary
}
