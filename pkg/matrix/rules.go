package matrix

// ApplyRules filters and annotates the expanded jobs.
//
// A job matching any exclusion rule is dropped entirely; exclusion takes
// precedence over allow-failure, so an excluded job is never executed and
// never reported as allowed-to-fail. A surviving job is annotated with
// AllowFailure=true when it matches any allow-failure rule.
//
// Rule evaluation is set-semantic: the order of rules never affects the
// outcome, and duplicate rules are redundant. Output preserves the input job
// order, so repeated application to identical input yields identical output.
func ApplyRules(jobs []Job, excludes, allowFailures []Rule) []Selection {
	selections := make([]Selection, 0, len(jobs))
	for _, job := range jobs {
		if matchesAny(job, excludes) {
			continue
		}
		selections = append(selections, Selection{
			Job:          job.Clone(),
			AllowFailure: matchesAny(job, allowFailures),
		})
	}
	return selections
}

func matchesAny(job Job, rules []Rule) bool {
	for _, rule := range rules {
		if rule.Matches(job) {
			return true
		}
	}
	return false
}
