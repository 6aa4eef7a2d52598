package matrix

import (
	"reflect"
	"testing"
)

func expandOrFail(t *testing.T) []Job {
	t.Helper()
	jobs, err := Expand(testAxes())
	if err != nil {
		t.Fatalf("Expand failed: %v", err)
	}
	return jobs
}

func TestRuleMatchesPartialMapping(t *testing.T) {
	jobs := expandOrFail(t)

	rule := Rule{"python": "2.7"}
	matched := 0
	for _, job := range jobs {
		if rule.Matches(job) {
			matched++
		}
	}
	// One axis value matched across the other axis's two values.
	if matched != 2 {
		t.Errorf("expected 2 matches, got %d", matched)
	}
}

func TestRuleUnknownAxisMatchesNothing(t *testing.T) {
	jobs := expandOrFail(t)

	for _, rule := range []Rule{
		{"compiler": "gcc"},
		{"python": "9.9"},
	} {
		for _, job := range jobs {
			if rule.Matches(job) {
				t.Errorf("rule %v should not match job %s", rule, job.Label())
			}
		}
	}
}

func TestEmptyRuleMatchesNothing(t *testing.T) {
	jobs := expandOrFail(t)
	if (Rule{}).Matches(jobs[0]) {
		t.Error("empty rule must not match any job")
	}
}

func TestApplyRulesExclusionRemovesExactMatches(t *testing.T) {
	jobs := expandOrFail(t)

	selections := ApplyRules(jobs, []Rule{{"python": "2.7", "db": "postgres"}}, nil)
	if len(selections) != 5 {
		t.Fatalf("expected 5 selections, got %d", len(selections))
	}
	for _, sel := range selections {
		if sel.Job.Value("python") == "2.7" && sel.Job.Value("db") == "postgres" {
			t.Errorf("excluded job survived: %s", sel.Job.Label())
		}
	}
}

func TestApplyRulesAllowFailureAnnotation(t *testing.T) {
	jobs := expandOrFail(t)

	selections := ApplyRules(jobs, nil, []Rule{{"db": "postgres"}})
	allowed := 0
	for _, sel := range selections {
		if sel.AllowFailure {
			allowed++
			if sel.Job.Value("db") != "postgres" {
				t.Errorf("unexpected allow-failure on %s", sel.Job.Label())
			}
		}
	}
	if allowed != 3 {
		t.Errorf("expected 3 allow-failure selections, got %d", allowed)
	}
}

func TestApplyRulesExclusionBeatsAllowFailure(t *testing.T) {
	jobs := expandOrFail(t)

	rule := Rule{"python": "2.7", "db": "postgres"}
	selections := ApplyRules(jobs, []Rule{rule}, []Rule{rule})
	for _, sel := range selections {
		if rule.Matches(sel.Job) {
			t.Errorf("job matching both rule types must be excluded: %s", sel.Job.Label())
		}
	}
	if len(selections) != 5 {
		t.Errorf("expected 5 selections, got %d", len(selections))
	}
}

func TestApplyRulesDuplicateRulesRedundant(t *testing.T) {
	jobs := expandOrFail(t)

	rule := Rule{"db": "postgres"}
	once := ApplyRules(jobs, nil, []Rule{rule})
	twice := ApplyRules(jobs, nil, []Rule{rule, rule})
	if !reflect.DeepEqual(once, twice) {
		t.Error("duplicate allow-failure rules changed the outcome")
	}
}

func TestApplyRulesIdempotent(t *testing.T) {
	excludes := []Rule{{"python": "2.7", "db": "postgres"}}
	allows := []Rule{{"db": "postgres"}}

	first := ApplyRules(expandOrFail(t), excludes, allows)
	second := ApplyRules(expandOrFail(t), excludes, allows)
	if !reflect.DeepEqual(first, second) {
		t.Error("rule application is not reproducible for identical input")
	}
}

func TestApplyRulesPreservesJobOrder(t *testing.T) {
	jobs := expandOrFail(t)
	selections := ApplyRules(jobs, nil, nil)

	if len(selections) != len(jobs) {
		t.Fatalf("expected %d selections, got %d", len(jobs), len(selections))
	}
	for i := range jobs {
		if selections[i].Job.Label() != jobs[i].Label() {
			t.Errorf("selection %d out of order: %s vs %s",
				i, selections[i].Job.Label(), jobs[i].Label())
		}
	}
}
