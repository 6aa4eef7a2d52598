package matrix

import (
	"errors"
	"reflect"
	"testing"
)

func testAxes() []Axis {
	return []Axis{
		{Name: "python", Values: []string{"2.7", "3.4", "3.5"}},
		{Name: "db", Values: []string{"sqlite", "postgres"}},
	}
}

func TestExpandProductSize(t *testing.T) {
	cases := []struct {
		name string
		axes []Axis
		want int
	}{
		{"two axes", testAxes(), 6},
		{"single axis", []Axis{{Name: "a", Values: []string{"1", "2"}}}, 2},
		{"three axes", []Axis{
			{Name: "a", Values: []string{"1", "2"}},
			{Name: "b", Values: []string{"x", "y", "z"}},
			{Name: "c", Values: []string{"p"}},
		}, 6},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			jobs, err := Expand(tc.axes)
			if err != nil {
				t.Fatalf("Expand failed: %v", err)
			}
			if len(jobs) != tc.want {
				t.Errorf("expected %d jobs, got %d", tc.want, len(jobs))
			}
		})
	}
}

func TestExpandEnumerationOrder(t *testing.T) {
	jobs, err := Expand(testAxes())
	if err != nil {
		t.Fatalf("Expand failed: %v", err)
	}

	// Last axis varies fastest.
	want := []string{
		"python=2.7 db=sqlite",
		"python=2.7 db=postgres",
		"python=3.4 db=sqlite",
		"python=3.4 db=postgres",
		"python=3.5 db=sqlite",
		"python=3.5 db=postgres",
	}
	for i, job := range jobs {
		if job.Label() != want[i] {
			t.Errorf("job %d: expected %q, got %q", i, want[i], job.Label())
		}
	}
}

func TestExpandDeterminism(t *testing.T) {
	first, err := Expand(testAxes())
	if err != nil {
		t.Fatalf("Expand failed: %v", err)
	}
	second, err := Expand(testAxes())
	if err != nil {
		t.Fatalf("Expand failed: %v", err)
	}

	if !reflect.DeepEqual(first, second) {
		t.Error("two expansions of identical axes differ")
	}
}

func TestExpandConfigurationErrors(t *testing.T) {
	cases := []struct {
		name string
		axes []Axis
		code string
	}{
		{"no axes", nil, ErrCodeEmptyAxes},
		{"empty axis", []Axis{{Name: "python"}}, ErrCodeEmptyAxis},
		{"unnamed axis", []Axis{{Values: []string{"1"}}}, ErrCodeEmptyAxis},
		{"duplicate names", []Axis{
			{Name: "python", Values: []string{"2.7"}},
			{Name: "python", Values: []string{"3.5"}},
		}, ErrCodeDuplicateAxis},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Expand(tc.axes)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !IsConfiguration(err) {
				t.Errorf("expected configuration error, got %v", err)
			}
			var me *Error
			if !errors.As(err, &me) || me.Code != tc.code {
				t.Errorf("expected code %s, got %v", tc.code, err)
			}
		})
	}
}

func TestJobValue(t *testing.T) {
	jobs, err := Expand(testAxes())
	if err != nil {
		t.Fatalf("Expand failed: %v", err)
	}

	if got := jobs[0].Value("python"); got != "2.7" {
		t.Errorf("expected python=2.7, got %s", got)
	}
	if got := jobs[0].Value("missing"); got != "" {
		t.Errorf("expected empty value for unknown axis, got %s", got)
	}
}
