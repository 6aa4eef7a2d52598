package config

import (
	"fmt"
	"time"

	"go.starlark.net/starlark"

	"github.com/gridci/gridci/pkg/matrix"
)

// Generated holds the declarations produced by a matrix generator script.
type Generated struct {
	Axes          []AxisConfig
	Exclude       []map[string]string
	AllowFailures []map[string]string
}

// StarlarkGenerator executes the optional `generate` script of a matrix
// declaration. The script runs once at load time in a sandboxed interpreter
// with no I/O and a wall-clock budget; it communicates by assigning the
// globals `axes`, `exclude`, and `allow_failures`.
type StarlarkGenerator struct {
	timeout time.Duration
}

// NewStarlarkGenerator creates a generator. A zero timeout selects the
// 10 second default budget.
func NewStarlarkGenerator(timeout time.Duration) *StarlarkGenerator {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &StarlarkGenerator{timeout: timeout}
}

// Generate runs the script and collects the generated declarations.
func (g *StarlarkGenerator) Generate(script string) (*Generated, error) {
	type outcome struct {
		generated *Generated
		err       error
	}
	ch := make(chan outcome, 1)

	go func() {
		generated, err := g.run(script)
		ch <- outcome{generated, err}
	}()

	select {
	case <-time.After(g.timeout):
		return nil, matrix.NewConfigurationError(
			fmt.Sprintf("matrix generator exceeded %v budget", g.timeout), nil)
	case out := <-ch:
		return out.generated, out.err
	}
}

func (g *StarlarkGenerator) run(script string) (*Generated, error) {
	thread := &starlark.Thread{
		Name: "gridci-generate",
		Print: func(_ *starlark.Thread, _ string) {
			// Generator scripts have no output channel.
		},
	}

	globals, err := starlark.ExecFile(thread, "generate.star", script, nil)
	if err != nil {
		return nil, matrix.NewConfigurationError("matrix generator failed", err)
	}

	generated := &Generated{}
	if v, ok := globals["axes"]; ok {
		axes, err := axesFromStarlark(v)
		if err != nil {
			return nil, matrix.NewConfigurationError("matrix generator produced invalid axes", err)
		}
		generated.Axes = axes
	}
	if v, ok := globals["exclude"]; ok {
		rules, err := rulesFromStarlark(v)
		if err != nil {
			return nil, matrix.NewConfigurationError("matrix generator produced invalid exclude rules", err)
		}
		generated.Exclude = rules
	}
	if v, ok := globals["allow_failures"]; ok {
		rules, err := rulesFromStarlark(v)
		if err != nil {
			return nil, matrix.NewConfigurationError("matrix generator produced invalid allow_failures rules", err)
		}
		generated.AllowFailures = rules
	}
	return generated, nil
}

// axesFromStarlark decodes [{"name": ..., "values": [...]}, ...].
func axesFromStarlark(v starlark.Value) ([]AxisConfig, error) {
	list, ok := v.(*starlark.List)
	if !ok {
		return nil, fmt.Errorf("axes must be a list, got %s", v.Type())
	}

	axes := make([]AxisConfig, 0, list.Len())
	for i := 0; i < list.Len(); i++ {
		dict, ok := list.Index(i).(*starlark.Dict)
		if !ok {
			return nil, fmt.Errorf("axes[%d] must be a dict, got %s", i, list.Index(i).Type())
		}

		name, err := dictString(dict, "name")
		if err != nil {
			return nil, fmt.Errorf("axes[%d]: %w", i, err)
		}

		raw, found, err := dict.Get(starlark.String("values"))
		if err != nil || !found {
			return nil, fmt.Errorf("axes[%d] is missing values", i)
		}
		values, err := stringsFromStarlark(raw)
		if err != nil {
			return nil, fmt.Errorf("axes[%d]: %w", i, err)
		}

		axes = append(axes, AxisConfig{Name: name, Values: values})
	}
	return axes, nil
}

// rulesFromStarlark decodes [{"axis": "value", ...}, ...].
func rulesFromStarlark(v starlark.Value) ([]map[string]string, error) {
	list, ok := v.(*starlark.List)
	if !ok {
		return nil, fmt.Errorf("rules must be a list, got %s", v.Type())
	}

	rules := make([]map[string]string, 0, list.Len())
	for i := 0; i < list.Len(); i++ {
		dict, ok := list.Index(i).(*starlark.Dict)
		if !ok {
			return nil, fmt.Errorf("rule %d must be a dict, got %s", i, list.Index(i).Type())
		}

		rule := make(map[string]string, dict.Len())
		for _, key := range dict.Keys() {
			ks, ok := starlark.AsString(key)
			if !ok {
				return nil, fmt.Errorf("rule %d has non-string key %s", i, key)
			}
			raw, _, err := dict.Get(key)
			if err != nil {
				return nil, err
			}
			vs, ok := starlark.AsString(raw)
			if !ok {
				return nil, fmt.Errorf("rule %d has non-string value for %q", i, ks)
			}
			rule[ks] = vs
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

func stringsFromStarlark(v starlark.Value) ([]string, error) {
	list, ok := v.(*starlark.List)
	if !ok {
		return nil, fmt.Errorf("values must be a list, got %s", v.Type())
	}
	values := make([]string, 0, list.Len())
	for i := 0; i < list.Len(); i++ {
		s, ok := starlark.AsString(list.Index(i))
		if !ok {
			return nil, fmt.Errorf("values[%d] is not a string", i)
		}
		values = append(values, s)
	}
	return values, nil
}

func dictString(dict *starlark.Dict, key string) (string, error) {
	raw, found, err := dict.Get(starlark.String(key))
	if err != nil {
		return "", err
	}
	if !found {
		return "", fmt.Errorf("missing %q", key)
	}
	s, ok := starlark.AsString(raw)
	if !ok {
		return "", fmt.Errorf("%q is not a string", key)
	}
	return s, nil
}
