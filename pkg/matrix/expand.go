package matrix

import "fmt"

// Expand computes the full Cartesian product of the given axes.
//
// Enumeration order is deterministic for identical input: axes are walked in
// declaration order with the last axis varying fastest, so the same axes in
// the same order always yield the same job sequence. Reproducible logs and
// reports depend on this.
//
// Expand has no side effects and returns a configuration error when the axis
// list is empty, an axis has zero values, or two axes share a name.
func Expand(axes []Axis) ([]Job, error) {
	if len(axes) == 0 {
		return nil, NewConfigurationError("matrix has no axes", nil).
			WithCode(ErrCodeEmptyAxes)
	}

	seen := make(map[string]struct{}, len(axes))
	total := 1
	for _, axis := range axes {
		if axis.Name == "" {
			return nil, NewConfigurationError("axis has empty name", nil).
				WithCode(ErrCodeEmptyAxis)
		}
		if len(axis.Values) == 0 {
			return nil, NewConfigurationError(
				fmt.Sprintf("axis %q has no values", axis.Name), nil).
				WithCode(ErrCodeEmptyAxis)
		}
		if _, dup := seen[axis.Name]; dup {
			return nil, NewConfigurationError(
				fmt.Sprintf("duplicate axis name %q", axis.Name), nil).
				WithCode(ErrCodeDuplicateAxis)
		}
		seen[axis.Name] = struct{}{}
		total *= len(axis.Values)
	}

	order := make([]string, len(axes))
	for i, axis := range axes {
		order[i] = axis.Name
	}

	jobs := make([]Job, 0, total)
	indices := make([]int, len(axes))
	for {
		assignments := make(map[string]string, len(axes))
		for i, axis := range axes {
			assignments[axis.Name] = axis.Values[indices[i]]
		}
		jobs = append(jobs, Job{Assignments: assignments, AxisOrder: order})

		// Advance the odometer, last axis fastest.
		i := len(axes) - 1
		for i >= 0 {
			indices[i]++
			if indices[i] < len(axes[i].Values) {
				break
			}
			indices[i] = 0
			i--
		}
		if i < 0 {
			break
		}
	}

	return jobs, nil
}
