package multicall

import (
	"errors"
	"fmt"
)

// ErrShapeMismatch means labels and values cannot be paired one to one.
var ErrShapeMismatch = errors.New("label and value shape mismatch")

// ZipLabelsAndValues pairs labels[i] with values[i].
func ZipLabelsAndValues(labels []string, values []Value) (map[string]Value, error) {
	if len(labels) != len(values) {
		return nil, fmt.Errorf("%w: %d labels, %d values", ErrShapeMismatch, len(labels), len(values))
	}

	out := make(map[string]Value, len(labels))
	for i, label := range labels {
		if _, dup := out[label]; dup {
			return nil, fmt.Errorf("%w: duplicate label %q", ErrShapeMismatch, label)
		}
		out[label] = values[i]
	}
	return out, nil
}
