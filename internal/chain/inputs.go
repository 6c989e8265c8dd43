package chain

import (
	"fmt"

	"mediachain/internal/services"
)

// Inputs maps step names to the outputs available to a step.
type Inputs map[string]any

// Clone copies the map. Values are shared.
func (in Inputs) Clone() Inputs {
	out := make(Inputs, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// Input returns the named prerequisite output as T.
func Input[T any](inputs Inputs, name string) (T, error) {
	var zero T
	raw, ok := inputs[name]
	if !ok || raw == nil {
		return zero, services.Wrap(services.ErrMissingInput, name, "read input", "output not available", nil)
	}
	value, ok := raw.(T)
	if !ok {
		return zero, services.Wrap(services.ErrTypeMismatch, name, "read input", fmt.Sprintf("got %T, want %T", raw, zero), nil)
	}
	return value, nil
}
