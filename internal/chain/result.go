package chain

import "mediachain/internal/quality"

// Result is the final outcome of one chain run. It is not modified after
// RunChain returns it.
type Result struct {
	Success   bool            `json:"success"`
	Metadata  Metadata        `json:"metadata"`
	Outputs   map[string]any  `json:"-"`
	Error     string          `json:"error,omitempty"`
	ErrorStep string          `json:"error_step,omitempty"`
	Err       error           `json:"-"`
	Quality   *quality.Report `json:"quality,omitempty"`
}

// Output returns the raw output of a step. A missing step reports false.
func (r *Result) Output(step string) (any, bool) {
	if r == nil {
		return nil, false
	}
	value, ok := r.Outputs[step]
	if !ok || value == nil {
		return nil, false
	}
	return value, true
}

// Output returns the typed output of a step.
func Output[T any](r *Result, step string) (T, bool) {
	var zero T
	raw, ok := r.Output(step)
	if !ok {
		return zero, false
	}
	value, ok := raw.(T)
	return value, ok
}

// Record is handed to a persistence sink once per run.
type Record struct {
	Context Context
	Result  *Result
	Explain *Explainability
}
