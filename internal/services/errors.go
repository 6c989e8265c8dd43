package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrExternalTool  = errors.New("external tool error")
	ErrValidation    = errors.New("validation error")
	ErrConfiguration = errors.New("configuration error")
	ErrNotFound      = errors.New("not found")
	ErrTimeout       = errors.New("timeout")
	ErrTransient     = errors.New("transient failure")
	ErrMissingInput  = errors.New("missing input")
	ErrStepFailed    = errors.New("step failed")
	ErrTypeMismatch  = errors.New("result type mismatch")
)

var markers = []error{
	ErrExternalTool,
	ErrValidation,
	ErrConfiguration,
	ErrNotFound,
	ErrTimeout,
	ErrTransient,
	ErrMissingInput,
	ErrTypeMismatch,
	ErrStepFailed,
}

// Wrap builds an error message that includes step context while tagging it with
// the provided marker for later classification. The marker should be one of the
// exported sentinel errors above.
func Wrap(marker error, step, operation, message string, err error) error {
	detail := buildDetail(step, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// StepError is the hard-failure type returned by the chain executor. It carries
// the failing step name and keeps the underlying marker reachable via errors.Is.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err == nil {
		return fmt.Sprintf("step %s: %s", e.Step, ErrStepFailed)
	}
	return fmt.Sprintf("step %s: %s", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	if e == nil {
		return nil
	}
	if e.Err == nil {
		return ErrStepFailed
	}
	return e.Err
}

// NewStepError wraps err for the named step. An error that already belongs to
// the same step is returned unchanged.
func NewStepError(step string, err error) *StepError {
	var existing *StepError
	if errors.As(err, &existing) && existing.Step == step {
		return existing
	}
	return &StepError{Step: step, Err: err}
}

// StepName extracts the failing step from err when it carries one.
func StepName(err error) (string, bool) {
	var stepErr *StepError
	if errors.As(err, &stepErr) && stepErr.Step != "" {
		return stepErr.Step, true
	}
	return "", false
}

// ErrorDetails summarizes an error for structured logging.
type ErrorDetails struct {
	Marker  string
	Step    string
	Message string
}

// Details classifies err against the known markers.
func Details(err error) ErrorDetails {
	if err == nil {
		return ErrorDetails{}
	}
	details := ErrorDetails{Message: strings.TrimSpace(err.Error())}
	for _, marker := range markers {
		if errors.Is(err, marker) {
			details.Marker = marker.Error()
			break
		}
	}
	if step, ok := StepName(err); ok {
		details.Step = step
	}
	return details
}

// IsConfiguration reports whether err should abort before any step executes.
func IsConfiguration(err error) bool {
	return errors.Is(err, ErrConfiguration)
}

func buildDetail(step, operation, message string) string {
	parts := make([]string, 0, 3)
	if step = strings.TrimSpace(step); step != "" {
		parts = append(parts, step)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
