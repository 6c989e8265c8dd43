package testsupport

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"slices"
	"sync"
)

// StubRunner stands in for stage processes. Each call writes the output
// registered for the command to the --output path.
type StubRunner struct {
	mu       sync.Mutex
	outputs  map[string]any
	failures map[string]error
	calls    []string
}

// NewStubRunner returns a runner with no registered commands.
func NewStubRunner() *StubRunner {
	return &StubRunner{
		outputs:  make(map[string]any),
		failures: make(map[string]error),
	}
}

// Output registers the document written when command runs.
func (r *StubRunner) Output(command string, output any) *StubRunner {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outputs[command] = output
	return r
}

// Fail makes command return err.
func (r *StubRunner) Fail(command string, err error) *StubRunner {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures[command] = err
	return r
}

// Calls returns the commands run so far, in order.
func (r *StubRunner) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.calls)
}

// Count returns how many times command ran.
func (r *StubRunner) Count(command string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, call := range r.calls {
		if call == command {
			n++
		}
	}
	return n
}

// Run matches procexec.CommandRunner.
func (r *StubRunner) Run(ctx context.Context, name string, args ...string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	r.calls = append(r.calls, name)
	failure := r.failures[name]
	output, ok := r.outputs[name]
	r.mu.Unlock()

	if failure != nil {
		return failure
	}
	if !ok {
		return fmt.Errorf("%s: command not found", name)
	}
	path := FlagValue(args, "--output")
	if path == "" {
		return fmt.Errorf("%s: missing --output", name)
	}
	data, err := json.Marshal(output)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// FlagValue returns the argument following flag, or "".
func FlagValue(args []string, flag string) string {
	for i := 0; i < len(args)-1; i++ {
		if args[i] == flag {
			return args[i+1]
		}
	}
	return ""
}
