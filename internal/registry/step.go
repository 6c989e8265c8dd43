package registry

import (
	"context"
	"encoding/json"
	"reflect"
	"slices"

	"mediachain/internal/chain"
)

// ExecFunc computes a step result from the job context and the outputs of
// earlier steps.
type ExecFunc[T any] func(ctx context.Context, cc chain.Context, inputs chain.Inputs) (T, error)

// Definition is the type-erased view of a step used by the executor.
type Definition interface {
	Name() string
	Version() string
	Dependencies() []string
	ResultType() reflect.Type
	Execute(ctx context.Context, cc chain.Context, inputs chain.Inputs) (any, error)
	Decode(raw json.RawMessage) (any, error)
	Snapshot(result any) any
}

// Step declares a step whose result type is T.
type Step[T any] struct {
	name    string
	version string
	deps    []string
	run     ExecFunc[T]
	explain func(T) any
}

// NewStep declares a step named name at version, computed by run. T must be a
// concrete type so cached results can be decoded back into it.
func NewStep[T any](name, version string, run ExecFunc[T]) *Step[T] {
	return &Step[T]{name: name, version: version, run: run}
}

// DependsOn declares prerequisite steps.
func (s *Step[T]) DependsOn(names ...string) *Step[T] {
	s.deps = append(s.deps, names...)
	return s
}

// WithExplain sets the function that extracts an explainability snapshot from
// a result.
func (s *Step[T]) WithExplain(fn func(T) any) *Step[T] {
	s.explain = fn
	return s
}

func (s *Step[T]) Name() string { return s.name }
func (s *Step[T]) Version() string { return s.version }

func (s *Step[T]) Dependencies() []string { return slices.Clone(s.deps) }

func (s *Step[T]) ResultType() reflect.Type { return reflect.TypeFor[T]() }

func (s *Step[T]) Execute(ctx context.Context, cc chain.Context, inputs chain.Inputs) (any, error) {
	result, err := s.run(ctx, cc, inputs)
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Step[T]) Decode(raw json.RawMessage) (any, error) {
	var result T
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Step[T]) Snapshot(result any) any {
	if s.explain == nil {
		return nil
	}
	typed, ok := result.(T)
	if !ok {
		return nil
	}
	return s.explain(typed)
}
