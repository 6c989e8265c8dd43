package registry

import (
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"slices"
	"strings"
	"sync"

	"mediachain/internal/logging"
	"mediachain/internal/services"
	"mediachain/internal/textutil"
)

// Registry maps step names to definitions and remembers registration order.
type Registry struct {
	mu     sync.RWMutex
	defs   map[string]Definition
	order  []string
	logger *slog.Logger
}

// New returns an empty registry.
func New(logger *slog.Logger) *Registry {
	return &Registry{
		defs:   make(map[string]Definition),
		logger: logging.NewComponentLogger(logger, "registry"),
	}
}

// Register inserts def, or replaces an existing definition of the same name in
// place.
func (r *Registry) Register(def Definition) error {
	if def == nil {
		return errors.New("registry: nil step definition")
	}
	name := strings.TrimSpace(def.Name())
	if name == "" {
		return errors.New("registry: step name is empty")
	}
	// Names double as cache directory names.
	if name != def.Name() || textutil.SafeName(name) != name || strings.HasPrefix(name, ".") {
		return services.Wrap(services.ErrConfiguration, def.Name(), "register step", "name must be a plain file name", nil)
	}
	// Cached results are decoded into the declared type.
	if rt := def.ResultType(); rt == nil || rt.Kind() == reflect.Interface {
		return services.Wrap(services.ErrConfiguration, name, "register step", "result type must be concrete", nil)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if previous, exists := r.defs[name]; exists {
		r.logger.Info("step definition replaced",
			logging.String(logging.FieldEventType, "step_overwritten"),
			logging.String(logging.FieldStep, name),
			logging.String("previous_version", previous.Version()),
			logging.String("version", def.Version()),
		)
	} else {
		r.order = append(r.order, name)
	}
	r.defs[name] = def
	return nil
}

// Lookup returns the definition registered under name.
func (r *Registry) Lookup(name string) (Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.defs[name]
	return def, ok
}

// Names returns step names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.order)
}

// Len returns the number of registered steps.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Validate checks the whole graph for unknown dependencies and cycles.
func (r *Registry) Validate() error {
	_, err := r.ExecutionOrder("", "")
	return err
}

// ExecutionOrder sorts every registered step so dependencies precede their
// dependents, visiting independents in registration order, then trims the
// result to the [startFrom, stopAt] window. Empty bounds leave that end open.
func (r *Registry) ExecutionOrder(startFrom, stopAt string) ([]Definition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	startFrom = strings.TrimSpace(startFrom)
	stopAt = strings.TrimSpace(stopAt)
	if startFrom != "" {
		if _, ok := r.defs[startFrom]; !ok {
			return nil, services.Wrap(services.ErrConfiguration, startFrom, "execution order", "start-from names an unregistered step", nil)
		}
	}
	if stopAt != "" {
		if _, ok := r.defs[stopAt]; !ok {
			return nil, services.Wrap(services.ErrConfiguration, stopAt, "execution order", "stop-at names an unregistered step", nil)
		}
	}

	full, err := r.sortLocked()
	if err != nil {
		return nil, err
	}

	start, stop := 0, len(full)-1
	for i, def := range full {
		if def.Name() == startFrom {
			start = i
		}
		if def.Name() == stopAt {
			stop = i
		}
	}
	if stop < start {
		return nil, services.Wrap(services.ErrConfiguration, stopAt, "execution order",
			fmt.Sprintf("stop-at runs before start-from %q", startFrom), nil)
	}
	return full[start : stop+1], nil
}

const (
	unvisited = iota
	visiting
	visited
)

func (r *Registry) sortLocked() ([]Definition, error) {
	state := make(map[string]int, len(r.defs))
	sorted := make([]Definition, 0, len(r.defs))

	var visit func(name string, path []string) error
	visit = func(name string, path []string) error {
		switch state[name] {
		case visited:
			return nil
		case visiting:
			cycle := append(slices.Clone(path), name)
			return services.Wrap(services.ErrConfiguration, name, "execution order",
				"dependency cycle "+strings.Join(cycle, " -> "), nil)
		}
		def := r.defs[name]
		state[name] = visiting
		for _, dep := range def.Dependencies() {
			if _, ok := r.defs[dep]; !ok {
				return services.Wrap(services.ErrConfiguration, name, "execution order",
					fmt.Sprintf("depends on unregistered step %q", dep), nil)
			}
			if err := visit(dep, append(slices.Clone(path), name)); err != nil {
				return err
			}
		}
		state[name] = visited
		sorted = append(sorted, def)
		return nil
	}

	for _, name := range r.order {
		if err := visit(name, nil); err != nil {
			return nil, err
		}
	}
	return sorted, nil
}
