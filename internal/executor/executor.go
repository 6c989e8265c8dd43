package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"time"

	"github.com/google/uuid"

	"mediachain/internal/chain"
	"mediachain/internal/logging"
	"mediachain/internal/quality"
	"mediachain/internal/registry"
	"mediachain/internal/services"
	"mediachain/internal/stepcache"
)

// Executor runs steps from a registry against a cache.
type Executor struct {
	registry *registry.Registry
	cache    *stepcache.Cache
	sink     Sink
	quality  *quality.Manager
	metrics  Recorder
	locker   Locker
	logger   *slog.Logger
	now      func() time.Time
}

// New builds an executor. A nil cache behaves as a disabled cache.
func New(reg *registry.Registry, cache *stepcache.Cache, opts ...Option) *Executor {
	e := &Executor{
		registry: reg,
		cache:    cache,
		logger:   logging.NewComponentLogger(nil, "executor"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// RunStep executes one step, serving it from the cache when possible. meta and
// explain may be nil for one-off calls.
func (e *Executor) RunStep(ctx context.Context, name string, cc chain.Context, inputs chain.Inputs, meta *chain.Metadata, explain *chain.Explainability) (any, error) {
	def, ok := e.registry.Lookup(name)
	if !ok {
		return nil, services.Wrap(services.ErrConfiguration, name, "run step", "step is not registered", nil)
	}
	if meta == nil {
		meta = chain.NewMetadata(cc.JobID, e.now())
	}
	if explain == nil {
		explain = chain.NewExplainability(cc.JobID)
	}

	ctx = services.WithStep(ctx, name)
	ctx = services.WithRequestID(ctx, uuid.NewString())
	logger := logging.WithContext(ctx, e.logger)

	key := stepcache.Key{
		Step:        name,
		ContentHash: cc.ContentHash,
		ConfigHash:  cc.ConfigHash,
		Version:     def.Version(),
	}
	metrics := chain.StepMetrics{Step: name, CacheKey: key.String(), StartedAt: e.now()}

	for _, dep := range def.Dependencies() {
		if value, ok := inputs[dep]; !ok || value == nil {
			err := services.Wrap(services.ErrMissingInput, name, "resolve inputs",
				fmt.Sprintf("prerequisite %q has no output", dep), nil)
			return nil, e.fail(logger, name, metrics, err, meta, explain)
		}
	}

	if e.locker != nil && e.cache.Enabled() {
		unlock, err := e.locker.Lock(ctx, key)
		if err != nil {
			logging.WarnWithContext(logger, "step cache key lock unavailable", "stepcache_lock_failed",
				logging.String(logging.FieldCacheKey, key.String()),
				logging.Error(err),
				logging.String(logging.FieldImpact, "identical keys may be computed concurrently"),
			)
		} else {
			defer unlock()
		}
	}

	if !cc.ForceRerun {
		if result, ok := e.lookup(def, key); ok {
			if prov, ok := e.cache.Provenance(key); ok {
				metrics.InputHash = prov.InputHash
				metrics.OutputHash = prov.OutputHash
			}
			meta.RecordHit(metrics)
			explain.Snapshot(name, def.Snapshot(result))
			explain.Add(e.now(), name, chain.EventCacheHit, key.String())
			e.observeStep(name, OutcomeHit, 0)
			logger.Info("step served from cache",
				logging.String(logging.FieldCacheKey, key.String()),
				logging.String(logging.FieldEventType, "step_cache_hit"),
			)
			return result, nil
		}
	}

	metrics.InputHash = stepcache.ComputeInputHash(cc.ContentHash, dependencyOutputs(def, inputs))
	logger.Info("step started",
		logging.String(logging.FieldCacheKey, key.String()),
		logging.Bool("forced", cc.ForceRerun),
	)
	started := e.now()
	result, err := def.Execute(ctx, cc, inputs)
	metrics.Duration = e.now().Sub(started)
	if err == nil {
		err = checkResultType(def, result)
	}
	if err != nil {
		return nil, e.fail(logger, name, metrics, err, meta, explain)
	}

	prov, setErr := e.cache.Set(key, result, metrics.Duration, metrics.InputHash)
	if setErr != nil {
		logging.WarnWithContext(logger, "step cache write failed", "stepcache_write_failed",
			logging.String(logging.FieldCacheKey, key.String()),
			logging.Error(setErr),
			logging.String(logging.FieldErrorHint, "check cache directory permissions and free space"),
			logging.String(logging.FieldImpact, "step will be recomputed on the next run"),
		)
		prov.OutputHash = stepcache.ComputeOutputHash(result)
	}
	metrics.OutputHash = prov.OutputHash
	meta.RecordMiss(metrics)
	explain.Snapshot(name, def.Snapshot(result))
	explain.Add(e.now(), name, chain.EventComputed, fmt.Sprintf("duration=%s", metrics.Duration))
	e.observeStep(name, OutcomeComputed, metrics.Duration)
	logger.Info("step completed",
		logging.String(logging.FieldCacheKey, key.String()),
		logging.Duration("duration", metrics.Duration),
		logging.String("output_hash", metrics.OutputHash),
	)
	return result, nil
}

func (e *Executor) lookup(def registry.Definition, key stepcache.Key) (any, bool) {
	raw, ok := e.cache.Lookup(key, stepcache.TypeTag(def.ResultType()))
	if !ok {
		return nil, false
	}
	result, err := def.Decode(raw)
	if err != nil {
		e.cache.DecodeFailed(key, err)
		return nil, false
	}
	return result, true
}

func (e *Executor) fail(logger *slog.Logger, name string, metrics chain.StepMetrics, err error, meta *chain.Metadata, explain *chain.Explainability) error {
	stepErr := services.NewStepError(name, err)
	meta.RecordFailure(metrics, stepErr.Error())
	explain.Add(e.now(), name, chain.EventFailed, stepErr.Error())
	e.observeStep(name, OutcomeFailed, metrics.Duration)

	details := services.Details(stepErr)
	logging.ErrorWithContext(logger, "step failed", "step_failed",
		logging.String("error_marker", details.Marker),
		logging.Duration("duration", metrics.Duration),
		logging.Error(err),
		logging.String(logging.FieldErrorHint, errorHint(err)),
	)
	return stepErr
}

func errorHint(err error) string {
	switch {
	case errors.Is(err, services.ErrMissingInput):
		return "run the prerequisite step or widen --start-from"
	case errors.Is(err, services.ErrTypeMismatch):
		return "step returned a value of the wrong type"
	case errors.Is(err, services.ErrExternalTool):
		return "inspect the stage command output"
	case errors.Is(err, services.ErrValidation):
		return "stage output failed schema validation"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded), errors.Is(err, services.ErrTimeout):
		return "step was cancelled or timed out"
	default:
		return "check step logs for details"
	}
}

func checkResultType(def registry.Definition, result any) error {
	want := def.ResultType()
	if result == nil {
		return services.Wrap(services.ErrTypeMismatch, def.Name(), "check result", fmt.Sprintf("got nil, want %s", want), nil)
	}
	if got := reflect.TypeOf(result); !got.AssignableTo(want) {
		return services.Wrap(services.ErrTypeMismatch, def.Name(), "check result", fmt.Sprintf("got %s, want %s", got, want), nil)
	}
	return nil
}

func dependencyOutputs(def registry.Definition, inputs chain.Inputs) map[string]any {
	deps := def.Dependencies()
	out := make(map[string]any, len(deps))
	for _, dep := range deps {
		out[dep] = inputs[dep]
	}
	return out
}

func (e *Executor) observeStep(step, outcome string, duration time.Duration) {
	if e.metrics != nil {
		e.metrics.ObserveStep(step, outcome, duration)
	}
}
