package executor

import (
	"context"

	"mediachain/internal/chain"
	"mediachain/internal/logging"
	"mediachain/internal/quality"
	"mediachain/internal/registry"
	"mediachain/internal/services"
	"mediachain/internal/stepcache"
)

// RunChain runs every step in the job's execution window. The returned error
// is non-nil only for configuration problems found before any step ran; step
// failures are reported through the Result.
func (e *Executor) RunChain(ctx context.Context, cc chain.Context, initial chain.Inputs) (*chain.Result, error) {
	order, err := e.registry.ExecutionOrder(cc.StartFrom, cc.StopAt)
	if err != nil {
		return nil, err
	}

	ctx = services.WithJobID(ctx, cc.JobID)
	logger := logging.WithContext(ctx, e.logger)
	meta := chain.NewMetadata(cc.JobID, e.now())
	explain := chain.NewExplainability(cc.JobID)
	outputs := initial.Clone()
	assessments := make([]quality.Assessment, 0, len(order))

	logger.Info("chain started",
		logging.String(logging.FieldEventType, "chain_started"),
		logging.Int("steps", len(order)),
		logging.String("start_from", cc.StartFrom),
		logging.String("stop_at", cc.StopAt),
		logging.Bool("forced", cc.ForceRerun),
	)

	var (
		failure    error
		failedStep string
	)
	for _, def := range order {
		e.hydrate(ctx, def, cc, outputs, explain)
		result, err := e.RunStep(ctx, def.Name(), cc, outputs, meta, explain)
		if err != nil {
			failure = err
			failedStep = def.Name()
			break
		}
		outputs[def.Name()] = result
		if e.quality != nil {
			assessment := e.quality.Check(def.Name(), result)
			for _, issue := range assessment.Issues {
				meta.Warn(def.Name(), chain.Severity(issue.Severity), issue.Message)
			}
			assessments = append(assessments, assessment)
		}
	}

	meta.Finalize(e.now())
	result := &chain.Result{
		Success:  failure == nil,
		Metadata: meta.Clone(),
		Outputs:  map[string]any(outputs.Clone()),
	}
	if failure != nil {
		result.Err = failure
		result.Error = failure.Error()
		if step, ok := services.StepName(failure); ok {
			result.ErrorStep = step
		}
	}
	if e.quality != nil {
		if failure != nil {
			assessments = append(assessments, quality.StepFailed(failedStep, failure))
		}
		report := e.quality.GenerateReport(assessments)
		result.Quality = &report
	}

	e.persist(ctx, chain.Record{Context: cc, Result: result, Explain: explain})
	if e.metrics != nil {
		e.metrics.ObserveChain(result.Success, meta.Duration)
	}

	if result.Success {
		logger.Info("chain completed",
			logging.String(logging.FieldEventType, "chain_completed"),
			logging.Int("cache_hits", meta.CacheHits),
			logging.Int("cache_misses", meta.CacheMisses),
			logging.Duration("duration", meta.Duration),
		)
	} else {
		logging.ErrorWithContext(logger, "chain failed", "chain_failed",
			logging.String("failed_step", result.ErrorStep),
			logging.Error(failure),
			logging.Int("steps_completed", len(meta.StepsCompleted)+len(meta.StepsCached)),
		)
	}
	return result, nil
}

// hydrate loads prerequisites that are outside the execution window from the
// cache. Missing ones are left for RunStep to report.
func (e *Executor) hydrate(ctx context.Context, def registry.Definition, cc chain.Context, outputs chain.Inputs, explain *chain.Explainability) {
	for _, dep := range def.Dependencies() {
		if value, ok := outputs[dep]; ok && value != nil {
			continue
		}
		depDef, ok := e.registry.Lookup(dep)
		if !ok {
			continue
		}
		key := stepcache.Key{
			Step:        dep,
			ContentHash: cc.ContentHash,
			ConfigHash:  cc.ConfigHash,
			Version:     depDef.Version(),
		}
		result, ok := e.lookup(depDef, key)
		if !ok {
			continue
		}
		outputs[dep] = result
		explain.Add(e.now(), dep, chain.EventHydrated, "prerequisite of "+def.Name())
		logging.WithContext(ctx, e.logger).Debug("prerequisite hydrated from cache",
			logging.String(logging.FieldStep, dep),
			logging.String("dependent", def.Name()),
			logging.String(logging.FieldCacheKey, key.String()),
		)
	}
}

func (e *Executor) persist(ctx context.Context, record chain.Record) {
	if e.sink == nil {
		return
	}
	// Persist even when the run was cancelled.
	if err := e.sink.Persist(context.WithoutCancel(ctx), record); err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, e.logger), "failed to persist chain run", "chain_persist_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check metadata_dir permissions and ledger path"),
			logging.String(logging.FieldImpact, "run metadata and explainability were not saved"),
		)
	}
}
