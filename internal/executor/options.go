package executor

import (
	"context"
	"log/slog"
	"time"

	"mediachain/internal/chain"
	"mediachain/internal/logging"
	"mediachain/internal/quality"
	"mediachain/internal/stepcache"
)

// Sink persists the outcome of one run.
type Sink interface {
	Persist(ctx context.Context, record chain.Record) error
}

// Recorder receives step and chain outcomes for metrics.
type Recorder interface {
	ObserveStep(step string, outcome string, duration time.Duration)
	ObserveChain(success bool, duration time.Duration)
}

// Locker serializes identical cache keys across processes.
type Locker interface {
	Lock(ctx context.Context, key stepcache.Key) (func(), error)
}

// Step outcomes reported to a Recorder.
const (
	OutcomeHit      = "hit"
	OutcomeComputed = "computed"
	OutcomeFailed   = "failed"
)

// Option configures an Executor.
type Option func(*Executor)

// WithSink sets the persistence sink.
func WithSink(sink Sink) Option {
	return func(e *Executor) { e.sink = sink }
}

// WithQuality enables quality grading of step outputs.
func WithQuality(m *quality.Manager) Option {
	return func(e *Executor) { e.quality = m }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(r Recorder) Option {
	return func(e *Executor) { e.metrics = r }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Executor) { e.logger = logging.NewComponentLogger(logger, "executor") }
}

// WithKeyLocker holds a per-key lock across cache check, compute and store.
func WithKeyLocker(l Locker) Option {
	return func(e *Executor) { e.locker = l }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Executor) {
		if now != nil {
			e.now = now
		}
	}
}
