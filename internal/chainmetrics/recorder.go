package chainmetrics

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "mediachain"

// Recorder implements executor.Recorder on Prometheus collectors.
type Recorder struct {
	registry     *prometheus.Registry
	stepTotal    *prometheus.CounterVec
	stepDuration *prometheus.HistogramVec
	chainTotal   *prometheus.CounterVec
	chainSeconds prometheus.Histogram
}

// New creates a Recorder and registers its collectors on reg. A nil reg
// gets a private registry.
func New(reg *prometheus.Registry) (*Recorder, error) {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	r := &Recorder{
		registry: reg,
		stepTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "step_total",
			Help:      "Step executions by outcome (hit, computed, failed).",
		}, []string{"step", "outcome"}),
		stepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "step_duration_seconds",
			Help:      "Step duration; cache hits report the original compute time.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 4, 8),
		}, []string{"step", "outcome"}),
		chainTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chain_runs_total",
			Help:      "Chain runs by result.",
		}, []string{"result"}),
		chainSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "chain_duration_seconds",
			Help:      "Wall-clock duration of a chain run.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 4, 8),
		}),
	}
	for _, c := range []prometheus.Collector{r.stepTotal, r.stepDuration, r.chainTotal, r.chainSeconds} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register collector: %w", err)
		}
	}
	return r, nil
}

// ObserveStep records one step outcome.
func (r *Recorder) ObserveStep(step string, outcome string, duration time.Duration) {
	if r == nil {
		return
	}
	r.stepTotal.WithLabelValues(step, outcome).Inc()
	r.stepDuration.WithLabelValues(step, outcome).Observe(duration.Seconds())
}

// ObserveChain records one completed run.
func (r *Recorder) ObserveChain(success bool, duration time.Duration) {
	if r == nil {
		return
	}
	result := "success"
	if !success {
		result = "failure"
	}
	r.chainTotal.WithLabelValues(result).Inc()
	r.chainSeconds.Observe(duration.Seconds())
}

// Gatherer exposes the underlying registry.
func (r *Recorder) Gatherer() prometheus.Gatherer {
	return r.registry
}

// WriteTextfile writes the current metric values in the text exposition
// format, replacing path atomically.
func (r *Recorder) WriteTextfile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create metrics dir: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
