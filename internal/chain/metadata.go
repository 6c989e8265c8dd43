package chain

import (
	"slices"
	"time"
)

// Severity grades a StepWarning.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// StepMetrics is recorded once per step invocation.
type StepMetrics struct {
	Step       string        `json:"step"`
	Duration   time.Duration `json:"duration"`
	CacheHit   bool          `json:"cache_hit"`
	CacheKey   string        `json:"cache_key"`
	InputHash  string        `json:"input_hash,omitempty"`
	OutputHash string        `json:"output_hash,omitempty"`
	StartedAt  time.Time     `json:"started_at"`
}

// StepWarning is produced by step failures and by quality gates.
type StepWarning struct {
	Step     string   `json:"step"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
}

// Metadata accumulates run bookkeeping for one job.
type Metadata struct {
	JobID          string        `json:"job_id"`
	StepsCompleted []string      `json:"steps_completed"`
	StepsCached    []string      `json:"steps_cached"`
	StepsFailed    []string      `json:"steps_failed"`
	Metrics        []StepMetrics `json:"metrics"`
	Warnings       []StepWarning `json:"warnings"`
	CacheHits      int           `json:"cache_hits"`
	CacheMisses    int           `json:"cache_misses"`
	StartedAt      time.Time     `json:"started_at"`
	CompletedAt    time.Time     `json:"completed_at"`
	Duration       time.Duration `json:"duration"`
}

// NewMetadata starts bookkeeping for jobID.
func NewMetadata(jobID string, startedAt time.Time) *Metadata {
	return &Metadata{
		JobID:          jobID,
		StepsCompleted: []string{},
		StepsCached:    []string{},
		StepsFailed:    []string{},
		Metrics:        []StepMetrics{},
		Warnings:       []StepWarning{},
		StartedAt:      startedAt,
	}
}

// RecordHit notes a step served from the cache.
func (m *Metadata) RecordHit(metrics StepMetrics) {
	metrics.CacheHit = true
	m.Metrics = append(m.Metrics, metrics)
	m.StepsCached = append(m.StepsCached, metrics.Step)
	m.CacheHits++
}

// RecordMiss notes a step computed by its executor.
func (m *Metadata) RecordMiss(metrics StepMetrics) {
	metrics.CacheHit = false
	m.Metrics = append(m.Metrics, metrics)
	m.StepsCompleted = append(m.StepsCompleted, metrics.Step)
	m.CacheMisses++
}

// RecordFailure notes a failed step and appends an error-severity warning.
func (m *Metadata) RecordFailure(metrics StepMetrics, message string) {
	metrics.CacheHit = false
	m.Metrics = append(m.Metrics, metrics)
	m.StepsFailed = append(m.StepsFailed, metrics.Step)
	m.Warn(metrics.Step, SeverityError, message)
}

// Warn appends a warning.
func (m *Metadata) Warn(step string, severity Severity, message string) {
	m.Warnings = append(m.Warnings, StepWarning{Step: step, Severity: severity, Message: message})
}

// Finalize stamps the completion time and total duration.
func (m *Metadata) Finalize(now time.Time) {
	m.CompletedAt = now
	if !m.StartedAt.IsZero() {
		m.Duration = now.Sub(m.StartedAt)
	}
}

// Clone returns a deep copy safe to hand to callers.
func (m *Metadata) Clone() Metadata {
	if m == nil {
		return Metadata{}
	}
	out := *m
	out.StepsCompleted = slices.Clone(m.StepsCompleted)
	out.StepsCached = slices.Clone(m.StepsCached)
	out.StepsFailed = slices.Clone(m.StepsFailed)
	out.Metrics = slices.Clone(m.Metrics)
	out.Warnings = slices.Clone(m.Warnings)
	return out
}
