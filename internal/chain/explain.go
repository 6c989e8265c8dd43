package chain

import "time"

// Trace events recorded by the executor.
const (
	EventCacheHit = "cache_hit"
	EventComputed = "computed"
	EventFailed   = "failed"
	EventHydrated = "hydrated"
)

// TraceEntry is one ordered line of the audit trace.
type TraceEntry struct {
	At     time.Time `json:"at"`
	Step   string    `json:"step"`
	Event  string    `json:"event"`
	Detail string    `json:"detail,omitempty"`
}

// Explainability collects human-readable decision snapshots for audit. It is
// never consulted for control flow.
type Explainability struct {
	JobID     string         `json:"job_id"`
	Snapshots map[string]any `json:"snapshots"`
	Trace     []TraceEntry   `json:"trace"`
}

// NewExplainability returns an empty payload for jobID.
func NewExplainability(jobID string) *Explainability {
	return &Explainability{
		JobID:     jobID,
		Snapshots: make(map[string]any),
		Trace:     []TraceEntry{},
	}
}

// Snapshot stores the decision snapshot of a step, replacing any earlier one.
func (e *Explainability) Snapshot(step string, snapshot any) {
	if snapshot == nil {
		return
	}
	e.Snapshots[step] = snapshot
}

// Add appends a trace entry.
func (e *Explainability) Add(at time.Time, step, event, detail string) {
	e.Trace = append(e.Trace, TraceEntry{At: at, Step: step, Event: event, Detail: detail})
}
