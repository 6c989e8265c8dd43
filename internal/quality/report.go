package quality

import (
	"fmt"
	"time"

	"mediachain/internal/config"
)

var fallbackAdvice = map[string]map[Tier]string{
	config.StageDiarize: {
		TierDegraded: "rerun diarization with a tighter speaker-count hint or a cleaner audio track",
		TierFailed:   "verify the primary audio stream is present and rerun diarization with --force",
	},
	config.StageExtract: {
		TierDegraded: "rerun extraction with the model-based extractor or a larger candidate budget",
		TierFailed:   "fall back to the rule-based extractor or review the transcript for empty speech",
	},
	config.StageResolve: {
		TierDegraded: "widen the knowledge-base lookup or lower the disambiguation threshold for review",
		TierFailed:   "check knowledge-base availability and rerun resolution with --start-from resolve",
	},
	config.StageScore: {
		TierDegraded: "review subject scores manually before publishing",
		TierFailed:   "confirm resolution produced entities and rerun scoring with --start-from score",
	},
}

// FallbackStrategy returns advisory remediation for a degraded or failed step.
// It is never applied automatically.
func FallbackStrategy(step string, tier Tier) (string, bool) {
	if tier != TierDegraded && tier != TierFailed {
		return "", false
	}
	if advice, ok := fallbackAdvice[step][tier]; ok {
		return advice, true
	}
	if tier == TierFailed {
		return fmt.Sprintf("inspect %s output and rerun the step with --force", step), true
	}
	return fmt.Sprintf("review %s output before relying on it downstream", step), true
}

// Recommendation pairs a step with its fallback advice.
type Recommendation struct {
	Step   string `json:"step"`
	Tier   Tier   `json:"tier"`
	Advice string `json:"advice"`
}

// Report aggregates assessments of one run.
type Report struct {
	OverallTier     Tier             `json:"overall_tier"`
	Steps           []Assessment     `json:"steps"`
	Recommendations []Recommendation `json:"recommendations"`
	GeneratedAt     time.Time        `json:"generated_at"`
}

// Step returns the assessment for a step.
func (r Report) Step(name string) (Assessment, bool) {
	for _, a := range r.Steps {
		if a.Step == name {
			return a, true
		}
	}
	return Assessment{}, false
}

// GenerateReport rolls assessments, in step order, into a report. The overall
// tier is the worst step tier; an empty run is excellent.
func (m *Manager) GenerateReport(assessments []Assessment) Report {
	report := Report{
		OverallTier:     TierExcellent,
		Steps:           make([]Assessment, 0, len(assessments)),
		Recommendations: []Recommendation{},
		GeneratedAt:     m.now(),
	}
	for _, a := range assessments {
		report.Steps = append(report.Steps, a)
		report.OverallTier = Worse(report.OverallTier, a.Tier)
		if advice, ok := FallbackStrategy(a.Step, a.Tier); ok {
			report.Recommendations = append(report.Recommendations, Recommendation{Step: a.Step, Tier: a.Tier, Advice: advice})
		}
	}
	return report
}

// NamedResult is one step output to grade.
type NamedResult struct {
	Step   string
	Result any
}

// ReportResults checks each result in order and builds the report.
func (m *Manager) ReportResults(results []NamedResult) Report {
	assessments := make([]Assessment, 0, len(results))
	for _, r := range results {
		assessments = append(assessments, m.Check(r.Step, r.Result))
	}
	return m.GenerateReport(assessments)
}
