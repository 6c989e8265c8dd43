package quality

import (
	"log/slog"
	"reflect"
	"strings"
	"time"

	"mediachain/internal/config"
	"mediachain/internal/logging"
)

// Manager holds one gate per step name.
type Manager struct {
	gates  map[string]Gate
	logger *slog.Logger
	now    func() time.Time
}

// NewManager builds a manager with the default gates for the four analysis
// stages, graded against thresholds.
func NewManager(thresholds config.Quality, logger *slog.Logger) *Manager {
	m := &Manager{
		gates:  make(map[string]Gate),
		logger: logging.NewComponentLogger(logger, "quality"),
		now:    time.Now,
	}
	m.SetGate(config.StageDiarize, DiarizationGate{Thresholds: thresholds})
	m.SetGate(config.StageExtract, ExtractionGate{Thresholds: thresholds})
	m.SetGate(config.StageResolve, ResolutionGate{Thresholds: thresholds})
	m.SetGate(config.StageScore, ScoringGate{Thresholds: thresholds})
	return m
}

// SetGate installs or replaces the gate for step. A nil gate removes it.
func (m *Manager) SetGate(step string, gate Gate) {
	if gate == nil {
		delete(m.gates, step)
		return
	}
	m.gates[step] = gate
}

// Check grades one step output. It never panics and always returns one of the
// five tiers.
func (m *Manager) Check(step string, result any) (assessment Assessment) {
	defer func() {
		if r := recover(); r != nil {
			logging.WarnWithContext(m.logger, "quality gate panicked", "quality_gate_panic",
				logging.String(logging.FieldStep, step),
				logging.Any("panic", r),
				logging.String(logging.FieldErrorHint, "inspect the gate for unchecked assumptions about the output"),
				logging.String(logging.FieldImpact, "step graded as degraded"),
			)
			assessment = Assessment{
				Step:   step,
				Passed: true,
				Tier:   TierDegraded,
				Issues: []Issue{failure("quality gate panicked: %v", r)},
			}
		}
	}()

	if isNil(result) {
		return Assessment{
			Step:   step,
			Passed: false,
			Tier:   TierFailed,
			Issues: []Issue{failure("step produced no output")},
		}
	}
	gate, ok := m.gates[step]
	if !ok {
		return Assessment{
			Step:   step,
			Passed: true,
			Tier:   TierAcceptable,
			Issues: []Issue{info("no quality gate registered for step %q", step)},
		}
	}
	usable, issues, err := gate.Assess(result)
	if err != nil {
		return Assessment{
			Step:   step,
			Passed: true,
			Tier:   TierAcceptable,
			Issues: []Issue{info("quality gate skipped %T: %v", result, err)},
		}
	}
	if issues == nil {
		issues = []Issue{}
	}
	tier := deriveTier(usable, issues)
	attrs := append([]logging.Attr{
		logging.String(logging.FieldStep, step),
		logging.Int("issues", len(issues)),
	}, logging.DecisionAttrs("quality_tier", string(tier), issueSummary(issues))...)
	m.logger.Debug("quality assessed", logging.Args(attrs...)...)
	return Assessment{Step: step, Passed: usable, Tier: tier, Issues: issues}
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface:
		return rv.IsNil()
	default:
		return false
	}
}

func issueSummary(issues []Issue) string {
	if len(issues) == 0 {
		return "no issues"
	}
	messages := make([]string, 0, len(issues))
	for _, issue := range issues {
		messages = append(messages, issue.Message)
	}
	return strings.Join(messages, "; ")
}
