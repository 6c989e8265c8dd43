package quality

// Tier is an ordered quality grade.
type Tier string

const (
	TierExcellent  Tier = "excellent"
	TierGood       Tier = "good"
	TierAcceptable Tier = "acceptable"
	TierDegraded   Tier = "degraded"
	TierFailed     Tier = "failed"
)

// Tiers lists every tier from best to worst.
func Tiers() []Tier {
	return []Tier{TierExcellent, TierGood, TierAcceptable, TierDegraded, TierFailed}
}

// Rank orders tiers; higher is better. Unknown tiers rank below failed.
func (t Tier) Rank() int {
	switch t {
	case TierExcellent:
		return 4
	case TierGood:
		return 3
	case TierAcceptable:
		return 2
	case TierDegraded:
		return 1
	case TierFailed:
		return 0
	default:
		return -1
	}
}

// Valid reports whether t is one of the five tiers.
func (t Tier) Valid() bool { return t.Rank() >= 0 }

// Worse returns the lower of two tiers.
func Worse(a, b Tier) Tier {
	if b.Rank() < a.Rank() {
		return b
	}
	return a
}

// Severity grades an Issue.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Issue is one finding of a gate.
type Issue struct {
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
}

// Assessment is the verdict of one gate on one step output.
type Assessment struct {
	Step   string  `json:"step"`
	Passed bool    `json:"passed"`
	Tier   Tier    `json:"tier"`
	Issues []Issue `json:"issues"`
}

// deriveTier maps issues to a tier. An output with no usable content always
// fails.
func deriveTier(usable bool, issues []Issue) Tier {
	if !usable {
		return TierFailed
	}
	var warnings, infos int
	for _, issue := range issues {
		switch issue.Severity {
		case SeverityError:
			return TierDegraded
		case SeverityWarning:
			warnings++
		default:
			infos++
		}
	}
	switch {
	case warnings >= 2:
		return TierDegraded
	case warnings == 1:
		return TierAcceptable
	case infos > 0:
		return TierGood
	default:
		return TierExcellent
	}
}

// StepFailed grades a step that failed before producing any output.
func StepFailed(step string, err error) Assessment {
	message := "step failed without output"
	if err != nil {
		message = "step failed without output: " + err.Error()
	}
	return Assessment{
		Step:   step,
		Passed: false,
		Tier:   TierFailed,
		Issues: []Issue{{Severity: SeverityError, Message: message}},
	}
}
