package quality

import (
	"errors"
	"fmt"

	"mediachain/internal/config"
	"mediachain/internal/stages"
)

// ErrUnexpectedType is returned by a gate handed an output it does not grade.
var ErrUnexpectedType = errors.New("unexpected result type")

// Gate inspects one step output. usable is false when the output carries no
// content at all.
type Gate interface {
	Assess(result any) (usable bool, issues []Issue, err error)
}

// GateFunc adapts a function to Gate.
type GateFunc func(result any) (bool, []Issue, error)

func (f GateFunc) Assess(result any) (bool, []Issue, error) { return f(result) }

func warn(format string, args ...any) Issue {
	return Issue{Severity: SeverityWarning, Message: fmt.Sprintf(format, args...)}
}

func info(format string, args ...any) Issue {
	return Issue{Severity: SeverityInfo, Message: fmt.Sprintf(format, args...)}
}

func failure(format string, args ...any) Issue {
	return Issue{Severity: SeverityError, Message: fmt.Sprintf(format, args...)}
}

// DiarizationGate grades speaker segmentation.
type DiarizationGate struct {
	Thresholds config.Quality
}

func (g DiarizationGate) Assess(result any) (bool, []Issue, error) {
	var d stages.Diarization
	switch v := result.(type) {
	case stages.Diarization:
		d = v
	case *stages.Diarization:
		d = *v
	default:
		return false, nil, ErrUnexpectedType
	}
	if len(d.Segments) == 0 {
		return false, []Issue{failure("no speaker segments produced")}, nil
	}
	var issues []Issue
	if len(d.Segments) < g.Thresholds.MinSegments {
		issues = append(issues, warn("only %d segments, expected at least %d", len(d.Segments), g.Thresholds.MinSegments))
	}
	speakers := d.SpeakerCount()
	if speakers < g.Thresholds.MinSpeakers || speakers > g.Thresholds.MaxSpeakers {
		issues = append(issues, warn("%d speakers outside plausible range %d-%d", speakers, g.Thresholds.MinSpeakers, g.Thresholds.MaxSpeakers))
	}
	if d.Consistency == nil {
		issues = append(issues, info("diarizer reported no consistency signal"))
	}
	return true, issues, nil
}

// ExtractionGate grades entity candidates and topics.
type ExtractionGate struct {
	Thresholds config.Quality
}

func (g ExtractionGate) Assess(result any) (bool, []Issue, error) {
	var e stages.Extraction
	switch v := result.(type) {
	case stages.Extraction:
		e = v
	case *stages.Extraction:
		e = *v
	default:
		return false, nil, ErrUnexpectedType
	}
	if len(e.Candidates) == 0 && len(e.Topics) == 0 {
		return false, []Issue{failure("no entity candidates or topics extracted")}, nil
	}
	var issues []Issue
	if len(e.Candidates) < g.Thresholds.MinEntities {
		issues = append(issues, warn("only %d entity candidates, expected at least %d", len(e.Candidates), g.Thresholds.MinEntities))
	}
	if len(e.Candidates) > 0 {
		if avg := e.AverageConfidence(); avg < g.Thresholds.MinEntityConfidence {
			issues = append(issues, warn("average candidate confidence %.2f below %.2f", avg, g.Thresholds.MinEntityConfidence))
		}
	}
	strong := 0
	for _, c := range e.Candidates {
		if c.Confidence >= g.Thresholds.HighConfidence && c.Relevance >= g.Thresholds.HighRelevance {
			strong++
		}
	}
	if strong == 0 {
		issues = append(issues, info("no high-confidence, high-relevance candidates"))
	}
	if len(e.Topics) < g.Thresholds.MinTopics {
		issues = append(issues, warn("only %d topics, expected at least %d", len(e.Topics), g.Thresholds.MinTopics))
	}
	if e.Extractor == stages.ExtractorRules {
		issues = append(issues, info("rule-based fallback extractor produced this output"))
	}
	return true, issues, nil
}

// ResolutionGate grades knowledge-base disambiguation.
type ResolutionGate struct {
	Thresholds config.Quality
}

func (g ResolutionGate) Assess(result any) (bool, []Issue, error) {
	var r stages.Resolution
	switch v := result.(type) {
	case stages.Resolution:
		r = v
	case *stages.Resolution:
		r = *v
	default:
		return false, nil, ErrUnexpectedType
	}
	if len(r.Entities) == 0 {
		if r.Attempted() == 0 {
			return false, []Issue{failure("no mentions were submitted for resolution")}, nil
		}
		return false, []Issue{failure("none of %d mentions resolved", r.Attempted())}, nil
	}
	var issues []Issue
	if rate := r.SuccessRate(); rate < g.Thresholds.MinResolutionRate {
		issues = append(issues, warn("resolution rate %.2f below %.2f", rate, g.Thresholds.MinResolutionRate))
	}
	if avg := r.AverageConfidence(); avg < g.Thresholds.MinResolutionConfidence {
		issues = append(issues, warn("average resolution confidence %.2f below %.2f", avg, g.Thresholds.MinResolutionConfidence))
	}
	verified := false
	for _, e := range r.Entities {
		if e.AuthorityVerified {
			verified = true
			break
		}
	}
	if !verified {
		issues = append(issues, info("no entity was verified against an authority source"))
	}
	return true, issues, nil
}

// ScoringGate grades subject-proficiency scores.
type ScoringGate struct {
	Thresholds config.Quality
}

func (g ScoringGate) Assess(result any) (bool, []Issue, error) {
	var s stages.Scoring
	switch v := result.(type) {
	case stages.Scoring:
		s = v
	case *stages.Scoring:
		s = *v
	default:
		return false, nil, ErrUnexpectedType
	}
	if len(s.Scores) == 0 {
		return false, []Issue{failure("no subjects were scored")}, nil
	}
	var issues []Issue
	if len(s.Scores) < g.Thresholds.MinScored {
		issues = append(issues, warn("only %d subjects scored, expected at least %d", len(s.Scores), g.Thresholds.MinScored))
	}
	high := false
	for _, score := range s.Scores {
		if score.Score >= g.Thresholds.HighScore {
			high = true
			break
		}
	}
	if !high {
		issues = append(issues, info("no speaker scored at or above %.2f", g.Thresholds.HighScore))
	}
	return true, issues, nil
}
