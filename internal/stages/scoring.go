package stages

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
)

// ScoringSchema tags scoring artifacts.
const ScoringSchema = "mediachain.scoring/v1"

// SubjectScore is a credibility-weighted proficiency score for one speaker on
// one subject.
type SubjectScore struct {
	Subject     string  `json:"subject"`
	Speaker     string  `json:"speaker"`
	Score       float64 `json:"score"`
	Credibility float64 `json:"credibility"`
	Evidence    int     `json:"evidence"`
}

// Scoring holds the subject scores of one recording.
type Scoring struct {
	Schema string         `json:"schema_version"`
	Scores []SubjectScore `json:"scores"`
}

func (s Scoring) SchemaVersion() string { return s.Schema }

// Validate checks structural soundness.
func (s Scoring) Validate() error {
	if err := checkSchema(s.Schema, ScoringSchema); err != nil {
		return err
	}
	for i, score := range s.Scores {
		if strings.TrimSpace(score.Subject) == "" {
			return fmt.Errorf("score %d: subject is empty", i)
		}
		if err := checkRatio(fmt.Sprintf("score %d", i), score.Score); err != nil {
			return err
		}
		if err := checkRatio(fmt.Sprintf("score %d credibility", i), score.Credibility); err != nil {
			return err
		}
		if score.Evidence < 0 {
			return fmt.Errorf("score %d: negative evidence count", i)
		}
	}
	return nil
}

// ScoringSnapshot lists the highest scorers.
func ScoringSnapshot(s Scoring) any {
	top := slices.Clone(s.Scores)
	slices.SortStableFunc(top, func(a, b SubjectScore) int {
		return cmp.Compare(b.Score, a.Score)
	})
	if len(top) > snapshotLimit {
		top = top[:snapshotLimit]
	}
	return map[string]any{
		"scored":      len(s.Scores),
		"top_scorers": top,
	}
}
