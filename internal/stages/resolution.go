package stages

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
)

// ResolutionSchema tags resolution artifacts.
const ResolutionSchema = "mediachain.resolution/v1"

// snapshotLimit caps the number of decisions kept in a snapshot.
const snapshotLimit = 10

// ResolvedEntity links a mention to a knowledge-base entry.
type ResolvedEntity struct {
	Mention           string  `json:"mention"`
	EntityID          string  `json:"entity_id"`
	Label             string  `json:"label,omitempty"`
	Source            string  `json:"source,omitempty"`
	AuthorityVerified bool    `json:"authority_verified"`
	Confidence        float64 `json:"confidence"`
	// Rule names the matching rule that fired for this decision.
	Rule string `json:"rule,omitempty"`
}

// Resolution holds disambiguation results for the extracted candidates.
type Resolution struct {
	Schema     string           `json:"schema_version"`
	Entities   []ResolvedEntity `json:"entities"`
	Unresolved []string         `json:"unresolved"`
}

func (r Resolution) SchemaVersion() string { return r.Schema }

// Validate checks structural soundness.
func (r Resolution) Validate() error {
	if err := checkSchema(r.Schema, ResolutionSchema); err != nil {
		return err
	}
	for i, e := range r.Entities {
		if strings.TrimSpace(e.Mention) == "" {
			return fmt.Errorf("entity %d: mention is empty", i)
		}
		if strings.TrimSpace(e.EntityID) == "" {
			return fmt.Errorf("entity %d: entity id is empty", i)
		}
		if err := checkRatio(fmt.Sprintf("entity %d confidence", i), e.Confidence); err != nil {
			return err
		}
	}
	return nil
}

// Attempted returns the number of mentions the resolver tried.
func (r Resolution) Attempted() int {
	return len(r.Entities) + len(r.Unresolved)
}

// SuccessRate is the share of attempted mentions that resolved.
func (r Resolution) SuccessRate() float64 {
	attempted := r.Attempted()
	if attempted == 0 {
		return 0
	}
	return float64(len(r.Entities)) / float64(attempted)
}

// AverageConfidence returns the mean confidence of resolved entities.
func (r Resolution) AverageConfidence() float64 {
	if len(r.Entities) == 0 {
		return 0
	}
	var sum float64
	for _, e := range r.Entities {
		sum += e.Confidence
	}
	return sum / float64(len(r.Entities))
}

// Decision is one resolution trace kept for audit.
type Decision struct {
	Mention    string  `json:"mention"`
	EntityID   string  `json:"entity_id"`
	Confidence float64 `json:"confidence"`
	Rule       string  `json:"rule"`
	Verified   bool    `json:"authority_verified"`
}

// ResolutionSnapshot keeps the top-N decisions by confidence with the rule
// that fired for each.
func ResolutionSnapshot(r Resolution) any {
	decisions := make([]Decision, 0, len(r.Entities))
	for _, e := range r.Entities {
		rule := e.Rule
		if rule == "" {
			rule = "unspecified"
		}
		decisions = append(decisions, Decision{
			Mention:    e.Mention,
			EntityID:   e.EntityID,
			Confidence: e.Confidence,
			Rule:       rule,
			Verified:   e.AuthorityVerified,
		})
	}
	slices.SortStableFunc(decisions, func(a, b Decision) int {
		return cmp.Compare(b.Confidence, a.Confidence)
	})
	if len(decisions) > snapshotLimit {
		decisions = decisions[:snapshotLimit]
	}
	return map[string]any{
		"resolved":     len(r.Entities),
		"unresolved":   len(r.Unresolved),
		"success_rate": r.SuccessRate(),
		"decisions":    decisions,
	}
}
