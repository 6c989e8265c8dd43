package stages

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
)

// ExtractionSchema tags extraction artifacts.
const ExtractionSchema = "mediachain.extraction/v1"

// Extractor labels.
const (
	ExtractorModel = "model"
	ExtractorRules = "rules"
)

// Candidate is one named-entity mention proposed by the extractor.
type Candidate struct {
	Text       string  `json:"text"`
	Type       string  `json:"type"`
	Confidence float64 `json:"confidence"`
	Relevance  float64 `json:"relevance"`
	Mentions   int     `json:"mentions"`
}

// Topic is a subject the recording discusses.
type Topic struct {
	Label  string  `json:"label"`
	Weight float64 `json:"weight"`
}

// Extraction holds entity candidates and topics for one recording.
type Extraction struct {
	Schema     string      `json:"schema_version"`
	Extractor  string      `json:"extractor,omitempty"`
	Candidates []Candidate `json:"candidates"`
	Topics     []Topic     `json:"topics"`
}

func (e Extraction) SchemaVersion() string { return e.Schema }

// Validate checks structural soundness.
func (e Extraction) Validate() error {
	if err := checkSchema(e.Schema, ExtractionSchema); err != nil {
		return err
	}
	for i, c := range e.Candidates {
		if strings.TrimSpace(c.Text) == "" {
			return fmt.Errorf("candidate %d: text is empty", i)
		}
		if err := checkRatio(fmt.Sprintf("candidate %d confidence", i), c.Confidence); err != nil {
			return err
		}
		if err := checkRatio(fmt.Sprintf("candidate %d relevance", i), c.Relevance); err != nil {
			return err
		}
	}
	for i, t := range e.Topics {
		if strings.TrimSpace(t.Label) == "" {
			return fmt.Errorf("topic %d: label is empty", i)
		}
	}
	return nil
}

// WithExtractor returns a copy labeled with the extractor that produced it.
func (e Extraction) WithExtractor(label string) Extraction {
	e.Extractor = label
	return e
}

// AverageConfidence returns the mean candidate confidence, or zero.
func (e Extraction) AverageConfidence() float64 {
	if len(e.Candidates) == 0 {
		return 0
	}
	var sum float64
	for _, c := range e.Candidates {
		sum += c.Confidence
	}
	return sum / float64(len(e.Candidates))
}

// ExtractionSnapshot lists the strongest candidates and the extractor used.
func ExtractionSnapshot(e Extraction) any {
	top := slices.Clone(e.Candidates)
	slices.SortStableFunc(top, func(a, b Candidate) int {
		return cmp.Compare(b.Confidence*b.Relevance, a.Confidence*a.Relevance)
	})
	if len(top) > snapshotLimit {
		top = top[:snapshotLimit]
	}
	topics := make([]string, 0, len(e.Topics))
	for _, t := range e.Topics {
		topics = append(topics, t.Label)
	}
	extractor := e.Extractor
	if extractor == "" {
		extractor = ExtractorModel
	}
	return map[string]any{
		"extractor":      extractor,
		"candidates":     len(e.Candidates),
		"top_candidates": top,
		"topics":         topics,
	}
}
