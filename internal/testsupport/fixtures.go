package testsupport

import (
	"mediachain/internal/config"
	"mediachain/internal/stages"
)

// StageFixture replaces the output a stub stage produces.
type StageFixture struct {
	Stage  string
	Output any
}

// Fixtures returns one output per stage that passes every quality gate at
// the default thresholds.
func Fixtures() map[string]any {
	return map[string]any{
		config.StageDiarize: Diarization(),
		config.StageExtract: Extraction(),
		config.StageResolve: Resolution(),
		config.StageScore:   Scoring(),
	}
}

// Diarization returns a two-speaker segmentation.
func Diarization() stages.Diarization {
	consistency := 0.92
	return stages.Diarization{
		Schema: stages.DiarizationSchema,
		Segments: []stages.Segment{
			{Speaker: "S1", Start: 0, End: 12.5, Confidence: 0.94},
			{Speaker: "S2", Start: 12.5, End: 30, Confidence: 0.91},
			{Speaker: "S1", Start: 30, End: 41, Confidence: 0.88},
			{Speaker: "S2", Start: 41, End: 63.2, Confidence: 0.9},
			{Speaker: "S1", Start: 63.2, End: 80, Confidence: 0.93},
		},
		Speakers: []stages.Speaker{
			{ID: "S1", Label: "host", TalkTime: 40.3},
			{ID: "S2", Label: "guest", TalkTime: 39.7},
		},
		Consistency: &consistency,
	}
}

// Extraction returns three strong candidates and two topics.
func Extraction() stages.Extraction {
	return stages.Extraction{
		Schema: stages.ExtractionSchema,
		Candidates: []stages.Candidate{
			{Text: "Ada Lovelace", Type: "person", Confidence: 0.95, Relevance: 0.9, Mentions: 4},
			{Text: "Analytical Engine", Type: "artifact", Confidence: 0.9, Relevance: 0.85, Mentions: 3},
			{Text: "London", Type: "place", Confidence: 0.82, Relevance: 0.6, Mentions: 1},
		},
		Topics: []stages.Topic{
			{Label: "history of computing", Weight: 0.8},
			{Label: "mathematics", Weight: 0.4},
		},
	}
}

// Resolution returns verified entities for every extracted candidate.
func Resolution() stages.Resolution {
	return stages.Resolution{
		Schema: stages.ResolutionSchema,
		Entities: []stages.ResolvedEntity{
			{Mention: "Ada Lovelace", EntityID: "Q7259", Label: "Ada Lovelace", Source: "wikidata", AuthorityVerified: true, Confidence: 0.97, Rule: "exact_label"},
			{Mention: "Analytical Engine", EntityID: "Q357407", Label: "Analytical Engine", Source: "wikidata", AuthorityVerified: true, Confidence: 0.93, Rule: "exact_label"},
			{Mention: "London", EntityID: "Q84", Label: "London", Source: "wikidata", Confidence: 0.8, Rule: "context_match"},
		},
	}
}

// Scoring returns per-speaker subject scores.
func Scoring() stages.Scoring {
	return stages.Scoring{
		Schema: stages.ScoringSchema,
		Scores: []stages.SubjectScore{
			{Subject: "history of computing", Speaker: "S2", Score: 0.86, Credibility: 0.9, Evidence: 6},
			{Subject: "mathematics", Speaker: "S1", Score: 0.55, Credibility: 0.7, Evidence: 2},
		},
	}
}
