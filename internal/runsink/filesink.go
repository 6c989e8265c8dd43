package runsink

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"mediachain/internal/chain"
	"mediachain/internal/fileutil"
	"mediachain/internal/textutil"
)

// FileSink writes per-job JSON documents into a directory.
type FileSink struct {
	dir string
}

// NewFileSink returns a sink writing into dir.
func NewFileSink(dir string) *FileSink {
	return &FileSink{dir: dir}
}

// MetadataDocument is the content of {job}.metadata.json.
type MetadataDocument struct {
	JobID       string         `json:"job_id"`
	EpisodeID   string         `json:"episode_id,omitempty"`
	ContentHash string         `json:"content_hash"`
	ConfigHash  string         `json:"config_hash"`
	Success     bool           `json:"success"`
	Error       string         `json:"error,omitempty"`
	ErrorStep   string         `json:"error_step,omitempty"`
	StartFrom   string         `json:"start_from,omitempty"`
	StopAt      string         `json:"stop_at,omitempty"`
	ForceRerun  bool           `json:"force_rerun"`
	Metadata    chain.Metadata `json:"metadata"`
}

// Paths returns the three files written for jobID.
func (s *FileSink) Paths(jobID string) (metadata, explain, quality string) {
	base := filepath.Join(s.dir, textutil.SafeName(jobID))
	return base + ".metadata.json", base + ".explain.json", base + ".quality.json"
}

// Persist writes the run documents. The quality file is skipped when the run
// carried no report.
func (s *FileSink) Persist(_ context.Context, record chain.Record) error {
	if record.Result == nil {
		return errors.New("runsink: record has no result")
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("runsink: create metadata dir: %w", err)
	}
	metaPath, explainPath, qualityPath := s.Paths(record.Context.JobID)

	doc := MetadataDocument{
		JobID:       record.Context.JobID,
		EpisodeID:   record.Context.EpisodeID,
		ContentHash: record.Context.ContentHash,
		ConfigHash:  record.Context.ConfigHash,
		Success:     record.Result.Success,
		Error:       record.Result.Error,
		ErrorStep:   record.Result.ErrorStep,
		StartFrom:   record.Context.StartFrom,
		StopAt:      record.Context.StopAt,
		ForceRerun:  record.Context.ForceRerun,
		Metadata:    record.Result.Metadata,
	}
	var errs []error
	if err := fileutil.WriteJSONAtomic(metaPath, doc); err != nil {
		errs = append(errs, fmt.Errorf("runsink: write metadata: %w", err))
	}
	explain := record.Explain
	if explain == nil {
		explain = chain.NewExplainability(record.Context.JobID)
	}
	if err := fileutil.WriteJSONAtomic(explainPath, explain); err != nil {
		errs = append(errs, fmt.Errorf("runsink: write explainability: %w", err))
	}
	if record.Result.Quality != nil {
		if err := fileutil.WriteJSONAtomic(qualityPath, record.Result.Quality); err != nil {
			errs = append(errs, fmt.Errorf("runsink: write quality report: %w", err))
		}
	}
	return errors.Join(errs...)
}
