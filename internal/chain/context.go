package chain

import (
	"errors"
	"maps"
	"strings"
)

// Context identifies one job and carries its run controls. It is a value type;
// the path map is copied on construction and on access.
type Context struct {
	JobID       string
	EpisodeID   string
	ContentHash string
	ConfigHash  string
	ForceRerun  bool
	StartFrom   string
	StopAt      string

	paths map[string]string
}

// ContextOptions configures NewContext.
type ContextOptions struct {
	JobID       string
	EpisodeID   string
	ContentHash string
	ConfigHash  string
	Paths       map[string]string
	ForceRerun  bool
	StartFrom   string
	StopAt      string
}

// NewContext validates opts and returns an immutable job context.
func NewContext(opts ContextOptions) (Context, error) {
	jobID := strings.TrimSpace(opts.JobID)
	if jobID == "" {
		return Context{}, errors.New("chain context: job id is required")
	}
	contentHash := strings.TrimSpace(opts.ContentHash)
	if contentHash == "" {
		return Context{}, errors.New("chain context: content hash is required")
	}
	configHash := strings.TrimSpace(opts.ConfigHash)
	if configHash == "" {
		return Context{}, errors.New("chain context: config hash is required")
	}
	return Context{
		JobID:       jobID,
		EpisodeID:   strings.TrimSpace(opts.EpisodeID),
		ContentHash: contentHash,
		ConfigHash:  configHash,
		ForceRerun:  opts.ForceRerun,
		StartFrom:   strings.TrimSpace(opts.StartFrom),
		StopAt:      strings.TrimSpace(opts.StopAt),
		paths:       maps.Clone(opts.Paths),
	}, nil
}

// Paths returns a copy of the named path map.
func (c Context) Paths() map[string]string {
	out := make(map[string]string, len(c.paths))
	maps.Copy(out, c.paths)
	return out
}

// Path returns one named path.
func (c Context) Path(name string) (string, bool) {
	value, ok := c.paths[name]
	return value, ok
}
