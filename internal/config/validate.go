package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateCache(); err != nil {
		return err
	}
	if err := c.validateStages(); err != nil {
		return err
	}
	if err := c.validateQuality(); err != nil {
		return err
	}
	if err := c.validateLedger(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateCache() error {
	if c.Cache.Enabled && strings.TrimSpace(c.Cache.Dir) == "" {
		return errors.New("cache.dir must be set when cache.enabled is true")
	}
	return nil
}

func (c *Config) validateStages() error {
	for _, name := range StageNames() {
		stage, _ := c.Stage(name)
		if stage.Command == "" {
			return fmt.Errorf("stages.%s.command must be set", name)
		}
		if stage.Version == "" {
			return fmt.Errorf("stages.%s.version must be set", name)
		}
		if len(stage.FallbackArgs) > 0 && stage.FallbackCommand == "" {
			return fmt.Errorf("stages.%s.fallback_args requires stages.%s.fallback_command", name, name)
		}
	}
	return nil
}

func (c *Config) validateQuality() error {
	q := c.Quality
	if err := ensureNonNegative(map[string]int{
		"quality.min_segments": q.MinSegments,
		"quality.min_speakers": q.MinSpeakers,
		"quality.min_entities": q.MinEntities,
		"quality.min_topics":   q.MinTopics,
		"quality.min_scored":   q.MinScored,
	}); err != nil {
		return err
	}
	if q.MaxSpeakers < q.MinSpeakers {
		return errors.New("quality.max_speakers must be >= quality.min_speakers")
	}
	if err := ensureRatio(map[string]float64{
		"quality.min_entity_confidence":     q.MinEntityConfidence,
		"quality.high_confidence":           q.HighConfidence,
		"quality.high_relevance":            q.HighRelevance,
		"quality.min_resolution_rate":       q.MinResolutionRate,
		"quality.min_resolution_confidence": q.MinResolutionConfidence,
		"quality.high_score":                q.HighScore,
	}); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateLedger() error {
	if c.Ledger.Enabled && strings.TrimSpace(c.Ledger.Path) == "" {
		return errors.New("ledger.path must be set when ledger.enabled is true")
	}
	return nil
}

func ensureNonNegative(values map[string]int) error {
	for _, key := range sortedKeys(values) {
		if values[key] < 0 {
			return fmt.Errorf("%s must be >= 0", key)
		}
	}
	return nil
}

func ensureRatio(values map[string]float64) error {
	for _, key := range sortedKeys(values) {
		if values[key] < 0 || values[key] > 1 {
			return fmt.Errorf("%s must be between 0 and 1", key)
		}
	}
	return nil
}
