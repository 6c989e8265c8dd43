package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Stage names of the concrete analysis chain, in execution order.
const (
	StageDiarize = "diarize"
	StageExtract = "extract"
	StageResolve = "resolve"
	StageScore   = "score"
)

// StageNames lists the concrete chain stages in dependency order.
func StageNames() []string {
	return []string{StageDiarize, StageExtract, StageResolve, StageScore}
}

// Paths contains directory configuration.
type Paths struct {
	WorkDir     string `toml:"work_dir"`
	MetadataDir string `toml:"metadata_dir"`
	LogDir      string `toml:"log_dir"`
}

// Cache contains configuration for the content-addressed step cache.
type Cache struct {
	Enabled bool   `toml:"enabled"`
	Dir     string `toml:"dir"`
	// LockKeys serializes identical cache keys across processes with file locks.
	LockKeys bool `toml:"lock_keys"`
}

// Stage describes how one analysis stage is invoked as an external process.
type Stage struct {
	Command         string         `toml:"command"`
	Args            []string       `toml:"args"`
	Version         string         `toml:"version"`
	TimeoutSeconds  int            `toml:"timeout_seconds"`
	FallbackCommand string         `toml:"fallback_command"`
	FallbackArgs    []string       `toml:"fallback_args"`
	Settings        map[string]any `toml:"settings"`
}

// Stages groups the per-stage process settings.
type Stages struct {
	KeepWorkFiles bool  `toml:"keep_work_files"`
	Diarize       Stage `toml:"diarize"`
	Extract       Stage `toml:"extract"`
	Resolve       Stage `toml:"resolve"`
	Score         Stage `toml:"score"`
}

// Quality contains quality gate thresholds.
type Quality struct {
	// Diarization
	MinSegments int `toml:"min_segments"`
	MinSpeakers int `toml:"min_speakers"`
	MaxSpeakers int `toml:"max_speakers"`

	// Extraction
	MinEntities         int     `toml:"min_entities"`
	MinEntityConfidence float64 `toml:"min_entity_confidence"`
	HighConfidence      float64 `toml:"high_confidence"`
	HighRelevance       float64 `toml:"high_relevance"`
	MinTopics           int     `toml:"min_topics"`

	// Resolution
	MinResolutionRate       float64 `toml:"min_resolution_rate"`
	MinResolutionConfidence float64 `toml:"min_resolution_confidence"`

	// Scoring
	MinScored int     `toml:"min_scored"`
	HighScore float64 `toml:"high_score"`
}

// Ledger contains configuration for the SQLite run ledger.
type Ledger struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// Metrics contains configuration for Prometheus metric export.
type Metrics struct {
	// Textfile, when set, receives a node-exporter textfile snapshot after each run.
	Textfile string `toml:"textfile"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for mediachain.
//
// Configuration sections by subsystem:
//   - Paths: transient work files, per-job metadata output, logs
//   - Cache: content-addressed step cache
//   - Stages: external process invocation per analysis stage
//   - Quality: quality gate thresholds
//   - Ledger: SQLite run history
//   - Metrics: Prometheus textfile export
//   - Logging: log format and level
type Config struct {
	Paths   Paths   `toml:"paths"`
	Cache   Cache   `toml:"cache"`
	Stages  Stages  `toml:"stages"`
	Quality Quality `toml:"quality"`
	Ledger  Ledger  `toml:"ledger"`
	Metrics Metrics `toml:"metrics"`
	Logging Logging `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}
	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		if _, err := os.Stat(expanded); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}
	projectPath, err := filepath.Abs("mediachain.toml")
	if err != nil {
		return "", false, err
	}
	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}
	return defaultPath, false, nil
}

// EnsureDirectories creates the directories a chain run writes into.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Paths.WorkDir, c.Paths.MetadataDir, c.Paths.LogDir}
	if c.Cache.Enabled {
		dirs = append(dirs, c.Cache.Dir)
	}
	for _, dir := range dirs {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// Stage returns the process settings for the named stage.
func (c *Config) Stage(name string) (Stage, bool) {
	switch name {
	case StageDiarize:
		return c.Stages.Diarize, true
	case StageExtract:
		return c.Stages.Extract, true
	case StageResolve:
		return c.Stages.Resolve, true
	case StageScore:
		return c.Stages.Score, true
	default:
		return Stage{}, false
	}
}

// HashInputs returns the flattened key/value set that influences step outputs.
// Paths, logging and ledger settings are excluded because they never change
// what a stage computes.
func (c *Config) HashInputs() map[string]any {
	values := make(map[string]any)
	for _, name := range StageNames() {
		stage, _ := c.Stage(name)
		prefix := "stages." + name + "."
		values[prefix+"command"] = stage.Command
		values[prefix+"args"] = stage.Args
		values[prefix+"fallback_command"] = stage.FallbackCommand
		values[prefix+"fallback_args"] = stage.FallbackArgs
		keys := make([]string, 0, len(stage.Settings))
		for key := range stage.Settings {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			values[prefix+"settings."+key] = stage.Settings[key]
		}
	}
	return values
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
