package testsupport

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"mediachain/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.WorkDir = filepath.Join(base, "work")
	cfgVal.Paths.MetadataDir = filepath.Join(base, "runs")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Cache.Dir = filepath.Join(base, "cache")
	cfgVal.Ledger.Path = filepath.Join(base, "runs", "ledger.db")
	cfgVal.Logging.Format = "json"

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithLedger enables the SQLite run ledger.
func WithLedger() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Ledger.Enabled = true
	}
}

// WithLockKeys enables cross-process cache key locking.
func WithLockKeys() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Cache.LockKeys = true
	}
}

// WithCacheDisabled turns the step cache off.
func WithCacheDisabled() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Cache.Enabled = false
	}
}

// WithMetricsTextfile points metric export at a file under the base dir.
func WithMetricsTextfile() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Metrics.Textfile = filepath.Join(b.baseDir, "metrics", "mediachain.prom")
	}
}

// WithStubStages writes executable stage stubs that copy a fixture document
// to the path following --output, and points every stage command at them.
// The fixtures are the passing outputs from Fixtures unless overridden.
func WithStubStages(overrides ...StageFixture) ConfigOption {
	return func(b *configBuilder) {
		fixtures := Fixtures()
		for _, o := range overrides {
			fixtures[o.Stage] = o.Output
		}
		binDir := filepath.Join(b.baseDir, "bin")
		if err := os.MkdirAll(binDir, 0o755); err != nil {
			b.t.Fatalf("mkdir bin dir: %v", err)
		}
		for _, name := range config.StageNames() {
			fixturePath := filepath.Join(binDir, name+".json")
			data, err := json.Marshal(fixtures[name])
			if err != nil {
				b.t.Fatalf("encode fixture %s: %v", name, err)
			}
			if err := os.WriteFile(fixturePath, data, 0o644); err != nil {
				b.t.Fatalf("write fixture %s: %v", name, err)
			}
			script := filepath.Join(binDir, "stub-"+name)
			if err := os.WriteFile(script, []byte(stubScript(fixturePath)), 0o755); err != nil {
				b.t.Fatalf("write stub %s: %v", name, err)
			}
			switch name {
			case config.StageDiarize:
				b.cfg.Stages.Diarize.Command = script
			case config.StageExtract:
				b.cfg.Stages.Extract.Command = script
				b.cfg.Stages.Extract.FallbackCommand = ""
			case config.StageResolve:
				b.cfg.Stages.Resolve.Command = script
			case config.StageScore:
				b.cfg.Stages.Score.Command = script
			}
		}
	}
}

func stubScript(fixture string) string {
	return fmt.Sprintf(`#!/bin/sh
out=""
while [ $# -gt 0 ]; do
  if [ "$1" = "--output" ]; then
    out="$2"
    shift
  fi
  shift
done
[ -n "$out" ] || exit 2
cat '%s' > "$out"
`, fixture)
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.WorkDir)
}
