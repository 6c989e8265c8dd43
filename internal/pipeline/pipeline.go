package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"mediachain/internal/chain"
	"mediachain/internal/chainmetrics"
	"mediachain/internal/config"
	"mediachain/internal/executor"
	"mediachain/internal/logging"
	"mediachain/internal/procexec"
	"mediachain/internal/quality"
	"mediachain/internal/registry"
	"mediachain/internal/runsink"
	"mediachain/internal/services"
	"mediachain/internal/stepcache"
)

// SourcePath is the chain.Context path entry holding the media file.
const SourcePath = "source"

// Option configures a Pipeline.
type Option func(*options)

type options struct {
	runner  procexec.CommandRunner
	metrics *prometheus.Registry
	now     func() time.Time
}

// WithCommandRunner replaces process spawning for every stage (for testing).
func WithCommandRunner(runner procexec.CommandRunner) Option {
	return func(o *options) { o.runner = runner }
}

// WithMetricsRegistry registers chain metrics on reg instead of a private
// registry.
func WithMetricsRegistry(reg *prometheus.Registry) Option {
	return func(o *options) { o.metrics = reg }
}

// WithClock overrides the executor time source.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// Pipeline runs the configured analysis chain.
type Pipeline struct {
	cfg        *config.Config
	logger     *slog.Logger
	registry   *registry.Registry
	cache      *stepcache.Cache
	executor   *executor.Executor
	metrics    *chainmetrics.Recorder
	closeSinks func() error
	configHash string
}

// New assembles a pipeline from cfg. Callers must Close it to release the run
// ledger.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) (*Pipeline, error) {
	if cfg == nil {
		return nil, errors.New("pipeline: config is required")
	}
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	reg, err := BuildRegistry(cfg, logger, o.runner)
	if err != nil {
		return nil, err
	}
	metrics, err := chainmetrics.New(o.metrics)
	if err != nil {
		return nil, err
	}
	sinks, closeSinks, err := runsink.NewFromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("open run sinks: %w", err)
	}
	cache := stepcache.NewFromConfig(cfg, logger)

	execOpts := []executor.Option{
		executor.WithLogger(logger),
		executor.WithSink(sinks),
		executor.WithQuality(quality.NewManager(cfg.Quality, logger)),
		executor.WithMetrics(metrics),
	}
	if cfg.Cache.LockKeys && cache.Enabled() {
		execOpts = append(execOpts, executor.WithKeyLocker(stepcache.NewKeyLocker(cache.Root())))
	}
	if o.now != nil {
		execOpts = append(execOpts, executor.WithClock(o.now))
	}

	return &Pipeline{
		cfg:        cfg,
		logger:     logging.NewComponentLogger(logger, "pipeline"),
		registry:   reg,
		cache:      cache,
		executor:   executor.New(reg, cache, execOpts...),
		metrics:    metrics,
		closeSinks: closeSinks,
		configHash: ConfigHash(cfg),
	}, nil
}

// Registry returns the registered stages.
func (p *Pipeline) Registry() *registry.Registry { return p.registry }

// Cache returns the step cache.
func (p *Pipeline) Cache() *stepcache.Cache { return p.cache }

// Metrics returns the metrics recorder.
func (p *Pipeline) Metrics() *chainmetrics.Recorder { return p.metrics }

// Close releases the run sinks.
func (p *Pipeline) Close() error {
	if p == nil || p.closeSinks == nil {
		return nil
	}
	return p.closeSinks()
}

// Request describes one chain run over a source media file.
type Request struct {
	Source    string
	JobID     string
	EpisodeID string
	// Paths are extra named locations handed to every stage.
	Paths     map[string]string
	Inputs    chain.Inputs
	Force     bool
	StartFrom string
	StopAt    string
}

// Context derives the job context for req. A missing job id gets a fresh
// uuid.
func (p *Pipeline) Context(req Request) (chain.Context, error) {
	source, err := resolveSource(req.Source)
	if err != nil {
		return chain.Context{}, err
	}
	jobID := strings.TrimSpace(req.JobID)
	if jobID == "" {
		jobID = uuid.NewString()
	}
	paths := maps.Clone(req.Paths)
	if paths == nil {
		paths = make(map[string]string, 1)
	}
	paths[SourcePath] = source
	return chain.NewContext(chain.ContextOptions{
		JobID:       jobID,
		EpisodeID:   req.EpisodeID,
		ContentHash: stepcache.ComputeContentHash(source),
		ConfigHash:  p.configHash,
		Paths:       paths,
		ForceRerun:  req.Force,
		StartFrom:   req.StartFrom,
		StopAt:      req.StopAt,
	})
}

// Run executes the chain for req. The error is non-nil only when the run
// could not start; step failures are reported in the result.
func (p *Pipeline) Run(ctx context.Context, req Request) (*chain.Result, error) {
	cc, err := p.Context(req)
	if err != nil {
		return nil, err
	}
	if err := p.cfg.EnsureDirectories(); err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "", "prepare directories", "", err)
	}
	result, err := p.executor.RunChain(ctx, cc, req.Inputs)
	if err != nil {
		return nil, err
	}
	p.exportMetrics(ctx)
	return result, nil
}

func (p *Pipeline) exportMetrics(ctx context.Context) {
	path := p.cfg.Metrics.Textfile
	if path == "" {
		return
	}
	if err := p.metrics.WriteTextfile(path); err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, p.logger), "failed to export metrics", "metrics_export_failed",
			logging.String("path", path),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check metrics.textfile directory permissions"),
			logging.String(logging.FieldImpact, "metrics snapshot for this run was not written"),
		)
	}
}

// ConfigHash hashes the configuration values that influence stage outputs.
func ConfigHash(cfg *config.Config) string {
	return stepcache.ComputeConfigHash(cfg.HashInputs())
}

// CacheKey returns the cache key of step for the source media file under cfg.
func CacheKey(cfg *config.Config, step, source string) (stepcache.Key, error) {
	stage, ok := cfg.Stage(step)
	if !ok {
		return stepcache.Key{}, services.Wrap(services.ErrConfiguration, step, "cache key", "unknown stage", nil)
	}
	path, err := resolveSource(source)
	if err != nil {
		return stepcache.Key{}, err
	}
	return stepcache.Key{
		Step:        step,
		ContentHash: stepcache.ComputeContentHash(path),
		ConfigHash:  ConfigHash(cfg),
		Version:     stage.Version,
	}, nil
}

func resolveSource(source string) (string, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return "", services.Wrap(services.ErrConfiguration, "", "resolve source", "source media path is required", nil)
	}
	path, err := config.ExpandPath(source)
	if err != nil {
		return "", services.Wrap(services.ErrConfiguration, "", "resolve source", "", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		return "", services.Wrap(services.ErrNotFound, "", "resolve source", path, err)
	}
	if info.IsDir() {
		return "", services.Wrap(services.ErrValidation, "", "resolve source", path+" is a directory", nil)
	}
	return path, nil
}
