package pipeline_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"mediachain/internal/chain"
	"mediachain/internal/config"
	"mediachain/internal/logging"
	"mediachain/internal/pipeline"
	"mediachain/internal/quality"
	"mediachain/internal/services"
	"mediachain/internal/stages"
	"mediachain/internal/testsupport"
)

const (
	diarizeCmd = "mediachain-diarize"
	extractCmd = "mediachain-extract"
	rulesCmd   = "mediachain-extract-rules"
	resolveCmd = "mediachain-resolve"
	scoreCmd   = "mediachain-score"
)

func fixtureRunner() *testsupport.StubRunner {
	return testsupport.NewStubRunner().
		Output(diarizeCmd, testsupport.Diarization()).
		Output(extractCmd, testsupport.Extraction()).
		Output(rulesCmd, testsupport.Extraction()).
		Output(resolveCmd, testsupport.Resolution()).
		Output(scoreCmd, testsupport.Scoring())
}

func sourceFile(t *testing.T, cfg *config.Config) string {
	t.Helper()
	path := filepath.Join(testsupport.BaseDir(cfg), "media", "episode.wav")
	testsupport.WriteFile(t, path, 64*1024)
	return path
}

func newPipeline(t *testing.T, cfg *config.Config, runner *testsupport.StubRunner) *pipeline.Pipeline {
	t.Helper()
	p, err := pipeline.New(cfg, logging.NewNop(),
		pipeline.WithCommandRunner(runner.Run),
		pipeline.WithMetricsRegistry(prometheus.NewRegistry()),
	)
	if err != nil {
		t.Fatalf("pipeline.New: %v", err)
	}
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func TestBuildRegistryOrdersStages(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	reg, err := pipeline.BuildRegistry(cfg, logging.NewNop(), nil)
	if err != nil {
		t.Fatalf("BuildRegistry: %v", err)
	}
	order, err := reg.ExecutionOrder("", "")
	if err != nil {
		t.Fatalf("ExecutionOrder: %v", err)
	}
	var names []string
	for _, def := range order {
		names = append(names, def.Name())
	}
	if got, want := strings.Join(names, ","), "diarize,extract,resolve,score"; got != want {
		t.Fatalf("order = %s, want %s", got, want)
	}
	score, _ := reg.Lookup(config.StageScore)
	if deps := score.Dependencies(); len(deps) != 2 {
		t.Fatalf("expected score to depend on diarize and resolve, got %v", deps)
	}
}

func TestRunComputesThenServesFromCache(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	runner := fixtureRunner()
	p := newPipeline(t, cfg, runner)
	src := sourceFile(t, cfg)
	ctx := context.Background()

	first, err := p.Run(ctx, pipeline.Request{Source: src, JobID: "job-1", EpisodeID: "ep-1"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !first.Success {
		t.Fatalf("expected success, got %s", first.Error)
	}
	if len(first.Metadata.StepsCompleted) != 4 || first.Metadata.CacheMisses != 4 {
		t.Fatalf("unexpected first-run metadata %+v", first.Metadata)
	}
	extraction, ok := chain.Output[stages.Extraction](first, config.StageExtract)
	if !ok || extraction.Extractor != stages.ExtractorModel {
		t.Fatalf("expected model extraction, got %+v", extraction)
	}
	if first.Quality == nil || first.Quality.OverallTier != quality.TierExcellent {
		t.Fatalf("unexpected quality report %+v", first.Quality)
	}
	if len(runner.Calls()) != 4 {
		t.Fatalf("expected 4 process calls, got %v", runner.Calls())
	}

	second, err := p.Run(ctx, pipeline.Request{Source: src, JobID: "job-2"})
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if !second.Success || second.Metadata.CacheHits != 4 || len(second.Metadata.StepsCached) != 4 {
		t.Fatalf("expected all cache hits, got %+v", second.Metadata)
	}
	if len(runner.Calls()) != 4 {
		t.Fatalf("expected no process calls on cached run, got %v", runner.Calls())
	}
	scoring, ok := chain.Output[stages.Scoring](second, config.StageScore)
	if !ok || len(scoring.Scores) != 2 {
		t.Fatalf("expected cached scoring output, got %+v", scoring)
	}

	metaPath := filepath.Join(cfg.Paths.MetadataDir, "job-1.metadata.json")
	if _, err := os.Stat(metaPath); err != nil {
		t.Fatalf("expected metadata file: %v", err)
	}
}

func TestExtractFallsBackToRules(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	runner := fixtureRunner().Fail(extractCmd, errors.New("model unavailable"))
	p := newPipeline(t, cfg, runner)

	result, err := p.Run(context.Background(), pipeline.Request{Source: sourceFile(t, cfg), JobID: "job-fb"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected fallback to rescue the run: %s", result.Error)
	}
	extraction, _ := chain.Output[stages.Extraction](result, config.StageExtract)
	if extraction.Extractor != stages.ExtractorRules {
		t.Fatalf("expected rules extractor, got %q", extraction.Extractor)
	}
	assessment, ok := result.Quality.Step(config.StageExtract)
	if !ok || assessment.Tier != quality.TierGood {
		t.Fatalf("expected good extract tier, got %+v", assessment)
	}
	if runner.Count(rulesCmd) != 1 {
		t.Fatalf("expected one fallback call, got %v", runner.Calls())
	}

	var explain chain.Explainability
	testsupport.ReadJSON(t, filepath.Join(cfg.Paths.MetadataDir, "job-fb.explain.json"), &explain)
	snapshot, ok := explain.Snapshots[config.StageExtract].(map[string]any)
	if !ok || snapshot["extractor"] != stages.ExtractorRules {
		t.Fatalf("expected extractor in snapshot, got %+v", explain.Snapshots[config.StageExtract])
	}
}

func TestStartFromNeedsCachedPrerequisites(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	runner := fixtureRunner()
	p := newPipeline(t, cfg, runner)
	src := sourceFile(t, cfg)
	ctx := context.Background()

	early, err := p.Run(ctx, pipeline.Request{Source: src, JobID: "job-a", StartFrom: config.StageResolve})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if early.Success || early.ErrorStep != config.StageResolve || !errors.Is(early.Err, services.ErrMissingInput) {
		t.Fatalf("expected missing input at resolve, got success=%v step=%q err=%v", early.Success, early.ErrorStep, early.Err)
	}
	if len(runner.Calls()) != 0 {
		t.Fatalf("expected no stage to run out of order, got %v", runner.Calls())
	}

	if _, err := p.Run(ctx, pipeline.Request{Source: src, JobID: "job-b"}); err != nil {
		t.Fatalf("full Run: %v", err)
	}
	rerun, err := p.Run(ctx, pipeline.Request{Source: src, JobID: "job-c", StartFrom: config.StageResolve, Force: true})
	if err != nil {
		t.Fatalf("forced Run: %v", err)
	}
	if !rerun.Success || len(rerun.Metadata.StepsCompleted) != 2 {
		t.Fatalf("expected resolve and score recomputed, got %+v", rerun.Metadata)
	}
	if runner.Count(resolveCmd) != 2 || runner.Count(extractCmd) != 1 || runner.Count(diarizeCmd) != 1 {
		t.Fatalf("unexpected call counts %v", runner.Calls())
	}
}

func TestStopAtLimitsWindow(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	runner := fixtureRunner()
	p := newPipeline(t, cfg, runner)

	result, err := p.Run(context.Background(), pipeline.Request{Source: sourceFile(t, cfg), JobID: "job-stop", StopAt: config.StageExtract})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !result.Success || len(result.Metadata.StepsCompleted) != 2 {
		t.Fatalf("expected two steps, got %+v", result.Metadata)
	}
	if _, ok := result.Output(config.StageResolve); ok {
		t.Fatal("expected no resolve output past stop-at")
	}
}

func TestStageSettingsChangeInvalidatesCache(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	runner := fixtureRunner()
	src := sourceFile(t, cfg)
	ctx := context.Background()

	p := newPipeline(t, cfg, runner)
	if _, err := p.Run(ctx, pipeline.Request{Source: src, JobID: "job-1"}); err != nil {
		t.Fatalf("Run: %v", err)
	}

	cfg.Stages.Extract.Settings = map[string]any{"model": "larger"}
	changed := newPipeline(t, cfg, runner)
	result, err := changed.Run(ctx, pipeline.Request{Source: src, JobID: "job-2"})
	if err != nil {
		t.Fatalf("Run after change: %v", err)
	}
	if result.Metadata.CacheMisses != 4 {
		t.Fatalf("expected config change to miss every step, got %+v", result.Metadata)
	}
}

func TestCacheKeyMatchesRun(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	p := newPipeline(t, cfg, fixtureRunner())
	src := sourceFile(t, cfg)
	if _, err := p.Run(context.Background(), pipeline.Request{Source: src, JobID: "job-k"}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	key, err := pipeline.CacheKey(cfg, config.StageDiarize, src)
	if err != nil {
		t.Fatalf("CacheKey: %v", err)
	}
	prov, ok := p.Cache().Provenance(key)
	if !ok || prov.Step != config.StageDiarize {
		t.Fatalf("expected provenance for diarize, got %+v", prov)
	}
	if _, err := pipeline.CacheKey(cfg, "render", src); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error for unknown stage, got %v", err)
	}
}

func TestRunRejectsMissingSource(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	p := newPipeline(t, cfg, fixtureRunner())
	_, err := p.Run(context.Background(), pipeline.Request{Source: filepath.Join(t.TempDir(), "missing.wav")})
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	_, err = p.Run(context.Background(), pipeline.Request{})
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestRunRejectsUnknownWindow(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	p := newPipeline(t, cfg, fixtureRunner())
	_, err := p.Run(context.Background(), pipeline.Request{Source: sourceFile(t, cfg), StartFrom: "render"})
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestRunRecordsLedgerAndMetrics(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithLedger(), testsupport.WithMetricsTextfile(), testsupport.WithLockKeys())
	p := newPipeline(t, cfg, fixtureRunner())
	if _, err := p.Run(context.Background(), pipeline.Request{Source: sourceFile(t, cfg), JobID: "job-l"}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	ledger := testsupport.MustOpenLedger(t, cfg)
	runs, err := ledger.Recent(context.Background(), "job-l", 5)
	if err != nil || len(runs) != 1 || !runs[0].Success {
		t.Fatalf("expected one successful ledger run, got %+v %v", runs, err)
	}

	data, err := os.ReadFile(cfg.Metrics.Textfile)
	if err != nil {
		t.Fatalf("read metrics textfile: %v", err)
	}
	if !strings.Contains(string(data), `mediachain_chain_runs_total{result="success"} 1`) {
		t.Fatalf("unexpected metrics:\n%s", data)
	}
}

func TestRunSpawnsStageProcesses(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubStages())
	p, err := pipeline.New(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("pipeline.New: %v", err)
	}
	defer p.Close()

	result, err := p.Run(context.Background(), pipeline.Request{Source: sourceFile(t, cfg), JobID: "job-proc"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected success with stub processes: %s", result.Error)
	}
	resolution, ok := chain.Output[stages.Resolution](result, config.StageResolve)
	if !ok || len(resolution.Entities) != 3 {
		t.Fatalf("unexpected resolution %+v", resolution)
	}
	entries, err := os.ReadDir(filepath.Join(cfg.Paths.WorkDir, "job-proc"))
	if err != nil {
		t.Fatalf("read work dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected transient files removed, found %d", len(entries))
	}
}
