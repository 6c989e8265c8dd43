package runsink_test

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"mediachain/internal/chain"
	"mediachain/internal/quality"
	"mediachain/internal/runsink"
	"mediachain/internal/testsupport"
)

func sampleRecord(t *testing.T, success bool) chain.Record {
	t.Helper()
	cc, err := chain.NewContext(chain.ContextOptions{JobID: "job-9", EpisodeID: "ep-3", ContentHash: "H", ConfigHash: "C", StartFrom: "extract"})
	if err != nil {
		t.Fatalf("NewContext: %v", err)
	}
	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	meta := chain.NewMetadata(cc.JobID, started)
	meta.RecordHit(chain.StepMetrics{Step: "extract", CacheKey: "k1", OutputHash: "o1"})
	meta.RecordMiss(chain.StepMetrics{Step: "resolve", CacheKey: "k2", InputHash: "i2", OutputHash: "o2", Duration: 1500 * time.Millisecond})
	result := &chain.Result{Success: success, Quality: &quality.Report{OverallTier: quality.TierGood}}
	if !success {
		meta.RecordFailure(chain.StepMetrics{Step: "score", CacheKey: "k3"}, "step score: boom")
		result.Error = "step score: boom"
		result.ErrorStep = "score"
	}
	meta.Finalize(started.Add(3 * time.Second))
	result.Metadata = meta.Clone()

	explain := chain.NewExplainability(cc.JobID)
	explain.Snapshot("resolve", map[string]any{"resolved": 3})
	explain.Add(started, "resolve", chain.EventComputed, "")
	return chain.Record{Context: cc, Result: result, Explain: explain}
}

func TestFileSinkWritesDocuments(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "runs")
	sink := runsink.NewFileSink(dir)
	if err := sink.Persist(context.Background(), sampleRecord(t, false)); err != nil {
		t.Fatalf("Persist: %v", err)
	}
	metaPath, explainPath, qualityPath := sink.Paths("job-9")

	var doc runsink.MetadataDocument
	testsupport.ReadJSON(t, metaPath, &doc)
	if doc.Success || doc.ErrorStep != "score" || doc.StartFrom != "extract" {
		t.Fatalf("unexpected metadata document %+v", doc)
	}
	if doc.Metadata.CacheHits != 1 || len(doc.Metadata.StepsFailed) != 1 {
		t.Fatalf("unexpected metadata %+v", doc.Metadata)
	}

	var explain chain.Explainability
	testsupport.ReadJSON(t, explainPath, &explain)
	if len(explain.Trace) != 1 || explain.Snapshots["resolve"] == nil {
		t.Fatalf("unexpected explainability %+v", explain)
	}

	var report quality.Report
	testsupport.ReadJSON(t, qualityPath, &report)
	if report.OverallTier != quality.TierGood {
		t.Fatalf("unexpected quality report %+v", report)
	}
}

func TestFileSinkSanitizesJobID(t *testing.T) {
	dir := t.TempDir()
	sink := runsink.NewFileSink(dir)
	record := sampleRecord(t, true)
	record.Context.JobID = "../escape"
	if err := sink.Persist(context.Background(), record); err != nil {
		t.Fatalf("Persist: %v", err)
	}
	metaPath, _, _ := sink.Paths("../escape")
	if filepath.Dir(metaPath) != dir {
		t.Fatalf("expected file inside %s, got %s", dir, metaPath)
	}
	if _, err := os.Stat(metaPath); err != nil {
		t.Fatalf("expected metadata file: %v", err)
	}
}

func TestLedgerRecordsRuns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	ledger, err := runsink.OpenLedger(path)
	if err != nil {
		t.Fatalf("OpenLedger: %v", err)
	}
	t.Cleanup(func() { _ = ledger.Close() })

	ctx := context.Background()
	if err := ledger.Persist(ctx, sampleRecord(t, true)); err != nil {
		t.Fatalf("Persist success: %v", err)
	}
	if err := ledger.Persist(ctx, sampleRecord(t, false)); err != nil {
		t.Fatalf("Persist failure: %v", err)
	}

	runs, err := ledger.Recent(ctx, "job-9", 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	latest := runs[0]
	if latest.Success || latest.ErrorStep != "score" || latest.StepsFailed != 1 || latest.QualityTier != "good" {
		t.Fatalf("unexpected latest run %+v", latest)
	}
	if latest.Duration != 3*time.Second || latest.EpisodeID != "ep-3" {
		t.Fatalf("unexpected timing or episode %+v", latest)
	}

	steps, err := ledger.Steps(ctx, latest.ID)
	if err != nil {
		t.Fatalf("Steps: %v", err)
	}
	if len(steps) != 3 || steps[0].Step != "extract" || !steps[0].CacheHit || steps[1].Duration != 1500*time.Millisecond {
		t.Fatalf("unexpected steps %+v", steps)
	}

	other, err := ledger.Recent(ctx, "someone-else", 10)
	if err != nil || len(other) != 0 {
		t.Fatalf("expected no runs for other job, got %v %v", other, err)
	}

	// Reopening applies no duplicate migrations.
	if err := ledger.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	reopened, err := runsink.OpenLedger(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	runs, err = reopened.Recent(ctx, "", 1)
	if err != nil || len(runs) != 1 {
		t.Fatalf("expected latest run after reopen, got %v %v", runs, err)
	}
}

type failingSink struct{ called int }

func (f *failingSink) Persist(context.Context, chain.Record) error {
	f.called++
	return errors.New("unavailable")
}

func TestMultiContinuesPastFailures(t *testing.T) {
	dir := t.TempDir()
	failing := &failingSink{}
	multi := runsink.Multi{failing, runsink.NewFileSink(dir)}
	err := multi.Persist(context.Background(), sampleRecord(t, true))
	if err == nil {
		t.Fatal("expected joined error")
	}
	if failing.called != 1 {
		t.Fatal("expected failing sink to be called")
	}
	metaPath, _, _ := runsink.NewFileSink(dir).Paths("job-9")
	if _, statErr := os.Stat(metaPath); statErr != nil {
		t.Fatalf("expected later sink to run: %v", statErr)
	}
}

func TestNewFromConfig(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithLedger())
	sinks, closeFn, err := runsink.NewFromConfig(cfg)
	if err != nil {
		t.Fatalf("NewFromConfig: %v", err)
	}
	defer closeFn()
	if len(sinks) != 2 {
		t.Fatalf("expected file sink and ledger, got %d sinks", len(sinks))
	}
	if err := sinks.Persist(context.Background(), sampleRecord(t, true)); err != nil {
		t.Fatalf("Persist: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(cfg.Paths.MetadataDir, "job-9.metadata.json"))
	if err != nil {
		t.Fatalf("read metadata: %v", err)
	}
	if !json.Valid(data) {
		t.Fatal("expected valid JSON metadata")
	}
}
