package chainmetrics_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"mediachain/internal/chainmetrics"
)

func counterValue(t *testing.T, g prometheus.Gatherer, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := g.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		for _, metric := range family.GetMetric() {
			if matches(metric, labels) {
				return metric.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func matches(metric *dto.Metric, labels map[string]string) bool {
	for _, pair := range metric.GetLabel() {
		if want, ok := labels[pair.GetName()]; ok && want != pair.GetValue() {
			return false
		}
	}
	return true
}

func TestRecorderCountsOutcomes(t *testing.T) {
	rec, err := chainmetrics.New(prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	rec.ObserveStep("diarize", "computed", 2*time.Second)
	rec.ObserveStep("diarize", "hit", 2*time.Second)
	rec.ObserveStep("diarize", "hit", 2*time.Second)
	rec.ObserveChain(true, 5*time.Second)
	rec.ObserveChain(false, time.Second)

	g := rec.Gatherer()
	if got := counterValue(t, g, "mediachain_step_total", map[string]string{"step": "diarize", "outcome": "hit"}); got != 2 {
		t.Fatalf("expected 2 hits, got %v", got)
	}
	if got := counterValue(t, g, "mediachain_step_total", map[string]string{"step": "diarize", "outcome": "computed"}); got != 1 {
		t.Fatalf("expected 1 computed, got %v", got)
	}
	if got := counterValue(t, g, "mediachain_chain_runs_total", map[string]string{"result": "failure"}); got != 1 {
		t.Fatalf("expected 1 failed run, got %v", got)
	}
}

func TestRecorderRejectsDuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	if _, err := chainmetrics.New(reg); err != nil {
		t.Fatalf("first New: %v", err)
	}
	if _, err := chainmetrics.New(reg); err == nil {
		t.Fatal("expected duplicate registration error")
	}
}

func TestWriteTextfile(t *testing.T) {
	rec, err := chainmetrics.New(nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	rec.ObserveStep("score", "failed", 10*time.Millisecond)
	path := filepath.Join(t.TempDir(), "nested", "mediachain.prom")
	if err := rec.WriteTextfile(path); err != nil {
		t.Fatalf("WriteTextfile: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read textfile: %v", err)
	}
	if !strings.Contains(string(data), `mediachain_step_total{outcome="failed",step="score"} 1`) {
		t.Fatalf("unexpected textfile contents:\n%s", data)
	}
}
