package testsupport

import (
	"testing"

	"mediachain/internal/config"
	"mediachain/internal/runsink"
)

// MustOpenLedger opens the configured run ledger and registers cleanup.
func MustOpenLedger(t testing.TB, cfg *config.Config) *runsink.Ledger {
	t.Helper()

	ledger, err := runsink.OpenLedger(cfg.Ledger.Path)
	if err != nil {
		t.Fatalf("runsink.OpenLedger: %v", err)
	}
	t.Cleanup(func() {
		_ = ledger.Close()
	})
	return ledger
}
