package runsink

import (
	"mediachain/internal/config"
)

// NewFromConfig builds the configured sinks: the file sink always, the ledger
// when enabled. Callers must invoke the returned close function.
func NewFromConfig(cfg *config.Config) (Multi, func() error, error) {
	sinks := Multi{NewFileSink(cfg.Paths.MetadataDir)}
	closeFn := func() error { return nil }
	if cfg.Ledger.Enabled {
		ledger, err := OpenLedger(cfg.Ledger.Path)
		if err != nil {
			return nil, nil, err
		}
		sinks = append(sinks, ledger)
		closeFn = ledger.Close
	}
	return sinks, closeFn, nil
}
