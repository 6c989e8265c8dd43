// Package logging assembles structured slog loggers and formatting helpers used
// across mediachain.
//
// It owns the console/JSON handlers, centralizes level and output plumbing,
// and exposes context-aware helpers so executor and step code can tag log
// lines with job IDs, step names, and correlation IDs. The package also
// provides a no-op logger for tests and wiring code that cannot fail.
package logging
