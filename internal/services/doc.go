// Package services defines shared utilities consumed by the chain executor,
// the step executors, and the external process integrations.
//
// Key responsibilities:
//   - Context helpers that stamp job IDs, step names, and correlation
//     identifiers for logging and tracing.
//   - Structured error markers plus the Wrap helper and StepError type that
//     separate hard step failures from configuration errors.
//
// Use these helpers when wiring new step logic so operational behaviour (error
// classification, observability) stays uniform across the chain.
package services
