// Package chain holds the data model shared by the step registry, the cache and
// the executor.
//
// A Context describes one job: the content and config hashes that address the
// step cache, the named paths a step may read, and the run controls (force
// rerun, start-from, stop-at). Metadata and Explainability are owned by a
// single RunChain call and must not be shared across concurrent jobs. A Result
// is the immutable summary handed back to the caller.
package chain
