// Package executor runs registered steps against the step cache.
//
// RunStep executes one step: it checks prerequisites, consults the cache
// unless the job forces a rerun, calls the step on a miss, stores the result
// and records metrics, warnings and an explainability snapshot. RunChain walks
// the execution order, hydrates prerequisites that fall outside a start/stop
// window from the cache, grades every fresh output with the quality manager,
// and hands the final record to the sink exactly once whether the run
// succeeded or not.
//
// Hard step failures stop the chain and come back as a failed Result. Only
// configuration errors, detected before any step runs, are returned as errors.
package executor
