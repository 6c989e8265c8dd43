// Package pipeline wires the concrete analysis chain.
//
// BuildRegistry registers the four process-backed stages (diarize, extract,
// resolve, score) from configuration. New assembles the registry with the
// step cache, quality gates, run sinks and metrics into a Pipeline whose Run
// method turns a source media file into a finished chain run.
package pipeline
