// Package procexec runs an analysis stage as an external process.
//
// For each invocation the executor writes {work}/{job}/{step}.input.json with
// the job identity and the upstream outputs the stage consumes, runs
// `command args... --input <in> --output <out>`, then decodes the output file
// into the stage artifact and checks its schema tag and structure. A fallback
// executor may be chained to retry with a lighter tool when the primary fails.
package procexec
