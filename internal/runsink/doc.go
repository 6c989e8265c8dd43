// Package runsink persists the outcome of chain runs.
//
// FileSink writes {job}.metadata.json, {job}.explain.json and
// {job}.quality.json into the metadata directory. Ledger appends one row per
// run, plus one row per step invocation, to a SQLite database so run history
// can be listed later. Multi fans a record out to several sinks.
package runsink
