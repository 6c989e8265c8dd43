// Package stepcache stores step artifacts addressed by content.
//
// A Key combines the step name, the content hash of the primary input, the
// config hash and the step version. Entries live at {root}/{step}/{key}.json
// with a provenance record beside them at {root}/{step}/{key}.provenance.json.
// Both files are written atomically. Reads never fail: a missing, malformed or
// mistyped entry is a miss, logged and otherwise ignored, so a broken cache
// only costs recomputation.
//
// Two processes that miss on an identical key at the same time both compute
// and the last writer wins. KeyLocker serializes identical keys across
// processes for callers that need exactly-once work.
//
// Use `mediachain cache stats` to inspect usage and `mediachain cache clear`
// or `clear-step` to bust entries.
package stepcache
