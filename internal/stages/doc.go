// Package stages defines the JSON artifacts exchanged with the external
// analysis processes: diarization, entity extraction, entity resolution and
// subject scoring. Each artifact carries a schema-version tag, validates its
// own structure and exposes a compact explainability snapshot.
package stages
