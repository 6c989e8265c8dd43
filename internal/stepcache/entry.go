package stepcache

import (
	"encoding/json"
	"reflect"
	"time"
)

// entrySchemaVersion tags the on-disk envelope layout.
const entrySchemaVersion = 1

// Entry is the on-disk envelope of a cached artifact.
type Entry struct {
	SchemaVersion int             `json:"schema_version"`
	Key           string          `json:"key"`
	Step          string          `json:"step"`
	ContentHash   string          `json:"content_hash"`
	ConfigHash    string          `json:"config_hash"`
	Version       string          `json:"version"`
	ResultType    string          `json:"result_type"`
	CreatedAt     time.Time       `json:"created_at"`
	Payload       json.RawMessage `json:"payload"`
}

// Provenance records how an entry was produced. It is replaced together with
// its entry.
type Provenance struct {
	Key        string        `json:"key"`
	Step       string        `json:"step"`
	Version    string        `json:"version"`
	CreatedAt  time.Time     `json:"created_at"`
	InputHash  string        `json:"input_hash"`
	OutputHash string        `json:"output_hash"`
	Duration   time.Duration `json:"duration"`
	ResultType string        `json:"result_type"`
}

// TypeTag names a result type for the envelope. Named types include their
// package path.
func TypeTag(t reflect.Type) string {
	if t == nil {
		return "<nil>"
	}
	if t.Kind() == reflect.Pointer {
		return "*" + TypeTag(t.Elem())
	}
	if t.Name() != "" && t.PkgPath() != "" {
		return t.PkgPath() + "." + t.Name()
	}
	return t.String()
}
