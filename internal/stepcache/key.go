package stepcache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
)

// hashLength is the number of hex characters kept from a sha256 digest.
const hashLength = 32

// fingerprintChunk bounds how much of a large input is read when fingerprinting.
const fingerprintChunk = 10 << 20

// Key addresses one cached artifact.
type Key struct {
	Step        string `json:"step"`
	ContentHash string `json:"content_hash"`
	ConfigHash  string `json:"config_hash"`
	Version     string `json:"version"`
}

// String returns the deterministic digest of all four fields.
func (k Key) String() string {
	h := sha256.New()
	for _, part := range []string{k.Step, k.ContentHash, k.ConfigHash, k.Version} {
		io.WriteString(h, part)
		h.Write([]byte{0})
	}
	return digest(h.Sum(nil))
}

// Equal reports whether every field matches.
func (k Key) Equal(other Key) bool {
	return k == other
}

func digest(sum []byte) string {
	return hex.EncodeToString(sum)[:hashLength]
}

// ComputeContentHash fingerprints a file by its size plus its first and last
// 10 MiB. Smaller files are hashed whole. An unreadable file falls back to
// hashing its path, size and modification time.
func ComputeContentHash(path string) string {
	info, err := os.Stat(path)
	if err != nil {
		sum := sha256.Sum256([]byte("unreadable:" + path))
		return digest(sum[:])
	}
	if sum, err := fingerprint(path, info.Size()); err == nil {
		return sum
	}
	meta := fmt.Sprintf("%s|%d|%d", path, info.Size(), info.ModTime().UnixNano())
	sum := sha256.Sum256([]byte(meta))
	return digest(sum[:])
}

func fingerprint(path string, size int64) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	h := sha256.New()
	fmt.Fprintf(h, "size:%d\n", size)
	if size <= 2*fingerprintChunk {
		if _, err := io.Copy(h, file); err != nil {
			return "", err
		}
		return digest(h.Sum(nil)), nil
	}
	if _, err := io.CopyN(h, file, fingerprintChunk); err != nil {
		return "", err
	}
	if _, err := file.Seek(size-fingerprintChunk, io.SeekStart); err != nil {
		return "", err
	}
	if _, err := io.CopyN(h, file, fingerprintChunk); err != nil {
		return "", err
	}
	return digest(h.Sum(nil)), nil
}

// ComputeConfigHash hashes the sorted key/value set that influences a step.
// Values are JSON-encoded, so nested maps hash deterministically.
func ComputeConfigHash(values map[string]any) string {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	h := sha256.New()
	for _, key := range keys {
		io.WriteString(h, key)
		io.WriteString(h, "=")
		h.Write(encodeValue(values[key]))
		io.WriteString(h, "\n")
	}
	return digest(h.Sum(nil))
}

// ComputeInputHash hashes the content hash together with the named outputs a
// step consumed. It is recorded for provenance only.
func ComputeInputHash(contentHash string, inputs map[string]any) string {
	return ComputeConfigHash(map[string]any{
		"content_hash": contentHash,
		"inputs":       inputs,
	})
}

// ComputeOutputHash hashes the JSON encoding of an artifact.
func ComputeOutputHash(artifact any) string {
	sum := sha256.Sum256(encodeValue(artifact))
	return digest(sum[:])
}

func encodeValue(value any) []byte {
	data, err := json.Marshal(value)
	if err != nil {
		return []byte(fmt.Sprintf("%T:%v", value, value))
	}
	return data
}
