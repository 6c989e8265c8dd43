package stepcache

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"mediachain/internal/config"
	"mediachain/internal/fileutil"
	"mediachain/internal/logging"
	"mediachain/internal/textutil"
)

const (
	entrySuffix      = ".json"
	provenanceSuffix = ".provenance.json"
	locksDir         = ".locks"
)

// Cache is a filesystem-backed artifact store. A cache with an empty root is a
// functional no-op: every lookup misses and every store succeeds silently.
type Cache struct {
	root   string
	logger *slog.Logger
	now    func() time.Time
	statfs statfsFunc
}

// New returns a cache rooted at root.
func New(root string, logger *slog.Logger) *Cache {
	return &Cache{
		root:   strings.TrimSpace(root),
		logger: logging.NewComponentLogger(logger, "stepcache"),
		now:    time.Now,
		statfs: realStatfs,
	}
}

// NewFromConfig returns the configured cache, or a no-op cache when caching is
// disabled.
func NewFromConfig(cfg *config.Config, logger *slog.Logger) *Cache {
	if cfg == nil || !cfg.Cache.Enabled {
		return New("", logger)
	}
	return New(cfg.Cache.Dir, logger)
}

// Enabled reports whether entries are persisted.
func (c *Cache) Enabled() bool {
	return c != nil && c.root != ""
}

// Root returns the cache directory.
func (c *Cache) Root() string {
	if c == nil {
		return ""
	}
	return c.root
}

func (c *Cache) entryPath(key Key) string {
	return filepath.Join(c.root, textutil.SafeName(key.Step), key.String()+entrySuffix)
}

func (c *Cache) provenancePath(key Key) string {
	return filepath.Join(c.root, textutil.SafeName(key.Step), key.String()+provenanceSuffix)
}

// Lookup returns the raw payload stored under key when its envelope matches
// the key and the result type tag. It never fails; problems are logged and
// reported as a miss.
func (c *Cache) Lookup(key Key, resultType string) (json.RawMessage, bool) {
	if !c.Enabled() {
		return nil, false
	}
	path := c.entryPath(key)
	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			c.readFailed(key, path, "read entry", err)
		}
		return nil, false
	}
	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		c.readFailed(key, path, "parse entry", err)
		return nil, false
	}
	if entry.Key != key.String() || entry.Step != key.Step || entry.Version != key.Version {
		c.readFailed(key, path, "verify entry", fmt.Errorf("envelope key %q does not match", entry.Key))
		return nil, false
	}
	if entry.ResultType != resultType {
		c.readFailed(key, path, "verify entry", fmt.Errorf("result type %q, want %q", entry.ResultType, resultType))
		return nil, false
	}
	if len(entry.Payload) == 0 {
		c.readFailed(key, path, "verify entry", errors.New("empty payload"))
		return nil, false
	}
	return entry.Payload, true
}

// Get returns the artifact stored under key as T.
func Get[T any](c *Cache, key Key) (T, bool) {
	var value T
	raw, ok := c.Lookup(key, TypeTag(reflect.TypeFor[T]()))
	if !ok {
		return value, false
	}
	if err := json.Unmarshal(raw, &value); err != nil {
		c.readFailed(key, c.entryPath(key), "decode payload", err)
		var zero T
		return zero, false
	}
	return value, true
}

// DecodeFailed logs a payload the caller could not decode. The entry is left
// in place and treated as a miss.
func (c *Cache) DecodeFailed(key Key, err error) {
	if !c.Enabled() {
		return
	}
	c.readFailed(key, c.entryPath(key), "decode payload", err)
}

func (c *Cache) readFailed(key Key, path, operation string, err error) {
	logging.WarnWithContext(c.logger, "step cache read failed", "stepcache_read_failed",
		logging.String(logging.FieldStep, key.Step),
		logging.String(logging.FieldCacheKey, key.String()),
		logging.String("path", path),
		logging.String("operation", operation),
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "clear the step cache if the entry keeps failing"),
		logging.String(logging.FieldImpact, "step will be recomputed"),
	)
}

// Set stores artifact and its provenance under key, replacing any prior entry.
// The provenance is returned even when the cache is disabled.
func (c *Cache) Set(key Key, artifact any, duration time.Duration, inputHash string) (Provenance, error) {
	payload, err := json.Marshal(artifact)
	if err != nil {
		return Provenance{}, fmt.Errorf("stepcache: encode %s artifact: %w", key.Step, err)
	}
	now := time.Now()
	if c != nil {
		now = c.now()
	}
	resultType := TypeTag(reflect.TypeOf(artifact))
	outputHash := ComputeOutputHash(json.RawMessage(payload))
	prov := Provenance{
		Key:        key.String(),
		Step:       key.Step,
		Version:    key.Version,
		CreatedAt:  now.UTC(),
		InputHash:  inputHash,
		OutputHash: outputHash,
		Duration:   duration,
		ResultType: resultType,
	}
	if !c.Enabled() {
		return prov, nil
	}

	entry := Entry{
		SchemaVersion: entrySchemaVersion,
		Key:           key.String(),
		Step:          key.Step,
		ContentHash:   key.ContentHash,
		ConfigHash:    key.ConfigHash,
		Version:       key.Version,
		ResultType:    resultType,
		CreatedAt:     prov.CreatedAt,
		Payload:       payload,
	}
	if err := fileutil.WriteJSONAtomic(c.entryPath(key), entry); err != nil {
		return prov, fmt.Errorf("stepcache: write entry: %w", err)
	}
	if err := fileutil.WriteJSONAtomic(c.provenancePath(key), prov); err != nil {
		return prov, fmt.Errorf("stepcache: write provenance: %w", err)
	}
	c.logger.Debug("stored step artifact",
		logging.String(logging.FieldStep, key.Step),
		logging.String(logging.FieldCacheKey, prov.Key),
		logging.Int64("bytes", int64(len(payload))),
	)
	return prov, nil
}

// Provenance returns the provenance record stored beside key.
func (c *Cache) Provenance(key Key) (Provenance, bool) {
	if !c.Enabled() {
		return Provenance{}, false
	}
	data, err := os.ReadFile(c.provenancePath(key))
	if err != nil {
		return Provenance{}, false
	}
	var prov Provenance
	if err := json.Unmarshal(data, &prov); err != nil {
		return Provenance{}, false
	}
	return prov, true
}

// Invalidate removes the entry under key. It returns the number of entries
// removed.
func (c *Cache) Invalidate(key Key) int {
	if !c.Enabled() {
		return 0
	}
	removed := 0
	if err := os.Remove(c.entryPath(key)); err == nil {
		removed = 1
	} else if !errors.Is(err, fs.ErrNotExist) {
		c.logger.Warn("failed to remove cache entry",
			logging.String(logging.FieldCacheKey, key.String()),
			logging.Error(err),
		)
	}
	_ = os.Remove(c.provenancePath(key))
	return removed
}

// ClearStep removes every entry of one step. The lock directory is never a
// step.
func (c *Cache) ClearStep(step string) int {
	if !c.Enabled() {
		return 0
	}
	name := textutil.SafeName(step)
	if name == locksDir {
		return 0
	}
	dir := filepath.Join(c.root, name)
	count, _ := countEntries(dir)
	if err := os.RemoveAll(dir); err != nil {
		c.logger.Warn("failed to clear step cache",
			logging.String(logging.FieldStep, step),
			logging.Error(err),
		)
		remaining, _ := countEntries(dir)
		return count - remaining
	}
	c.logger.Info("cleared step cache",
		logging.String(logging.FieldStep, step),
		logging.Int("entries", count),
	)
	return count
}

// ClearAll removes every entry of every step.
func (c *Cache) ClearAll() int {
	if !c.Enabled() {
		return 0
	}
	steps, err := c.stepDirs()
	if err != nil {
		return 0
	}
	total := 0
	for _, step := range steps {
		total += c.ClearStep(step)
	}
	return total
}

func (c *Cache) stepDirs() ([]string, error) {
	entries, err := os.ReadDir(c.root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	steps := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() || entry.Name() == locksDir {
			continue
		}
		steps = append(steps, entry.Name())
	}
	return steps, nil
}

func isEntryFile(name string) bool {
	return strings.HasSuffix(name, entrySuffix) && !strings.HasSuffix(name, provenanceSuffix)
}

func countEntries(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, entry := range entries {
		if !entry.IsDir() && isEntryFile(entry.Name()) {
			count++
		}
	}
	return count, nil
}
