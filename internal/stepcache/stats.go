package stepcache

import (
	"os"
	"path/filepath"
	"sort"

	"golang.org/x/sys/unix"

	"mediachain/internal/logging"
)

// statfsFunc allows tests to stub filesystem stats.
type statfsFunc func(path string) (total uint64, free uint64, err error)

// StepStats describes the entries of one step.
type StepStats struct {
	Step    string `json:"step"`
	Entries int    `json:"entries"`
	Bytes   int64  `json:"bytes"`
}

// Stats describes current cache usage.
type Stats struct {
	Root         string      `json:"root"`
	Enabled      bool        `json:"enabled"`
	Steps        []StepStats `json:"steps"`
	TotalEntries int         `json:"total_entries"`
	TotalBytes   int64       `json:"total_bytes"`
	FreeBytes    uint64      `json:"free_bytes"`
	TotalFSBytes uint64      `json:"total_fs_bytes"`
}

// Stats walks the cache and reports per-step counts and byte totals. Byte
// totals include provenance files.
func (c *Cache) Stats() Stats {
	stats := Stats{Root: c.Root(), Enabled: c.Enabled(), Steps: []StepStats{}}
	if !c.Enabled() {
		return stats
	}
	steps, err := c.stepDirs()
	if err != nil {
		c.logger.Warn("failed to list step cache", logging.Error(err))
		return stats
	}
	sort.Strings(steps)
	for _, step := range steps {
		entries, err := os.ReadDir(filepath.Join(c.root, step))
		if err != nil {
			continue
		}
		summary := StepStats{Step: step}
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			info, err := entry.Info()
			if err != nil {
				continue
			}
			summary.Bytes += info.Size()
			if isEntryFile(entry.Name()) {
				summary.Entries++
			}
		}
		stats.Steps = append(stats.Steps, summary)
		stats.TotalEntries += summary.Entries
		stats.TotalBytes += summary.Bytes
	}
	if total, free, err := c.statfs(c.root); err == nil {
		stats.TotalFSBytes = total
		stats.FreeBytes = free
	}
	return stats
}

func realStatfs(path string) (uint64, uint64, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return 0, 0, err
	}
	bsize := uint64(stat.Bsize) //nolint:gosec
	return stat.Blocks * bsize, stat.Bavail * bsize, nil
}
