package artifactcache

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"betamode/internal/logging"
)

// Stats describes current cache usage.
type Stats struct {
	Root       string         `json:"root"`
	Entries    int            `json:"entries"`
	TotalBytes int64          `json:"total_bytes"`
	MaxBytes   int64          `json:"max_bytes"`
	Censored   int            `json:"censored"`
	Verbatim   int            `json:"verbatim"`
	Indexed    bool           `json:"indexed"`
	Recent     []EntrySummary `json:"recent"`
}

// EntrySummary surfaces one artifact for the CLI.
type EntrySummary struct {
	Key       string    `json:"key"`
	JobID     string    `json:"job_id"`
	SizeBytes int64     `json:"size_bytes"`
	Censored  bool      `json:"censored"`
	Regions   int       `json:"regions"`
	LastHitAt time.Time `json:"last_hit_at"`
}

// PruneResult reports what Prune removed.
type PruneResult struct {
	Removed    int   `json:"removed"`
	FreedBytes int64 `json:"freed_bytes"`
	Remaining  int64 `json:"remaining_bytes"`
}

// Stats returns usage for the cache. Files on disk are authoritative; the
// index contributes job ids, region counts and hit times where present, and
// is reconciled against the files as a side effect.
func (c *Cache) Stats(ctx context.Context, maxBytes int64, recent int) (Stats, error) {
	files, err := c.scan()
	if err != nil {
		return Stats{}, err
	}
	rows, err := c.reconcile(ctx, files)
	if err != nil {
		return Stats{}, err
	}

	stats := Stats{Root: c.root, Entries: len(files), MaxBytes: maxBytes, Indexed: c.index != nil}
	summaries := make([]EntrySummary, 0, len(files))
	for _, file := range files {
		stats.TotalBytes += file.size
		summary := EntrySummary{Key: file.key, SizeBytes: file.size, LastHitAt: time.Unix(file.mod, 0)}
		if row, ok := rows[file.key]; ok {
			summary.JobID = row.JobID
			summary.Censored = row.Censored
			summary.Regions = row.Regions
			summary.LastHitAt = row.LastHitAt
			if row.Censored {
				stats.Censored++
			} else {
				stats.Verbatim++
			}
		}
		summaries = append(summaries, summary)
	}
	sort.Slice(summaries, func(a, b int) bool {
		return summaries[a].LastHitAt.After(summaries[b].LastHitAt)
	})
	if recent >= 0 && len(summaries) > recent {
		summaries = summaries[:recent]
	}
	stats.Recent = summaries
	return stats, nil
}

// reconcile drops index rows whose files are gone and returns the surviving
// rows keyed by artifact key.
func (c *Cache) reconcile(ctx context.Context, files []artifactFile) (map[string]Entry, error) {
	rows := make(map[string]Entry)
	if c.index == nil {
		return rows, nil
	}
	entries, err := c.index.Entries(ctx)
	if err != nil {
		return nil, err
	}
	present := make(map[string]struct{}, len(files))
	for _, file := range files {
		present[file.key] = struct{}{}
	}
	for _, entry := range entries {
		if _, ok := present[entry.Key]; !ok {
			if err := c.index.Remove(ctx, entry.Key); err != nil {
				return nil, fmt.Errorf("drop stale index row: %w", err)
			}
			continue
		}
		rows[entry.Key] = entry
	}
	return rows, nil
}

// Prune removes least recently used artifacts until the cache fits within
// maxBytes. Leftover temp files from interrupted writes are removed too. The
// caller must hold the exclusive cache lock.
func (c *Cache) Prune(ctx context.Context, maxBytes int64) (PruneResult, error) {
	var result PruneResult
	c.removeTempFiles()

	files, err := c.scan()
	if err != nil {
		return result, err
	}
	rows, err := c.reconcile(ctx, files)
	if err != nil {
		return result, err
	}

	var total int64
	for _, file := range files {
		total += file.size
	}
	lastUsed := func(file artifactFile) int64 {
		if row, ok := rows[file.key]; ok {
			return row.LastHitAt.Unix()
		}
		return file.mod
	}
	sort.Slice(files, func(a, b int) bool {
		return lastUsed(files[a]) < lastUsed(files[b])
	})

	for _, file := range files {
		if maxBytes <= 0 || total <= maxBytes {
			break
		}
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if err := os.Remove(file.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return result, fmt.Errorf("remove artifact %s: %w", file.path, err)
		}
		if c.index != nil {
			if err := c.index.Remove(ctx, file.key); err != nil {
				return result, fmt.Errorf("drop index row: %w", err)
			}
		}
		total -= file.size
		result.Removed++
		result.FreedBytes += file.size
		c.logger.Debug("artifact pruned",
			logging.String("key", file.key),
			logging.Int64("size_bytes", file.size),
			logging.String(logging.FieldEventType, "artifact_pruned"),
		)
	}
	result.Remaining = total
	return result, nil
}

// Clear removes every artifact and index row. The caller must hold the
// exclusive cache lock.
func (c *Cache) Clear(ctx context.Context) (PruneResult, error) {
	var result PruneResult
	c.removeTempFiles()
	files, err := c.scan()
	if err != nil {
		return result, err
	}
	for _, file := range files {
		if err := os.Remove(file.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return result, fmt.Errorf("remove artifact %s: %w", file.path, err)
		}
		result.Removed++
		result.FreedBytes += file.size
	}
	if c.index != nil {
		if err := c.index.Clear(ctx); err != nil {
			return result, err
		}
	}
	c.removeEmptyBuckets()
	return result, nil
}

func (c *Cache) removeTempFiles() {
	matches, err := filepath.Glob(filepath.Join(c.root, "*", tempPattern))
	if err != nil {
		return
	}
	for _, path := range matches {
		_ = os.Remove(path)
	}
}

func (c *Cache) removeEmptyBuckets() {
	entries, err := os.ReadDir(c.root)
	if err != nil {
		return
	}
	for _, entry := range entries {
		if entry.IsDir() && len(entry.Name()) == 2 && !strings.HasPrefix(entry.Name(), ".") {
			// Non-empty buckets stay.
			_ = os.Remove(filepath.Join(c.root, entry.Name()))
		}
	}
}
