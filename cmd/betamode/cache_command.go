package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"betamode/internal/artifactcache"
	"betamode/internal/config"
)

func newCacheCommand(ctx *commandContext) *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and manage the censored artifact cache",
	}

	cacheCmd.AddCommand(newCacheStatsCommand(ctx))
	cacheCmd.AddCommand(newCachePruneCommand(ctx))
	cacheCmd.AddCommand(newCacheClearCommand(ctx))

	return cacheCmd
}

// openCache returns the cache with its index when enabled. The returned
// closer releases the index.
func openCache(cmd *cobra.Command, cfg *config.Config) (*artifactcache.Cache, func(), error) {
	if !cfg.Cache.IndexEnabled {
		return artifactcache.New(cfg.Paths.CacheDir, nil, nil), func() {}, nil
	}
	index, err := artifactcache.OpenIndex(cmd.Context(), cfg.CacheIndexPath())
	if err != nil {
		return nil, nil, fmt.Errorf("open artifact index: %w", err)
	}
	return artifactcache.New(cfg.Paths.CacheDir, index, nil), func() { _ = index.Close() }, nil
}

// withExclusiveLock runs fn while holding the cache lock exclusively.
func withExclusiveLock(cfg *config.Config, fn func() error) error {
	lock := artifactcache.NewLock(cfg.CacheLockPath())
	if err := lock.Exclusive(); err != nil {
		if errors.Is(err, artifactcache.ErrCacheBusy) {
			return fmt.Errorf("%w; close the browser (or disable the extension) and retry", err)
		}
		return err
	}
	defer lock.Unlock()
	return fn()
}

func newCacheStatsCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	var recent int

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show cache usage",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			cache, closeCache, err := openCache(cmd, cfg)
			if err != nil {
				return err
			}
			defer closeCache()

			stats, err := cache.Stats(cmd.Context(), cfg.CacheMaxBytes(), recent)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, stats)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Cache:    %s\n", stats.Root)
			fmt.Fprintf(out, "Entries:  %d (%d censored, %d unchanged)\n", stats.Entries, stats.Censored, stats.Verbatim)
			if stats.MaxBytes > 0 {
				fmt.Fprintf(out, "Size:     %s / %s\n", humanBytes(stats.TotalBytes), humanBytes(stats.MaxBytes))
			} else {
				fmt.Fprintf(out, "Size:     %s (unbounded)\n", humanBytes(stats.TotalBytes))
			}
			fmt.Fprintf(out, "Indexed:  %s\n", yesNo(stats.Indexed))
			printCacheEntries(out, stats.Recent)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	cmd.Flags().IntVar(&recent, "recent", 10, "Number of most recently used artifacts to list")
	return cmd
}

func printCacheEntries(out io.Writer, entries []artifactcache.EntrySummary) {
	if len(entries) == 0 {
		fmt.Fprintln(out, "Recent artifacts: none")
		return
	}
	const stampLayout = "2006-01-02 15:04"
	rows := make([][]string, 0, len(entries))
	for _, entry := range entries {
		id := entry.JobID
		if id == "" {
			id = "(unindexed)"
		}
		lastHit := "unknown"
		if !entry.LastHitAt.IsZero() {
			lastHit = entry.LastHitAt.Local().Format(stampLayout)
		}
		rows = append(rows, []string{
			id,
			humanBytes(entry.SizeBytes),
			yesNo(entry.Censored),
			fmt.Sprintf("%d", entry.Regions),
			lastHit,
		})
	}
	fmt.Fprintln(out, "Recent artifacts:")
	fmt.Fprintln(out, renderTable(
		[]string{"Job", "Size", "Censored", "Regions", "Last Hit"},
		rows,
		[]columnAlignment{alignLeft, alignRight, alignLeft, alignRight, alignLeft},
	))
}

func newCachePruneCommand(ctx *commandContext) *cobra.Command {
	var maxMiB int

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Remove least recently used artifacts until the cache fits its budget",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			budget := cfg.CacheMaxBytes()
			if cmd.Flags().Changed("max-mib") {
				budget = int64(maxMiB) * 1024 * 1024
			}
			if budget <= 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No cache budget configured; nothing to prune")
				return nil
			}
			return withExclusiveLock(cfg, func() error {
				cache, closeCache, err := openCache(cmd, cfg)
				if err != nil {
					return err
				}
				defer closeCache()
				result, err := cache.Prune(cmd.Context(), budget)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Pruned %d artifact(s), freed %s, %s remaining\n",
					result.Removed, humanBytes(result.FreedBytes), humanBytes(result.Remaining))
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&maxMiB, "max-mib", 0, "Override cache.max_mib for this run")
	return cmd
}

func newCacheClearCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove every cached artifact",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return withExclusiveLock(cfg, func() error {
				cache, closeCache, err := openCache(cmd, cfg)
				if err != nil {
					return err
				}
				defer closeCache()
				result, err := cache.Clear(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d artifact(s), freed %s\n", result.Removed, humanBytes(result.FreedBytes))
				return nil
			})
		},
	}
}
