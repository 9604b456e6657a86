// Package artifactcache stores censored image artifacts on disk.
//
// Artifacts are keyed by the BLAKE3 digest of the job id and fetch source,
// and stored under a two-level fan-out directory
// (<root>/<first two hex chars>/<digest>). The existence of that path is the
// only cache-hit signal: entries never expire and are never invalidated
// implicitly. Writes go through a temp file and a rename so a reader never
// observes a partial artifact.
//
// An optional SQLite index records size, region count and hit times for each
// artifact. The native host only appends to it; the `cache` CLI commands use it
// for stats and size-bounded pruning. A lock file coordinates the two: running
// hosts hold it shared, prune and clear take it exclusively.
package artifactcache
