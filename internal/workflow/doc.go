// Package workflow runs the two pipeline stages of the native host.
//
// The fetch stage pops fetch jobs, skips the network when the artifact is
// already cached, and hands fetched bytes to the censor queue. The censor
// stage pops censor jobs, serves cached artifacts directly, and otherwise runs
// the detector, blackens the configured labels, encodes and caches the
// artifact, then writes a result message. Each stage runs in its own
// goroutine, handles one job at a time in FIFO order, and records a failure
// instead of a result when a job cannot complete. A failing or panicking job
// never stops its stage.
//
// Collaborators (Fetcher, Detector, Encoder, Cache, ResultWriter) are
// interfaces so tests can substitute them.
package workflow
