// Package services defines shared utilities consumed by the pipeline stages
// and the collaborators they call.
//
// Key responsibilities:
//   - Context helpers that stamp job IDs, stage names, and correlation
//     identifiers for logging.
//   - Structured error markers plus the Wrap helper so stage failures can be
//     classified (fetch, detect, encode, cache) and protocol errors can be
//     told apart from per-job errors.
//
// Use these helpers when wiring new collaborators so failure records and log
// lines keep the same shape across the pipeline.
package services
