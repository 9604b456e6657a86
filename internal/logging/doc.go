// Package logging assembles structured slog loggers and formatting helpers used
// across the native host.
//
// It owns the console and JSON handlers, centralizes level and output plumbing,
// and exposes context-aware helpers so stage code can tag log lines with job
// IDs, stage names, and correlation IDs. The package also provides a no-op
// logger for tests and wiring code that cannot fail.
//
// The process's stdout carries the framed host protocol, so "stdout" is never
// accepted as a log output; New rejects it rather than corrupting the channel.
package logging
