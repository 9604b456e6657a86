// Package main hosts the betamode entrypoint and command graph.
//
// Invoked by a browser with the extension origin as its argument, the root
// command runs the native messaging host over stdin and stdout. Subcommands
// cover configuration scaffolding, cache maintenance, manifest generation for
// browser registration, and a one-shot detector run for diagnosing setup.
//
// Keep this package lean: new behavior belongs in the internal packages and is
// surfaced here through commands or flags.
package main
