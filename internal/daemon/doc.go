// Package daemon runs the native host control loop.
//
// A Daemon owns the lifecycle of one host process: it takes the shared cache
// lock, starts the workflow stages, and then reads framed requests from the
// extension one at a time, dispatching enqueue, cancel, status and configure
// messages. A clean end of input or a cancelled context ends the loop
// normally; a framing violation ends it with an error.
//
// Per-job work lives in the workflow package. Keep this package focused on
// request dispatch and lifecycle.
package daemon
