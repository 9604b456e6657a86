// Package queue holds the in-memory job store shared by the control loop and
// the two pipeline stages.
//
// The Store keeps one FIFO queue of fetch jobs and one of censor jobs plus an
// append-only list of failure records. Each queue has its own wake channel so
// a stage blocks in Pop without polling and the control loop can cancel a job
// by removing it from the middle of either queue.
//
// Nothing is persisted: the queues live exactly as long as the host process.
// Ids are not deduplicated; the same id enqueued twice is processed twice.
package queue
