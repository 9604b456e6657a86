package queue

import (
	"context"
	"strings"
	"sync"

	"betamode/internal/protocol"
)

// Store holds the pending fetch and censor jobs and the failure list.
type Store struct {
	fetch  *FIFO[FetchJob]
	censor *FIFO[CensorJob]

	mu       sync.Mutex
	failures []protocol.FailureRecord
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		fetch:  NewFIFO[FetchJob](),
		censor: NewFIFO[CensorJob](),
	}
}

// EnqueueFetch queues a fetch job and wakes the fetch stage. Jobs with an
// empty id or source are ignored; the return value reports acceptance.
func (s *Store) EnqueueFetch(id protocol.JobID, source string) bool {
	if id.IsZero() || strings.TrimSpace(source) == "" {
		return false
	}
	s.fetch.Push(FetchJob{ID: id, Source: source})
	return true
}

// EnqueueCensor queues a censor job and wakes the censor stage. Jobs with an
// empty id, an empty artifact key or an empty payload are ignored.
func (s *Store) EnqueueCensor(id protocol.JobID, key string, payload Payload) bool {
	if id.IsZero() || key == "" || payload.Empty() {
		return false
	}
	s.censor.Push(CensorJob{ID: id, Key: key, Payload: payload})
	return true
}

// PopFetch blocks until a fetch job is available or ctx is done.
func (s *Store) PopFetch(ctx context.Context) (FetchJob, error) {
	return s.fetch.Pop(ctx)
}

// PopCensor blocks until a censor job is available or ctx is done.
func (s *Store) PopCensor(ctx context.Context) (CensorJob, error) {
	return s.censor.Pop(ctx)
}

// TryPopFetch takes the oldest fetch job without blocking.
func (s *Store) TryPopFetch() (FetchJob, bool) {
	return s.fetch.TryPop()
}

// Cancel removes every queued entry for id from both queues and returns the
// number removed. Jobs already taken by a stage are unaffected. Matching uses
// the id's JSON form: cancelling "1" leaves a queued 1 in place, even though
// both forms share cached artifacts for the same source.
func (s *Store) Cancel(id protocol.JobID) int {
	if id.IsZero() {
		return 0
	}
	removed := s.fetch.RemoveFunc(func(job FetchJob) bool { return job.ID == id })
	removed += s.censor.RemoveFunc(func(job CensorJob) bool { return job.ID == id })
	return removed
}

// RecordFailure appends a failure record. Records are never removed.
func (s *Store) RecordFailure(id protocol.JobID, stage, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, protocol.FailureRecord{ID: id, Stage: stage, Reason: reason})
}

// Snapshot returns queue lengths and a copy of the failure list.
func (s *Store) Snapshot() Snapshot {
	snap := Snapshot{
		FetchQueue:  s.fetch.Len(),
		CensorQueue: s.censor.Len(),
	}
	s.mu.Lock()
	snap.Failures = make([]protocol.FailureRecord, len(s.failures))
	copy(snap.Failures, s.failures)
	s.mu.Unlock()
	return snap
}
