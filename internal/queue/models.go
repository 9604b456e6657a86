package queue

import "betamode/internal/protocol"

// Stage names used in failure records and logs.
const (
	StageFetch  = "fetch"
	StageCensor = "censor"
)

// FetchJob asks the fetch stage to obtain the bytes behind Source.
type FetchJob struct {
	ID     protocol.JobID
	Source string
}

// JobID returns the job identifier.
func (j FetchJob) JobID() protocol.JobID { return j.ID }

// Payload carries fetched image bytes. CacheHit marks a job whose artifact is
// already cached; Bytes is empty in that case.
type Payload struct {
	Bytes    []byte
	MIME     string
	CacheHit bool
}

// Empty reports whether the payload carries neither bytes nor a cache hit.
func (p Payload) Empty() bool {
	return !p.CacheHit && len(p.Bytes) == 0
}

// CensorJob asks the censor stage to produce the artifact for ID. Key names
// the artifact in the cache and is derived from the id and the fetch source.
type CensorJob struct {
	ID      protocol.JobID
	Key     string
	Payload Payload
}

// JobID returns the job identifier.
func (j CensorJob) JobID() protocol.JobID { return j.ID }

// Snapshot is a point-in-time view of the store.
type Snapshot struct {
	FetchQueue  int
	CensorQueue int
	Failures    []protocol.FailureRecord
}
