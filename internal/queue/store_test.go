package queue_test

import (
	"context"
	"testing"
	"time"

	"betamode/internal/protocol"
	"betamode/internal/queue"
)

func TestEnqueueFetchIgnoresEmptyInput(t *testing.T) {
	store := queue.NewStore()
	if store.EnqueueFetch(protocol.JobID{}, "https://example.com/a.png") {
		t.Fatal("expected empty id to be ignored")
	}
	if store.EnqueueFetch(protocol.StringID("1"), "  ") {
		t.Fatal("expected empty source to be ignored")
	}
	if store.EnqueueCensor(protocol.StringID("1"), "k1", queue.Payload{}) {
		t.Fatal("expected empty payload to be ignored")
	}
	if store.EnqueueCensor(protocol.StringID("1"), "", queue.Payload{Bytes: []byte{1}}) {
		t.Fatal("expected empty artifact key to be ignored")
	}
	if snap := store.Snapshot(); snap.FetchQueue != 0 || snap.CensorQueue != 0 {
		t.Fatalf("expected empty store, got %+v", snap)
	}
}

func TestDuplicateIDsAreNotDeduplicated(t *testing.T) {
	store := queue.NewStore()
	id := protocol.NumberID(1)
	store.EnqueueFetch(id, "https://example.com/a.png")
	store.EnqueueFetch(id, "https://example.com/a.png")
	if got := store.Snapshot().FetchQueue; got != 2 {
		t.Fatalf("expected 2 fetch jobs, got %d", got)
	}
}

func TestCancelRemovesFromBothQueues(t *testing.T) {
	store := queue.NewStore()
	target := protocol.StringID("x")
	other := protocol.StringID("y")

	store.EnqueueFetch(target, "https://example.com/1.png")
	store.EnqueueFetch(other, "https://example.com/2.png")
	store.EnqueueCensor(target, "kx", queue.Payload{Bytes: []byte{1}})
	store.EnqueueCensor(target, "kx", queue.Payload{CacheHit: true})

	if removed := store.Cancel(target); removed != 3 {
		t.Fatalf("expected 3 removed, got %d", removed)
	}
	snap := store.Snapshot()
	if snap.FetchQueue != 1 || snap.CensorQueue != 0 {
		t.Fatalf("unexpected snapshot after cancel: %+v", snap)
	}

	if removed := store.Cancel(target); removed != 0 {
		t.Fatalf("expected idempotent cancel, got %d", removed)
	}
	if removed := store.Cancel(protocol.StringID("unknown")); removed != 0 {
		t.Fatalf("expected unknown cancel to be a no-op, got %d", removed)
	}

	job, err := store.PopFetch(context.Background())
	if err != nil {
		t.Fatalf("PopFetch returned error: %v", err)
	}
	if job.ID != other {
		t.Fatalf("expected remaining job %v, got %v", other, job.ID)
	}
}

func TestCancelDistinguishesIDForms(t *testing.T) {
	store := queue.NewStore()
	store.EnqueueFetch(protocol.NumberID(2), "https://example.com/a.png")
	if removed := store.Cancel(protocol.StringID("2")); removed != 0 {
		t.Fatalf("expected string id not to match numeric id, removed %d", removed)
	}
}

func TestRecordFailureSnapshotIsCopy(t *testing.T) {
	store := queue.NewStore()
	store.RecordFailure(protocol.StringID("2"), queue.StageFetch, "404 Not Found")

	snap := store.Snapshot()
	if len(snap.Failures) != 1 {
		t.Fatalf("expected 1 failure, got %d", len(snap.Failures))
	}
	snap.Failures[0].Reason = "mutated"

	again := store.Snapshot()
	if again.Failures[0].Reason != "404 Not Found" {
		t.Fatalf("snapshot aliases store state: %+v", again.Failures[0])
	}
	if again.Failures[0].Stage != "fetch" {
		t.Fatalf("unexpected stage: %q", again.Failures[0].Stage)
	}
}

func TestPopCensorWakesOnEnqueue(t *testing.T) {
	store := queue.NewStore()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	result := make(chan queue.CensorJob, 1)
	go func() {
		job, err := store.PopCensor(ctx)
		if err != nil {
			t.Errorf("PopCensor returned error: %v", err)
			return
		}
		result <- job
	}()

	store.EnqueueCensor(protocol.StringID("c"), "kc", queue.Payload{CacheHit: true})
	select {
	case job := <-result:
		if !job.Payload.CacheHit || job.Key != "kc" {
			t.Fatalf("unexpected job: %+v", job)
		}
	case <-ctx.Done():
		t.Fatal("PopCensor did not wake")
	}
}
