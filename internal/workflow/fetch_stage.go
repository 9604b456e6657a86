package workflow

import (
	"context"

	"betamode/internal/artifactcache"
	"betamode/internal/queue"
	"betamode/internal/services"
	"betamode/internal/stage"
)

type fetchStage struct {
	store   *queue.Store
	fetcher Fetcher
	cache   Cache
}

func (s *fetchStage) Name() string { return queue.StageFetch }

// Handle obtains the source bytes for job and queues the censor job. A cached
// artifact short-circuits the fetch with a cache-hit marker.
func (s *fetchStage) Handle(ctx context.Context, job queue.FetchJob) error {
	key := artifactcache.Key(job.ID, job.Source)
	if s.cache.Exists(key) {
		s.store.EnqueueCensor(job.ID, key, queue.Payload{CacheHit: true})
		return nil
	}
	payload, err := s.fetcher.Fetch(ctx, job.Source)
	if err != nil {
		return err
	}
	if !s.store.EnqueueCensor(job.ID, key, payload) {
		return services.Wrap(services.ErrFetch, queue.StageFetch, "hand off", "fetched payload is empty", nil)
	}
	return nil
}

func (s *fetchStage) HealthCheck(context.Context) stage.Health {
	if s.fetcher == nil {
		return stage.Unhealthy(queue.StageFetch, "fetcher not configured")
	}
	return stage.Healthy(queue.StageFetch)
}
