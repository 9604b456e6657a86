package workflow

import (
	"context"
	"log/slog"

	"betamode/internal/artifactcache"
	"betamode/internal/detect"
	"betamode/internal/logging"
	"betamode/internal/protocol"
	"betamode/internal/queue"
	"betamode/internal/services"
	"betamode/internal/stage"
)

type censorStage struct {
	deps     Deps
	settings Settings
	logger   *slog.Logger
}

func (s *censorStage) Name() string { return queue.StageCensor }

// Handle produces the artifact for job and writes the result message.
func (s *censorStage) Handle(ctx context.Context, job queue.CensorJob) error {
	if s.deps.Cache.Exists(job.Key) {
		return s.emit(ctx, job)
	}
	if job.Payload.CacheHit {
		return services.Wrap(services.ErrCache, queue.StageCensor, "cache hit", "cached artifact disappeared before censoring", nil)
	}
	if len(job.Payload.Bytes) == 0 {
		return services.Wrap(services.ErrValidation, queue.StageCensor, "censor", "missing payload", nil)
	}
	if s.deps.Detector == nil {
		return services.Wrap(services.ErrConfiguration, queue.StageCensor, "detect", "detector not configured", nil)
	}

	detections, err := s.deps.Detector.Detect(ctx, job.Payload.Bytes)
	if err != nil {
		return err
	}
	kept := detect.Filter(detections, s.settings.CensoredLabels, s.settings.MinScore)

	logger := logging.WithContext(ctx, s.logger)
	if len(kept) == 0 {
		logger.Debug("no censored regions; caching original bytes",
			logging.Int("detections", len(detections)),
			logging.String(logging.FieldEventType, "censor_passthrough"),
		)
		if err := s.deps.Cache.Write(job.Key, job.Payload.Bytes, artifactcache.Meta{JobID: job.ID}); err != nil {
			return err
		}
		return s.emit(ctx, job)
	}

	img, err := s.deps.Encoder.Decode(job.Payload.Bytes)
	if err != nil {
		return err
	}
	img = s.deps.Encoder.Blacken(img, detect.Boxes(kept))
	img = s.deps.Encoder.Downscale(img, s.settings.MaxDimension)
	encoded, err := s.deps.Encoder.Encode(img, s.settings.Quality)
	if err != nil {
		return err
	}
	if err := s.deps.Cache.Write(job.Key, encoded, artifactcache.Meta{JobID: job.ID, Censored: true, Regions: len(kept)}); err != nil {
		return err
	}
	logger.Debug("censored artifact cached",
		logging.Int("regions", len(kept)),
		logging.Int("bytes", len(encoded)),
		logging.String(logging.FieldEventType, "censor_complete"),
	)
	return s.emit(ctx, job)
}

// emit reads the cached artifact and writes the result message.
func (s *censorStage) emit(ctx context.Context, job queue.CensorJob) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := s.deps.Cache.Read(job.Key)
	if err != nil {
		return err
	}
	if err := s.deps.Writer.Write(protocol.NewResult(job.ID, artifactcache.DataURI(data))); err != nil {
		return err
	}
	return nil
}

func (s *censorStage) HealthCheck(context.Context) stage.Health {
	if s.deps.Detector == nil {
		return stage.Unhealthy(queue.StageCensor, "detector not configured; only cached images can be served")
	}
	return stage.Healthy(queue.StageCensor)
}
