package workflow

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"betamode/internal/logging"
	"betamode/internal/protocol"
	"betamode/internal/services"
	"betamode/internal/stage"
)

type job interface {
	JobID() protocol.JobID
}

// runStage pops jobs until ctx is done. Each job is isolated: errors and
// panics become failure records and the loop continues.
func runStage[J job](ctx context.Context, m *Manager, handler stage.Handler[J], pop func(context.Context) (J, error), alive *atomic.Bool) {
	name := handler.Name()
	logger := logging.NewComponentLogger(m.logger, name)
	alive.Store(true)
	defer alive.Store(false)

	logger.Debug("stage started", logging.String(logging.FieldEventType, "stage_start"))
	for {
		item, err := pop(ctx)
		if err != nil {
			if ctx.Err() == nil {
				logger.Error("stage pop failed", logging.Error(err), logging.String(logging.FieldEventType, "stage_pop_failed"))
			}
			logger.Debug("stage stopped", logging.String(logging.FieldEventType, "stage_stop"))
			return
		}

		id := item.JobID()
		jobCtx := services.WithJobID(ctx, id.String())
		jobCtx = services.WithStage(jobCtx, name)
		jobCtx = services.WithRequestID(jobCtx, uuid.NewString())
		jobLogger := logging.WithContext(jobCtx, logger)

		start := time.Now()
		err = stage.Run(jobCtx, jobLogger, name, func(ctx context.Context) error {
			return handler.Handle(ctx, item)
		})
		if err == nil {
			jobLogger.Debug("job stage complete",
				logging.Duration("elapsed", time.Since(start)),
				logging.String(logging.FieldEventType, "job_stage_complete"),
			)
			continue
		}
		if ctx.Err() != nil {
			jobLogger.Debug("job abandoned at shutdown", logging.String(logging.FieldEventType, "job_abandoned"))
			return
		}

		stageLabel := services.FailureStage(err, name)
		reason := services.Reason(err)
		m.store.RecordFailure(id, stageLabel, reason)
		logging.WarnWithContext(jobLogger, "job failed", "job_failed",
			logging.String("failed_stage", stageLabel),
			logging.String("reason", reason),
			logging.Duration("elapsed", time.Since(start)),
			logging.String(logging.FieldErrorHint, hintFor(err)),
			logging.String(logging.FieldImpact, "image stays hidden in the browser"),
		)
	}
}

func hintFor(err error) string {
	switch {
	case errors.Is(err, services.ErrTimeout):
		return "raise fetch.timeout_seconds or detector.timeout_seconds"
	case errors.Is(err, services.ErrConfiguration):
		return "set detector.command (see 'betamode config show')"
	case errors.Is(err, services.ErrFetch):
		return "check that the image URL is reachable"
	case errors.Is(err, services.ErrDetect):
		return "run 'betamode detect <image>' to diagnose the detector"
	case errors.Is(err, services.ErrCache):
		return "check cache_dir permissions and free space"
	default:
		return "check logs for details"
	}
}
