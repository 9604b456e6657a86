package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"betamode/internal/logging"
	"betamode/internal/protocol"
	"betamode/internal/queue"
)

// Workflow is the stage runtime driven by the control loop.
type Workflow interface {
	Start(ctx context.Context) error
	Stop()
	Status() protocol.Status
	SetUserAgent(userAgent string)
}

// MessageWriter emits outbound frames.
type MessageWriter interface {
	Write(v any) error
}

// CacheLock is held in shared mode while the host runs.
type CacheLock interface {
	Shared(ctx context.Context) error
	Unlock() error
	Path() string
}

// Daemon coordinates the control loop and the workflow stages.
type Daemon struct {
	reader   *protocol.Reader
	writer   MessageWriter
	store    *queue.Store
	workflow Workflow
	lock     CacheLock
	logger   *slog.Logger

	running atomic.Bool
}

// New constructs a daemon. lock may be nil.
func New(reader *protocol.Reader, writer MessageWriter, store *queue.Store, wf Workflow, lock CacheLock, logger *slog.Logger) (*Daemon, error) {
	if reader == nil || writer == nil || store == nil || wf == nil {
		return nil, errors.New("daemon requires reader, writer, store, and workflow")
	}
	return &Daemon{
		reader:   reader,
		writer:   writer,
		store:    store,
		workflow: wf,
		lock:     lock,
		logger:   logging.NewComponentLogger(logger, "daemon"),
	}, nil
}

// Start acquires the cache lock and launches the workflow stages.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}
	if d.lock != nil {
		if err := d.lock.Shared(ctx); err != nil {
			return err
		}
	}
	if err := d.workflow.Start(ctx); err != nil {
		d.releaseLock()
		return fmt.Errorf("start workflow: %w", err)
	}
	d.running.Store(true)
	d.logger.Info("native host started", logging.String(logging.FieldEventType, "host_started"))
	return nil
}

// Stop cancels the workflow stages and releases the cache lock. Queued and
// in-flight jobs are abandoned.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	d.workflow.Stop()
	d.releaseLock()
	d.running.Store(false)
	d.logger.Info("native host stopped", logging.String(logging.FieldEventType, "host_stopped"))
}

// Running reports whether Start has succeeded without a matching Stop.
func (d *Daemon) Running() bool {
	return d.running.Load()
}

func (d *Daemon) releaseLock() {
	if d.lock == nil {
		return
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release cache lock",
			logging.String("lock", d.lock.Path()),
			logging.Error(err),
		)
	}
}
