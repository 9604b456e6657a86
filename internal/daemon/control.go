package daemon

import (
	"context"
	"errors"
	"io"

	"betamode/internal/logging"
	"betamode/internal/protocol"
	"betamode/internal/services"
)

type readResult struct {
	msg protocol.Inbound
	err error
}

// Run starts the daemon and processes requests until the input ends, ctx is
// cancelled, or a framing violation occurs. Only the last case returns an
// error.
func (d *Daemon) Run(ctx context.Context) error {
	if err := d.Start(ctx); err != nil {
		return err
	}
	defer d.Stop()

	done := make(chan struct{})
	defer close(done)
	results := make(chan readResult)
	go d.readLoop(results, done)

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("shutdown requested", logging.String(logging.FieldEventType, "host_shutdown"))
			return nil
		case res := <-results:
			if res.err != nil {
				if errors.Is(res.err, io.EOF) {
					d.logger.Info("extension closed the channel", logging.String(logging.FieldEventType, "channel_closed"))
					return nil
				}
				if errors.Is(res.err, services.ErrValidation) {
					logging.WarnWithContext(d.logger, "ignoring malformed message", "message_malformed",
						logging.Error(res.err),
						logging.String(logging.FieldImpact, "the request is dropped"),
					)
					continue
				}
				logging.ErrorWithContext(d.logger, "protocol violation", "protocol_violation",
					logging.Error(res.err),
					logging.String(logging.FieldImpact, "the host exits"),
				)
				return res.err
			}
			if err := d.dispatch(res.msg); err != nil {
				return err
			}
		}
	}
}

// readLoop reads until a terminal error. Validation errors are forwarded and
// reading continues.
func (d *Daemon) readLoop(out chan<- readResult, done <-chan struct{}) {
	for {
		msg, err := d.reader.Read()
		select {
		case out <- readResult{msg: msg, err: err}:
		case <-done:
			return
		}
		if err != nil && !errors.Is(err, services.ErrValidation) {
			return
		}
	}
}

// dispatch handles one request. It returns an error only when the outbound
// channel is broken.
func (d *Daemon) dispatch(msg protocol.Inbound) error {
	switch msg.Type {
	case protocol.TypeEnqueue:
		if msg.ID.IsZero() {
			logging.WarnWithContext(d.logger, "enqueue without id ignored", "enqueue_invalid",
				logging.String("url", truncateURL(msg.URL)),
				logging.String(logging.FieldImpact, "no result can be reported for this image"),
			)
			return nil
		}
		if !d.store.EnqueueFetch(msg.ID, msg.URL) {
			logging.WarnWithContext(d.logger, "enqueue without url ignored", "enqueue_invalid",
				logging.String(logging.FieldJobID, msg.ID.String()),
				logging.String(logging.FieldImpact, "no result or failure is reported for this image"),
			)
			return nil
		}
		d.logger.Debug("job enqueued",
			logging.String(logging.FieldJobID, msg.ID.String()),
			logging.String("url", truncateURL(msg.URL)),
			logging.String(logging.FieldEventType, "job_enqueued"),
		)
	case protocol.TypeCancel:
		removed := d.store.Cancel(msg.ID)
		d.logger.Debug("job cancelled",
			logging.String(logging.FieldJobID, msg.ID.String()),
			logging.Int("removed", removed),
			logging.String(logging.FieldEventType, "job_cancelled"),
		)
	case protocol.TypeStatus:
		if err := d.writer.Write(d.workflow.Status()); err != nil {
			if services.IsFatal(err) {
				return err
			}
			logging.WarnWithContext(d.logger, "status reply failed", "status_failed", logging.Error(err))
		}
	case protocol.TypeConfigure:
		if msg.UserAgent != nil {
			d.workflow.SetUserAgent(*msg.UserAgent)
			d.logger.Info("user agent configured",
				logging.String("user_agent", *msg.UserAgent),
				logging.String(logging.FieldEventType, "configure_user_agent"),
			)
		}
	default:
		logging.WarnWithContext(d.logger, "unknown message type ignored", "message_unknown",
			logging.String("type", msg.Tag),
		)
	}
	return nil
}

const maxLoggedURL = 160

// truncateURL keeps data: URIs from flooding the log.
func truncateURL(url string) string {
	if len(url) <= maxLoggedURL {
		return url
	}
	return url[:maxLoggedURL] + "..."
}
