package protocol

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sync"

	"betamode/internal/logging"
	"betamode/internal/services"
)

const (
	headerLength = 4

	// DefaultMaxInbound bounds inbound frames unless configured otherwise.
	DefaultMaxInbound = 64 << 20

	// BrowserOutboundLimit is the largest host-to-extension message browsers
	// deliver. Larger frames are still written.
	BrowserOutboundLimit = 1 << 20
)

// Reader decodes inbound frames.
type Reader struct {
	r        io.Reader
	maxBytes int64
}

// NewReader returns a Reader over r. A non-positive maxBytes selects
// DefaultMaxInbound.
func NewReader(r io.Reader, maxBytes int64) *Reader {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxInbound
	}
	return &Reader{r: r, maxBytes: maxBytes}
}

// ReadFrame returns the next frame body. It returns io.EOF when the input
// ends cleanly between frames.
func (r *Reader) ReadFrame() ([]byte, error) {
	var header [headerLength]byte
	n, err := io.ReadFull(r.r, header[:])
	if err != nil {
		if errors.Is(err, io.EOF) && n == 0 {
			return nil, io.EOF
		}
		return nil, services.Wrap(services.ErrProtocol, "protocol", "read header", "stream ended inside frame header", err)
	}
	length := binary.NativeEndian.Uint32(header[:])
	if int64(length) > r.maxBytes {
		return nil, services.Wrap(services.ErrProtocol, "protocol", "read header",
			fmt.Sprintf("frame length %d exceeds maximum %d", length, r.maxBytes), nil)
	}
	body := make([]byte, length)
	if _, err := io.ReadFull(r.r, body); err != nil {
		return nil, services.Wrap(services.ErrProtocol, "protocol", "read body",
			fmt.Sprintf("stream ended inside %d byte frame", length), err)
	}
	return body, nil
}

// Read returns the next inbound message. A body that is a JSON object with
// fields of the wrong type is reported with services.ErrValidation so the
// caller can skip it; every other decoding failure is fatal.
func (r *Reader) Read() (Inbound, error) {
	body, err := r.ReadFrame()
	if err != nil {
		return Inbound{}, err
	}
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' || !json.Valid(trimmed) {
		return Inbound{}, services.Wrap(services.ErrProtocol, "protocol", "decode", "frame body is not a JSON object", nil)
	}
	var msg Inbound
	if err := json.Unmarshal(trimmed, &msg); err != nil {
		return Inbound{}, services.Wrap(services.ErrValidation, "protocol", "decode", "malformed message fields", err)
	}
	return msg, nil
}

// Writer encodes outbound frames. It is safe for concurrent use.
type Writer struct {
	mu     sync.Mutex
	w      io.Writer
	logger *slog.Logger
}

// NewWriter returns a Writer over w.
func NewWriter(w io.Writer, logger *slog.Logger) *Writer {
	return &Writer{w: w, logger: logging.NewComponentLogger(logger, "protocol")}
}

// Write serializes v as JSON and emits prefix and payload in a single write.
func (w *Writer) Write(v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return services.Wrap(services.ErrValidation, "protocol", "encode", "marshal outbound message", err)
	}
	return w.WriteFrame(payload)
}

// WriteFrame emits an already-encoded JSON payload.
func (w *Writer) WriteFrame(payload []byte) error {
	if uint64(len(payload)) > math.MaxUint32 {
		return services.Wrap(services.ErrProtocol, "protocol", "write",
			fmt.Sprintf("payload of %d bytes does not fit the length prefix", len(payload)), nil)
	}
	if len(payload) > BrowserOutboundLimit {
		logging.WarnWithContext(w.logger, "outbound frame exceeds browser message limit", "frame_oversize",
			logging.Int("bytes", len(payload)),
			logging.Int("limit", BrowserOutboundLimit),
			logging.String(logging.FieldErrorHint, "lower encoder.max_dimension or encoder.quality"),
			logging.String(logging.FieldImpact, "the browser may discard this message"),
		)
	}

	frame := make([]byte, headerLength+len(payload))
	binary.NativeEndian.PutUint32(frame[:headerLength], uint32(len(payload)))
	copy(frame[headerLength:], payload)

	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := w.w.Write(frame); err != nil {
		return services.Wrap(services.ErrProtocol, "protocol", "write", "emit frame", err)
	}
	return nil
}
