package protocol_test

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"betamode/internal/logging"
	"betamode/internal/protocol"
	"betamode/internal/services"
)

func frame(body string) []byte {
	buf := make([]byte, 4+len(body))
	binary.NativeEndian.PutUint32(buf[:4], uint32(len(body)))
	copy(buf[4:], body)
	return buf
}

func TestReaderDecodesMessages(t *testing.T) {
	var input bytes.Buffer
	input.Write(frame(`{"type":0,"id":7,"url":"https://example.com/a.png"}`))
	input.Write(frame(`{"type":"cancel","id":"abc"}`))
	input.Write(frame(`{"type":2}`))
	input.Write(frame(`{"type":3,"user_agent":"UA/1","extra":true}`))
	input.Write(frame(`{"type":9}`))

	reader := protocol.NewReader(&input, 0)

	msg, err := reader.Read()
	if err != nil {
		t.Fatalf("read enqueue: %v", err)
	}
	if msg.Type != protocol.TypeEnqueue || msg.ID.String() != "7" || !msg.ID.IsNumeric() || msg.URL != "https://example.com/a.png" {
		t.Fatalf("unexpected enqueue: %+v", msg)
	}

	msg, err = reader.Read()
	if err != nil {
		t.Fatalf("read cancel: %v", err)
	}
	if msg.Type != protocol.TypeCancel || msg.ID.String() != "abc" || msg.ID.IsNumeric() {
		t.Fatalf("unexpected cancel: %+v", msg)
	}

	msg, err = reader.Read()
	if err != nil || msg.Type != protocol.TypeStatus {
		t.Fatalf("unexpected status: %+v err=%v", msg, err)
	}

	msg, err = reader.Read()
	if err != nil {
		t.Fatalf("read configure: %v", err)
	}
	if msg.Type != protocol.TypeConfigure || msg.UserAgent == nil || *msg.UserAgent != "UA/1" {
		t.Fatalf("unexpected configure: %+v", msg)
	}

	msg, err = reader.Read()
	if err != nil {
		t.Fatalf("read unknown: %v", err)
	}
	if msg.Type != protocol.TypeUnknown || msg.Tag != "9" {
		t.Fatalf("unexpected unknown: %+v", msg)
	}

	if _, err := reader.Read(); !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF, got %v", err)
	}
}

func TestReaderEmptyInputIsEOF(t *testing.T) {
	_, err := protocol.NewReader(bytes.NewReader(nil), 0).Read()
	if err != io.EOF {
		t.Fatalf("expected io.EOF, got %v", err)
	}
}

func TestReaderProtocolErrors(t *testing.T) {
	oversized := make([]byte, 4)
	binary.NativeEndian.PutUint32(oversized, 1024)

	tests := []struct {
		name  string
		input []byte
	}{
		{"truncated header", []byte{0x05, 0x00}},
		{"truncated body", frame(`{"type":2}`)[:8]},
		{"oversized", oversized},
		{"not json", frame(`hello`)},
		{"json array", frame(`[1,2]`)},
		{"empty body", frame(``)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := protocol.NewReader(bytes.NewReader(tt.input), 512).Read()
			if !errors.Is(err, services.ErrProtocol) {
				t.Fatalf("expected protocol error, got %v", err)
			}
			if !services.IsFatal(err) {
				t.Fatal("expected fatal classification")
			}
		})
	}
}

func TestReaderFieldTypeMismatchIsNotFatal(t *testing.T) {
	_, err := protocol.NewReader(bytes.NewReader(frame(`{"type":0,"id":{"x":1}}`)), 0).Read()
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrValidation) || services.IsFatal(err) {
		t.Fatalf("expected non-fatal validation error, got %v", err)
	}
}

func TestWriterFramesPayload(t *testing.T) {
	var out bytes.Buffer
	writer := protocol.NewWriter(&out, logging.NewNop())

	if err := writer.Write(protocol.NewResult(protocol.NumberID(5), "data:image/png;base64,AAAA")); err != nil {
		t.Fatalf("Write returned error: %v", err)
	}

	raw := out.Bytes()
	length := binary.NativeEndian.Uint32(raw[:4])
	if int(length) != len(raw)-4 {
		t.Fatalf("prefix %d does not match payload %d", length, len(raw)-4)
	}
	want := `{"type":"result","id":5,"data":"data:image/png;base64,AAAA"}`
	if string(raw[4:]) != want {
		t.Fatalf("unexpected payload:\n got %s\nwant %s", raw[4:], want)
	}
}

func TestWriterEmitsFramesOverBrowserLimit(t *testing.T) {
	var out bytes.Buffer
	writer := protocol.NewWriter(&out, logging.NewNop())

	data := "data:image/png;base64," + strings.Repeat("A", protocol.BrowserOutboundLimit)
	if err := writer.Write(protocol.NewResult(protocol.StringID("big"), data)); err != nil {
		t.Fatalf("Write returned error: %v", err)
	}
	raw := out.Bytes()
	length := binary.NativeEndian.Uint32(raw[:4])
	if int(length) != len(raw)-4 || int(length) <= protocol.BrowserOutboundLimit {
		t.Fatalf("expected an intact oversized frame, prefix %d payload %d", length, len(raw)-4)
	}
}

func TestWriterRoundTripsThroughReader(t *testing.T) {
	var buf bytes.Buffer
	writer := protocol.NewWriter(&buf, logging.NewNop())
	if err := writer.Write(map[string]any{"type": 1, "id": "x"}); err != nil {
		t.Fatalf("Write returned error: %v", err)
	}
	msg, err := protocol.NewReader(&buf, 0).Read()
	if err != nil {
		t.Fatalf("Read returned error: %v", err)
	}
	if msg.Type != protocol.TypeCancel || msg.ID != protocol.StringID("x") {
		t.Fatalf("unexpected message: %+v", msg)
	}
}

// chunkedWriter records each Write call separately.
type chunkedWriter struct {
	mu     sync.Mutex
	writes [][]byte
}

func (w *chunkedWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.writes = append(w.writes, append([]byte(nil), p...))
	return len(p), nil
}

func TestWriterConcurrentFramesDoNotInterleave(t *testing.T) {
	sink := &chunkedWriter{}
	writer := protocol.NewWriter(sink, logging.NewNop())

	const writers = 16
	var wg sync.WaitGroup
	for i := range writers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			payload := strings.Repeat("x", 1000+i)
			if err := writer.Write(protocol.NewResult(protocol.NumberID(int64(i)), payload)); err != nil {
				t.Errorf("Write returned error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if len(sink.writes) != writers {
		t.Fatalf("expected %d single-call frames, got %d writes", writers, len(sink.writes))
	}
	var joined bytes.Buffer
	for _, w := range sink.writes {
		joined.Write(w)
	}
	seen := make(map[string]bool)
	for range writers {
		var header [4]byte
		if _, err := io.ReadFull(&joined, header[:]); err != nil {
			t.Fatalf("read header: %v", err)
		}
		body := make([]byte, binary.NativeEndian.Uint32(header[:]))
		if _, err := io.ReadFull(&joined, body); err != nil {
			t.Fatalf("read body: %v", err)
		}
		var result struct {
			ID   json.Number `json:"id"`
			Data string      `json:"data"`
		}
		if err := json.Unmarshal(body, &result); err != nil {
			t.Fatalf("frame is not valid JSON: %v", err)
		}
		seen[result.ID.String()] = true
	}
	if len(seen) != writers {
		t.Fatalf("expected %d distinct frames, got %d", writers, len(seen))
	}
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("broken pipe") }

func TestWriterErrorIsFatal(t *testing.T) {
	err := protocol.NewWriter(failingWriter{}, nil).Write(protocol.NewStatus(protocol.StageStatus{}, protocol.StageStatus{}, nil))
	if !services.IsFatal(err) {
		t.Fatalf("expected fatal write error, got %v", err)
	}
}
