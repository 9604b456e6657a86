package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// MessageType identifies an inbound request.
type MessageType int

const (
	TypeEnqueue   MessageType = 0
	TypeCancel    MessageType = 1
	TypeStatus    MessageType = 2
	TypeConfigure MessageType = 3
	// TypeUnknown marks a tag the host does not understand. Such messages are
	// logged and ignored.
	TypeUnknown MessageType = -1
)

func (t MessageType) String() string {
	switch t {
	case TypeEnqueue:
		return "enqueue"
	case TypeCancel:
		return "cancel"
	case TypeStatus:
		return "status"
	case TypeConfigure:
		return "configure"
	default:
		return "unknown"
	}
}

// parseMessageType accepts the numeric tags and their names.
func parseMessageType(raw json.RawMessage) MessageType {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return TypeUnknown
	}
	var n int
	if err := json.Unmarshal(raw, &n); err == nil {
		switch t := MessageType(n); t {
		case TypeEnqueue, TypeCancel, TypeStatus, TypeConfigure:
			return t
		}
		return TypeUnknown
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "enqueue", "0":
			return TypeEnqueue
		case "cancel", "1":
			return TypeCancel
		case "status", "2":
			return TypeStatus
		case "configure", "3":
			return TypeConfigure
		}
	}
	return TypeUnknown
}

// Inbound is a request from the extension.
//
//	{"type":0,"id":..,"url":".."}    enqueue
//	{"type":1,"id":..}               cancel
//	{"type":2}                       status
//	{"type":3,"user_agent":".."}     configure
type Inbound struct {
	Type MessageType
	// Tag is the raw type field, kept for logging unknown messages.
	Tag       string
	ID        JobID
	URL       string
	UserAgent *string
}

type inboundWire struct {
	Type      json.RawMessage `json:"type"`
	ID        JobID           `json:"id"`
	URL       string          `json:"url"`
	UserAgent *string         `json:"user_agent"`
}

func (m *Inbound) UnmarshalJSON(data []byte) error {
	var wire inboundWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	*m = Inbound{
		Type:      parseMessageType(wire.Type),
		Tag:       string(bytes.TrimSpace(wire.Type)),
		ID:        wire.ID,
		URL:       wire.URL,
		UserAgent: wire.UserAgent,
	}
	return nil
}

// Result reports a completed job. Data is a data: URI of the cached artifact.
type Result struct {
	Type string  `json:"type"`
	ID   JobID   `json:"id"`
	Data *string `json:"data"`
}

// NewResult builds a result message carrying the data URI.
func NewResult(id JobID, dataURI string) Result {
	return Result{Type: "result", ID: id, Data: &dataURI}
}

// StageStatus describes one pipeline stage in a status reply.
type StageStatus struct {
	Queue int  `json:"queue"`
	Alive bool `json:"alive"`
}

// FailureRecord describes a job that will not produce a result.
type FailureRecord struct {
	ID     JobID  `json:"id"`
	Stage  string `json:"stage"`
	Reason string `json:"reason"`
}

// Status is the reply to a status request.
type Status struct {
	Type   string          `json:"type"`
	Fetch  StageStatus     `json:"fetch"`
	Censor StageStatus     `json:"censor"`
	Failed []FailureRecord `json:"failed"`
}

// NewStatus builds a status message. Failed is always rendered as an array.
func NewStatus(fetch, censor StageStatus, failed []FailureRecord) Status {
	if failed == nil {
		failed = []FailureRecord{}
	}
	return Status{Type: "status", Fetch: fetch, Censor: censor, Failed: failed}
}

func (m Inbound) String() string {
	switch m.Type {
	case TypeEnqueue:
		return fmt.Sprintf("enqueue id=%s", m.ID)
	case TypeCancel:
		return fmt.Sprintf("cancel id=%s", m.ID)
	case TypeUnknown:
		return fmt.Sprintf("unknown type=%s", m.Tag)
	default:
		return m.Type.String()
	}
}
