package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// JobID is the caller-supplied job identifier. It remembers whether the
// caller sent a JSON string or a JSON number so replies echo the same form.
// The zero value is the empty id.
type JobID struct {
	value   string
	numeric bool
}

// StringID builds a JobID that serializes as a JSON string.
func StringID(value string) JobID {
	return JobID{value: value}
}

// NumberID builds a JobID that serializes as a JSON number.
func NumberID(value int64) JobID {
	return JobID{value: strconv.FormatInt(value, 10), numeric: true}
}

// IsZero reports whether the id is absent or empty.
func (id JobID) IsZero() bool {
	return id.value == ""
}

// IsNumeric reports whether the id was supplied as a JSON number.
func (id JobID) IsNumeric() bool {
	return id.numeric
}

// String returns the textual form of the id. String and numeric ids with the
// same text render identically.
func (id JobID) String() string {
	return id.value
}

func (id JobID) MarshalJSON() ([]byte, error) {
	if id.value == "" {
		return []byte(`""`), nil
	}
	if id.numeric {
		return []byte(id.value), nil
	}
	return json.Marshal(id.value)
}

func (id *JobID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*id = JobID{}
		return nil
	}
	switch c := data[0]; {
	case c == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("job id: %w", err)
		}
		*id = JobID{value: s}
		return nil
	case c == '-' || (c >= '0' && c <= '9'):
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("job id: %w", err)
		}
		*id = JobID{value: n.String(), numeric: true}
		return nil
	default:
		return fmt.Errorf("job id: want string or number, got %s", truncate(data, 32))
	}
}

func truncate(data []byte, limit int) string {
	if len(data) <= limit {
		return string(data)
	}
	return string(data[:limit]) + "..."
}
