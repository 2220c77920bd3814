package memory

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/swamp-dev/commanddeck/internal/store"
)

// DefaultMaxValueBytes is the default ceiling on a stored memory value.
const DefaultMaxValueBytes = 64 << 10

// Payload is an opaque JSON memory value. A nil Payload means no value.
type Payload []byte

// ParsePayload validates raw JSON against the byte ceiling and returns it in
// compact form. A nil input yields a nil Payload.
func ParsePayload(raw []byte, maxBytes int) (Payload, error) {
	if raw == nil {
		return nil, nil
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return nil, &store.ValidationError{Field: "value", Message: "must be valid JSON"}
	}
	if maxBytes > 0 && buf.Len() > maxBytes {
		return nil, &store.ValidationError{
			Field:   "value",
			Message: fmt.Sprintf("must be at most %d bytes, got %d", maxBytes, buf.Len()),
		}
	}
	return Payload(buf.Bytes()), nil
}

// NewPayload encodes v as a payload.
func NewPayload(v any, maxBytes int) (Payload, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, &store.ValidationError{Field: "value", Message: err.Error()}
	}
	return ParsePayload(data, maxBytes)
}

// Decode returns the decoded value. Missing or unreadable payloads decode
// as nil.
func (p Payload) Decode() any {
	if len(p) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal(p, &v); err != nil {
		return nil
	}
	return v
}

// UnmarshalJSON keeps the raw value. A literal null is kept as a value.
func (p *Payload) UnmarshalJSON(data []byte) error {
	*p = append(Payload{}, data...)
	return nil
}

// MarshalJSON emits the payload verbatim, or null when it is missing or
// not valid JSON.
func (p Payload) MarshalJSON() ([]byte, error) {
	if len(p) == 0 || !json.Valid(p) {
		return []byte("null"), nil
	}
	return []byte(p), nil
}
