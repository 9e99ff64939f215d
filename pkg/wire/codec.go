package wire

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/bft-labs/rtcshare/internal/domain"
)

const separator = '\n'

// Message is a decoded frame. Payload aliases the decoded buffer.
type Message struct {
	Header  json.RawMessage
	Payload []byte
}

// Encode serializes header as JSON, appends the newline separator and
// then payload, if any.
func Encode(header interface{}, payload []byte) ([]byte, error) {
	h, err := json.Marshal(header)
	if err != nil {
		return nil, fmt.Errorf("encode header: %w", err)
	}
	if bytes.IndexByte(h, separator) >= 0 {
		return nil, fmt.Errorf("encode header: raw newline in header")
	}
	frame := make([]byte, 0, len(h)+1+len(payload))
	frame = append(frame, h...)
	frame = append(frame, separator)
	return append(frame, payload...), nil
}

// Decode splits frame at its first newline. The header must be valid JSON.
// A frame with nothing after the separator has a nil Payload.
func Decode(frame []byte) (Message, error) {
	i := bytes.IndexByte(frame, separator)
	if i < 0 {
		return Message{}, fmt.Errorf("%w: no header separator", domain.ErrMalformedFrame)
	}
	header := frame[:i]
	if !json.Valid(header) {
		return Message{}, fmt.Errorf("%w: header is not valid JSON", domain.ErrMalformedFrame)
	}
	var payload []byte
	if i+1 < len(frame) {
		payload = frame[i+1:]
	}
	return Message{Header: json.RawMessage(header), Payload: payload}, nil
}

// DecodeLoose is Decode, except that a frame without a separator is
// accepted as a bare header with no payload. Header-only messages from
// older peers are sent that way.
func DecodeLoose(frame []byte) (Message, error) {
	if bytes.IndexByte(frame, separator) >= 0 {
		return Decode(frame)
	}
	trimmed := bytes.TrimSpace(frame)
	if len(trimmed) == 0 || !json.Valid(trimmed) {
		return Message{}, fmt.Errorf("%w: header is not valid JSON", domain.ErrMalformedFrame)
	}
	return Message{Header: json.RawMessage(trimmed)}, nil
}

// Unmarshal decodes the header into v.
func (m Message) Unmarshal(v interface{}) error {
	if err := json.Unmarshal(m.Header, v); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrMalformedFrame, err)
	}
	return nil
}

// Type returns the header's "type" discriminator, or "" if there is none.
func (m Message) Type() string {
	var env domain.Envelope
	if err := json.Unmarshal(m.Header, &env); err != nil {
		return ""
	}
	return env.Type
}
