package ipc

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// MessageType tags what a Message means to its receiver.
type MessageType string

const (
	TypeMessage MessageType = "message"
	TypeTimeout MessageType = "timeout"
	TypeAck     MessageType = "ack"
	TypePass    MessageType = "pass"
	TypeFail    MessageType = "fail"
)

var messageTypes = map[MessageType]struct{}{
	TypeMessage: {},
	TypeTimeout: {},
	TypeAck:     {},
	TypePass:    {},
	TypeFail:    {},
}

// ParseMessageType validates a raw tag.
func ParseMessageType(raw string) (MessageType, error) {
	t := MessageType(raw)
	if _, ok := messageTypes[t]; !ok {
		return "", fmt.Errorf("unknown message type %q", raw)
	}
	return t, nil
}

func (t *MessageType) UnmarshalJSON(b []byte) error {
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("message type: %w", err)
	}
	parsed, err := ParseMessageType(raw)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Message is the envelope exchanged in one IPC round trip.
type Message struct {
	Type    MessageType    `json:"type"`
	Message string         `json:"message,omitempty"`
	Data    map[string]any `json:"data,omitempty"`
}

// Encode renders m as compact JSON. Empty message and data are omitted and no
// delimiter is appended.
func (m Message) Encode() ([]byte, error) {
	if _, ok := messageTypes[m.Type]; !ok {
		return nil, fmt.Errorf("encode message: unknown message type %q", m.Type)
	}
	out, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}
	return out, nil
}

// Equal compares two messages treating absent and empty fields alike. Data is
// compared by its JSON encoding, so 1, float64(1) and json.Number("1") match.
func (m Message) Equal(other Message) bool {
	if m.Type != other.Type || m.Message != other.Message {
		return false
	}
	if len(m.Data) == 0 || len(other.Data) == 0 {
		return len(m.Data) == len(other.Data)
	}
	left, err := json.Marshal(m.Data)
	if err != nil {
		return false
	}
	right, err := json.Marshal(other.Data)
	if err != nil {
		return false
	}
	return bytes.Equal(left, right)
}

// DecodeError reports bytes that are not a valid Message.
type DecodeError struct {
	Raw []byte
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode message: %v", e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Decode parses one JSON Message. Unknown keys, trailing data, a missing type,
// or a type outside the known tags all fail with *DecodeError. Numbers in Data
// decode as json.Number and keep their literal text.
func Decode(raw []byte) (Message, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	dec.UseNumber()

	var wire struct {
		Type    *MessageType   `json:"type"`
		Message string         `json:"message"`
		Data    map[string]any `json:"data"`
	}
	if err := dec.Decode(&wire); err != nil {
		return Message{}, &DecodeError{Raw: raw, Err: err}
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return Message{}, &DecodeError{Raw: raw, Err: errors.New("unexpected data after message")}
	}
	if wire.Type == nil {
		return Message{}, &DecodeError{Raw: raw, Err: errors.New("missing message type")}
	}

	msg := Message{Type: *wire.Type, Message: wire.Message}
	if len(wire.Data) > 0 {
		msg.Data = wire.Data
	}
	return msg, nil
}

// complete reports whether raw already holds one whole JSON value, valid or
// not. Truncated input is incomplete; malformed input is complete so that the
// caller decodes it and surfaces the error instead of waiting for more bytes.
func complete(raw []byte) bool {
	dec := json.NewDecoder(bytes.NewReader(raw))
	var v json.RawMessage
	err := dec.Decode(&v)
	return !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF)
}
