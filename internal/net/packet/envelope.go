package packet

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Message is one decoded client frame: an event name and its still-encoded
// payload. Handlers decode Data into their own request type.
type Message struct {
	Event string             `msgpack:"e"`
	Data  msgpack.RawMessage `msgpack:"d,omitempty"`
}

// outbound mirrors Message but carries an unencoded payload.
type outbound struct {
	Event string `msgpack:"e"`
	Data  any    `msgpack:"d,omitempty"`
}

// Encode builds the wire frame for (event, data).
func Encode(event string, data any) ([]byte, error) {
	b, err := msgpack.Marshal(&outbound{Event: event, Data: data})
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", event, err)
	}
	return b, nil
}

// NewMessage builds an inbound message as if it had been decoded from a
// client frame.
func NewMessage(event string, data any) (Message, error) {
	m := Message{Event: event}
	if data == nil {
		return m, nil
	}
	raw, err := msgpack.Marshal(data)
	if err != nil {
		return Message{}, fmt.Errorf("encode %s payload: %w", event, err)
	}
	m.Data = raw
	return m, nil
}

// Decode parses a wire frame.
func Decode(frame []byte) (Message, error) {
	var m Message
	if err := msgpack.Unmarshal(frame, &m); err != nil {
		return Message{}, fmt.Errorf("decode frame (%d bytes): %w", len(frame), err)
	}
	if m.Event == "" {
		return Message{}, fmt.Errorf("decode frame: missing event name")
	}
	return m, nil
}

// Bind decodes the payload of m into v.
func (m Message) Bind(v any) error {
	if len(m.Data) == 0 {
		return fmt.Errorf("%s: empty payload", m.Event)
	}
	if err := msgpack.Unmarshal(m.Data, v); err != nil {
		return fmt.Errorf("%s: bad payload: %w", m.Event, err)
	}
	return nil
}
