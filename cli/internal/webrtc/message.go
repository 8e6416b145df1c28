package webrtc

import (
	"errors"

	"github.com/vmihailenco/msgpack/v5"
)

// Control message types.
const (
	TypeDeviceInfo = "device_info"
	TypeHangup     = "hangup"
)

var ErrUnknownMessage = errors.New("unknown control message")

// Message is the envelope of every control channel frame. Payload stays raw
// until the type is known.
type Message struct {
	Type    string             `msgpack:"type"`
	Payload msgpack.RawMessage `msgpack:"payload,omitempty"`
}

// DeviceInfoPayload is what each side announces once the channel opens.
type DeviceInfoPayload struct {
	DeviceName    string `msgpack:"deviceName"`
	DeviceVersion string `msgpack:"deviceVersion"`
}

func (m Message) DecodePayload(v any) error {
	return msgpack.Unmarshal(m.Payload, v)
}

// NewMessage packs payload under type t. A nil payload is omitted.
func NewMessage(t string, payload any) (Message, error) {
	m := Message{Type: t}
	if payload == nil {
		return m, nil
	}
	var err error
	if m.Payload, err = msgpack.Marshal(payload); err != nil {
		return Message{}, err
	}
	return m, nil
}

// Encode packs m for the wire.
func Encode(m Message) ([]byte, error) {
	return msgpack.Marshal(m)
}

// Decode unpacks a control channel frame.
func Decode(data []byte) (Message, error) {
	var m Message
	if err := msgpack.Unmarshal(data, &m); err != nil {
		return Message{}, err
	}
	if m.Type == "" {
		return Message{}, ErrUnknownMessage
	}
	return m, nil
}
