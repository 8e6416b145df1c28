package signaling

import "encoding/json"

// Message types understood by the relay. Everything else a room member sends
// is forwarded to the other member untouched.
const (
	TypeJoin      = "join"
	TypeConfigICE = "config-ice"
	TypeReady     = "ready"
	TypeFull      = "full"
	TypePeerLeft  = "peer-left"
	TypeError     = "error"
)

// ICEServer is one entry of the RTCConfiguration.iceServers list handed to
// clients in config-ice.
type ICEServer struct {
	URLs       []string `json:"urls"`
	Username   string   `json:"username,omitempty"`
	Credential string   `json:"credential,omitempty"`
}

// Message is the relay's view of a signaling message. Only the envelope is
// decoded; relayed messages keep their original bytes.
type Message struct {
	Type       string      `json:"type"`
	RoomID     string      `json:"roomId,omitempty"`
	ICEServers []ICEServer `json:"iceServers,omitempty"`
	Error      string      `json:"message,omitempty"`

	// raw holds the bytes exactly as the sender wrote them.
	raw []byte

	// client is the client that sent the message.
	// It's used internally by the Hub and not sent over JSON.
	client *Client
}

// parseMessage decodes the envelope of data and keeps data for forwarding.
func parseMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.Type == "" {
		return nil, errMissingType
	}
	msg.raw = data
	return &msg, nil
}

// payload returns the bytes to put on the wire for msg.
func (m *Message) payload() ([]byte, error) {
	if m.raw != nil {
		return m.raw, nil
	}
	return json.Marshal(m)
}
