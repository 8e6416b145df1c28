package signaling

import (
	"encoding/json"
	"fmt"

	"github.com/pion/webrtc/v4"

	"github.com/talkr-dev/talkr/cli/internal/crypto"
)

// Message type constants.
const (
	TypeJoin        = "join"
	TypeKeyExchange = "key-exchange"
	TypeOffer       = "offer"
	TypeAnswer      = "answer"
	TypeICE         = "ice"

	TypeConfigICE = "config-ice"
	TypeReady     = "ready"
	TypeFull      = "full"
	TypePeerLeft  = "peer-left"
	TypeError     = "error"
)

// Message is every JSON message exchanged with the relay. Only the fields
// relevant to Type are set.
type Message struct {
	Type       string                     `json:"type"`
	RoomID     string                     `json:"roomId,omitempty"`
	ICEServers ICEServers                 `json:"iceServers,omitempty"`
	Key        *crypto.JWK                `json:"key,omitempty"`
	SDP        *webrtc.SessionDescription `json:"sdp,omitempty"`
	Candidate  *webrtc.ICECandidateInit   `json:"candidate,omitempty"`
	Message    string                     `json:"message,omitempty"`
}

// ICEServers decodes both the plain list and the {"iceServers": [...]}
// wrapper some relays send. Entries accept urls as a string or a list.
type ICEServers []webrtc.ICEServer

func (s *ICEServers) UnmarshalJSON(b []byte) error {
	var list []iceServerJSON
	if err := json.Unmarshal(b, &list); err == nil {
		*s = toICEServers(list)
		return nil
	}

	var wrapped struct {
		ICEServers []iceServerJSON `json:"iceServers"`
	}
	if err := json.Unmarshal(b, &wrapped); err != nil {
		return fmt.Errorf("iceServers: %w", err)
	}
	*s = toICEServers(wrapped.ICEServers)
	return nil
}

type iceServerJSON struct {
	URLs       stringOrStringSlice `json:"urls"`
	Username   string              `json:"username,omitempty"`
	Credential string              `json:"credential,omitempty"`
}

type stringOrStringSlice []string

func (s *stringOrStringSlice) UnmarshalJSON(b []byte) error {
	var single string
	if err := json.Unmarshal(b, &single); err == nil {
		*s = []string{single}
		return nil
	}
	var many []string
	if err := json.Unmarshal(b, &many); err != nil {
		return err
	}
	*s = many
	return nil
}

func toICEServers(in []iceServerJSON) ICEServers {
	out := make(ICEServers, 0, len(in))
	for _, s := range in {
		server := webrtc.ICEServer{URLs: s.URLs, Username: s.Username}
		if s.Credential != "" {
			server.Credential = s.Credential
		}
		out = append(out, server)
	}
	return out
}
