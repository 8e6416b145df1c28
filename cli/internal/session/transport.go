package session

import (
	pion "github.com/pion/webrtc/v4"
)

// MediaTransport is the peer connection as the Negotiator sees it. Candidates
// added before the remote description must be held until it is set.
type MediaTransport interface {
	// CreateOffer creates an offer and applies it locally.
	CreateOffer() (pion.SessionDescription, error)
	// CreateAnswer creates an answer to the applied remote offer and applies
	// it locally.
	CreateAnswer() (pion.SessionDescription, error)
	SetRemoteDescription(pion.SessionDescription) error
	AddICECandidate(pion.ICECandidateInit) error
	// Hangup tells the peer the call is over, best effort.
	Hangup() error
	Close() error
}

// TransportConfig is what the Negotiator knows when config-ice arrives. The
// callbacks may run on any goroutine.
type TransportConfig struct {
	ICEServers []pion.ICEServer

	OnICECandidate func(pion.ICECandidateInit)
	OnStateChange  func(pion.PeerConnectionState)
	OnHangup       func()
}

// TransportFactory builds the transport once the relay has sent ICE servers.
type TransportFactory func(TransportConfig) (MediaTransport, error)
