package session

// State is where a Negotiator is in the call setup.
type State int

const (
	StateIdle State = iota
	// StateAwaitingConfig: join sent, waiting for config-ice.
	StateAwaitingConfig
	// StateAwaitingPeer: transport built, waiting for ready or the host's key.
	StateAwaitingPeer
	// StateKeyExchanging: host sent its key and waits for the reply.
	StateKeyExchanging
	// StateMediaNegotiating: shared secret derived, offer/answer/ICE in flight.
	StateMediaNegotiating
	StateConnected
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingConfig:
		return "awaiting-config"
	case StateAwaitingPeer:
		return "awaiting-peer"
	case StateKeyExchanging:
		return "key-exchanging"
	case StateMediaNegotiating:
		return "media-negotiating"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Role is decided once, by which message arrives first: the member that gets
// ready is the Host, the member that gets a key without ready is the Guest.
type Role int

const (
	RoleUndecided Role = iota
	// RoleHost sends its key first and answers the offer.
	RoleHost
	// RoleGuest replies with its key and then makes the offer.
	RoleGuest
)

func (r Role) String() string {
	switch r {
	case RoleHost:
		return "host"
	case RoleGuest:
		return "guest"
	default:
		return "undecided"
	}
}
