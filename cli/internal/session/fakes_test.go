package session

import (
	"encoding/json"
	"sync"

	pion "github.com/pion/webrtc/v4"

	"github.com/talkr-dev/talkr/cli/internal/signaling"
)

// fakeTransport records what the negotiator asks of it.
type fakeTransport struct {
	name string
	cfg  TransportConfig
	// reportClose makes Close announce PeerConnectionStateClosed the way
	// pion does when a peer connection is closed.
	reportClose bool

	mu         sync.Mutex
	calls      []string
	remote     []pion.SessionDescription
	candidates []pion.ICECandidateInit
	hungUp     bool
	closed     int
}

func (f *fakeTransport) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeTransport) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeTransport) CreateOffer() (pion.SessionDescription, error) {
	f.record("create-offer")
	return pion.SessionDescription{Type: pion.SDPTypeOffer, SDP: "offer-from-" + f.name}, nil
}

func (f *fakeTransport) CreateAnswer() (pion.SessionDescription, error) {
	f.record("create-answer")
	return pion.SessionDescription{Type: pion.SDPTypeAnswer, SDP: "answer-from-" + f.name}, nil
}

func (f *fakeTransport) SetRemoteDescription(d pion.SessionDescription) error {
	f.record("set-remote-" + d.Type.String())
	f.mu.Lock()
	defer f.mu.Unlock()
	f.remote = append(f.remote, d)
	return nil
}

func (f *fakeTransport) AddICECandidate(c pion.ICECandidateInit) error {
	f.record("add-candidate")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.candidates = append(f.candidates, c)
	return nil
}

func (f *fakeTransport) Hangup() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hungUp = true
	return nil
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	f.closed++
	f.mu.Unlock()
	if f.reportClose && f.cfg.OnStateChange != nil {
		f.cfg.OnStateChange(pion.PeerConnectionStateClosed)
	}
	return nil
}

func (f *fakeTransport) Remote() []pion.SessionDescription {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]pion.SessionDescription(nil), f.remote...)
}

// fakeFactory hands out fakeTransports and remembers them.
type fakeFactory struct {
	name        string
	reportClose bool

	mu    sync.Mutex
	built []*fakeTransport
	err   error
}

func (f *fakeFactory) New(cfg TransportConfig) (MediaTransport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	t := &fakeTransport{name: f.name, cfg: cfg, reportClose: f.reportClose}
	f.built = append(f.built, t)
	return t, nil
}

func (f *fakeFactory) Built() []*fakeTransport {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*fakeTransport(nil), f.built...)
}

func (f *fakeFactory) Last() *fakeTransport {
	built := f.Built()
	if len(built) == 0 {
		return nil
	}
	return built[len(built)-1]
}

// memRelay mimics the relay's room rules for two or three peers: the first
// joiner gets config-ice, the second gets config-ice while the first gets
// ready, a third gets full. Everything else is forwarded through a JSON round
// trip to the other member.
type memRelay struct {
	// ice replaces memICEServers in config-ice when non-nil.
	ice []pion.ICEServer

	mu      sync.Mutex
	members []*memPeer
}

type memPeer struct {
	relay    *memRelay
	incoming chan *signaling.Message

	mu     sync.Mutex
	sent   []string
	closed bool
}

func (r *memRelay) Peer() *memPeer {
	return &memPeer{relay: r, incoming: make(chan *signaling.Message, 64)}
}

func (p *memPeer) Send(msg *signaling.Message) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return signaling.ErrClosed
	}
	p.sent = append(p.sent, msg.Type)
	p.mu.Unlock()

	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	p.relay.handle(p, data)
	return nil
}

func (p *memPeer) Incoming() <-chan *signaling.Message {
	return p.incoming
}

func (p *memPeer) Sent() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.sent...)
}

// Drop closes the peer's socket.
func (p *memPeer) Drop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		p.closed = true
		close(p.incoming)
	}
}

func (p *memPeer) deliver(msg *signaling.Message) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		p.incoming <- msg
	}
}

var memICEServers = []pion.ICEServer{{URLs: []string{"stun:stun.l.google.com:19302"}}}

func (r *memRelay) handle(from *memPeer, data []byte) {
	var msg signaling.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		panic(err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	ice := memICEServers
	if r.ice != nil {
		ice = r.ice
	}

	if msg.Type == signaling.TypeJoin {
		switch len(r.members) {
		case 0:
			r.members = append(r.members, from)
			from.deliver(&signaling.Message{Type: signaling.TypeConfigICE, ICEServers: ice})
		case 1:
			first := r.members[0]
			r.members = append(r.members, from)
			from.deliver(&signaling.Message{Type: signaling.TypeConfigICE, ICEServers: ice})
			first.deliver(&signaling.Message{Type: signaling.TypeReady})
		default:
			from.deliver(&signaling.Message{Type: signaling.TypeFull})
		}
		return
	}

	for _, m := range r.members {
		if m == from {
			continue
		}
		var copied signaling.Message
		if err := json.Unmarshal(data, &copied); err != nil {
			panic(err)
		}
		m.deliver(&copied)
	}
}
