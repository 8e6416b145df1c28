// Package session drives one call from join to connected: the key exchange
// over the relay, then offer/answer/ICE for the media transport.
package session

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"

	pion "github.com/pion/webrtc/v4"

	"github.com/talkr-dev/talkr/cli/internal/crypto"
	"github.com/talkr-dev/talkr/cli/internal/signaling"
)

// Signaler is the relay connection.
type Signaler interface {
	Send(*signaling.Message) error
	// Incoming is closed when the connection is lost.
	Incoming() <-chan *signaling.Message
}

type Config struct {
	RoomID       string
	Signaler     Signaler
	Keys         *crypto.Engine
	NewTransport TransportFactory
	Logger       *slog.Logger
}

// Negotiator runs the handshake state machine. Messages and transport events
// are handled one at a time on the goroutine running Run.
type Negotiator struct {
	roomID       string
	sig          Signaler
	keys         *crypto.Engine
	newTransport TransportFactory
	logger       *slog.Logger

	events    chan func() error
	closed    chan struct{}
	closeOnce sync.Once

	mu        sync.Mutex
	state     State
	role      Role
	transport MediaTransport
	observers []func(State)
}

func New(cfg Config) (*Negotiator, error) {
	switch {
	case cfg.RoomID == "":
		return nil, errors.New("session: room id is required")
	case cfg.Signaler == nil:
		return nil, errors.New("session: signaler is required")
	case cfg.NewTransport == nil:
		return nil, errors.New("session: transport factory is required")
	}
	if cfg.Keys == nil {
		cfg.Keys = crypto.NewEngine(cfg.Logger)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Negotiator{
		roomID:       cfg.RoomID,
		sig:          cfg.Signaler,
		keys:         cfg.Keys,
		newTransport: cfg.NewTransport,
		logger:       cfg.Logger.With("room", cfg.RoomID),
		events:       make(chan func() error, 64),
		closed:       make(chan struct{}),
	}, nil
}

func (n *Negotiator) State() State {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state
}

func (n *Negotiator) Role() Role {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.role
}

func (n *Negotiator) RoomID() string {
	return n.roomID
}

// Keys exposes the key agreement, e.g. for the frame pipeline.
func (n *Negotiator) Keys() *crypto.Engine {
	return n.keys
}

// OnStateChange registers fn to be called after every transition, on the
// goroutine that made it.
func (n *Negotiator) OnStateChange(fn func(State)) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.observers = append(n.observers, fn)
}

// Start generates the key pair and asks the relay to join the room.
func (n *Negotiator) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s := n.State(); s != StateIdle {
		return WrapError("start", errors.New("already started"), s.String())
	}
	if _, err := n.keys.GenerateKeyPair(); err != nil {
		return NewError("generate key pair", err)
	}
	if err := n.send(&signaling.Message{Type: signaling.TypeJoin}); err != nil {
		return err
	}
	n.setState(StateAwaitingConfig)
	return nil
}

// Run processes relay messages and transport events until the call ends. It
// returns nil when ctx is cancelled or Close is called, ErrHangup when the
// peer hangs up, and a *ConnectionError for anything fatal. The transport is
// closed on return.
func (n *Negotiator) Run(ctx context.Context) error {
	defer n.Close()

	if n.State() == StateIdle {
		if err := n.Start(ctx); err != nil {
			return err
		}
	}

	incoming := n.sig.Incoming()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-n.closed:
			return nil
		case fn := <-n.events:
			if n.isClosed() {
				// Events raised by our own teardown, e.g. the transport
				// reporting Closed.
				return nil
			}
			if err := fn(); err != nil {
				return n.endWith(err)
			}
		case msg, ok := <-incoming:
			if !ok {
				if n.State() == StateConnected {
					// Media no longer needs the relay.
					n.logger.Warn("lost relay connection, call continues")
					incoming = nil
					continue
				}
				return n.endWith(NewError("signaling", ErrSignalingClosed))
			}
			if err := n.HandleMessage(msg); err != nil {
				return n.endWith(err)
			}
		}
	}
}

// HandleMessage applies one relay message. A non-nil error ends the call.
func (n *Negotiator) HandleMessage(msg *signaling.Message) error {
	switch msg.Type {
	case signaling.TypeFull:
		return WrapError("join room", ErrRoomFull, n.roomID)
	case signaling.TypePeerLeft:
		return NewError("peer", ErrPeerLeft)
	case signaling.TypeError:
		return WrapError("relay", ErrRelayRejected, msg.Message)
	case signaling.TypeConfigICE:
		return n.handleConfig(msg.ICEServers)
	}

	if n.currentTransport() == nil {
		n.logger.Debug("ignoring message before config-ice", "type", msg.Type)
		return nil
	}

	switch msg.Type {
	case signaling.TypeReady:
		return n.handleReady()
	case signaling.TypeKeyExchange:
		return n.handleKeyExchange(msg.Key)
	case signaling.TypeOffer:
		return n.handleOffer(msg.SDP)
	case signaling.TypeAnswer:
		return n.handleAnswer(msg.SDP)
	case signaling.TypeICE:
		n.handleCandidate(msg.Candidate)
		return nil
	default:
		n.logger.Debug("ignoring unknown message", "type", msg.Type)
		return nil
	}
}

func (n *Negotiator) handleConfig(servers []pion.ICEServer) error {
	if n.currentTransport() != nil {
		n.logger.Debug("ignoring repeated config-ice")
		return nil
	}

	t, err := n.newTransport(TransportConfig{
		ICEServers: servers,
		OnICECandidate: func(c pion.ICECandidateInit) {
			n.post(func() error {
				n.sendCandidate(c)
				return nil
			})
		},
		OnStateChange: func(s pion.PeerConnectionState) {
			n.post(func() error { return n.handleTransportState(s) })
		},
		OnHangup: func() {
			n.post(func() error { return ErrHangup })
		},
	})
	if err != nil {
		return NewError("create media transport", err)
	}

	n.mu.Lock()
	n.transport = t
	n.mu.Unlock()

	select {
	case <-n.closed:
		// Close ran before the transport existed.
		return t.Close()
	default:
	}

	n.logger.Debug("media transport ready", "ice_servers", len(servers))
	n.setState(StateAwaitingPeer)
	return nil
}

func (n *Negotiator) handleReady() error {
	n.mu.Lock()
	if n.role != RoleUndecided {
		n.mu.Unlock()
		n.logger.Debug("ignoring ready, role already decided")
		return nil
	}
	n.role = RoleHost
	n.mu.Unlock()

	if err := n.sendKey(); err != nil {
		return err
	}
	n.logger.Info("peer joined, sent key", "role", RoleHost.String())
	n.setState(StateKeyExchanging)
	return nil
}

func (n *Negotiator) handleKeyExchange(jwk *crypto.JWK) error {
	peer, err := n.keys.ImportPeerKey(jwk)
	if err != nil {
		return WrapError("key exchange", err, "peer key rejected")
	}
	if err := n.keys.DeriveSharedSecret(peer); err != nil {
		return NewError("derive shared secret", err)
	}

	n.mu.Lock()
	role := n.role
	if role == RoleUndecided {
		n.role = RoleGuest
	}
	n.mu.Unlock()

	switch role {
	case RoleUndecided:
		// Reply first so the host has the secret before media arrives.
		if err := n.sendKey(); err != nil {
			return err
		}
		offer, err := n.currentTransport().CreateOffer()
		if err != nil {
			return NewError("create offer", err)
		}
		if err := n.send(&signaling.Message{Type: signaling.TypeOffer, SDP: &offer}); err != nil {
			return err
		}
		n.logger.Info("shared secret derived, sent key and offer", "role", RoleGuest.String())
	case RoleHost:
		n.logger.Info("shared secret derived", "role", RoleHost.String())
	default:
		n.logger.Debug("peer key replaced")
		return nil
	}

	n.setState(StateMediaNegotiating)
	return nil
}

func (n *Negotiator) handleOffer(sdp *pion.SessionDescription) error {
	if sdp == nil {
		n.logger.Warn("ignoring offer without sdp")
		return nil
	}
	t := n.currentTransport()
	if err := t.SetRemoteDescription(*sdp); err != nil {
		return NewError("set remote description", err)
	}
	answer, err := t.CreateAnswer()
	if err != nil {
		return NewError("create answer", err)
	}
	return n.send(&signaling.Message{Type: signaling.TypeAnswer, SDP: &answer})
}

func (n *Negotiator) handleAnswer(sdp *pion.SessionDescription) error {
	if sdp == nil {
		n.logger.Warn("ignoring answer without sdp")
		return nil
	}
	if err := n.currentTransport().SetRemoteDescription(*sdp); err != nil {
		return NewError("set remote description", err)
	}
	return nil
}

func (n *Negotiator) handleCandidate(c *pion.ICECandidateInit) {
	if c == nil {
		return
	}
	if err := n.currentTransport().AddICECandidate(*c); err != nil {
		n.logger.Warn("dropping ICE candidate", "error", err)
	}
}

func (n *Negotiator) handleTransportState(s pion.PeerConnectionState) error {
	n.logger.Debug("media transport state", "state", s.String())
	switch s {
	case pion.PeerConnectionStateConnected:
		n.setState(StateConnected)
	case pion.PeerConnectionStateDisconnected:
		n.logger.Warn("media connection interrupted")
	case pion.PeerConnectionStateFailed:
		return NewError("media transport", ErrTransportFailed)
	case pion.PeerConnectionStateClosed:
		if n.isClosed() {
			return nil
		}
		return WrapError("media transport", ErrTransportFailed, "closed")
	}
	return nil
}

func (n *Negotiator) sendKey() error {
	jwk, err := n.keys.ExportPublicKey()
	if err != nil {
		return NewError("export public key", err)
	}
	return n.send(&signaling.Message{Type: signaling.TypeKeyExchange, Key: jwk})
}

func (n *Negotiator) sendCandidate(c pion.ICECandidateInit) {
	if err := n.send(&signaling.Message{Type: signaling.TypeICE, Candidate: &c}); err != nil {
		n.logger.Debug("could not send ICE candidate", "error", err)
	}
}

func (n *Negotiator) send(msg *signaling.Message) error {
	msg.RoomID = n.roomID
	if err := n.sig.Send(msg); err != nil {
		if errors.Is(err, signaling.ErrClosed) {
			return NewError("send "+msg.Type, ErrSignalingClosed)
		}
		return NewError("send "+msg.Type, err)
	}
	return nil
}

// post hands fn to the Run loop. It is dropped once the negotiator is closed.
func (n *Negotiator) post(fn func() error) {
	select {
	case n.events <- fn:
	case <-n.closed:
	}
}

// endWith is the error Run returns for err. After Close every failure is a
// side effect of the teardown and the call ended normally.
func (n *Negotiator) endWith(err error) error {
	if n.isClosed() {
		return nil
	}
	return err
}

func (n *Negotiator) isClosed() bool {
	select {
	case <-n.closed:
		return true
	default:
		return false
	}
}

func (n *Negotiator) currentTransport() MediaTransport {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.transport
}

func (n *Negotiator) setState(s State) {
	n.mu.Lock()
	if n.state == s || n.state == StateClosed {
		n.mu.Unlock()
		return
	}
	n.state = s
	observers := slices.Clone(n.observers)
	n.mu.Unlock()

	n.logger.Debug("session state", "state", s.String())
	for _, fn := range observers {
		fn(s)
	}
}

// Hangup tells the peer the call is over, then closes.
func (n *Negotiator) Hangup() error {
	if t := n.currentTransport(); t != nil {
		if err := t.Hangup(); err != nil {
			n.logger.Debug("hangup not delivered", "error", err)
		}
	}
	return n.Close()
}

// Close tears down the transport. It is safe to call more than once and from
// any goroutine.
func (n *Negotiator) Close() error {
	var err error
	n.closeOnce.Do(func() {
		close(n.closed)
		if t := n.currentTransport(); t != nil {
			err = t.Close()
		}
		n.setState(StateClosed)
	})
	return err
}
