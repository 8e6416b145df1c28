package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	pion "github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talkr-dev/talkr/cli/internal/crypto"
	"github.com/talkr-dev/talkr/cli/internal/signaling"
)

type testPeer struct {
	n       *Negotiator
	sig     *memPeer
	factory *fakeFactory
	keys    *crypto.Engine

	errCh chan error
}

func newTestPeer(t *testing.T, relay *memRelay, name string) *testPeer {
	t.Helper()
	p := &testPeer{
		sig:     relay.Peer(),
		factory: &fakeFactory{name: name},
		keys:    crypto.NewEngine(nil),
		errCh:   make(chan error, 1),
	}
	n, err := New(Config{
		RoomID:       "ABC123",
		Signaler:     p.sig,
		Keys:         p.keys,
		NewTransport: p.factory.New,
	})
	require.NoError(t, err)
	p.n = n
	t.Cleanup(func() { n.Close() })
	return p
}

func (p *testPeer) run(ctx context.Context) {
	go func() { p.errCh <- p.n.Run(ctx) }()
}

func (p *testPeer) wait(t *testing.T) error {
	t.Helper()
	select {
	case err := <-p.errCh:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
		return nil
	}
}

func waitState(t *testing.T, n *Negotiator, want State) {
	t.Helper()
	require.Eventually(t, func() bool { return n.State() == want },
		5*time.Second, 5*time.Millisecond, "want state %s, have %s", want, n.State())
}

func TestNegotiator_ABC123Handshake(t *testing.T) {
	relay := &memRelay{}
	a := newTestPeer(t, relay, "A")
	b := newTestPeer(t, relay, "B")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, a.n.Start(ctx))
	assert.Equal(t, StateAwaitingConfig, a.n.State())
	require.NoError(t, b.n.Start(ctx))

	a.run(ctx)
	b.run(ctx)

	waitState(t, a.n, StateMediaNegotiating)
	waitState(t, b.n, StateMediaNegotiating)

	assert.Equal(t, RoleHost, a.n.Role())
	assert.Equal(t, RoleGuest, b.n.Role())
	assert.True(t, a.keys.HasSharedSecret())
	assert.True(t, b.keys.HasSharedSecret())

	// Both sides derived the same secret.
	iv := make([]byte, crypto.IVSize)
	sealed, err := a.keys.Encrypt([]byte("frame"), iv)
	require.NoError(t, err)
	plain, err := b.keys.Decrypt(sealed, iv)
	require.NoError(t, err)
	assert.Equal(t, []byte("frame"), plain)

	// The guest replies with its key before it offers; the host answers.
	require.Eventually(t, func() bool { return len(a.sig.Sent()) == 3 }, 5*time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"join", "key-exchange", "answer"}, a.sig.Sent())
	assert.Equal(t, []string{"join", "key-exchange", "offer"}, b.sig.Sent())

	ta, tb := a.factory.Last(), b.factory.Last()
	require.NotNil(t, ta)
	require.NotNil(t, tb)
	assert.Equal(t, []string{"set-remote-offer", "create-answer"}, ta.Calls())
	require.Eventually(t, func() bool { return len(tb.Remote()) == 1 }, 5*time.Second, 5*time.Millisecond)
	assert.Equal(t, "offer-from-B", ta.Remote()[0].SDP)
	assert.Equal(t, "answer-from-A", tb.Remote()[0].SDP)
	assert.Equal(t, []string{"stun:stun.l.google.com:19302"}, ta.cfg.ICEServers[0].URLs)

	// Candidates flow through the relay to the other transport.
	mid := "0"
	tb.cfg.OnICECandidate(pion.ICECandidateInit{Candidate: "candidate:1 1 udp 1 192.0.2.1 5000 typ host", SDPMid: &mid})
	require.Eventually(t, func() bool {
		ta.mu.Lock()
		defer ta.mu.Unlock()
		return len(ta.candidates) == 1
	}, 5*time.Second, 5*time.Millisecond)

	ta.cfg.OnStateChange(pion.PeerConnectionStateConnected)
	tb.cfg.OnStateChange(pion.PeerConnectionStateConnected)
	waitState(t, a.n, StateConnected)
	waitState(t, b.n, StateConnected)

	cancel()
	assert.NoError(t, a.wait(t))
	assert.NoError(t, b.wait(t))
	assert.Equal(t, StateClosed, a.n.State())
	assert.Equal(t, 1, ta.closed)
}

func TestNegotiator_ObservesStateSequence(t *testing.T) {
	relay := &memRelay{}
	a := newTestPeer(t, relay, "A")
	b := newTestPeer(t, relay, "B")

	var mu sync.Mutex
	var seen []State
	a.n.OnStateChange(func(s State) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, s)
	})

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, a.n.Start(ctx))
	require.NoError(t, b.n.Start(ctx))
	a.run(ctx)
	b.run(ctx)
	waitState(t, a.n, StateMediaNegotiating)
	cancel()
	a.wait(t)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []State{
		StateAwaitingConfig,
		StateAwaitingPeer,
		StateKeyExchanging,
		StateMediaNegotiating,
		StateClosed,
	}, seen)
}

func TestNegotiator_IgnoresMessagesBeforeConfig(t *testing.T) {
	relay := &memRelay{}
	p := newTestPeer(t, relay, "A")
	_, err := p.keys.GenerateKeyPair()
	require.NoError(t, err)

	peerKeys := crypto.NewEngine(nil)
	_, err = peerKeys.GenerateKeyPair()
	require.NoError(t, err)
	jwk, err := peerKeys.ExportPublicKey()
	require.NoError(t, err)

	for _, msg := range []*signaling.Message{
		{Type: signaling.TypeReady},
		{Type: signaling.TypeKeyExchange, Key: jwk},
		{Type: signaling.TypeOffer, SDP: &pion.SessionDescription{Type: pion.SDPTypeOffer, SDP: "v=0"}},
		{Type: signaling.TypeICE, Candidate: &pion.ICECandidateInit{Candidate: "c"}},
		{Type: "something-new"},
	} {
		require.NoError(t, p.n.HandleMessage(msg), msg.Type)
	}
	assert.Equal(t, RoleUndecided, p.n.Role())
	assert.False(t, p.keys.HasSharedSecret())
	assert.Empty(t, p.factory.Built())
	assert.Empty(t, p.sig.Sent())
}

func TestNegotiator_SecondConfigIgnored(t *testing.T) {
	p := newTestPeer(t, &memRelay{}, "A")
	cfg := &signaling.Message{Type: signaling.TypeConfigICE, ICEServers: memICEServers}
	require.NoError(t, p.n.HandleMessage(cfg))
	require.NoError(t, p.n.HandleMessage(cfg))
	assert.Len(t, p.factory.Built(), 1)
	assert.Equal(t, StateAwaitingPeer, p.n.State())
}

// No handshake timeout exists: a host whose peer never answers waits in
// KeyExchanging until the caller gives up.
func TestNegotiator_KeyExchangeWaitsUntilCancelled(t *testing.T) {
	relay := &memRelay{}
	a := newTestPeer(t, relay, "A")
	silent := relay.Peer()
	relay.members = append(relay.members, silent)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, a.n.Start(ctx))
	// The relay already had a member, so A is told to be the host by hand.
	a.sig.deliver(&signaling.Message{Type: signaling.TypeReady})
	a.run(ctx)

	waitState(t, a.n, StateKeyExchanging)
	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, StateKeyExchanging, a.n.State())

	select {
	case err := <-a.errCh:
		t.Fatalf("Run returned early: %v", err)
	default:
	}

	cancel()
	assert.NoError(t, a.wait(t))
}

func TestNegotiator_RoomFull(t *testing.T) {
	relay := &memRelay{}
	newTestPeer(t, relay, "A").n.Start(context.Background())
	newTestPeer(t, relay, "B").n.Start(context.Background())
	c := newTestPeer(t, relay, "C")

	c.run(context.Background())
	err := c.wait(t)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRoomFull)

	var connErr *ConnectionError
	require.ErrorAs(t, err, &connErr)
	assert.Equal(t, "join room", connErr.Op)
	assert.Empty(t, c.factory.Built())
	assert.Equal(t, StateClosed, c.n.State())
}

func TestNegotiator_PeerLeft(t *testing.T) {
	p := newTestPeer(t, &memRelay{}, "A")
	require.NoError(t, p.n.Start(context.Background()))
	p.run(context.Background())
	waitState(t, p.n, StateAwaitingPeer)

	p.sig.deliver(&signaling.Message{Type: signaling.TypePeerLeft})
	assert.ErrorIs(t, p.wait(t), ErrPeerLeft)
	assert.Equal(t, 1, p.factory.Last().closed)
}

func TestNegotiator_MalformedPeerKeyIsFatal(t *testing.T) {
	p := newTestPeer(t, &memRelay{}, "A")
	require.NoError(t, p.n.Start(context.Background()))
	require.NoError(t, p.n.HandleMessage(&signaling.Message{Type: signaling.TypeConfigICE}))

	err := p.n.HandleMessage(&signaling.Message{
		Type: signaling.TypeKeyExchange,
		Key:  &crypto.JWK{Kty: "EC", Crv: "P-256", X: "not-base64!", Y: ""},
	})
	assert.ErrorIs(t, err, crypto.ErrKeyImport)
	var connErr *ConnectionError
	assert.ErrorAs(t, err, &connErr)
	assert.False(t, p.keys.HasSharedSecret())
}

func TestNegotiator_TransportFailure(t *testing.T) {
	p := newTestPeer(t, &memRelay{}, "A")
	p.run(context.Background())
	waitState(t, p.n, StateAwaitingPeer)

	p.factory.Last().cfg.OnStateChange(pion.PeerConnectionStateFailed)
	assert.ErrorIs(t, p.wait(t), ErrTransportFailed)
}

func TestNegotiator_RemoteHangup(t *testing.T) {
	p := newTestPeer(t, &memRelay{}, "A")
	p.run(context.Background())
	waitState(t, p.n, StateAwaitingPeer)

	p.factory.Last().cfg.OnHangup()
	assert.ErrorIs(t, p.wait(t), ErrHangup)
}

func TestNegotiator_SignalingLostBeforeConnect(t *testing.T) {
	p := newTestPeer(t, &memRelay{}, "A")
	p.run(context.Background())
	waitState(t, p.n, StateAwaitingPeer)

	p.sig.Drop()
	assert.ErrorIs(t, p.wait(t), ErrSignalingClosed)
}

func TestNegotiator_SignalingLostAfterConnectKeepsCall(t *testing.T) {
	p := newTestPeer(t, &memRelay{}, "A")
	ctx, cancel := context.WithCancel(context.Background())
	p.run(ctx)
	waitState(t, p.n, StateAwaitingPeer)

	p.factory.Last().cfg.OnStateChange(pion.PeerConnectionStateConnected)
	waitState(t, p.n, StateConnected)
	p.sig.Drop()

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, StateConnected, p.n.State())
	cancel()
	assert.NoError(t, p.wait(t))
}

func TestNegotiator_TransportFactoryError(t *testing.T) {
	p := newTestPeer(t, &memRelay{}, "A")
	p.factory.err = errors.New("no network")
	p.run(context.Background())

	err := p.wait(t)
	var connErr *ConnectionError
	require.ErrorAs(t, err, &connErr)
	assert.Equal(t, "create media transport", connErr.Op)
}

func TestNegotiator_LocalHangupDuringEventEndsCleanly(t *testing.T) {
	// Closing the transport reports Closed while Run is still busy with an
	// earlier event; the report must not turn the hangup into a failure.
	for i := 0; i < 50; i++ {
		p := newTestPeer(t, &memRelay{}, "A")
		p.factory.reportClose = true
		p.run(context.Background())
		waitState(t, p.n, StateAwaitingPeer)

		busy := make(chan struct{})
		release := make(chan struct{})
		p.n.post(func() error {
			close(busy)
			<-release
			return nil
		})
		<-busy

		require.NoError(t, p.n.Hangup())
		close(release)
		require.NoError(t, p.wait(t), "iteration %d", i)
		assert.True(t, p.factory.Last().hungUp)
	}
}

func TestNegotiator_ClosedTransportWithoutHangupIsFatal(t *testing.T) {
	p := newTestPeer(t, &memRelay{}, "A")
	p.run(context.Background())
	waitState(t, p.n, StateAwaitingPeer)

	p.factory.Last().cfg.OnStateChange(pion.PeerConnectionStateClosed)
	assert.ErrorIs(t, p.wait(t), ErrTransportFailed)
}

func TestNegotiator_HangupAndCloseIdempotent(t *testing.T) {
	p := newTestPeer(t, &memRelay{}, "A")
	require.NoError(t, p.n.HandleMessage(&signaling.Message{Type: signaling.TypeConfigICE}))

	require.NoError(t, p.n.Hangup())
	require.NoError(t, p.n.Close())
	tr := p.factory.Last()
	assert.True(t, tr.hungUp)
	assert.Equal(t, 1, tr.closed)
	assert.Equal(t, StateClosed, p.n.State())
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
	_, err = New(Config{RoomID: "r", Signaler: (&memRelay{}).Peer()})
	assert.Error(t, err)
}

func TestConnectionError_Format(t *testing.T) {
	err := WrapError("join room", ErrRoomFull, "ABC123")
	assert.Equal(t, "join room: room is full (ABC123)", err.Error())
	assert.Equal(t, "peer: peer left the room", NewError("peer", ErrPeerLeft).Error())
}
