package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/pion/interceptor"
	"github.com/pion/rtp/codecs"
	"github.com/pion/transport/v3"
	pion "github.com/pion/webrtc/v4"
	pionmedia "github.com/pion/webrtc/v4/pkg/media"
	"github.com/pion/webrtc/v4/pkg/media/samplebuilder"

	"github.com/talkr-dev/talkr/cli/internal/e2ee"
	"github.com/talkr-dev/talkr/cli/internal/media"
	"github.com/talkr-dev/talkr/cli/internal/webrtc"
)

// Packets a frame may wait for its missing pieces before it is given up.
const maxLatePackets = 128

// PionOptions configures the pion-backed MediaTransport.
type PionOptions struct {
	// Transformer seals outgoing and opens incoming frames. Required.
	Transformer *e2ee.Transformer

	// Source feeds the local video track. Nil makes the call receive-only.
	Source media.Source
	// Sink receives decrypted remote frames. Nil discards them.
	Sink media.Sink

	// ForceRelay limits ICE to TURN candidates when a TURN server is known.
	ForceRelay bool

	// Net replaces the OS network, e.g. with a pion vnet in tests.
	Net transport.Net

	OnPeerInfo func(webrtc.DeviceInfoPayload)
	Logger     *slog.Logger
}

// NewPionFactory returns a TransportFactory that builds real peer
// connections. The frame pipeline is attached to the tracks as they are
// created, so no frame bypasses it.
func NewPionFactory(opts PionOptions) TransportFactory {
	return func(cfg TransportConfig) (MediaTransport, error) {
		return newPionTransport(opts, cfg)
	}
}

type pionTransport struct {
	pc      *pion.PeerConnection
	control *webrtc.ControlChannel
	opts    PionOptions
	logger  *slog.Logger

	// life guards cancel against wg.Add so no worker starts once Close is
	// waiting on wg.
	life      sync.Mutex
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once

	mu        sync.Mutex
	remoteSet bool
	pending   []pion.ICECandidateInit
}

func newPionTransport(opts PionOptions, cfg TransportConfig) (*pionTransport, error) {
	if opts.Transformer == nil {
		return nil, errors.New("pion transport: transformer is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	api, err := newAPI(opts, logger)
	if err != nil {
		return nil, err
	}

	policy := pion.ICETransportPolicyAll
	if opts.ForceRelay && hasTURN(cfg.ICEServers) {
		policy = pion.ICETransportPolicyRelay
		logger.Info("forcing TURN relay for media")
	}

	pc, err := api.NewPeerConnection(pion.Configuration{
		ICEServers:         cfg.ICEServers,
		ICETransportPolicy: policy,
	})
	if err != nil {
		return nil, fmt.Errorf("create peer connection: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t := &pionTransport{
		pc:     pc,
		opts:   opts,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}

	pc.OnICECandidate(func(c *pion.ICECandidate) {
		if c == nil || cfg.OnICECandidate == nil {
			return
		}
		cfg.OnICECandidate(c.ToJSON())
	})
	pc.OnConnectionStateChange(func(s pion.PeerConnectionState) {
		if cfg.OnStateChange != nil {
			cfg.OnStateChange(s)
		}
	})
	pc.OnTrack(t.handleTrack)

	onInfo := opts.OnPeerInfo
	if onInfo == nil {
		onInfo = func(info webrtc.DeviceInfoPayload) {
			logger.Info("peer device", "name", info.DeviceName, "version", info.DeviceVersion)
		}
	}
	t.control, err = webrtc.OpenControlChannel(pc, webrtc.ControlHandlers{
		OnDeviceInfo: onInfo,
		OnHangup:     cfg.OnHangup,
	}, logger)
	if err != nil {
		t.Close()
		return nil, err
	}

	if err := t.attachSource(); err != nil {
		t.Close()
		return nil, err
	}
	if opts.Source == nil {
		if _, err := pc.AddTransceiverFromKind(pion.RTPCodecTypeVideo, pion.RTPTransceiverInit{
			Direction: pion.RTPTransceiverDirectionRecvonly,
		}); err != nil {
			t.Close()
			return nil, fmt.Errorf("add video transceiver: %w", err)
		}
	}
	return t, nil
}

func newAPI(opts PionOptions, logger *slog.Logger) (*pion.API, error) {
	se := pion.SettingEngine{LoggerFactory: newLoggerFactory(logger)}
	if opts.Net != nil {
		se.SetNet(opts.Net)
	}

	me := &pion.MediaEngine{}
	if err := me.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("register codecs: %w", err)
	}
	ir := &interceptor.Registry{}
	if err := pion.RegisterDefaultInterceptors(me, ir); err != nil {
		return nil, fmt.Errorf("register interceptors: %w", err)
	}

	return pion.NewAPI(
		pion.WithSettingEngine(se),
		pion.WithMediaEngine(me),
		pion.WithInterceptorRegistry(ir),
	), nil
}

// attachSource adds the local video track and starts the
// source -> encrypt -> track pump.
func (t *pionTransport) attachSource() error {
	src := t.opts.Source
	if src == nil {
		return nil
	}

	track, err := pion.NewTrackLocalStaticSample(
		pion.RTPCodecCapability{MimeType: src.Codec(), ClockRate: 90000},
		"video", "talkr",
	)
	if err != nil {
		return fmt.Errorf("create video track: %w", err)
	}
	sender, err := t.pc.AddTrack(track)
	if err != nil {
		return fmt.Errorf("add video track: %w", err)
	}

	if !t.reserve(4) {
		return nil
	}
	// RTCP has to be read for the interceptors to work.
	go func() {
		defer t.wg.Done()
		buf := make([]byte, 1500)
		for {
			if _, _, err := sender.Read(buf); err != nil {
				return
			}
		}
	}()

	raw := make(chan *e2ee.Frame, 8)
	sealed := make(chan *e2ee.Frame, 8)

	go func() {
		defer t.wg.Done()
		if err := src.Run(t.ctx, raw); err != nil {
			t.logger.Warn("video source stopped", "error", err)
		}
	}()
	go func() {
		defer t.wg.Done()
		t.opts.Transformer.SenderTransform()(t.ctx, raw, sealed)
	}()
	go func() {
		defer t.wg.Done()
		for f := range sealed {
			if err := track.WriteSample(pionmedia.Sample{Data: f.Data, Duration: f.Duration}); err != nil {
				t.logger.Debug("write sample", "error", err)
			}
		}
	}()
	return nil
}

// handleTrack reassembles remote frames and runs them through the receive
// pipeline into the sink.
func (t *pionTransport) handleTrack(remote *pion.TrackRemote, _ *pion.RTPReceiver) {
	codec := remote.Codec()
	if remote.Kind() != pion.RTPCodecTypeVideo || !strings.EqualFold(codec.MimeType, pion.MimeTypeVP8) {
		t.logger.Warn("ignoring remote track", "kind", remote.Kind().String(), "codec", codec.MimeType)
		return
	}
	t.logger.Debug("remote video track", "ssrc", uint32(remote.SSRC()))

	if !t.reserve(2) {
		return
	}
	sb := samplebuilder.New(maxLatePackets, &codecs.VP8Packet{}, codec.ClockRate)
	frames := make(chan *e2ee.Frame, 32)
	plain := make(chan *e2ee.Frame, 32)

	go func() {
		defer t.wg.Done()
		t.opts.Transformer.ReceiverTransform()(t.ctx, frames, plain)
	}()
	go func() {
		defer t.wg.Done()
		if t.opts.Sink != nil {
			t.opts.Sink.Consume(t.ctx, plain)
		}
		for range plain {
		}
	}()

	defer close(frames)
	for {
		pkt, _, err := remote.ReadRTP()
		if err != nil {
			return
		}
		sb.Push(pkt)
		for s := sb.Pop(); s != nil; s = sb.Pop() {
			select {
			case frames <- &e2ee.Frame{Data: s.Data, Duration: s.Duration, Timestamp: s.PacketTimestamp}:
			case <-t.ctx.Done():
				return
			}
		}
	}
}

func (t *pionTransport) CreateOffer() (pion.SessionDescription, error) {
	offer, err := t.pc.CreateOffer(nil)
	if err != nil {
		return pion.SessionDescription{}, err
	}
	if err := t.pc.SetLocalDescription(offer); err != nil {
		return pion.SessionDescription{}, fmt.Errorf("set local description: %w", err)
	}
	return offer, nil
}

func (t *pionTransport) CreateAnswer() (pion.SessionDescription, error) {
	answer, err := t.pc.CreateAnswer(nil)
	if err != nil {
		return pion.SessionDescription{}, err
	}
	if err := t.pc.SetLocalDescription(answer); err != nil {
		return pion.SessionDescription{}, fmt.Errorf("set local description: %w", err)
	}
	return answer, nil
}

func (t *pionTransport) SetRemoteDescription(desc pion.SessionDescription) error {
	if err := t.pc.SetRemoteDescription(desc); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.remoteSet = true
	for _, c := range t.pending {
		if err := t.pc.AddICECandidate(c); err != nil {
			t.logger.Warn("dropping queued ICE candidate", "error", err)
		}
	}
	t.pending = nil
	return nil
}

func (t *pionTransport) AddICECandidate(c pion.ICECandidateInit) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.remoteSet {
		t.pending = append(t.pending, c)
		return nil
	}
	return t.pc.AddICECandidate(c)
}

func (t *pionTransport) Hangup() error {
	return t.control.Hangup()
}

// reserve adds n workers to wg. It reports false once the transport is
// closing.
func (t *pionTransport) reserve(n int) bool {
	t.life.Lock()
	defer t.life.Unlock()
	if t.ctx.Err() != nil {
		return false
	}
	t.wg.Add(n)
	return true
}

func (t *pionTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		t.life.Lock()
		t.cancel()
		t.life.Unlock()
		err = t.pc.Close()
		t.wg.Wait()
	})
	return err
}

func hasTURN(servers []pion.ICEServer) bool {
	for _, s := range servers {
		for _, u := range s.URLs {
			if strings.HasPrefix(u, "turn:") || strings.HasPrefix(u, "turns:") {
				return true
			}
		}
	}
	return false
}
