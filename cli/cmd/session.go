package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/talkr-dev/talkr/cli/internal/config"
	"github.com/talkr-dev/talkr/cli/internal/crypto"
	"github.com/talkr-dev/talkr/cli/internal/e2ee"
	"github.com/talkr-dev/talkr/cli/internal/media"
	"github.com/talkr-dev/talkr/cli/internal/session"
	"github.com/talkr-dev/talkr/cli/internal/signaling"
	"github.com/talkr-dev/talkr/cli/internal/ui"
	"github.com/talkr-dev/talkr/cli/internal/utils"
	"github.com/talkr-dev/talkr/cli/internal/webrtc"
	"github.com/talkr-dev/talkr/internal/metrics"
)

// call gathers what one run of new or join needs.
type call struct {
	cfg     *config.Config
	roomID  string
	created bool
	logger  *slog.Logger

	client *signaling.Client
	keys   *crypto.Engine
	frames *e2ee.Transformer
	sink   *media.CounterSink
	n      *session.Negotiator

	mu          sync.Mutex
	peer        string
	connectedAt time.Time
	hungUp      bool
}

func LoadConfig() (*config.Config, error) {
	cfg, err := config.Load(config.Options{
		Server:     flagServer,
		STUNServer: flagSTUN,
		TURNServer: flagTURN,
		TURNUser:   flagTURNUser,
		TURNPass:   flagTURNPass,
		ForceRelay: flagRelay,
	})
	if err != nil {
		return nil, session.NewError("load config", err)
	}
	if !cfg.ForceRelay && utils.ShouldForceRelay() {
		ui.PrintWarning("VPN or CGNAT interface detected, media will use TURN when the relay offers it")
		cfg.ForceRelay = true
	}
	return cfg, nil
}

func videoSource() (media.Source, error) {
	if flagVideo == "" {
		return &media.PatternSource{FPS: 30, FrameSize: 1200}, nil
	}
	src := &media.IVFSource{Path: flagVideo, Loop: true}
	if err := src.Probe(); err != nil {
		return nil, session.WrapError("open video", err, flagVideo)
	}
	return src, nil
}

func runCall(ctx context.Context, roomID string, created bool) error {
	cfg, err := LoadConfig()
	if err != nil {
		return err
	}
	src, err := videoSource()
	if err != nil {
		return err
	}

	c := &call{
		cfg:     cfg,
		roomID:  roomID,
		created: created,
		logger:  slog.Default().With("room", roomID),
		sink:    &media.CounterSink{},
	}

	var sp *ui.LineSpinner
	if flagPlain {
		sp = ui.NewConnectionSpinner("Connecting to relay...")
		sp.Start()
	}
	c.client = signaling.NewClient(cfg.WebSocketURL, c.logger)
	if err := c.client.Connect(ctx); err != nil {
		if sp != nil {
			sp.Error("Could not reach the relay")
		}
		return session.WrapError("connect to relay", err, cfg.WebSocketURL)
	}
	defer c.client.Close()
	if sp != nil {
		sp.Success("Connected to relay")
	}

	c.keys = crypto.NewEngine(c.logger)
	c.frames = e2ee.NewTransformer(c.keys, metrics.New(), c.logger)

	pionFactory := session.NewPionFactory(session.PionOptions{
		Transformer: c.frames,
		Source:      src,
		Sink:        c.sink,
		ForceRelay:  cfg.ForceRelay,
		OnPeerInfo:  c.setPeer,
		Logger:      c.logger,
	})
	c.n, err = session.New(session.Config{
		RoomID:   roomID,
		Signaler: c.client,
		Keys:     c.keys,
		NewTransport: func(tc session.TransportConfig) (session.MediaTransport, error) {
			tc.ICEServers = cfg.ICEServers(tc.ICEServers)
			return pionFactory(tc)
		},
		Logger: c.logger,
	})
	if err != nil {
		return err
	}
	c.n.OnStateChange(func(s session.State) {
		if s == session.StateConnected {
			c.mu.Lock()
			if c.connectedAt.IsZero() {
				c.connectedAt = time.Now()
			}
			c.mu.Unlock()
		}
	})

	var screen *ui.CallUI
	if flagPlain {
		c.watchPlain()
	} else {
		screen = ui.NewCallUI(c.snapshot, c.hangup)
		screen.Start()
	}

	// An interrupt hangs up so the peer is told instead of timing out.
	stop := context.AfterFunc(ctx, c.hangup)
	defer stop()

	runErr := c.n.Run(context.WithoutCancel(ctx))
	if screen != nil {
		screen.Stop()
	}
	return c.finish(runErr)
}

// watchPlain prints one line per state instead of running the screen.
func (c *call) watchPlain() {
	var (
		mu      sync.Mutex
		waiting *ui.LineSpinner
	)
	stopWaiting := func() {
		if waiting != nil {
			waiting.Stop()
			waiting = nil
		}
	}

	c.n.OnStateChange(func(s session.State) {
		mu.Lock()
		defer mu.Unlock()

		switch s {
		case session.StateAwaitingPeer:
			if c.created {
				fmt.Println(ui.NewRoomInfo(c.roomID, c.cfg.RoomLink(c.roomID)).View())
			}
			waiting = ui.NewWaitingSpinner("Waiting for peer to join...")
			waiting.Start()
		case session.StateKeyExchanging:
			stopWaiting()
			ui.PrintInfo(ui.IconPeer + " Peer joined, exchanging keys")
		case session.StateMediaNegotiating:
			stopWaiting()
			ui.PrintInfof("%s Shared key agreed (%s), setting up media", ui.IconLock, c.n.Role())
		case session.StateConnected:
			ui.PrintSuccess("Connected. Press Ctrl+C to hang up")
		case session.StateClosed:
			stopWaiting()
		}
	})
}

func (c *call) setPeer(info webrtc.DeviceInfoPayload) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.peer = info.DeviceName
	if info.DeviceVersion != "" {
		c.peer += " " + info.DeviceVersion
	}
	c.logger.Info("peer device", "name", info.DeviceName, "version", info.DeviceVersion)
}

func (c *call) hangup() {
	c.mu.Lock()
	c.hungUp = true
	c.mu.Unlock()
	if err := c.n.Hangup(); err != nil {
		c.logger.Debug("hangup", "error", err)
	}
}

func (c *call) snapshot() ui.CallSnapshot {
	c.mu.Lock()
	peer := c.peer
	c.mu.Unlock()

	stats := c.frames.Stats()
	sink := c.sink.Stats()
	return ui.CallSnapshot{
		RoomID:         c.roomID,
		RoomLink:       c.cfg.RoomLink(c.roomID),
		ShowRoom:       c.created,
		Role:           c.n.Role().String(),
		State:          c.n.State().String(),
		Encrypted:      c.keys.HasSharedSecret(),
		Peer:           peer,
		FramesSent:     stats.Encrypted,
		FramesReceived: sink.Frames,
		BytesReceived:  sink.Bytes,
		Dropped:        stats.DroppedAuth + stats.DroppedMalformed,
	}
}

// finish prints the summary and turns a normal ending into a nil error.
func (c *call) finish(runErr error) error {
	c.mu.Lock()
	connectedAt, hungUp := c.connectedAt, c.hungUp
	c.mu.Unlock()

	var outcome string
	switch {
	case runErr == nil && hungUp:
		outcome = "you hung up"
	case runErr == nil:
		outcome = "ended"
	case errors.Is(runErr, session.ErrHangup):
		outcome = "peer hung up"
		runErr = nil
	case errors.Is(runErr, session.ErrPeerLeft):
		outcome = "peer left"
	default:
		outcome = "failed"
	}

	if connectedAt.IsZero() {
		return runErr
	}

	snap := c.snapshot()
	fmt.Println()
	ui.RenderCallSummary(ui.IconCall+" Call Summary", ui.CallSummary{
		RoomID:         c.roomID,
		Role:           snap.Role,
		Peer:           snap.Peer,
		Outcome:        outcome,
		Duration:       time.Since(connectedAt),
		FramesSent:     snap.FramesSent,
		FramesReceived: snap.FramesReceived,
		BytesReceived:  snap.BytesReceived,
		Dropped:        snap.Dropped,
	})
	return runErr
}
