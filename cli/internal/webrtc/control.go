// Package webrtc runs the call's control data channel, a side channel next to
// the media tracks that carries msgpack messages between the two CLIs.
package webrtc

import (
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"sync"
	"time"

	pion "github.com/pion/webrtc/v4"

	"github.com/talkr-dev/talkr/internal/version"
)

const (
	ControlChannelLabel        = "control"
	ControlChannelID    uint16 = 0

	// How long Hangup waits for the message to leave the send buffer.
	hangupFlushTimeout = 500 * time.Millisecond
)

// ControlHandlers receives what the remote peer sends.
type ControlHandlers struct {
	OnDeviceInfo func(DeviceInfoPayload)
	OnHangup     func()
}

// ControlChannel wraps the pre-negotiated control data channel.
type ControlChannel struct {
	dc       *pion.DataChannel
	handlers ControlHandlers
	logger   *slog.Logger

	mu     sync.Mutex
	open   bool
	hungUp bool
}

// OpenControlChannel creates the negotiated channel on pc. Both peers call it
// with the same id, so neither waits for OnDataChannel.
func OpenControlChannel(pc *pion.PeerConnection, handlers ControlHandlers, logger *slog.Logger) (*ControlChannel, error) {
	if logger == nil {
		logger = slog.Default()
	}
	negotiated := true
	ordered := true
	id := ControlChannelID

	dc, err := pc.CreateDataChannel(ControlChannelLabel, &pion.DataChannelInit{
		Negotiated: &negotiated,
		ID:         &id,
		Ordered:    &ordered,
	})
	if err != nil {
		return nil, fmt.Errorf("create control channel: %w", err)
	}

	c := &ControlChannel{dc: dc, handlers: handlers, logger: logger}
	dc.OnOpen(c.handleOpen)
	dc.OnMessage(c.handleMessage)
	return c, nil
}

func (c *ControlChannel) handleOpen() {
	c.mu.Lock()
	c.open = true
	c.mu.Unlock()

	if err := c.send(TypeDeviceInfo, LocalDeviceInfo()); err != nil {
		c.logger.Debug("send device info", "error", err)
	}
}

func (c *ControlChannel) handleMessage(raw pion.DataChannelMessage) {
	if raw.IsString {
		return
	}
	msg, err := Decode(raw.Data)
	if err != nil {
		c.logger.Debug("ignoring control message", "error", err)
		return
	}

	switch msg.Type {
	case TypeDeviceInfo:
		var info DeviceInfoPayload
		if err := msg.DecodePayload(&info); err != nil {
			c.logger.Debug("bad device info", "error", err)
			return
		}
		if c.handlers.OnDeviceInfo != nil {
			c.handlers.OnDeviceInfo(info)
		}
	case TypeHangup:
		if c.handlers.OnHangup != nil {
			c.handlers.OnHangup()
		}
	default:
		c.logger.Debug("ignoring control message", "type", msg.Type)
	}
}

// Hangup tells the peer the call is over. It is a no-op before the channel
// opens and after the first call.
func (c *ControlChannel) Hangup() error {
	c.mu.Lock()
	if !c.open || c.hungUp {
		c.mu.Unlock()
		return nil
	}
	c.hungUp = true
	c.mu.Unlock()

	if err := c.send(TypeHangup, nil); err != nil {
		return err
	}
	deadline := time.Now().Add(hangupFlushTimeout)
	for c.dc.BufferedAmount() > 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	return nil
}

func (c *ControlChannel) send(t string, payload any) error {
	msg, err := NewMessage(t, payload)
	if err != nil {
		return err
	}
	data, err := Encode(msg)
	if err != nil {
		return err
	}
	return c.dc.Send(data)
}

// LocalDeviceInfo describes this binary to the peer.
func LocalDeviceInfo() DeviceInfoPayload {
	name, err := os.Hostname()
	if err != nil || name == "" {
		name = runtime.GOOS
	}
	return DeviceInfoPayload{
		DeviceName:    fmt.Sprintf("talkr-cli (%s/%s, %s)", runtime.GOOS, runtime.GOARCH, name),
		DeviceVersion: version.Version,
	}
}
