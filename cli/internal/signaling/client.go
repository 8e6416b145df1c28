package signaling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/talkr-dev/talkr/cli/internal/dns"
)

const (
	writeWait = 10 * time.Second
	// The relay is considered gone after pongWait without a pong.
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10

	maxMessageSize = 64 * 1024
)

// ErrClosed is returned by Send once the connection is gone.
var ErrClosed = errors.New("signaling connection closed")

// Client manages the WebSocket connection to the relay.
type Client struct {
	relayURL string
	logger   *slog.Logger

	ws     *websocket.Conn
	inbox  chan *Message
	outbox chan *Message
	done   chan struct{}
	once   sync.Once

	// NetDial overrides the DNS-fallback dialer, mainly for tests.
	NetDial func(ctx context.Context, network, addr string) (net.Conn, error)
}

// NewClient returns a client for relayURL. Nothing is dialed until Connect.
func NewClient(relayURL string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		relayURL: relayURL,
		logger:   logger,
		inbox:    make(chan *Message, 16),
		outbox:   make(chan *Message, 16),
		done:     make(chan struct{}),
		NetDial:  dns.DialContext,
	}
}

// Connect dials the relay and starts the pumps.
func (c *Client) Connect(ctx context.Context) error {
	u, err := url.Parse(c.relayURL)
	switch {
	case err != nil:
		return fmt.Errorf("invalid server URL: %w", err)
	case u.Scheme != "ws" && u.Scheme != "wss":
		return fmt.Errorf("invalid server URL %q: scheme must be ws or wss", c.relayURL)
	}

	dialer := *websocket.DefaultDialer
	dialer.NetDialContext = c.NetDial

	conn, resp, err := dialer.DialContext(ctx, u.String(), nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", u.Host, err)
	}

	conn.SetReadLimit(maxMessageSize)
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	c.ws = conn

	go c.readPump()
	go c.writePump()

	c.logger.Debug("connected to relay", "url", u.String())
	return nil
}

// readPump decodes relay messages into incoming until the socket fails or
// the client is closed, then closes incoming.
func (c *Client) readPump() {
	defer func() {
		c.shutdown()
		c.ws.Close()
		close(c.inbox)
	}()

	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Debug("relay connection lost", "error", err)
			}
			return
		}

		msg := new(Message)
		if err := json.Unmarshal(data, msg); err != nil || msg.Type == "" {
			c.logger.Warn("ignoring malformed message from relay", "error", err)
			continue
		}

		select {
		case c.inbox <- msg:
		case <-c.done:
			return
		}
	}
}

// writePump is the only writer on the connection: queued messages, pings,
// and the close frame on shutdown.
func (c *Client) writePump() {
	keepalive := time.NewTicker(pingPeriod)
	defer func() {
		keepalive.Stop()
		c.shutdown()
		c.ws.Close()
	}()

	for {
		select {
		case msg := <-c.outbox:
			data, err := json.Marshal(msg)
			if err != nil {
				c.logger.Error("encode message", "type", msg.Type, "error", err)
				continue
			}
			if err := c.write(websocket.TextMessage, data); err != nil {
				c.logger.Debug("relay write failed", "type", msg.Type, "error", err)
				return
			}
		case <-keepalive.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			c.write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

func (c *Client) write(messageType int, data []byte) error {
	c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteMessage(messageType, data)
}

// Send queues msg for the relay.
func (c *Client) Send(msg *Message) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	select {
	case c.outbox <- msg:
		return nil
	case <-c.done:
		return ErrClosed
	}
}

// Incoming is closed when the connection dies.
func (c *Client) Incoming() <-chan *Message {
	return c.inbox
}

// Close sends a close frame and drops the connection. Calling it again is a
// no-op.
func (c *Client) Close() {
	c.shutdown()
}

func (c *Client) shutdown() {
	c.once.Do(func() { close(c.done) })
}
