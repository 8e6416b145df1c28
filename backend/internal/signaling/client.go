package signaling

import (
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait = 10 * time.Second
	// A peer silent for longer than pongWait is dropped.
	pongWait = 60 * time.Second
	// pingPeriod must stay below pongWait.
	pingPeriod = pongWait * 9 / 10

	// SDP with a full candidate list and a JWK fit comfortably.
	maxMessageSize = 64 * 1024

	sendBufferSize = 256
)

// Client is a wrapper for a single websocket connection (a participant).
type Client struct {
	// ID identifies the connection in logs.
	ID string

	// Hub is the hub that manages this client.
	Hub *Hub

	// Conn is the websocket connection.
	Conn *websocket.Conn

	// RoomID is the room the client is a member of. Only the hub goroutine
	// touches it.
	RoomID string

	// Send is a buffered channel for all outbound messages.
	// The hub writes to it, and WritePump drains it onto the websocket.
	Send chan *Message
}

func NewClient(hub *Hub, conn *websocket.Conn) *Client {
	return &Client{
		ID:   uuid.NewString(),
		Hub:  hub,
		Conn: conn,
		Send: make(chan *Message, sendBufferSize),
	}
}

// ReadPump feeds the hub with what the peer sends. It is the connection's only
// reader and unregisters the client when the socket fails.
func (c *Client) ReadPump() {
	defer func() {
		select {
		case c.Hub.Unregister <- c:
		case <-c.Hub.done:
		}
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.Hub.logger.Warn("websocket read failed", "client", c.ID, "error", err)
			}
			return
		}

		msg, err := parseMessage(data)
		if err != nil {
			// A bad message never costs the connection.
			c.Hub.metrics.Inc(CounterMessagesMalformed)
			c.Hub.logger.Warn("ignoring malformed message", "client", c.ID, "error", err)
			continue
		}
		msg.client = c

		select {
		case c.Hub.Broadcast <- msg:
		case <-c.Hub.done:
			return
		}
	}
}

// WritePump owns every write on the connection: queued messages, keepalive
// pings, and the close frame once the hub drops the client.
func (c *Client) WritePump() {
	keepalive := time.NewTicker(pingPeriod)
	defer func() {
		keepalive.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.Send:
			if !ok {
				c.write(websocket.CloseMessage, []byte{})
				return
			}
			data, err := msg.payload()
			if err != nil {
				c.Hub.logger.Error("encode message", "client", c.ID, "error", err)
				continue
			}
			if err := c.write(websocket.TextMessage, data); err != nil {
				c.Hub.logger.Debug("websocket write failed", "client", c.ID, "error", err)
				return
			}
		case <-keepalive.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.Hub.done:
			return
		}
	}
}

func (c *Client) write(messageType int, data []byte) error {
	c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.Conn.WriteMessage(messageType, data)
}
