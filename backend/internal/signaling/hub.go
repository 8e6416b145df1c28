package signaling

import (
	"context"
	"log/slog"

	"github.com/talkr-dev/talkr/internal/metrics"
)

// Relay counter names.
const (
	CounterConnectionsOpened = "connections_opened"
	CounterConnectionsClosed = "connections_closed"
	CounterRoomsCreated      = "rooms_created"
	CounterRoomsDeleted      = "rooms_deleted"
	CounterJoinsAccepted     = "joins_accepted"
	CounterJoinsRejectedFull = "joins_rejected_full"
	CounterMessagesRelayed   = "messages_relayed"
	CounterMessagesMalformed = "messages_malformed"
	CounterMessagesNoRoom    = "messages_dropped_not_in_room"
	CounterSendQueueFull     = "send_queue_full"
)

// HubConfig carries the Hub's collaborators.
type HubConfig struct {
	// Registry holds room membership. A fresh one is used when nil.
	Registry *Registry

	// ICEServers returns the list sent in config-ice. It is called once per
	// accepted join so time-limited TURN credentials stay fresh.
	ICEServers func() []ICEServer

	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// Hub is the central brain of the relay.
// A single goroutine running Run owns every room mutation.
type Hub struct {
	registry   *Registry
	iceServers func() []ICEServer
	metrics    *metrics.Metrics
	logger     *slog.Logger

	// Register is a channel for registering new clients.
	Register chan *Client

	// Unregister is a channel for unregistering clients.
	Unregister chan *Client

	// Broadcast carries every message read from any client.
	Broadcast chan *Message

	done chan struct{}
}

func NewHub(cfg HubConfig) *Hub {
	if cfg.Registry == nil {
		cfg.Registry = NewRegistry()
	}
	if cfg.ICEServers == nil {
		cfg.ICEServers = func() []ICEServer { return nil }
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.New()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Hub{
		registry:   cfg.Registry,
		iceServers: cfg.ICEServers,
		metrics:    cfg.Metrics,
		logger:     cfg.Logger,
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		Broadcast:  make(chan *Message),
		done:       make(chan struct{}),
	}
}

func (h *Hub) Registry() *Registry {
	return h.registry
}

func (h *Hub) Metrics() *metrics.Metrics {
	return h.metrics
}

// Done is closed once Run has returned.
func (h *Hub) Done() <-chan struct{} {
	return h.done
}

// Run processes registrations, disconnects and inbound messages until ctx is
// cancelled.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.Register:
			h.handleRegister(client)

		case client := <-h.Unregister:
			h.handleUnregister(client)

		case message := <-h.Broadcast:
			h.handleMessage(message)
		}
	}
}

func (h *Hub) handleRegister(c *Client) {
	h.metrics.Inc(CounterConnectionsOpened)
	h.logger.Debug("client registered", "client", c.ID)
}

func (h *Hub) handleUnregister(c *Client) {
	h.metrics.Inc(CounterConnectionsClosed)
	h.logger.Debug("client unregistered", "client", c.ID)

	h.leave(c)

	// Stops the client's WritePump.
	close(c.Send)
}

func (h *Hub) leave(c *Client) {
	if c.RoomID == "" {
		return
	}
	roomID := c.RoomID
	c.RoomID = ""

	remaining, deleted := h.registry.Leave(roomID, c)
	if deleted {
		h.metrics.Inc(CounterRoomsDeleted)
		h.logger.Info("room deleted", "room", roomID)
		return
	}
	for _, peer := range remaining {
		h.send(peer, &Message{Type: TypePeerLeft, RoomID: roomID})
	}
	h.logger.Info("peer left room", "room", roomID, "client", c.ID)
}

func (h *Hub) handleMessage(msg *Message) {
	c := msg.client
	if msg.Type == TypeJoin {
		h.handleJoin(c, msg.RoomID)
		return
	}

	if c.RoomID == "" {
		h.metrics.Inc(CounterMessagesNoRoom)
		h.logger.Debug("dropping message from client outside any room", "client", c.ID, "type", msg.Type)
		return
	}

	for _, peer := range h.registry.Peers(c.RoomID, c) {
		h.send(peer, &Message{raw: msg.raw})
	}
	h.metrics.Inc(CounterMessagesRelayed)
}

func (h *Hub) handleJoin(c *Client, roomID string) {
	if roomID == "" {
		h.send(c, &Message{Type: TypeError, Error: "roomId is required"})
		return
	}
	if c.RoomID == roomID {
		h.logger.Debug("ignoring repeated join", "room", roomID, "client", c.ID)
		return
	}
	if c.RoomID != "" {
		h.leave(c)
	}

	result, others := h.registry.Join(roomID, c)
	switch result {
	case JoinFull:
		h.metrics.Inc(CounterJoinsRejectedFull)
		h.logger.Info("room join rejected: room is full", "room", roomID, "client", c.ID)
		h.send(c, &Message{Type: TypeFull, RoomID: roomID})
		return
	case JoinCreated:
		h.metrics.Inc(CounterRoomsCreated)
	}

	c.RoomID = roomID
	h.metrics.Inc(CounterJoinsAccepted)
	h.logger.Info("client joined room", "room", roomID, "client", c.ID, "result", result.String())

	h.send(c, &Message{Type: TypeConfigICE, RoomID: roomID, ICEServers: h.iceServers()})

	if result == JoinPaired {
		// The member that was waiting becomes the host.
		for _, peer := range others {
			h.send(peer, &Message{Type: TypeReady, RoomID: roomID})
		}
	}
}

// send never blocks the hub; a client whose queue is full misses the message.
func (h *Hub) send(c *Client, msg *Message) {
	select {
	case c.Send <- msg:
	default:
		h.metrics.Inc(CounterSendQueueFull)
		h.logger.Warn("client send queue full, dropping message", "client", c.ID, "type", msg.Type)
	}
}
