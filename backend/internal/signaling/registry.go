package signaling

import "sync"

// JoinResult reports what a Registry.Join did.
type JoinResult int

const (
	// JoinCreated means the room did not exist and the client is its only member.
	JoinCreated JoinResult = iota
	// JoinPaired means the client became the second member.
	JoinPaired
	// JoinFull means the room already had two members; the client was not added.
	JoinFull
	// JoinAlreadyMember means the client was already in the room.
	JoinAlreadyMember
)

func (r JoinResult) String() string {
	switch r {
	case JoinCreated:
		return "created"
	case JoinPaired:
		return "paired"
	case JoinFull:
		return "full"
	case JoinAlreadyMember:
		return "already_member"
	default:
		return "unknown"
	}
}

// Registry maps room IDs to rooms. A room exists only while it has members.
// It is owned by a Hub but safe for concurrent use.
type Registry struct {
	mu    sync.Mutex
	rooms map[string]*Room
}

func NewRegistry() *Registry {
	return &Registry{rooms: make(map[string]*Room)}
}

// Join adds c to roomID unless the room is full. It returns the members that
// were already present.
func (r *Registry) Join(roomID string, c *Client) (JoinResult, []*Client) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[roomID]
	if !ok {
		room = &Room{ID: roomID}
		r.rooms[roomID] = room
	}

	switch {
	case room.has(c):
		return JoinAlreadyMember, room.others(c)
	case len(room.Members) >= MaxRoomSize:
		return JoinFull, nil
	}

	others := room.others(c)
	room.Members = append(room.Members, c)
	if len(room.Members) == 1 {
		return JoinCreated, others
	}
	return JoinPaired, others
}

// Leave removes c from roomID and deletes the room when it becomes empty. It
// returns the members left behind.
func (r *Registry) Leave(roomID string, c *Client) (remaining []*Client, deleted bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[roomID]
	if !ok || !room.remove(c) {
		return nil, false
	}
	if len(room.Members) == 0 {
		delete(r.rooms, roomID)
		return nil, true
	}
	return room.others(c), false
}

// Peers returns the members of roomID other than c, or nil when c is not a member.
func (r *Registry) Peers(roomID string, c *Client) []*Client {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[roomID]
	if !ok || !room.has(c) {
		return nil
	}
	return room.others(c)
}

func (r *Registry) Size(roomID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	if room, ok := r.rooms[roomID]; ok {
		return len(room.Members)
	}
	return 0
}

// Len is the number of live rooms.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms)
}
