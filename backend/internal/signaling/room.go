package signaling

// MaxRoomSize is the number of participants a room can hold.
const MaxRoomSize = 2

// Room is a rendezvous point for at most two connections.
type Room struct {
	// ID is the identifier clients join with.
	ID string

	// Members are the joined clients in arrival order.
	Members []*Client
}

func (r *Room) has(c *Client) bool {
	for _, m := range r.Members {
		if m == c {
			return true
		}
	}
	return false
}

func (r *Room) remove(c *Client) bool {
	for i, m := range r.Members {
		if m == c {
			r.Members = append(r.Members[:i], r.Members[i+1:]...)
			return true
		}
	}
	return false
}

// others returns every member except c.
func (r *Room) others(c *Client) []*Client {
	out := make([]*Client, 0, len(r.Members))
	for _, m := range r.Members {
		if m != c {
			out = append(out, m)
		}
	}
	return out
}
