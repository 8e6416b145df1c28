package signaling

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRegistry_JoinSequence(t *testing.T) {
	r := NewRegistry()
	a, b, c := &Client{ID: "a"}, &Client{ID: "b"}, &Client{ID: "c"}

	res, others := r.Join("ABC123", a)
	assert.Equal(t, JoinCreated, res)
	assert.Empty(t, others)

	res, others = r.Join("ABC123", b)
	assert.Equal(t, JoinPaired, res)
	assert.Equal(t, []*Client{a}, others)

	res, others = r.Join("ABC123", c)
	assert.Equal(t, JoinFull, res)
	assert.Nil(t, others)
	assert.Equal(t, 2, r.Size("ABC123"))
	assert.Nil(t, r.Peers("ABC123", c), "rejected client must not be a member")

	res, _ = r.Join("ABC123", a)
	assert.Equal(t, JoinAlreadyMember, res)
	assert.Equal(t, 2, r.Size("ABC123"))
}

func TestRegistry_LeaveDeletesEmptyRoom(t *testing.T) {
	r := NewRegistry()
	a, b := &Client{ID: "a"}, &Client{ID: "b"}
	r.Join("room", a)
	r.Join("room", b)

	remaining, deleted := r.Leave("room", a)
	assert.False(t, deleted)
	assert.Equal(t, []*Client{b}, remaining)
	assert.Equal(t, 1, r.Size("room"))

	remaining, deleted = r.Leave("room", b)
	assert.True(t, deleted)
	assert.Empty(t, remaining)
	assert.Equal(t, 0, r.Len())

	_, deleted = r.Leave("room", b)
	assert.False(t, deleted)
}

func TestRegistry_SlotFreedAfterLeave(t *testing.T) {
	r := NewRegistry()
	a, b, c := &Client{ID: "a"}, &Client{ID: "b"}, &Client{ID: "c"}
	r.Join("room", a)
	r.Join("room", b)
	r.Leave("room", b)

	res, others := r.Join("room", c)
	assert.Equal(t, JoinPaired, res)
	assert.Equal(t, []*Client{a}, others)
}

func TestRegistry_SizeNeverExceedsTwo(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	var mu sync.Mutex
	accepted := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, _ := r.Join("crowded", &Client{ID: fmt.Sprint(i)})
			if res != JoinFull {
				mu.Lock()
				accepted++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, MaxRoomSize, accepted)
	assert.Equal(t, MaxRoomSize, r.Size("crowded"))
}
