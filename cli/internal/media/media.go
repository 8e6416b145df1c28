// Package media produces encoded video frames for the call and consumes the
// ones that come back. Capture and rendering stay outside the process: a
// source reads pre-encoded VP8, a sink counts what it is handed.
package media

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/talkr-dev/talkr/cli/internal/e2ee"
)

// Source emits encoded frames into out, pacing them in real time, until ctx
// is done or the source runs dry. It closes out on return.
type Source interface {
	Run(ctx context.Context, out chan<- *e2ee.Frame) error
	// Codec is the MIME type of the frames, e.g. video/VP8.
	Codec() string
}

// Sink consumes decrypted remote frames until in is closed or ctx is done.
type Sink interface {
	Consume(ctx context.Context, in <-chan *e2ee.Frame)
}

// CounterSink keeps totals of what it receives. It stands in for a renderer.
type CounterSink struct {
	frames   atomic.Uint64
	bytes    atomic.Uint64
	lastSeen atomic.Int64
}

func (s *CounterSink) Consume(ctx context.Context, in <-chan *e2ee.Frame) {
	for {
		select {
		case <-ctx.Done():
			return
		case f, ok := <-in:
			if !ok {
				return
			}
			s.frames.Add(1)
			s.bytes.Add(uint64(len(f.Data)))
			s.lastSeen.Store(time.Now().UnixNano())
		}
	}
}

type SinkStats struct {
	Frames   uint64
	Bytes    uint64
	LastSeen time.Time
}

func (s *CounterSink) Stats() SinkStats {
	st := SinkStats{
		Frames: s.frames.Load(),
		Bytes:  s.bytes.Load(),
	}
	if ns := s.lastSeen.Load(); ns != 0 {
		st.LastSeen = time.Unix(0, ns)
	}
	return st
}
