package media

import (
	"context"
	"encoding/binary"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/talkr-dev/talkr/cli/internal/e2ee"
)

// PatternSource emits fixed-size placeholder frames at a steady rate. Each
// frame starts with its sequence number so a receiver can check ordering.
// The payload is opaque; only the pipeline and transport see it.
type PatternSource struct {
	FPS       int
	FrameSize int
	// Limit stops the source after that many frames. Zero runs until
	// cancelled.
	Limit int
}

func (s *PatternSource) Codec() string {
	return webrtc.MimeTypeVP8
}

func (s *PatternSource) Run(ctx context.Context, out chan<- *e2ee.Frame) error {
	defer close(out)

	fps := s.FPS
	if fps <= 0 {
		fps = 30
	}
	size := s.FrameSize
	if size < 8 {
		size = 1200
	}
	interval := time.Second / time.Duration(fps)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for seq := uint64(0); s.Limit == 0 || seq < uint64(s.Limit); seq++ {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		data := make([]byte, size)
		binary.BigEndian.PutUint64(data, seq)
		for i := 8; i < size; i++ {
			data[i] = byte(seq) + byte(i)
		}

		select {
		case out <- &e2ee.Frame{Data: data, Duration: interval}:
		case <-ctx.Done():
			return nil
		}
	}
	return nil
}

// PatternSequence returns the sequence number stamped by PatternSource, or
// false for frames that did not come from one.
func PatternSequence(data []byte) (uint64, bool) {
	if len(data) < 8 {
		return 0, false
	}
	return binary.BigEndian.Uint64(data), true
}
