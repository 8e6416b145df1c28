package media

import (
	"bytes"
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talkr-dev/talkr/cli/internal/e2ee"
)

// writeIVF builds a minimal IVF file with a 1 ms timebase.
func writeIVF(t *testing.T, fourCC string, frames [][]byte) string {
	t.Helper()
	var buf bytes.Buffer
	buf.WriteString("DKIF")
	binary.Write(&buf, binary.LittleEndian, uint16(0))  // version
	binary.Write(&buf, binary.LittleEndian, uint16(32)) // header size
	buf.WriteString(fourCC)
	binary.Write(&buf, binary.LittleEndian, uint16(64))   // width
	binary.Write(&buf, binary.LittleEndian, uint16(48))   // height
	binary.Write(&buf, binary.LittleEndian, uint32(1000)) // timebase denominator
	binary.Write(&buf, binary.LittleEndian, uint32(1))    // timebase numerator
	binary.Write(&buf, binary.LittleEndian, uint32(len(frames)))
	binary.Write(&buf, binary.LittleEndian, uint32(0))
	for i, f := range frames {
		binary.Write(&buf, binary.LittleEndian, uint32(len(f)))
		binary.Write(&buf, binary.LittleEndian, uint64(i))
		buf.Write(f)
	}

	path := filepath.Join(t.TempDir(), "clip.ivf")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o600))
	return path
}

func collect(t *testing.T, src Source, ctx context.Context) [][]byte {
	t.Helper()
	out := make(chan *e2ee.Frame)
	errCh := make(chan error, 1)
	go func() { errCh <- src.Run(ctx, out) }()

	var got [][]byte
	for f := range out {
		got = append(got, f.Data)
	}
	require.NoError(t, <-errCh)
	return got
}

func TestIVFSource_PlaysFramesInOrder(t *testing.T) {
	frames := [][]byte{[]byte("frame-0"), []byte("frame-1"), []byte("frame-2")}
	src := &IVFSource{Path: writeIVF(t, "VP80", frames)}
	require.NoError(t, src.Probe())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	assert.Equal(t, frames, collect(t, src, ctx))
}

func TestIVFSource_Loop(t *testing.T) {
	src := &IVFSource{Path: writeIVF(t, "VP80", [][]byte{[]byte("a")}), Loop: true}

	ctx, cancel := context.WithCancel(context.Background())
	out := make(chan *e2ee.Frame)
	go src.Run(ctx, out)

	for i := 0; i < 3; i++ {
		select {
		case f := <-out:
			assert.Equal(t, []byte("a"), f.Data)
		case <-time.After(5 * time.Second):
			t.Fatal("looping source stalled")
		}
	}
	cancel()
	for range out {
	}
}

func TestIVFSource_RejectsOtherCodecs(t *testing.T) {
	src := &IVFSource{Path: writeIVF(t, "AV01", nil)}
	assert.ErrorIs(t, src.Probe(), ErrUnsupportedCodec)
}

func TestIVFSource_HeaderOnlyFile(t *testing.T) {
	path := writeIVF(t, "VP80", nil)
	assert.ErrorIs(t, (&IVFSource{Path: path}).Probe(), ErrNoFrames)

	for _, loop := range []bool{false, true} {
		src := &IVFSource{Path: path, Loop: loop}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		out := make(chan *e2ee.Frame)
		errCh := make(chan error, 1)
		go func() { errCh <- src.Run(ctx, out) }()

		for range out {
			t.Error("header-only file produced a frame")
		}
		select {
		case err := <-errCh:
			assert.ErrorIs(t, err, ErrNoFrames, "loop=%v", loop)
		case <-time.After(5 * time.Second):
			t.Fatalf("Run did not return, loop=%v", loop)
		}
		cancel()
	}
}

func TestIVFSource_MissingFile(t *testing.T) {
	src := &IVFSource{Path: filepath.Join(t.TempDir(), "missing.ivf")}
	assert.Error(t, src.Probe())
}

func TestPatternSource_Sequence(t *testing.T) {
	src := &PatternSource{FPS: 1000, FrameSize: 64, Limit: 5}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	got := collect(t, src, ctx)
	require.Len(t, got, 5)
	for i, data := range got {
		seq, ok := PatternSequence(data)
		require.True(t, ok)
		assert.Equal(t, uint64(i), seq)
		assert.Len(t, data, 64)
	}
}

func TestCounterSink(t *testing.T) {
	in := make(chan *e2ee.Frame, 3)
	in <- &e2ee.Frame{Data: make([]byte, 10)}
	in <- &e2ee.Frame{Data: make([]byte, 20)}
	close(in)

	var sink CounterSink
	sink.Consume(context.Background(), in)

	stats := sink.Stats()
	assert.Equal(t, uint64(2), stats.Frames)
	assert.Equal(t, uint64(30), stats.Bytes)
	assert.False(t, stats.LastSeen.IsZero())
}
