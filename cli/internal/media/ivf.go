package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media/ivfreader"

	"github.com/talkr-dev/talkr/cli/internal/e2ee"
)

const fourCCVP8 = "VP80"

var (
	ErrUnsupportedCodec = errors.New("unsupported IVF codec")
	ErrNoFrames         = errors.New("IVF file has no frames")
)

// IVFSource plays a VP8 IVF file, for example one produced with
//
//	ffmpeg -i in.mp4 -c:v libvpx -b:v 1M -deadline realtime out.ivf
type IVFSource struct {
	Path string
	// Loop restarts the file at EOF instead of ending the source.
	Loop bool
}

func (s *IVFSource) Codec() string {
	return webrtc.MimeTypeVP8
}

// Probe opens the file and checks its header and first frame without
// playing it.
func (s *IVFSource) Probe() error {
	f, err := os.Open(s.Path)
	if err != nil {
		return err
	}
	defer f.Close()
	reader, _, err := openIVF(f)
	if err != nil {
		return err
	}
	if _, _, err := reader.ParseNextFrame(); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return fmt.Errorf("%s: %w", s.Path, ErrNoFrames)
		}
		return fmt.Errorf("read %s: %w", s.Path, err)
	}
	return nil
}

// Run plays the file into out. A pass that yields no frame ends the source
// with ErrNoFrames, looping or not.
func (s *IVFSource) Run(ctx context.Context, out chan<- *e2ee.Frame) error {
	defer close(out)
	for {
		played, err := s.playOnce(ctx, out)
		if err != nil || ctx.Err() != nil {
			return err
		}
		if played == 0 {
			return fmt.Errorf("%s: %w", s.Path, ErrNoFrames)
		}
		if !s.Loop {
			return nil
		}
	}
}

func (s *IVFSource) playOnce(ctx context.Context, out chan<- *e2ee.Frame) (int, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	reader, header, err := openIVF(f)
	if err != nil {
		return 0, err
	}

	frameDuration := time.Second / 30
	if header.TimebaseDenominator != 0 && header.TimebaseNumerator != 0 {
		frameDuration = time.Duration(int64(time.Second) * int64(header.TimebaseNumerator) / int64(header.TimebaseDenominator))
	}

	ticker := time.NewTicker(frameDuration)
	defer ticker.Stop()

	for played := 0; ; played++ {
		frame, _, err := reader.ParseNextFrame()
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return played, nil
		}
		if err != nil {
			return played, fmt.Errorf("read %s: %w", s.Path, err)
		}

		select {
		case <-ctx.Done():
			return played, nil
		case <-ticker.C:
		}

		select {
		case out <- &e2ee.Frame{Data: frame, Duration: frameDuration}:
		case <-ctx.Done():
			return played, nil
		}
	}
}

func openIVF(r io.Reader) (*ivfreader.IVFReader, *ivfreader.IVFFileHeader, error) {
	reader, header, err := ivfreader.NewWith(r)
	if err != nil {
		return nil, nil, fmt.Errorf("open ivf: %w", err)
	}
	if header.FourCC != fourCCVP8 {
		return nil, nil, fmt.Errorf("%w: %q", ErrUnsupportedCodec, header.FourCC)
	}
	return reader, header, nil
}
