// Package e2ee applies the session key to encoded media frames. Frames are
// dropped, never queued, while the handshake is incomplete.
package e2ee

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/talkr-dev/talkr/cli/internal/crypto"
	"github.com/talkr-dev/talkr/internal/metrics"
)

// Frame is one encoded media frame moving through a stage.
type Frame struct {
	Data     []byte
	Duration time.Duration
	// Timestamp is the RTP timestamp of the frame when it came off the wire.
	Timestamp uint32
}

// KeyStore is the part of the key agreement the pipeline needs.
type KeyStore interface {
	HasSharedSecret() bool
	Encrypt(plaintext, iv []byte) ([]byte, error)
	Decrypt(ciphertext, iv []byte) ([]byte, error)
}

// Stage reads frames from in and writes transformed frames to out, in input
// order, until in is closed or ctx is done. It closes out on return.
type Stage func(ctx context.Context, in <-chan *Frame, out chan<- *Frame)

// Transformer holds the sender-side frame counter shared by every outgoing
// video track of a session.
type Transformer struct {
	keys    KeyStore
	counter atomic.Uint32
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func NewTransformer(keys KeyStore, m *metrics.Metrics, logger *slog.Logger) *Transformer {
	if m == nil {
		m = metrics.New()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Transformer{
		keys:    keys,
		metrics: m,
		logger:  logger,
	}
}

// EncryptFrame seals f and returns IV || ciphertext. ok is false when the frame
// was dropped; the counter only advances for frames that are sealed.
func (t *Transformer) EncryptFrame(f *Frame) (*Frame, bool) {
	if !t.keys.HasSharedSecret() {
		t.metrics.Inc(CounterDroppedNoKeySend)
		return nil, false
	}

	iv := BuildIV(t.counter.Add(1) - 1)
	sealed, err := t.keys.Encrypt(f.Data, iv[:])
	if err != nil {
		t.metrics.Inc(CounterDroppedSealFailed)
		t.logger.Debug("dropping outgoing frame", "error", err)
		return nil, false
	}

	data := make([]byte, len(iv)+len(sealed))
	copy(data, iv[:])
	copy(data[len(iv):], sealed)

	t.metrics.Inc(CounterEncrypted)
	return &Frame{Data: data, Duration: f.Duration, Timestamp: f.Timestamp}, true
}

// DecryptFrame opens an IV || ciphertext frame. Every failure drops the frame
// silently; a burst of failures is normal before the handshake settles.
func (t *Transformer) DecryptFrame(f *Frame) (*Frame, bool) {
	if !t.keys.HasSharedSecret() {
		t.metrics.Inc(CounterDroppedNoKeyRecv)
		return nil, false
	}
	if len(f.Data) < crypto.IVSize {
		t.metrics.Inc(CounterDroppedMalformed)
		return nil, false
	}

	iv := f.Data[:crypto.IVSize]
	plaintext, err := t.keys.Decrypt(f.Data[crypto.IVSize:], iv)
	if err != nil {
		if errors.Is(err, crypto.ErrAuthenticationFailure) {
			t.metrics.Inc(CounterDroppedAuth)
		} else {
			t.metrics.Inc(CounterDroppedMalformed)
		}
		return nil, false
	}

	t.metrics.Inc(CounterDecrypted)
	return &Frame{Data: plaintext, Duration: f.Duration, Timestamp: f.Timestamp}, true
}

func (t *Transformer) SenderTransform() Stage {
	return t.stage(t.EncryptFrame)
}

func (t *Transformer) ReceiverTransform() Stage {
	return t.stage(t.DecryptFrame)
}

func (t *Transformer) stage(transform func(*Frame) (*Frame, bool)) Stage {
	return func(ctx context.Context, in <-chan *Frame, out chan<- *Frame) {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case f, ok := <-in:
				if !ok {
					return
				}
				res, ok := transform(f)
				if !ok {
					continue
				}
				select {
				case out <- res:
				case <-ctx.Done():
					return
				}
			}
		}
	}
}

// FramesSent is the number of frames sealed so far, which is also the next
// counter value modulo 2^32.
func (t *Transformer) FramesSent() uint32 {
	return t.counter.Load()
}

func (t *Transformer) Stats() Stats {
	return statsFrom(t.metrics)
}
