package e2ee

import "github.com/talkr-dev/talkr/internal/metrics"

// Counter names recorded by a Transformer.
const (
	CounterEncrypted         = "frames_encrypted"
	CounterDecrypted         = "frames_decrypted"
	CounterDroppedNoKeySend  = "frames_dropped_no_key_send"
	CounterDroppedNoKeyRecv  = "frames_dropped_no_key_recv"
	CounterDroppedAuth       = "frames_dropped_auth"
	CounterDroppedMalformed  = "frames_dropped_malformed"
	CounterDroppedSealFailed = "frames_dropped_seal"
)

// Stats is a point-in-time view of the pipeline counters.
type Stats struct {
	Encrypted        uint64
	Decrypted        uint64
	DroppedNoKeySend uint64
	DroppedNoKeyRecv uint64
	DroppedAuth      uint64
	DroppedMalformed uint64
	DroppedSeal      uint64
}

func (s Stats) Dropped() uint64 {
	return s.DroppedNoKeySend + s.DroppedNoKeyRecv + s.DroppedAuth + s.DroppedMalformed + s.DroppedSeal
}

func statsFrom(m *metrics.Metrics) Stats {
	return Stats{
		Encrypted:        m.Get(CounterEncrypted),
		Decrypted:        m.Get(CounterDecrypted),
		DroppedNoKeySend: m.Get(CounterDroppedNoKeySend),
		DroppedNoKeyRecv: m.Get(CounterDroppedNoKeyRecv),
		DroppedAuth:      m.Get(CounterDroppedAuth),
		DroppedMalformed: m.Get(CounterDroppedMalformed),
		DroppedSeal:      m.Get(CounterDroppedSealFailed),
	}
}
