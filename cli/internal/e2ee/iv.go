package e2ee

import (
	"encoding/binary"

	"github.com/talkr-dev/talkr/cli/internal/crypto"
)

// BuildIV lays the frame counter out little-endian in the first four bytes of
// a 12-byte AES-GCM nonce. The remaining bytes stay zero.
func BuildIV(counter uint32) [crypto.IVSize]byte {
	var iv [crypto.IVSize]byte
	binary.LittleEndian.PutUint32(iv[:4], counter)
	return iv
}
