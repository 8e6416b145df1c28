package crypto

import (
	"crypto/ecdh"
	"encoding/base64"
	"fmt"
)

const p256CoordinateSize = 32

// JWK is the JSON Web Key form of a P-256 public key, matching what
// WebCrypto's exportKey("jwk") produces for an ECDH public key.
type JWK struct {
	Kty    string   `json:"kty"`
	Crv    string   `json:"crv"`
	X      string   `json:"x"`
	Y      string   `json:"y"`
	Ext    bool     `json:"ext,omitempty"`
	KeyOps []string `json:"key_ops"`
}

func publicKeyToJWK(pub *ecdh.PublicKey) *JWK {
	// Uncompressed SEC 1 encoding: 0x04 || X || Y
	raw := pub.Bytes()
	return &JWK{
		Kty:    "EC",
		Crv:    "P-256",
		X:      base64.RawURLEncoding.EncodeToString(raw[1 : 1+p256CoordinateSize]),
		Y:      base64.RawURLEncoding.EncodeToString(raw[1+p256CoordinateSize:]),
		Ext:    true,
		KeyOps: []string{},
	}
}

func jwkToPublicKey(jwk *JWK) (*ecdh.PublicKey, error) {
	if jwk == nil {
		return nil, fmt.Errorf("%w: missing key", ErrKeyImport)
	}
	if jwk.Kty != "EC" || jwk.Crv != "P-256" {
		return nil, fmt.Errorf("%w: unsupported key type %s/%s", ErrKeyImport, jwk.Kty, jwk.Crv)
	}

	x, err := decodeCoordinate(jwk.X)
	if err != nil {
		return nil, fmt.Errorf("%w: x: %v", ErrKeyImport, err)
	}
	y, err := decodeCoordinate(jwk.Y)
	if err != nil {
		return nil, fmt.Errorf("%w: y: %v", ErrKeyImport, err)
	}

	raw := make([]byte, 0, 1+2*p256CoordinateSize)
	raw = append(raw, 0x04)
	raw = append(raw, x...)
	raw = append(raw, y...)

	pub, err := ecdh.P256().NewPublicKey(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyImport, err)
	}
	return pub, nil
}

func decodeCoordinate(s string) ([]byte, error) {
	b, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, err
	}
	if len(b) != p256CoordinateSize {
		return nil, fmt.Errorf("coordinate is %d bytes, want %d", len(b), p256CoordinateSize)
	}
	return b, nil
}
