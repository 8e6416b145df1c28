// Package crypto implements the call's key agreement: a P-256 ECDH key pair
// per session, JWK public key exchange, and an AES-256-GCM key imported
// directly from the raw ECDH output.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdh"
	"crypto/rand"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
)

// IVSize is the AES-GCM nonce length used for every frame.
const IVSize = 12

// KeyPair is the local ECDH key pair. Only the public half ever leaves the process.
type KeyPair struct {
	PublicKey  *ecdh.PublicKey
	PrivateKey *ecdh.PrivateKey
}

// Engine owns one session's key pair and, once the handshake completes, the
// shared AEAD key. Encrypt, Decrypt and HasSharedSecret may be called from any
// goroutine.
type Engine struct {
	mu      sync.Mutex
	keyPair *KeyPair

	secret atomic.Pointer[cipher.AEAD]
	logger *slog.Logger
}

func NewEngine(logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{logger: logger}
}

// GenerateKeyPair creates a fresh P-256 key pair, replacing any previous one.
func (e *Engine) GenerateKeyPair() (*KeyPair, error) {
	priv, err := ecdh.P256().GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate key pair: %w", err)
	}
	kp := &KeyPair{PublicKey: priv.PublicKey(), PrivateKey: priv}

	e.mu.Lock()
	e.keyPair = kp
	e.mu.Unlock()
	return kp, nil
}

func (e *Engine) ExportPublicKey() (*JWK, error) {
	e.mu.Lock()
	kp := e.keyPair
	e.mu.Unlock()

	if kp == nil {
		return nil, ErrNotInitialized
	}
	return publicKeyToJWK(kp.PublicKey), nil
}

// ImportPeerKey parses the peer's JWK. Curve membership is checked only as far
// as crypto/ecdh does when building the key.
func (e *Engine) ImportPeerKey(jwk *JWK) (*ecdh.PublicKey, error) {
	return jwkToPublicKey(jwk)
}

// DeriveSharedSecret computes the 256-bit ECDH output and uses it directly as
// the AES-256-GCM key. A second call replaces the stored key.
func (e *Engine) DeriveSharedSecret(peer *ecdh.PublicKey) error {
	e.mu.Lock()
	kp := e.keyPair
	e.mu.Unlock()

	if kp == nil {
		return ErrNoLocalKeyPair
	}

	raw, err := kp.PrivateKey.ECDH(peer)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrKeyImport, err)
	}

	block, err := aes.NewCipher(raw)
	if err != nil {
		return fmt.Errorf("import aes key: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return fmt.Errorf("import aes key: %w", err)
	}

	e.secret.Store(&aead)
	e.logger.Info("shared secret established")
	return nil
}

func (e *Engine) HasSharedSecret() bool {
	return e.secret.Load() != nil
}

func (e *Engine) Encrypt(plaintext, iv []byte) ([]byte, error) {
	aead := e.secret.Load()
	if aead == nil {
		return nil, ErrNoSharedSecret
	}
	if len(iv) != IVSize {
		return nil, ErrInvalidIV
	}
	return (*aead).Seal(nil, iv, plaintext, nil), nil
}

func (e *Engine) Decrypt(ciphertext, iv []byte) ([]byte, error) {
	aead := e.secret.Load()
	if aead == nil {
		return nil, ErrNoSharedSecret
	}
	if len(iv) != IVSize {
		return nil, ErrInvalidIV
	}
	if len(ciphertext) < (*aead).Overhead() {
		return nil, ErrAuthenticationFailure
	}
	plaintext, err := (*aead).Open(nil, iv, ciphertext, nil)
	if err != nil {
		return nil, ErrAuthenticationFailure
	}
	return plaintext, nil
}
