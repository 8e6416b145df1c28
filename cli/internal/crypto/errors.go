package crypto

import "errors"

var (
	ErrNotInitialized        = errors.New("crypto: key pair not generated")
	ErrNoLocalKeyPair        = errors.New("crypto: no local key pair")
	ErrNoSharedSecret        = errors.New("crypto: no shared secret")
	ErrKeyImport             = errors.New("crypto: invalid peer public key")
	ErrAuthenticationFailure = errors.New("crypto: authentication failed")
	ErrInvalidIV             = errors.New("crypto: iv must be 12 bytes")
)
