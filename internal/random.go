package internal

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
)

// SessionSecretSize is the number of random bytes behind a session secret.
const SessionSecretSize = 32

// NewSecret returns size cryptographically random bytes, hex encoded.
func NewSecret(size int) (string, error) {
	if size < 16 {
		return "", errors.New("secret size must be >= 16 bytes")
	}
	raw := make([]byte, size)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return hex.EncodeToString(raw), nil
}

// NewSessionSecret returns a fresh hex-encoded session secret.
func NewSessionSecret() (string, error) {
	return NewSecret(SessionSecretSize)
}
