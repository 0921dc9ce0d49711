package internal

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
)

// OpaqueSize is the number of random bytes behind an OAuth state value.
const OpaqueSize = 32

// NewOpaque returns size cryptographically random bytes encoded as base64url
// without padding.
func NewOpaque(size int) (string, error) {
	if size < 16 {
		return "", errors.New("opaque value must carry at least 16 bytes")
	}
	raw := make([]byte, size)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// CheckOpaque reports whether v has the exact shape produced by NewOpaque(size).
// It lets callers reject garbage before a store round-trip.
func CheckOpaque(v string, size int) error {
	if len(v) != base64.RawURLEncoding.EncodedLen(size) {
		return errors.New("invalid opaque value size")
	}
	raw, err := base64.RawURLEncoding.DecodeString(v)
	if err != nil {
		return err
	}
	if len(raw) != size {
		return errors.New("invalid opaque value size")
	}
	return nil
}
