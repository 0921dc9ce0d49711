package internal

import (
	"crypto/sha256"
	"encoding/hex"
)

// Correlation returns a short digest of a secret value (token, state) that is
// safe to log and still lets operators match log lines for the same value.
func Correlation(v string) string {
	if v == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(v))
	return hex.EncodeToString(sum[:6])
}
