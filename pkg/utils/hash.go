package utils

import (
	"crypto/sha256"
	"encoding/hex"
)

// ETag returns a strong entity tag for body, quoted as HTTP requires.
func ETag(body []byte) string {
	sum := sha256.Sum256(body)
	return `"` + hex.EncodeToString(sum[:16]) + `"`
}
