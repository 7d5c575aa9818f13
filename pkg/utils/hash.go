package utils

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashString returns a hex SHA256 digest of the input. Used for embedding
// cache keys and document change detection.
func HashString(input string) string {
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:])
}
