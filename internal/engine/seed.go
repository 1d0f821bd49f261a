package engine

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/google/uuid"
)

// NewSeed generates a fresh per-round seed token.
func NewSeed() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// HashSeed returns the SHA-256 hex digest of a seed, safe to log or show
// before the round is over.
func HashSeed(seed string) string {
	if seed == "" {
		return ""
	}
	hash := sha256.Sum256([]byte(seed))
	return hex.EncodeToString(hash[:])
}
