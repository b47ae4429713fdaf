package textutil

import (
	"encoding/hex"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// Signature returns a short, stable fingerprint for a failure description,
// used to group repeated mistakes for the loop-breaker (spec.md §4.7).
// It hashes the normalized, keyword-reduced form so near-duplicate
// descriptions collapse onto the same signature.
func Signature(description string) string {
	reduced := strings.Join(Keywords(description), " ")
	sum := blake2b.Sum256([]byte(reduced))
	return hex.EncodeToString(sum[:16])
}
