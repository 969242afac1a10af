package util

import (
	"crypto/sha256"
	"encoding/hex"
)

// EntryKey returns the provider key for one cached request inside a generation.
// Identities can be arbitrarily long URLs, so they are reduced to the first
// 16 hex chars of their SHA-256.
func EntryKey(prefix, generation, identity string) string {
	sum := sha256.Sum256([]byte(identity))
	return prefix + ":" + generation + ":" + hex.EncodeToString(sum[:8])
}
