package ws

import (
	"crypto/rand"
	"encoding/hex"
)

// newConnID returns a random connection id. Presence and room bookkeeping
// key on it, so collisions must be practically impossible.
func newConnID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return ""
	}
	return "ws-" + hex.EncodeToString(buf)
}
