// Package ids provides the 16-byte session and participant identifiers
// used throughout the signaling core (spec.md §3's "16-byte remote
// participant identifier" and "16-byte session identifier").
package ids

import (
	"encoding/hex"

	"github.com/google/uuid"
)

// ID is a 16-byte identifier for a session or a participant.
type ID [16]byte

// Zero is the reserved all-zero identifier a joiner uses to key its
// provisional peer entry before it learns the responder's real id
// (spec.md §3, "Special provisional key").
var Zero ID

// New generates a fresh random identifier.
func New() ID {
	return ID(uuid.New())
}

// IsZero reports whether id is the reserved all-zero provisional id.
func (id ID) IsZero() bool {
	return id == Zero
}

// String renders id as lowercase hex, for logging.
func (id ID) String() string {
	return hex.EncodeToString(id[:])
}

// ParseHex parses a 32-character hex string into an ID.
func ParseHex(s string) (ID, error) {
	var id ID
	b, err := hex.DecodeString(s)
	if err != nil {
		return id, err
	}
	if len(b) != len(id) {
		return id, hex.ErrLength
	}
	copy(id[:], b)
	return id, nil
}
