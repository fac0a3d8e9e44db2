// Package ids generates identifiers for timers and outbox tasks.
package ids

import "github.com/google/uuid"

// Generator produces unique identifiers.
// Implemented by UUIDv7Generator (production) and testutil.FixedGenerator.
type Generator interface {
	NewID() string
}

// UUIDv7Generator generates time-sortable UUIDv7 identifiers.
//
// UUIDv7 embeds a timestamp in the most significant bits, so identifiers
// sort by creation time. Listing outbox tasks or timers by ID then roughly
// follows insertion order, which helps when reading the tables by hand.
//
// Thread-safety: stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// NewID creates a new UUIDv7 and returns it as a hyphenated string.
//
// Panics if UUID generation fails (should never happen in practice).
func (g UUIDv7Generator) NewID() string {
	return uuid.Must(uuid.NewV7()).String()
}
