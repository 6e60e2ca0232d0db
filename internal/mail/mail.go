// Package mail holds the message-level types shared by the cache, the
// display index and the protocol adapters.
package mail

import "fmt"

// UID is a server-assigned message identifier, unique within a folder.
// Zero is reserved and must never enter any cache or index.
type UID uint32

// ZeroPad renders a UID as a fixed-width decimal so lexicographic comparison
// of display keys matches numeric UID order.
func (u UID) ZeroPad() string {
	return fmt.Sprintf("%07d", uint32(u))
}

// Flags is the per-message flag word.
type Flags uint32

const (
	FlagSeen Flags = 1 << iota
	FlagAnswered
	FlagFlagged
	FlagDeleted
	FlagDraft
)

// Seen reports whether the seen bit is set.
func (f Flags) Seen() bool {
	return f&FlagSeen != 0
}

// WithSeen returns a copy of the flag word with the seen bit set or cleared.
func (f Flags) WithSeen(seen bool) Flags {
	if seen {
		return f | FlagSeen
	}
	return f &^ FlagSeen
}
