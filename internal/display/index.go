package display

import (
	"github.com/bradenaw/juniper/container/tree"
	"github.com/bradenaw/juniper/xsort"

	"github.com/ternmail/tern/internal/mail"
)

// Index is the ordered DisplayKey → UID map for one (folder, mode) pair.
// It stores keys ascending; "newest first" consumers read it back to front.
// Not safe for concurrent use; callers hold the store lock.
type Index struct {
	m tree.Map[string, mail.UID]
}

// NewIndex creates an empty index.
func NewIndex() *Index {
	return &Index{m: tree.NewMap[string, mail.UID](xsort.OrderedLess[string])}
}

// Insert adds or replaces the entry for key. Empty keys (filtered-out
// messages) and UID zero are rejected.
func (ix *Index) Insert(key string, uid mail.UID) {
	if key == "" || uid == 0 {
		return
	}
	ix.m.Put(key, uid)
}

// Remove deletes the entry for key if present.
func (ix *Index) Remove(key string) {
	if key == "" {
		return
	}
	ix.m.Delete(key)
}

// Len returns the number of visible messages.
func (ix *Index) Len() int {
	return ix.m.Len()
}

// UIDs returns all UIDs in key-ascending order.
func (ix *Index) UIDs() []mail.UID {
	uids := make([]mail.UID, 0, ix.m.Len())
	iter := ix.m.Iterate()
	for kv, ok := iter.Next(); ok; kv, ok = iter.Next() {
		uids = append(uids, kv.Value)
	}
	return uids
}

// Position returns the key-ascending position of uid, or -1 if it is not in
// the view. Used to preserve the cursor by UID across mode switches.
func (ix *Index) Position(uid mail.UID) int {
	pos := 0
	iter := ix.m.Iterate()
	for kv, ok := iter.Next(); ok; kv, ok = iter.Next() {
		if kv.Value == uid {
			return pos
		}
		pos++
	}
	return -1
}
