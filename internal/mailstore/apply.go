package mailstore

import (
	"github.com/ternmail/tern/internal/display"
	"github.com/ternmail/tern/internal/mail"
)

// ApplyUids replaces the folder's UID set with the server's view, returning
// added = new∖old and removed = old∖new. Removed UIDs are purged from
// headers, flags, bodies, selection and pending markers, and from the active
// display index. The header-set version advances when the set changed.
func (s *Store) ApplyUids(folder string, uids []mail.UID) (added, removed []mail.UID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fs := s.fs(folder)

	next := make(map[mail.UID]struct{}, len(uids))
	for _, uid := range uids {
		if uid == 0 {
			continue
		}
		next[uid] = struct{}{}
		if _, ok := fs.uids[uid]; !ok {
			added = append(added, uid)
		}
	}
	for uid := range fs.uids {
		if _, ok := next[uid]; !ok {
			removed = append(removed, uid)
		}
	}

	wasFresh := s.freshLocked(fs)
	idx := s.indexLocked(fs)

	for _, uid := range removed {
		if wasFresh {
			idx.Remove(s.keyLocked(folder, fs, uid))
		}
		delete(fs.headers, uid)
		delete(fs.flags, uid)
		delete(fs.bodies, uid)
		delete(fs.selected, uid)
		delete(fs.pending, uid)
	}

	fs.uids = next
	fs.hasUids = true
	fs.uidsFlight = StateNone

	if len(added) > 0 || len(removed) > 0 {
		fs.headerSetVersion++
		if wasFresh {
			for _, uid := range added {
				idx.Insert(s.keyLocked(folder, fs, uid), uid)
			}
			fs.indexVersion[fs.mode] = fs.headerSetVersion
		}
	}
	return added, removed
}

// RemoveLocal removes UIDs optimistically ahead of a move/delete action.
// The cache change is not rolled back if the server action later fails.
func (s *Store) RemoveLocal(folder string, uids []mail.UID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fs := s.fs(folder)

	wasFresh := s.freshLocked(fs)
	idx := s.indexLocked(fs)

	changed := false
	for _, uid := range uids {
		if _, ok := fs.uids[uid]; !ok {
			continue
		}
		if wasFresh {
			idx.Remove(s.keyLocked(folder, fs, uid))
		}
		delete(fs.uids, uid)
		delete(fs.headers, uid)
		delete(fs.flags, uid)
		delete(fs.bodies, uid)
		delete(fs.selected, uid)
		delete(fs.pending, uid)
		changed = true
	}
	if changed {
		fs.headerSetVersion++
		if wasFresh {
			fs.indexVersion[fs.mode] = fs.headerSetVersion
		}
	}
}

// ApplyHeaders merges fetched headers, replace-on-arrival. Headers for UIDs
// no longer in the folder's UID set are ignored; UID-set updates are always
// applied first within a folder. Index entries are re-keyed in place.
func (s *Store) ApplyHeaders(folder string, headers map[mail.UID]*mail.Header) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fs := s.fs(folder)

	wasFresh := s.freshLocked(fs)
	idx := s.indexLocked(fs)

	changed := false
	for uid, hdr := range headers {
		delete(fs.inflight, flightKey{kind: KindHeaders, uid: uid})
		if _, ok := fs.uids[uid]; !ok || hdr == nil {
			continue
		}
		oldKey := s.keyLocked(folder, fs, uid)
		fs.headers[uid] = hdr
		if wasFresh {
			newKey := s.keyLocked(folder, fs, uid)
			if newKey != oldKey {
				idx.Remove(oldKey)
				idx.Insert(newKey, uid)
			}
		}
		changed = true
	}
	if changed {
		fs.headerSetVersion++
		if wasFresh {
			fs.indexVersion[fs.mode] = fs.headerSetVersion
		}
	}
}

// ApplyFlags merges fetched flag words. Fetched data never overwrites a UID
// whose local mutation is still pending confirmation. Flag changes do not
// advance the header-set version, but index entries of flag-dependent modes
// are re-keyed.
func (s *Store) ApplyFlags(folder string, flags map[mail.UID]mail.Flags) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fs := s.fs(folder)

	wasFresh := s.freshLocked(fs)
	idx := s.indexLocked(fs)
	rekey := wasFresh && fs.mode.UsesFlags()

	for uid, fl := range flags {
		delete(fs.inflight, flightKey{kind: KindFlags, uid: uid})
		if _, ok := fs.uids[uid]; !ok {
			continue
		}
		if _, pending := fs.pending[uid]; pending {
			continue
		}
		oldKey := s.keyLocked(folder, fs, uid)
		fs.flags[uid] = fl
		if rekey {
			newKey := s.keyLocked(folder, fs, uid)
			if newKey != oldKey {
				idx.Remove(oldKey)
				idx.Insert(newKey, uid)
			}
		}
	}
}

// ApplyBodies merges fetched bodies for UIDs still present in the folder.
func (s *Store) ApplyBodies(folder string, bodies map[mail.UID]*mail.Body) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fs := s.fs(folder)
	for uid, body := range bodies {
		delete(fs.inflight, flightKey{kind: KindBodies, uid: uid})
		if _, ok := fs.uids[uid]; !ok || body == nil {
			continue
		}
		fs.bodies[uid] = body
	}
}

// SetLocalFlags applies an optimistic local flag mutation and marks the UIDs
// pending confirmation. Not rolled back if the server action fails.
func (s *Store) SetLocalFlags(folder string, uids []mail.UID, seen bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fs := s.fs(folder)

	wasFresh := s.freshLocked(fs)
	idx := s.indexLocked(fs)
	rekey := wasFresh && fs.mode.UsesFlags()

	for _, uid := range uids {
		if _, ok := fs.uids[uid]; !ok {
			continue
		}
		oldKey := s.keyLocked(folder, fs, uid)
		fs.flags[uid] = fs.flags[uid].WithSeen(seen)
		fs.pending[uid] = struct{}{}
		if rekey {
			newKey := s.keyLocked(folder, fs, uid)
			if newKey != oldKey {
				idx.Remove(oldKey)
				idx.Insert(newKey, uid)
			}
		}
	}
}

// DropFlags removes cached flag words so a later fetch is actually issued.
// Used when an optimistic flag mutation was rejected by the server and local
// state must be replaced by server truth.
func (s *Store) DropFlags(folder string, uids []mail.UID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fs := s.fs(folder)
	for _, uid := range uids {
		delete(fs.flags, uid)
	}
}

// ClearPending drops the pending-confirmation markers once the matching
// action result arrives, successful or not.
func (s *Store) ClearPending(folder string, uids []mail.UID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fs := s.fs(folder)
	for _, uid := range uids {
		delete(fs.pending, uid)
	}
}

// Pending reports whether a UID has an unconfirmed local mutation.
func (s *Store) Pending(folder string, uid mail.UID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.fs(folder).pending[uid]
	return ok
}

// Header returns the cached header for (folder, uid).
func (s *Store) Header(folder string, uid mail.UID) (*mail.Header, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	hdr, ok := s.fs(folder).headers[uid]
	return hdr, ok
}

// Flags returns the cached flag word for (folder, uid).
func (s *Store) Flags(folder string, uid mail.UID) (mail.Flags, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fl, ok := s.fs(folder).flags[uid]
	return fl, ok
}

// Body returns the cached body for (folder, uid).
func (s *Store) Body(folder string, uid mail.UID) (*mail.Body, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	body, ok := s.fs(folder).bodies[uid]
	return body, ok
}

// MissingHeaders returns the subset of uids with no cached header.
func (s *Store) MissingHeaders(folder string, uids []mail.UID) []mail.UID {
	s.mu.Lock()
	defer s.mu.Unlock()
	fs := s.fs(folder)
	var out []mail.UID
	for _, uid := range uids {
		if _, ok := fs.headers[uid]; !ok {
			out = append(out, uid)
		}
	}
	return out
}

func (s *Store) keyLocked(folder string, fs *folderState, uid mail.UID) string {
	fl, hasFlags := fs.flags[uid]
	return display.MakeKey(
		display.KeyInput{
			UID:      uid,
			Header:   fs.headers[uid],
			Flags:    fl,
			HasFlags: hasFlags,
		},
		display.KeyContext{
			Mode:         fs.mode,
			UseRecipient: folder == s.p.SentFolder,
			FilterRef:    fs.filterRef,
			Norm:         s.p.Norm,
		},
	)
}
