package mailstore

import "github.com/ternmail/tern/internal/mail"

// MarkFoldersFlight records an outstanding folder-list fetch. Returns true
// if the caller should issue the request: an on-demand request is issued
// unless one is already outstanding (a background prefetch does not block
// it), a prefetch only when nothing is outstanding and no list is cached.
func (s *Store) MarkFoldersFlight(st FetchState) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.shouldIssue(s.foldersFlight, s.hasFolders, st) {
		return false
	}
	s.foldersFlight = st
	return true
}

// ClearFoldersFlight clears the folder-list marker, e.g. after a failed
// fetch, so a future request can retry.
func (s *Store) ClearFoldersFlight() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.foldersFlight = StateNone
}

// MarkUidsFlight records an outstanding UID-set fetch for folder.
func (s *Store) MarkUidsFlight(folder string, st FetchState) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	fs := s.fs(folder)
	if !s.shouldIssue(fs.uidsFlight, fs.hasUids, st) {
		return false
	}
	fs.uidsFlight = st
	return true
}

// MarkFoldersRefresh records a background refetch of the folder list. A
// cached list does not suppress it; only an outstanding fetch does.
func (s *Store) MarkFoldersRefresh() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.foldersFlight != StateNone {
		return false
	}
	s.foldersFlight = StatePrefetched
	return true
}

// MarkUidsRefresh records a background refetch of a folder's UID set. A
// cached set does not suppress it, unlike MarkUidsFlight; only an already
// outstanding fetch does. This is the path the idle refresh and
// post-action refreshes take.
func (s *Store) MarkUidsRefresh(folder string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	fs := s.fs(folder)
	if fs.uidsFlight != StateNone {
		return false
	}
	fs.uidsFlight = StatePrefetched
	return true
}

// ClearUidsFlight clears the UID-set marker for folder.
func (s *Store) ClearUidsFlight(folder string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fs(folder).uidsFlight = StateNone
}

// MarkFlight filters the candidate UIDs down to those that actually need a
// fetch for kind, records them as in flight, and returns them. Cached data
// is never re-fetched. An on-demand request (StateRequested) is issued even
// for a UID already in the prefetch in-flight state, upgrading it; a second
// on-demand request before the first resolves is suppressed. Prefetches only
// cover UIDs with no outstanding request of either urgency.
func (s *Store) MarkFlight(folder string, kind DataKind, uids []mail.UID, st FetchState) []mail.UID {
	s.mu.Lock()
	defer s.mu.Unlock()
	fs := s.fs(folder)

	var out []mail.UID
	for _, uid := range uids {
		if uid == 0 || s.cachedLocked(fs, kind, uid) {
			continue
		}
		key := flightKey{kind: kind, uid: uid}
		if !s.shouldIssue(fs.inflight[key], false, st) {
			continue
		}
		fs.inflight[key] = st
		out = append(out, uid)
	}
	return out
}

// ClearFlight removes the in-flight markers for the given UIDs, regardless
// of urgency. Called on both success and failure so a failed fetch can be
// retried by a later explicit request.
func (s *Store) ClearFlight(folder string, kind DataKind, uids []mail.UID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fs := s.fs(folder)
	for _, uid := range uids {
		delete(fs.inflight, flightKey{kind: kind, uid: uid})
	}
}

// FlightState returns the current in-flight state for one tuple.
func (s *Store) FlightState(folder string, kind DataKind, uid mail.UID) FetchState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fs(folder).inflight[flightKey{kind: kind, uid: uid}]
}

func (s *Store) shouldIssue(cur FetchState, cached bool, st FetchState) bool {
	if st == StateRequested {
		return cur != StateRequested
	}
	return cur == StateNone && !cached
}

func (s *Store) cachedLocked(fs *folderState, kind DataKind, uid mail.UID) bool {
	switch kind {
	case KindHeaders:
		_, ok := fs.headers[uid]
		return ok
	case KindFlags:
		_, ok := fs.flags[uid]
		return ok
	case KindBodies:
		_, ok := fs.bodies[uid]
		return ok
	}
	return false
}
