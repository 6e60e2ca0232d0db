package mailstore

import (
	"sort"

	"github.com/ternmail/tern/internal/display"
	"github.com/ternmail/tern/internal/mail"
)

// GetOrdered returns the folder's UIDs under its active sort/filter mode in
// key-ascending order; date-based consumers read back to front for newest
// first. The index is fully rebuilt when its version lags the folder's
// header-set version, otherwise served as patched.
func (s *Store) GetOrdered(folder string) []mail.UID {
	s.mu.Lock()
	defer s.mu.Unlock()
	fs := s.fs(folder)
	s.ensureFreshLocked(folder, fs)
	return s.indexLocked(fs).UIDs()
}

// Position returns the position of uid in the active view, or -1 when it is
// filtered out. Callers use it to preserve the cursor by UID across mode
// switches, clamping when absent.
func (s *Store) Position(folder string, uid mail.UID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	fs := s.fs(folder)
	s.ensureFreshLocked(folder, fs)
	return s.indexLocked(fs).Position(uid)
}

// SetMode activates a sort/filter mode for the folder. filterRef is the
// captured reference value for the current-date/name/subject filters and is
// ignored by other modes. Changing the reference discards that mode's index.
func (s *Store) SetMode(folder string, mode mail.SortMode, filterRef string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fs := s.fs(folder)
	if mode.NeedsFilterRef() && filterRef != fs.filterRef {
		delete(fs.indexes, mode)
		delete(fs.indexVersion, mode)
		fs.filterRef = filterRef
	}
	fs.mode = mode
}

// FilterRef computes the reference value a filter mode captures from one
// message, normalized the same way display keys are. ok is false when the
// message's header is not cached or the mode takes no reference.
func (s *Store) FilterRef(folder string, mode mail.SortMode, uid mail.UID) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	hdr, ok := s.fs(folder).headers[uid]
	if !ok {
		return "", false
	}
	switch mode {
	case mail.SortCurrDateOnly:
		return hdr.DateOnly(), true
	case mail.SortCurrNameOnly:
		name := hdr.ShortFrom()
		if folder == s.p.SentFolder {
			name = hdr.ShortTo()
		}
		return s.p.Norm.NormalizeName(name), true
	case mail.SortCurrSubjOnly:
		return s.p.Norm.NormalizeSubject(hdr.Subject, true), true
	}
	return "", false
}

// Mode returns the folder's active sort/filter mode.
func (s *Store) Mode(folder string) mail.SortMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fs(folder).mode
}

// ToggleSelected flips a UID's membership in the folder's selection set.
func (s *Store) ToggleSelected(folder string, uid mail.UID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fs := s.fs(folder)
	if _, ok := fs.selected[uid]; ok {
		delete(fs.selected, uid)
	} else if _, ok := fs.uids[uid]; ok {
		fs.selected[uid] = struct{}{}
	}
}

// IsSelected reports selection membership.
func (s *Store) IsSelected(folder string, uid mail.UID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.fs(folder).selected[uid]
	return ok
}

// Selected returns the folder's selected UIDs in ascending order.
func (s *Store) Selected(folder string) []mail.UID {
	s.mu.Lock()
	defer s.mu.Unlock()
	fs := s.fs(folder)
	uids := make([]mail.UID, 0, len(fs.selected))
	for uid := range fs.selected {
		uids = append(uids, uid)
	}
	sort.Slice(uids, func(i, j int) bool { return uids[i] < uids[j] })
	return uids
}

// ClearSelection empties the folder's selection set, e.g. on folder change.
func (s *Store) ClearSelection(folder string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fs(folder).selected = make(map[mail.UID]struct{})
}

func (s *Store) indexLocked(fs *folderState) *display.Index {
	idx, ok := fs.indexes[fs.mode]
	if !ok {
		idx = display.NewIndex()
		fs.indexes[fs.mode] = idx
	}
	return idx
}

func (s *Store) freshLocked(fs *folderState) bool {
	return fs.indexVersion[fs.mode] == fs.headerSetVersion
}

func (s *Store) ensureFreshLocked(folder string, fs *folderState) {
	if s.freshLocked(fs) {
		return
	}
	idx := display.NewIndex()
	for uid := range fs.uids {
		idx.Insert(s.keyLocked(folder, fs, uid), uid)
	}
	fs.indexes[fs.mode] = idx
	fs.indexVersion[fs.mode] = fs.headerSetVersion
}
