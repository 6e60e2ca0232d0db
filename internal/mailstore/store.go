// Package mailstore owns the per-folder caches of UID sets, headers, flags
// and bodies, the in-flight fetch bookkeeping that deduplicates requests,
// and the lazily maintained ordered display indexes derived from them.
//
// A single mutex guards everything here; protocol callbacks, the resilience
// path and the consumer loop all serialize through it. Index rebuilds happen
// under the same lock since they read cached data. No lock is ever held
// across a call back out to the protocol engine.
package mailstore

import (
	"sort"
	"sync"

	"github.com/bradenaw/juniper/xmaps"

	"github.com/ternmail/tern/internal/display"
	"github.com/ternmail/tern/internal/mail"
)

// DataKind identifies one class of fetchable data.
type DataKind int

const (
	KindFolders DataKind = iota
	KindUids
	KindHeaders
	KindFlags
	KindBodies
)

func (k DataKind) String() string {
	switch k {
	case KindFolders:
		return "folders"
	case KindUids:
		return "uids"
	case KindHeaders:
		return "headers"
	case KindFlags:
		return "flags"
	case KindBodies:
		return "bodies"
	}
	return "unknown"
}

// FetchState tracks one outstanding fetch for a (kind, uid) tuple. A single
// map with a state value replaces the two parallel requested/prefetched sets
// the bookkeeping is derived from, so the two can never diverge.
type FetchState uint8

const (
	StateNone FetchState = iota
	StateRequested
	StatePrefetched
)

type flightKey struct {
	kind DataKind
	uid  mail.UID
}

type folderState struct {
	uids    map[mail.UID]struct{}
	hasUids bool
	headers map[mail.UID]*mail.Header
	flags   map[mail.UID]mail.Flags
	bodies  map[mail.UID]*mail.Body

	inflight   map[flightKey]FetchState
	uidsFlight FetchState

	selected map[mail.UID]struct{}
	// pending marks UIDs whose local optimistic mutation has not yet been
	// confirmed by the server; fetched flags never overwrite them.
	pending map[mail.UID]struct{}

	// headerSetVersion advances when the UID set or cached headers change.
	headerSetVersion uint64
	mode             mail.SortMode
	filterRef        string
	indexes          map[mail.SortMode]*display.Index
	indexVersion     map[mail.SortMode]uint64
}

func newFolderState() *folderState {
	return &folderState{
		uids:             make(map[mail.UID]struct{}),
		headers:          make(map[mail.UID]*mail.Header),
		flags:            make(map[mail.UID]mail.Flags),
		bodies:           make(map[mail.UID]*mail.Body),
		inflight:         make(map[flightKey]FetchState),
		selected:         make(map[mail.UID]struct{}),
		pending:          make(map[mail.UID]struct{}),
		headerSetVersion: 1,
		indexes:          make(map[mail.SortMode]*display.Index),
		indexVersion:     make(map[mail.SortMode]uint64),
	}
}

// Params configures a Store.
type Params struct {
	// SentFolder switches name keys and filters to the recipient side.
	SentFolder string
	Norm       *mail.Normalizer
}

// Store is the guarded mail cache.
type Store struct {
	mu sync.Mutex
	p  Params

	folders       []string
	hasFolders    bool
	foldersFlight FetchState

	states map[string]*folderState
}

// New creates an empty Store.
func New(p Params) *Store {
	if p.Norm == nil {
		p.Norm = mail.NewNormalizer(nil)
	}
	return &Store{p: p, states: make(map[string]*folderState)}
}

func (s *Store) fs(folder string) *folderState {
	st, ok := s.states[folder]
	if !ok {
		st = newFolderState()
		s.states[folder] = st
	}
	return st
}

// SetFolders replaces the folder list, returning which folders appeared and
// disappeared. State for removed folders is dropped.
func (s *Store) SetFolders(folders []string) (added, removed []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := xmaps.SetFromSlice(folders)
	for _, f := range s.folders {
		if !next.Contains(f) {
			removed = append(removed, f)
			delete(s.states, f)
		}
	}
	prev := xmaps.SetFromSlice(s.folders)
	for _, f := range folders {
		if !prev.Contains(f) {
			added = append(added, f)
		}
	}

	s.folders = append([]string(nil), folders...)
	sort.Strings(s.folders)
	s.hasFolders = true
	s.foldersFlight = StateNone
	return added, removed
}

// Folders returns the sorted folder list.
func (s *Store) Folders() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.folders...)
}

// HasFolders reports whether a folder list has arrived.
func (s *Store) HasFolders() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hasFolders
}

// Uids returns the folder's cached UID set in ascending order.
func (s *Store) Uids(folder string) []mail.UID {
	s.mu.Lock()
	defer s.mu.Unlock()
	fs := s.fs(folder)
	uids := make([]mail.UID, 0, len(fs.uids))
	for uid := range fs.uids {
		uids = append(uids, uid)
	}
	sort.Slice(uids, func(i, j int) bool { return uids[i] < uids[j] })
	return uids
}

// HasUids reports whether the folder's UID set has been fetched since the
// last invalidation.
func (s *Store) HasUids(folder string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fs(folder).hasUids
}

// Invalidate clears the folder's flags and their in-flight tracking and
// forces the next UID fetch to be re-issued. Used for manual refresh and
// post-move/delete cache busting; requests already sent are unaffected.
func (s *Store) Invalidate(folder string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fs := s.fs(folder)
	fs.hasUids = false
	fs.uidsFlight = StateNone
	fs.flags = make(map[mail.UID]mail.Flags)
	for key := range fs.inflight {
		if key.kind == KindFlags {
			delete(fs.inflight, key)
		}
	}
}
