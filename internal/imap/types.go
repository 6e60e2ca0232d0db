// Package imap defines the asynchronous request/response contracts the sync
// core consumes from the protocol engine, and provides the go-imap backed
// engine implementation. Response and result handlers are invoked from the
// engine's worker goroutine, never from the caller's.
package imap

import (
	"github.com/ternmail/tern/internal/mail"
)

// PrefetchLevel is the escalating eagerness tier of a request. On-demand
// requests carry LevelNone.
type PrefetchLevel int

const (
	LevelNone PrefetchLevel = iota
	LevelCurrentMessage
	LevelCurrentView
	LevelFullSync
)

// RespStatus is a bitmask of partial failures within one response.
type RespStatus uint32

const (
	StatusOK               RespStatus = 0
	StatusGetFoldersFailed RespStatus = 1 << iota
	StatusGetUidsFailed
	StatusGetHeadersFailed
	StatusGetFlagsFailed
	StatusGetBodiesFailed
	StatusLoginFailed
)

// Failed reports whether any of the given failure bits are set.
func (s RespStatus) Failed(bits RespStatus) bool {
	return s&bits != 0
}

// Request asks for one or more data kinds for a folder. Multiple kinds may
// be combined; the response carries the same shape back.
type Request struct {
	PrefetchLevel PrefetchLevel
	Folder        string
	GetFolders    bool
	GetUids       bool
	GetHeaders    []mail.UID
	GetFlags      []mail.UID
	GetBodies     []mail.UID
	TryCount      int
}

// Response carries fetched data. Cached is set when the data was served from
// the engine's own cache without a network round trip.
type Response struct {
	Status  RespStatus
	Folder  string
	Cached  bool
	Folders []string
	Uids    []mail.UID
	Headers map[mail.UID]*mail.Header
	Flags   map[mail.UID]mail.Flags
	Bodies  map[mail.UID]*mail.Body
}

// Action is a mutating folder operation.
type Action struct {
	Folder          string
	UIDs            []mail.UID
	MoveDestination string
	SetSeen         bool
	SetUnseen       bool
	DeleteMessages  bool
	UploadDraft     bool
	UploadMessage   bool
	Msg             []byte
	TryCount        int
}

// Result reports the outcome of an Action.
type Result struct {
	Success bool
}

// SearchQuery is one page of a server-side search.
type SearchQuery struct {
	Text   string
	Offset int
	Max    int
}

// FolderUID locates a message across folders.
type FolderUID struct {
	Folder string
	UID    mail.UID
}

// SearchResult is one page of search matches. HasMore indicates further
// pages are available at higher offsets.
type SearchResult struct {
	Headers    []*mail.Header
	FolderUids []FolderUID
	HasMore    bool
}

// Handlers are the callbacks the engine invokes from its worker goroutine.
// Implementations must not call back into the engine while holding locks the
// engine's callers also take.
type Handlers struct {
	OnResponse     func(Request, Response)
	OnResult       func(Action, Result)
	OnSearchResult func(SearchQuery, SearchResult)
}

// Engine is the async protocol surface the sync core drives.
type Engine interface {
	// AsyncRequest enqueues an on-demand fetch.
	AsyncRequest(Request)
	// PrefetchRequest enqueues a background fetch at the request's prefetch
	// level; it never blocks the caller and yields to on-demand traffic.
	PrefetchRequest(Request)
	// AsyncAction enqueues a mutating operation.
	AsyncAction(Action)
	// AsyncSearch enqueues one search page.
	AsyncSearch(SearchQuery)
}
