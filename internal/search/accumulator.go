// Package search accumulates paged server-side search results. The
// accumulator owns its results independently of the mail store: search hits
// span folders and survive folder switches, but are dropped wholesale when
// a new search starts.
package search

import (
	stdsync "sync"

	"go.uber.org/zap"

	"github.com/ternmail/tern/internal/imap"
	"github.com/ternmail/tern/internal/mail"
	"github.com/ternmail/tern/internal/wake"
)

// pageSize is how many hits one search request returns.
const pageSize = 20

// Hit is one search result row.
type Hit struct {
	Folder string
	UID    mail.UID
	Header *mail.Header
}

// Accumulator collects results of the active search.
type Accumulator struct {
	client imap.Engine
	waker  *wake.Waker
	log    *zap.Logger

	mu       stdsync.Mutex
	text     string
	hits     []Hit
	hasMore  bool
	inFlight bool
}

func NewAccumulator(client imap.Engine, waker *wake.Waker, log *zap.Logger) *Accumulator {
	return &Accumulator{client: client, waker: waker, log: log}
}

// Search starts a new search, discarding results of any previous one.
// Results from requests still in flight for the old text are ignored when
// they arrive.
func (a *Accumulator) Search(text string) {
	a.mu.Lock()
	a.text = text
	a.hits = nil
	a.hasMore = false
	a.inFlight = text != ""
	a.mu.Unlock()
	if text == "" {
		a.waker.Post(wake.SearchUpdated)
		return
	}
	a.client.AsyncSearch(imap.SearchQuery{Text: text, Offset: 0, Max: pageSize})
}

// Clear drops the active search and its results.
func (a *Accumulator) Clear() {
	a.Search("")
}

// RequestMore fetches the next page if the server reported more hits and no
// page is currently in flight.
func (a *Accumulator) RequestMore() {
	a.mu.Lock()
	if a.text == "" || !a.hasMore || a.inFlight {
		a.mu.Unlock()
		return
	}
	a.inFlight = true
	q := imap.SearchQuery{Text: a.text, Offset: len(a.hits), Max: pageSize}
	a.mu.Unlock()
	a.client.AsyncSearch(q)
}

// OnResult merges one result page. Registered as the engine's search
// handler. Pages for a superseded search text or a stale offset are
// dropped.
func (a *Accumulator) OnResult(q imap.SearchQuery, res imap.SearchResult) {
	a.mu.Lock()
	if q.Text != a.text || q.Offset != len(a.hits) {
		a.mu.Unlock()
		return
	}
	for i, fu := range res.FolderUids {
		var hdr *mail.Header
		if i < len(res.Headers) {
			hdr = res.Headers[i]
		}
		a.hits = append(a.hits, Hit{Folder: fu.Folder, UID: fu.UID, Header: hdr})
	}
	a.hasMore = res.HasMore
	a.inFlight = false
	count := len(a.hits)
	a.mu.Unlock()

	a.log.Debug("search page merged",
		zap.String("text", q.Text),
		zap.Int("total", count),
		zap.Bool("has_more", res.HasMore))
	a.waker.Post(wake.SearchUpdated)
}

// Remove drops a hit, used when the underlying message is deleted or moved
// while results are showing.
func (a *Accumulator) Remove(folder string, uid mail.UID) {
	a.mu.Lock()
	for i, h := range a.hits {
		if h.Folder == folder && h.UID == uid {
			a.hits = append(a.hits[:i], a.hits[i+1:]...)
			break
		}
	}
	a.mu.Unlock()
	a.waker.Post(wake.SearchUpdated)
}

// Results returns a snapshot of the accumulated hits.
func (a *Accumulator) Results() []Hit {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Hit, len(a.hits))
	copy(out, a.hits)
	return out
}

// HasMore reports whether the server holds more hits beyond the snapshot.
func (a *Accumulator) HasMore() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.hasMore
}

// Active reports whether a search is showing.
func (a *Accumulator) Active() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.text != ""
}

// Text returns the active search text.
func (a *Accumulator) Text() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.text
}
