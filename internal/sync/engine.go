// Package sync coordinates fetch traffic between the mail store and the
// protocol engine. It decides what to request, dedupes against in-flight
// work, merges responses back into the store, and schedules prefetch
// follow-ups according to the configured prefetch level.
package sync

import (
	"time"

	"github.com/bradenaw/juniper/xslices"
	"go.uber.org/zap"

	"github.com/ternmail/tern/internal/imap"
	"github.com/ternmail/tern/internal/mail"
	"github.com/ternmail/tern/internal/mailstore"
	"github.com/ternmail/tern/internal/wake"
)

// Batch caps per request. Headers are fetched in small batches so the first
// visible rows render quickly; flags are cheap and batch large; bodies go
// one at a time so a big message never blocks the queue.
const (
	maxHeadersPerRequest = 25
	maxFlagsPerRequest   = 1000
	maxBodiesPerRequest  = 1
)

// Config controls prefetch behavior.
type Config struct {
	// Inbox is the folder watched for new-mail notification.
	Inbox string
	// PrefetchLevel is the deepest background fetch the engine schedules.
	PrefetchLevel imap.PrefetchLevel
	// PrefetchAllHeaders schedules header prefetch for every known UID of a
	// folder once its UID list arrives, regardless of PrefetchLevel.
	PrefetchAllHeaders bool
}

// Engine is the fetch coordinator.
type Engine struct {
	store  *mailstore.Store
	client imap.Engine
	waker  *wake.Waker
	cfg    Config
	log    *zap.Logger

	uploadResult func(folder string, msg []byte, ok bool)
}

func NewEngine(store *mailstore.Store, client imap.Engine, waker *wake.Waker, cfg Config, log *zap.Logger) *Engine {
	return &Engine{store: store, client: client, waker: waker, cfg: cfg, log: log}
}

// OnUploadResult registers fn to observe the outcome of draft and message
// uploads. The send pipeline uses it to requeue a draft whose append
// failed. Must be called before the protocol engine starts.
func (e *Engine) OnUploadResult(fn func(folder string, msg []byte, ok bool)) {
	e.uploadResult = fn
}

func flightState(urgent bool) mailstore.FetchState {
	if urgent {
		return mailstore.StateRequested
	}
	return mailstore.StatePrefetched
}

func (e *Engine) issue(req imap.Request, urgent bool) {
	if urgent {
		req.PrefetchLevel = imap.LevelNone
		e.client.AsyncRequest(req)
		return
	}
	if req.PrefetchLevel == imap.LevelNone {
		req.PrefetchLevel = e.cfg.PrefetchLevel
	}
	e.client.PrefetchRequest(req)
}

// RequestFolders fetches the folder list unless an equal-or-stronger fetch
// is already in flight.
func (e *Engine) RequestFolders(urgent bool) {
	if !e.store.MarkFoldersFlight(flightState(urgent)) {
		return
	}
	req := imap.Request{GetFolders: true}
	if !urgent && e.cfg.PrefetchLevel == imap.LevelFullSync {
		req.PrefetchLevel = imap.LevelFullSync
	}
	e.issue(req, urgent)
}

// RefreshFolders refetches the folder list in the background even when one
// is cached. Used on reconnect; at a full-sync prefetch level the response
// fans out into the whole-mailbox walk.
func (e *Engine) RefreshFolders() {
	if !e.store.MarkFoldersRefresh() {
		return
	}
	req := imap.Request{GetFolders: true}
	if e.cfg.PrefetchLevel == imap.LevelFullSync {
		req.PrefetchLevel = imap.LevelFullSync
	}
	e.issue(req, false)
}

// RequestUids fetches the UID list of a folder.
func (e *Engine) RequestUids(folder string, urgent bool) {
	if !e.store.MarkUidsFlight(folder, flightState(urgent)) {
		return
	}
	e.issue(imap.Request{Folder: folder, GetUids: true}, urgent)
}

// RefreshUids refetches a folder's UID list in the background even when one
// is already cached. The response merge reconciles additions and removals.
func (e *Engine) RefreshUids(folder string) {
	if !e.store.MarkUidsRefresh(folder) {
		return
	}
	e.issue(imap.Request{Folder: folder, GetUids: true}, false)
}

// RequestHeaders fetches headers for the given UIDs, skipping cached and
// in-flight ones, in capped batches.
func (e *Engine) RequestHeaders(folder string, uids []mail.UID, urgent bool) {
	toFetch := e.store.MarkFlight(folder, mailstore.KindHeaders, uids, flightState(urgent))
	for _, batch := range xslices.Chunk(toFetch, maxHeadersPerRequest) {
		e.issue(imap.Request{Folder: folder, GetHeaders: batch}, urgent)
	}
}

// RequestFlags fetches flags for the given UIDs in capped batches.
func (e *Engine) RequestFlags(folder string, uids []mail.UID, urgent bool) {
	toFetch := e.store.MarkFlight(folder, mailstore.KindFlags, uids, flightState(urgent))
	for _, batch := range xslices.Chunk(toFetch, maxFlagsPerRequest) {
		e.issue(imap.Request{Folder: folder, GetFlags: batch}, urgent)
	}
}

// RequestBodies fetches bodies one UID per request.
func (e *Engine) RequestBodies(folder string, uids []mail.UID, urgent bool) {
	toFetch := e.store.MarkFlight(folder, mailstore.KindBodies, uids, flightState(urgent))
	for _, batch := range xslices.Chunk(toFetch, maxBodiesPerRequest) {
		e.issue(imap.Request{Folder: folder, GetBodies: batch}, urgent)
	}
}

// EnsureView makes sure a folder can render: folder list, its UID list, and
// headers plus flags for everything currently known.
func (e *Engine) EnsureView(folder string) {
	if !e.store.HasFolders() {
		e.RequestFolders(true)
	}
	if !e.store.HasUids(folder) {
		e.RequestUids(folder, true)
		return
	}
	uids := e.store.Uids(folder)
	e.RequestHeaders(folder, uids, true)
	e.RequestFlags(folder, uids, true)
}

// Refresh refetches the UID list of a folder in the background and picks
// up any flags still missing. Called on the idle timer and when the server
// signals new mail.
func (e *Engine) Refresh(folder string) {
	e.RefreshUids(folder)
	if e.store.HasUids(folder) {
		e.RequestFlags(folder, e.store.Uids(folder), false)
	}
}

// Invalidate drops cached flags and the UID list of a folder and refetches
// both. Used when local state can no longer be trusted, e.g. after an
// action failed.
func (e *Engine) Invalidate(folder string) {
	e.store.Invalidate(folder)
	e.RequestUids(folder, true)
}

// WaitForHeader polls the store until the header for uid arrives or the
// timeout elapses.
func (e *Engine) WaitForHeader(folder string, uid mail.UID, timeout time.Duration) (*mail.Header, bool) {
	deadline := time.Now().Add(timeout)
	for {
		if hdr, ok := e.store.Header(folder, uid); ok {
			return hdr, true
		}
		if time.Now().After(deadline) {
			return nil, false
		}
		time.Sleep(50 * time.Millisecond)
	}
}

// OnResponse merges a protocol response into the store and schedules
// follow-up prefetch work. Registered as the engine's response handler.
func (e *Engine) OnResponse(req imap.Request, resp imap.Response) {
	bits := wake.Redraw

	if req.GetFolders {
		if resp.Status&imap.StatusGetFoldersFailed != 0 {
			e.store.ClearFoldersFlight()
			e.log.Warn("folder list fetch failed")
		} else {
			e.store.SetFolders(resp.Folders)
			e.followUpFolders(req, resp.Folders)
		}
	}

	if req.GetUids {
		if resp.Status&imap.StatusGetUidsFailed != 0 {
			e.store.ClearUidsFlight(resp.Folder)
			e.log.Warn("uid fetch failed", zap.String("folder", resp.Folder))
		} else {
			added, removed := e.store.ApplyUids(resp.Folder, resp.Uids)
			if len(added) > 0 && resp.Folder == e.cfg.Inbox {
				bits |= wake.NewMail
			}
			if len(added) > 0 || len(removed) > 0 {
				e.log.Debug("uids applied",
					zap.String("folder", resp.Folder),
					zap.Int("added", len(added)),
					zap.Int("removed", len(removed)))
			}
			e.followUpUids(req, resp.Folder, added)
		}
	}

	if len(req.GetHeaders) > 0 {
		if resp.Status&imap.StatusGetHeadersFailed != 0 {
			e.store.ClearFlight(resp.Folder, mailstore.KindHeaders, req.GetHeaders)
			e.log.Warn("header fetch failed", zap.String("folder", resp.Folder))
		} else {
			e.store.ApplyHeaders(resp.Folder, resp.Headers)
		}
	}

	if len(req.GetFlags) > 0 {
		if resp.Status&imap.StatusGetFlagsFailed != 0 {
			e.store.ClearFlight(resp.Folder, mailstore.KindFlags, req.GetFlags)
			e.log.Warn("flag fetch failed", zap.String("folder", resp.Folder))
		} else {
			e.store.ApplyFlags(resp.Folder, resp.Flags)
		}
	}

	if len(req.GetBodies) > 0 {
		if resp.Status&imap.StatusGetBodiesFailed != 0 {
			e.store.ClearFlight(resp.Folder, mailstore.KindBodies, req.GetBodies)
			e.log.Warn("body fetch failed", zap.String("folder", resp.Folder))
		} else {
			e.store.ApplyBodies(resp.Folder, resp.Bodies)
		}
	}

	if resp.Status&imap.StatusLoginFailed != 0 {
		bits |= wake.StatusChanged
	}
	e.waker.Post(bits)
}

// followUpFolders walks every folder after a folder list arrives when the
// configured prefetch level asks for a full mailbox sync.
func (e *Engine) followUpFolders(req imap.Request, folders []string) {
	if e.cfg.PrefetchLevel != imap.LevelFullSync && req.PrefetchLevel != imap.LevelFullSync {
		return
	}
	// A refresh rather than a plain prefetch: on reconnect most uid sets
	// are already cached and the walk must still re-check them.
	for _, folder := range folders {
		e.RefreshUids(folder)
	}
}

// followUpUids schedules header and flag prefetch after a UID list arrives.
func (e *Engine) followUpUids(req imap.Request, folder string, added []mail.UID) {
	if e.cfg.PrefetchAllHeaders || req.PrefetchLevel >= imap.LevelCurrentView {
		if missing := e.store.MissingHeaders(folder, e.store.Uids(folder)); len(missing) > 0 {
			e.RequestHeaders(folder, missing, false)
		}
	} else if len(added) > 0 {
		e.RequestHeaders(folder, added, false)
	}
	if len(added) > 0 {
		e.RequestFlags(folder, added, false)
	}
	if e.cfg.PrefetchLevel == imap.LevelFullSync {
		e.RequestBodies(folder, e.store.Uids(folder), false)
	}
}
