package sync

import (
	"go.uber.org/zap"

	"github.com/ternmail/tern/internal/imap"
	"github.com/ternmail/tern/internal/mail"
	"github.com/ternmail/tern/internal/wake"
)

// Mutating operations update the store optimistically, then issue the
// protocol action. Failures roll the local view back to server truth by
// refetching.

// ToggleSeen sets or clears the seen flag on the given messages.
func (e *Engine) ToggleSeen(folder string, uids []mail.UID, seen bool) {
	e.store.SetLocalFlags(folder, uids, seen)
	e.waker.Post(wake.Redraw)
	e.client.AsyncAction(imap.Action{
		Folder:    folder,
		UIDs:      uids,
		SetSeen:   seen,
		SetUnseen: !seen,
	})
}

// MoveMessages moves messages to another folder.
func (e *Engine) MoveMessages(folder string, uids []mail.UID, dest string) {
	e.store.RemoveLocal(folder, uids)
	e.waker.Post(wake.Redraw)
	e.client.AsyncAction(imap.Action{
		Folder:          folder,
		UIDs:            uids,
		MoveDestination: dest,
	})
}

// DeleteMessages permanently deletes messages from a folder.
func (e *Engine) DeleteMessages(folder string, uids []mail.UID) {
	e.store.RemoveLocal(folder, uids)
	e.waker.Post(wake.Redraw)
	e.client.AsyncAction(imap.Action{
		Folder:         folder,
		UIDs:           uids,
		DeleteMessages: true,
	})
}

// UploadDraft appends a built message to the drafts folder.
func (e *Engine) UploadDraft(folder string, msg []byte) {
	e.client.AsyncAction(imap.Action{
		Folder:      folder,
		UploadDraft: true,
		Msg:         msg,
	})
}

// UploadMessage appends a built message to a folder, used to file a copy of
// sent mail when the server does not do it.
func (e *Engine) UploadMessage(folder string, msg []byte) {
	e.client.AsyncAction(imap.Action{
		Folder:        folder,
		UploadMessage: true,
		Msg:           msg,
	})
}

// OnActionResult reconciles an action outcome with the optimistic local
// state. Registered as the engine's result handler.
func (e *Engine) OnActionResult(a imap.Action, res imap.Result) {
	switch {
	case a.SetSeen || a.SetUnseen:
		e.store.ClearPending(a.Folder, a.UIDs)
		if !res.Success {
			e.log.Warn("flag update failed", zap.String("folder", a.Folder))
			e.store.DropFlags(a.Folder, a.UIDs)
			e.RequestFlags(a.Folder, a.UIDs, true)
		}
	case a.MoveDestination != "" || a.DeleteMessages:
		if !res.Success {
			e.log.Warn("move or delete failed", zap.String("folder", a.Folder))
			e.Invalidate(a.Folder)
		} else if a.MoveDestination != "" && e.store.HasUids(a.MoveDestination) {
			e.RefreshUids(a.MoveDestination)
		}
	case a.UploadDraft || a.UploadMessage:
		if !res.Success {
			e.log.Warn("upload failed", zap.String("folder", a.Folder))
		} else if e.store.HasUids(a.Folder) {
			e.RefreshUids(a.Folder)
		}
		if e.uploadResult != nil {
			e.uploadResult(a.Folder, a.Msg, res.Success)
		}
	}
	e.waker.Post(wake.Redraw)
}
