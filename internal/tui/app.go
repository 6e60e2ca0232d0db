// Package tui is the terminal frontend. It is a thin consumer of the mail
// store: every event loop pass re-reads ordered snapshots and renders them,
// so views hold no mail state of their own.
package tui

import (
	"fmt"
	"os"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/google/uuid"
	"github.com/rivo/tview"
	"go.uber.org/zap"

	"github.com/ternmail/tern/internal/mail"
	"github.com/ternmail/tern/internal/mailstore"
	"github.com/ternmail/tern/internal/resilience"
	"github.com/ternmail/tern/internal/search"
	"github.com/ternmail/tern/internal/smtp"
	"github.com/ternmail/tern/internal/status"
	"github.com/ternmail/tern/internal/sync"
	"github.com/ternmail/tern/internal/tui/views"
	"github.com/ternmail/tern/internal/wake"
)

// Config carries the frontend settings.
type Config struct {
	Account      string
	Address      string
	Inbox        string
	DraftsFolder string
	SentFolder   string

	IdleRefresh time.Duration
	NewMailBell bool
	ReplyPrefix string
}

// App is the main TUI application shell.
type App struct {
	app     *tview.Application
	pages   *tview.Pages
	store   *mailstore.Store
	engine  *sync.Engine
	sender  *resilience.Sender
	acc     *search.Accumulator
	machine *status.Machine
	waker   *wake.Waker
	cfg     Config
	log     *zap.Logger

	folderList *views.FolderList
	msgList    *views.MessageList
	msgView    *views.MessageView
	statusBar  *views.StatusBar
	searchView *views.SearchView
	composer   *views.Composer

	activeFolder string
	openUID      mail.UID
}

// NewApp creates the TUI application.
func NewApp(store *mailstore.Store, engine *sync.Engine, sender *resilience.Sender, acc *search.Accumulator, machine *status.Machine, waker *wake.Waker, cfg Config, log *zap.Logger) *App {
	a := &App{
		app:          tview.NewApplication(),
		pages:        tview.NewPages(),
		store:        store,
		engine:       engine,
		sender:       sender,
		acc:          acc,
		machine:      machine,
		waker:        waker,
		cfg:          cfg,
		log:          log,
		folderList:   views.NewFolderList(),
		msgList:      views.NewMessageList(),
		msgView:      views.NewMessageView(),
		statusBar:    views.NewStatusBar(),
		searchView:   views.NewSearchView(),
		composer:     views.NewComposer(),
		activeFolder: cfg.Inbox,
	}

	a.statusBar.SetAccount(cfg.Account)
	a.setupCallbacks()
	a.setupLayout()
	a.setupBindings()
	return a
}

func (a *App) setupLayout() {
	main := tview.NewFlex().
		AddItem(a.folderList, 22, 0, false).
		AddItem(a.msgList, 0, 1, true)

	root := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(main, 0, 1, true).
		AddItem(a.statusBar, 1, 0, false)

	a.pages.AddPage("main", root, true, true)
	a.pages.AddPage("message", a.msgView, true, false)
	a.pages.AddPage("search", a.searchView, true, false)
	a.pages.AddPage("compose", a.composer, true, false)
	a.app.SetRoot(a.pages, true)
}

func (a *App) setupCallbacks() {
	a.folderList.SetOnSelect(func(folder string) {
		a.activeFolder = folder
		a.openUID = 0
		a.engine.EnsureView(folder)
		a.render(wake.Redraw)
		a.app.SetFocus(a.msgList)
	})

	a.msgList.SetOnOpen(func(uid mail.UID) {
		a.openMessage(a.activeFolder, uid)
	})

	a.searchView.SetOnQuery(func(text string) {
		a.acc.Search(text)
	})
	a.searchView.SetOnOpen(func(folder string, uid mail.UID) {
		a.openMessage(folder, uid)
	})
	a.searchView.SetOnMore(func() {
		a.acc.RequestMore()
	})

	a.composer.SetOnChange(func(o smtp.Outgoing) {
		a.sender.RecordCompose(o)
	})
	a.composer.SetOnSend(func(o smtp.Outgoing) {
		a.pages.SwitchToPage("main")
		go func() {
			outcome := a.sender.SubmitSend(o)
			a.app.QueueUpdateDraw(func() {
				a.statusBar.SetFlash("Send: " + outcome.String())
			})
		}()
	})
	a.composer.SetOnSave(func(o smtp.Outgoing) {
		a.pages.SwitchToPage("main")
		if err := a.sender.SaveDraft(o); err != nil {
			a.statusBar.SetFlash("Draft save failed: " + err.Error())
			return
		}
		a.sender.DiscardCompose(o.SessionID)
		a.statusBar.SetFlash("Draft saved")
	})
	a.composer.SetOnCancel(func(sessionID string) {
		a.sender.DiscardCompose(sessionID)
		a.pages.SwitchToPage("main")
	})
}

func (a *App) setupBindings() {
	a.msgList.SetInputCapture(func(ev *tcell.EventKey) *tcell.EventKey {
		if ev.Key() != tcell.KeyRune {
			return ev
		}
		switch ev.Rune() {
		case 'q':
			a.waker.Post(wake.Quit)
		case '/':
			a.pages.SwitchToPage("search")
			a.app.SetFocus(a.searchView.Input())
		case 'c':
			a.openComposer(smtp.Outgoing{})
		case 'r':
			a.replySelected()
		case ' ':
			if uid := a.msgList.SelectedUID(); uid != 0 {
				a.store.ToggleSelected(a.activeFolder, uid)
				a.render(wake.Redraw)
			}
		case 'm':
			a.toggleSeenSelected()
		case 'x':
			a.deleteSelected()
		case 'o':
			a.cycleSortMode(false)
		case 'O':
			a.cycleSortMode(true)
		default:
			return ev
		}
		return nil
	})

	a.msgView.SetInputCapture(func(ev *tcell.EventKey) *tcell.EventKey {
		if ev.Key() == tcell.KeyEscape || (ev.Key() == tcell.KeyRune && ev.Rune() == 'q') {
			a.openUID = 0
			a.pages.SwitchToPage("main")
			return nil
		}
		return ev
	})

	a.searchView.SetInputCapture(func(ev *tcell.EventKey) *tcell.EventKey {
		if ev.Key() == tcell.KeyEscape {
			a.acc.Clear()
			a.pages.SwitchToPage("main")
			return nil
		}
		return ev
	})
}

// Run starts the wake loop and the terminal event loop. It blocks until
// the user quits.
func (a *App) Run() error {
	a.engine.EnsureView(a.activeFolder)
	a.offerComposeRecovery()
	go a.wakeLoop()
	return a.app.Run()
}

// Stop terminates the terminal event loop.
func (a *App) Stop() {
	a.app.Stop()
}

// wakeLoop waits for wake bits and pushes renders into the tview event
// loop. A wait timeout doubles as the idle refresh tick.
func (a *App) wakeLoop() {
	for {
		bits, ok := a.waker.Wait(a.cfg.IdleRefresh)
		if !ok {
			a.engine.Refresh(a.activeFolder)
			continue
		}
		if bits&wake.Quit != 0 {
			a.app.Stop()
			return
		}
		if bits&wake.NewMail != 0 && a.cfg.NewMailBell {
			fmt.Fprint(os.Stdout, "\a")
		}
		a.app.QueueUpdateDraw(func() {
			a.render(bits)
		})
	}
}

func (a *App) render(bits wake.Bits) {
	a.statusBar.SetState(a.machine.Current())
	a.statusBar.SetActivity(a.machine.Line())
	if bits&wake.SmtpError != 0 {
		a.statusBar.SetFlash("Send failed, see fallback")
	}

	folders := a.store.Folders()
	counts := make(map[string]int, len(folders))
	for _, f := range folders {
		if a.store.HasUids(f) {
			counts[f] = len(a.store.Uids(f))
		}
	}
	a.folderList.Update(folders, counts)

	a.renderMessageList()

	if bits&wake.SearchUpdated != 0 {
		a.searchView.Update(a.acc.Results(), a.acc.HasMore())
	}
	if a.openUID != 0 {
		hdr, _ := a.store.Header(a.activeFolder, a.openUID)
		body, _ := a.store.Body(a.activeFolder, a.openUID)
		a.msgView.Update(hdr, body)
	}
}

// renderMessageList reads the ordered view back to front so the newest
// message lands on the top row.
func (a *App) renderMessageList() {
	ordered := a.store.GetOrdered(a.activeFolder)
	rows := make([]views.Row, 0, len(ordered))
	for i := len(ordered) - 1; i >= 0; i-- {
		uid := ordered[i]
		hdr, _ := a.store.Header(a.activeFolder, uid)
		flags, hasFlags := a.store.Flags(a.activeFolder, uid)
		rows = append(rows, views.Row{
			UID:      uid,
			Header:   hdr,
			Flags:    flags,
			HasFlags: hasFlags,
			Selected: a.store.IsSelected(a.activeFolder, uid),
		})
	}
	mode := a.store.Mode(a.activeFolder)
	title := fmt.Sprintf("%s [%s]", a.activeFolder, mode)
	if mode.IsFilter() && a.store.HasUids(a.activeFolder) {
		title = fmt.Sprintf("%s %d/%d", title, len(ordered), len(a.store.Uids(a.activeFolder)))
	}
	a.msgList.SetTitleText(title)
	a.msgList.Update(rows, a.activeFolder == a.cfg.SentFolder)
}

func (a *App) openMessage(folder string, uid mail.UID) {
	if folder == a.cfg.DraftsFolder {
		a.editDraft(folder, uid)
		return
	}
	a.activeFolder = folder
	a.openUID = uid
	a.engine.RequestBodies(folder, []mail.UID{uid}, true)
	if flags, ok := a.store.Flags(folder, uid); ok && !flags.Seen() {
		a.engine.ToggleSeen(folder, []mail.UID{uid}, true)
	}
	hdr, _ := a.store.Header(folder, uid)
	body, _ := a.store.Body(folder, uid)
	a.msgView.Update(hdr, body)
	a.pages.SwitchToPage("message")
}

// actionTargets returns the explicit selection if any, else the
// highlighted row.
func (a *App) actionTargets() []mail.UID {
	if sel := a.store.Selected(a.activeFolder); len(sel) > 0 {
		return sel
	}
	if uid := a.msgList.SelectedUID(); uid != 0 {
		return []mail.UID{uid}
	}
	return nil
}

func (a *App) toggleSeenSelected() {
	uids := a.actionTargets()
	if len(uids) == 0 {
		return
	}
	// The first target decides the direction for the whole batch.
	seen := true
	if flags, ok := a.store.Flags(a.activeFolder, uids[0]); ok {
		seen = !flags.Seen()
	}
	a.engine.ToggleSeen(a.activeFolder, uids, seen)
	a.store.ClearSelection(a.activeFolder)
}

func (a *App) deleteSelected() {
	uids := a.actionTargets()
	if len(uids) == 0 {
		return
	}
	a.engine.DeleteMessages(a.activeFolder, uids)
	a.store.ClearSelection(a.activeFolder)
	for _, uid := range uids {
		a.acc.Remove(a.activeFolder, uid)
	}
}

// sortCycle is the order the 'o' key steps through. 'O' steps through the
// filter modes instead.
var sortCycle = []mail.SortMode{
	mail.SortDefault, mail.SortDateAsc, mail.SortNameDesc, mail.SortNameAsc,
	mail.SortSubjDesc, mail.SortSubjAsc, mail.SortUnseenDesc, mail.SortAttachDesc,
}

var filterCycle = []mail.SortMode{
	mail.SortDefault, mail.SortUnseenOnly, mail.SortAttachOnly,
	mail.SortCurrDateOnly, mail.SortCurrNameOnly, mail.SortCurrSubjOnly,
}

func (a *App) cycleSortMode(filters bool) {
	cycle := sortCycle
	if filters {
		cycle = filterCycle
	}
	mode := a.store.Mode(a.activeFolder)
	next := cycle[0]
	for i, m := range cycle {
		if m == mode {
			next = cycle[(i+1)%len(cycle)]
			break
		}
	}
	cursor := a.msgList.SelectedUID()
	ref := ""
	if next.NeedsFilterRef() {
		r, ok := a.store.FilterRef(a.activeFolder, next, cursor)
		if !ok {
			return
		}
		ref = r
	}
	a.store.SetMode(a.activeFolder, next, ref)
	a.render(wake.Redraw)
	// Keep the cursor on the same message across the mode switch.
	a.msgList.SelectUID(cursor)
}

func (a *App) openComposer(seed smtp.Outgoing) {
	a.composer.Open(uuid.NewString(), a.cfg.Address, seed)
	a.pages.SwitchToPage("compose")
	a.app.SetFocus(a.composer)
}

// editDraft reopens a server-side draft in the composer. The seed records
// the draft's UID so a later send or re-save supersedes it on the server.
func (a *App) editDraft(folder string, uid mail.UID) {
	hdr, ok := a.store.Header(folder, uid)
	if !ok {
		return
	}
	body, ok := a.store.Body(folder, uid)
	if !ok {
		a.engine.RequestBodies(folder, []mail.UID{uid}, true)
		a.statusBar.SetFlash("Fetching draft...")
		return
	}
	a.openComposer(smtp.Outgoing{
		To:       hdr.To,
		Cc:       hdr.Cc,
		Subject:  hdr.Subject,
		Text:     body.Text,
		DraftUID: uid,
	})
}

func (a *App) replySelected() {
	uid := a.msgList.SelectedUID()
	if uid == 0 {
		return
	}
	hdr, ok := a.store.Header(a.activeFolder, uid)
	if !ok {
		return
	}
	subject := hdr.Subject
	if subject != "" {
		subject = a.cfg.ReplyPrefix + " " + subject
	}
	a.openComposer(smtp.Outgoing{
		To:        hdr.From,
		Subject:   subject,
		InReplyTo: hdr.MessageID,
	})
}

// offerComposeRecovery reopens the newest backed-up composition, if any.
// Backups are drained here once and never replayed later.
func (a *App) offerComposeRecovery() {
	backups, err := a.sender.DrainComposeBackups()
	if err != nil {
		a.log.Warn("compose backup drain failed", zap.Error(err))
		return
	}
	if len(backups) == 0 {
		return
	}
	latest := backups[len(backups)-1]
	a.log.Info("recovered compose backup", zap.String("subject", latest.Subject))
	a.composer.Open(latest.SessionID, a.cfg.Address, latest)
	a.pages.SwitchToPage("compose")
	a.app.SetFocus(a.composer)
	a.statusBar.SetFlash("Recovered unsent draft")
}
