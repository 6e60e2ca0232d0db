package views

import (
	"github.com/rivo/tview"

	"github.com/ternmail/tern/internal/mail"
)

// Row is one renderable message list entry.
type Row struct {
	UID      mail.UID
	Header   *mail.Header
	Flags    mail.Flags
	HasFlags bool
	Selected bool
}

// MessageList is the message table for the active folder.
type MessageList struct {
	*tview.Table
	rows       []Row
	recipient  bool
	onOpen     func(uid mail.UID)
	selectedFn func() (int, int)
}

// NewMessageList creates a new message table.
func NewMessageList() *MessageList {
	table := tview.NewTable().
		SetSelectable(true, false).
		SetBorders(false)
	table.SetBorder(true).SetTitle(" Messages ")

	ml := &MessageList{Table: table}
	ml.selectedFn = table.GetSelection
	return ml
}

// SetOnOpen sets the callback when a message is opened.
func (ml *MessageList) SetOnOpen(fn func(uid mail.UID)) {
	ml.onOpen = fn
	ml.SetSelectedFunc(func(row, col int) {
		if uid := ml.SelectedUID(); uid != 0 && ml.onOpen != nil {
			ml.onOpen(uid)
		}
	})
}

// SetTitleText updates the pane title, used to show folder and sort mode.
func (ml *MessageList) SetTitleText(title string) {
	ml.SetTitle(" " + title + " ")
}

// Update refreshes the table. showRecipient switches the address column
// from sender to recipient, used for the sent folder.
func (ml *MessageList) Update(rows []Row, showRecipient bool) {
	ml.rows = rows
	ml.recipient = showRecipient
	ml.Clear()

	addrTitle := " From"
	if showRecipient {
		addrTitle = " To"
	}
	for col, title := range []string{" ", addrTitle, " Subject", " Date"} {
		ml.SetCell(0, col, tview.NewTableCell(title).
			SetSelectable(false).
			SetTextColor(tview.Styles.SecondaryTextColor))
	}

	for i, r := range rows {
		ml.SetCell(i+1, 0, tview.NewTableCell(markerCell(r)).SetMaxWidth(4))
		ml.SetCell(i+1, 1, tview.NewTableCell(" "+addrCell(r, showRecipient)).SetMaxWidth(24).SetExpansion(1))
		ml.SetCell(i+1, 2, tview.NewTableCell(" "+subjectCell(r)).SetMaxWidth(60).SetExpansion(3))
		ml.SetCell(i+1, 3, tview.NewTableCell(" "+dateCell(r)).SetMaxWidth(18))
	}
}

// SelectUID moves the highlight to the row showing uid. When the uid is not
// in the current view the highlight clamps to the nearest valid row.
func (ml *MessageList) SelectUID(uid mail.UID) {
	for i, r := range ml.rows {
		if r.UID == uid {
			ml.Select(i+1, 0)
			return
		}
	}
	if row, _ := ml.selectedFn(); row > len(ml.rows) {
		ml.Select(len(ml.rows), 0)
	}
}

// SelectedUID returns the UID of the highlighted row, 0 if none.
func (ml *MessageList) SelectedUID() mail.UID {
	row, _ := ml.selectedFn()
	idx := row - 1 // account for header
	if idx >= 0 && idx < len(ml.rows) {
		return ml.rows[idx].UID
	}
	return 0
}

func markerCell(r Row) string {
	m := []byte{' ', ' ', ' '}
	if r.Selected {
		m[0] = '*'
	}
	if r.HasFlags && !r.Flags.Seen() {
		m[1] = 'N'
	}
	if r.Header != nil && r.Header.HasAttachments {
		m[2] = '@'
	}
	return " " + string(m)
}

func addrCell(r Row, recipient bool) string {
	if r.Header == nil {
		return "..."
	}
	if recipient {
		return r.Header.ShortTo()
	}
	return r.Header.ShortFrom()
}

func subjectCell(r Row) string {
	if r.Header == nil {
		return "..."
	}
	return r.Header.Subject
}

func dateCell(r Row) string {
	if r.Header == nil {
		return ""
	}
	return r.Header.DateTime()
}
