package views

import (
	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/ternmail/tern/internal/mail"
	"github.com/ternmail/tern/internal/search"
)

// SearchView is the full-text search pane: an input field over a result
// table that accumulates pages as they arrive.
type SearchView struct {
	*tview.Flex
	input      *tview.InputField
	table      *tview.Table
	hits       []search.Hit
	onQuery    func(text string)
	onOpen     func(folder string, uid mail.UID)
	onMore     func()
	selectedFn func() (int, int)
}

// NewSearchView creates the search pane.
func NewSearchView() *SearchView {
	input := tview.NewInputField().SetLabel(" Search: ")
	table := tview.NewTable().
		SetSelectable(true, false).
		SetBorders(false)

	flex := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(input, 1, 0, true).
		AddItem(table, 0, 1, false)
	flex.SetBorder(true).SetTitle(" Search ")

	sv := &SearchView{Flex: flex, input: input, table: table}
	sv.selectedFn = table.GetSelection

	input.SetDoneFunc(func(key tcell.Key) {
		if key == tcell.KeyEnter && sv.onQuery != nil {
			sv.onQuery(input.GetText())
		}
	})
	table.SetSelectedFunc(func(row, col int) {
		idx := row - 1
		if idx >= 0 && idx < len(sv.hits) && sv.onOpen != nil {
			h := sv.hits[idx]
			sv.onOpen(h.Folder, h.UID)
		}
	})
	return sv
}

// SetOnQuery sets the callback when a query is submitted.
func (sv *SearchView) SetOnQuery(fn func(text string)) { sv.onQuery = fn }

// SetOnOpen sets the callback when a hit is opened.
func (sv *SearchView) SetOnOpen(fn func(folder string, uid mail.UID)) { sv.onOpen = fn }

// SetOnMore sets the callback when the selection reaches the last row and
// more results exist server-side.
func (sv *SearchView) SetOnMore(fn func()) {
	sv.onMore = fn
	sv.table.SetSelectionChangedFunc(func(row, col int) {
		if row == len(sv.hits) && sv.onMore != nil {
			sv.onMore()
		}
	})
}

// Input returns the query field for focus handling.
func (sv *SearchView) Input() *tview.InputField { return sv.input }

// Update refreshes the result table.
func (sv *SearchView) Update(hits []search.Hit, hasMore bool) {
	sv.hits = hits
	sv.table.Clear()

	for col, title := range []string{" Folder", " From", " Subject", " Date"} {
		sv.table.SetCell(0, col, tview.NewTableCell(title).
			SetSelectable(false).
			SetTextColor(tview.Styles.SecondaryTextColor))
	}
	for i, h := range hits {
		from, subject, date := "...", "...", ""
		if h.Header != nil {
			from = h.Header.ShortFrom()
			subject = h.Header.Subject
			date = h.Header.DateTime()
		}
		sv.table.SetCell(i+1, 0, tview.NewTableCell(" "+h.Folder).SetMaxWidth(16))
		sv.table.SetCell(i+1, 1, tview.NewTableCell(" "+from).SetMaxWidth(24).SetExpansion(1))
		sv.table.SetCell(i+1, 2, tview.NewTableCell(" "+subject).SetMaxWidth(60).SetExpansion(3))
		sv.table.SetCell(i+1, 3, tview.NewTableCell(" "+date).SetMaxWidth(18))
	}
	if hasMore {
		sv.table.SetCell(len(hits)+1, 2, tview.NewTableCell(" (more...)").SetSelectable(false))
	}
}
