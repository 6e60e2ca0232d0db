package views

import (
	"fmt"

	"github.com/rivo/tview"
)

// FolderList is the left-hand folder pane.
type FolderList struct {
	*tview.Table
	folders    []string
	onSelect   func(folder string)
	selectedFn func() (int, int)
}

// NewFolderList creates a new folder list table.
func NewFolderList() *FolderList {
	table := tview.NewTable().
		SetSelectable(true, false).
		SetBorders(false)
	table.SetBorder(true).SetTitle(" Folders ")

	fl := &FolderList{Table: table}
	fl.selectedFn = table.GetSelection
	return fl
}

// SetOnSelect sets the callback when a folder is chosen.
func (fl *FolderList) SetOnSelect(fn func(folder string)) {
	fl.onSelect = fn
	fl.SetSelectedFunc(func(row, col int) {
		if f := fl.SelectedFolder(); f != "" && fl.onSelect != nil {
			fl.onSelect(f)
		}
	})
}

// Update refreshes the folder list. counts maps folder to message count,
// -1 meaning not yet known.
func (fl *FolderList) Update(folders []string, counts map[string]int) {
	fl.folders = folders
	fl.Clear()
	for i, folder := range folders {
		label := " " + folder
		if n, ok := counts[folder]; ok && n >= 0 {
			label = fmt.Sprintf(" %s (%d)", folder, n)
		}
		fl.SetCell(i, 0, tview.NewTableCell(label).SetExpansion(1))
	}
}

// SelectedFolder returns the currently highlighted folder.
func (fl *FolderList) SelectedFolder() string {
	row, _ := fl.selectedFn()
	if row >= 0 && row < len(fl.folders) {
		return fl.folders[row]
	}
	return ""
}
