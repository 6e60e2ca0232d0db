package mail

// SortMode is the active ordering/filtering rule for a folder's display
// index. Exactly one is active per folder at a time.
type SortMode int

const (
	SortDefault SortMode = iota
	SortDateAsc
	SortDateDesc
	SortNameAsc
	SortNameDesc
	SortSubjAsc
	SortSubjDesc
	SortUnseenAsc
	SortUnseenDesc
	SortUnseenOnly
	SortAttachAsc
	SortAttachDesc
	SortAttachOnly
	SortCurrDateOnly
	SortCurrNameOnly
	SortCurrSubjOnly
)

var sortModeNames = map[SortMode]string{
	SortDefault:      "default",
	SortDateAsc:      "date↑",
	SortDateDesc:     "date↓",
	SortNameAsc:      "name↑",
	SortNameDesc:     "name↓",
	SortSubjAsc:      "subj↑",
	SortSubjDesc:     "subj↓",
	SortUnseenAsc:    "unseen↑",
	SortUnseenDesc:   "unseen↓",
	SortUnseenOnly:   "unseen",
	SortAttachAsc:    "attach↑",
	SortAttachDesc:   "attach↓",
	SortAttachOnly:   "attach",
	SortCurrDateOnly: "=date",
	SortCurrNameOnly: "=name",
	SortCurrSubjOnly: "=subj",
}

func (m SortMode) String() string {
	if s, ok := sortModeNames[m]; ok {
		return s
	}
	return "unknown"
}

// IsFilter reports whether the mode excludes messages rather than reorders
// them.
func (m SortMode) IsFilter() bool {
	switch m {
	case SortUnseenOnly, SortAttachOnly, SortCurrDateOnly, SortCurrNameOnly, SortCurrSubjOnly:
		return true
	}
	return false
}

// NeedsFilterRef reports whether the mode compares against a captured
// reference value from the current message.
func (m SortMode) NeedsFilterRef() bool {
	switch m {
	case SortCurrDateOnly, SortCurrNameOnly, SortCurrSubjOnly:
		return true
	}
	return false
}

// UsesFlags reports whether display keys under this mode depend on the flag
// word, so flag changes must re-key index entries.
func (m SortMode) UsesFlags() bool {
	switch m {
	case SortUnseenAsc, SortUnseenDesc, SortUnseenOnly:
		return true
	}
	return false
}
