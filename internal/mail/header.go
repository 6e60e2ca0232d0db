package mail

import (
	"strings"
	"time"
)

// Header is the cached envelope of a message. Created whole on first
// successful header fetch and replaced on arrival, never partially updated.
type Header struct {
	Subject        string
	From           string
	To             string
	Cc             string
	Bcc            string
	Date           time.Time
	MessageID      string
	HasAttachments bool
}

// DateTime returns the sortable date-time string used as the display-key
// base. Empty when the date is unset so headerless messages order
// consistently.
func (h *Header) DateTime() string {
	if h == nil || h.Date.IsZero() {
		return ""
	}
	return h.Date.UTC().Format("2006-01-02 15:04:05")
}

// DateOnly returns the calendar date, used by the same-date filter.
func (h *Header) DateOnly() string {
	if h == nil || h.Date.IsZero() {
		return ""
	}
	return h.Date.UTC().Format("2006-01-02")
}

// ShortFrom returns the sender display name, falling back to the address
// local part.
func (h *Header) ShortFrom() string {
	if h == nil {
		return ""
	}
	return shortAddr(h.From)
}

// ShortTo returns the first recipient display name, falling back to the
// address local part. Used instead of the sender in sent folders.
func (h *Header) ShortTo() string {
	if h == nil {
		return ""
	}
	first := h.To
	if idx := strings.IndexByte(first, ','); idx >= 0 {
		first = first[:idx]
	}
	return shortAddr(first)
}

// shortAddr extracts a display name from "Name <addr@host>" or the local
// part from a bare address.
func shortAddr(s string) string {
	s = strings.TrimSpace(s)
	if idx := strings.IndexByte(s, '<'); idx > 0 {
		return strings.Trim(strings.TrimSpace(s[:idx]), `"`)
	}
	s = strings.Trim(s, "<>")
	if idx := strings.IndexByte(s, '@'); idx > 0 {
		return s[:idx]
	}
	return s
}
