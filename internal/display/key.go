// Package display maintains the ordered mapping from sort key to message UID
// that backs folder views. Keys are composed so lexicographic string order
// equals the desired message order; an empty key excludes the message from
// the view.
package display

import (
	"github.com/ternmail/tern/internal/mail"
)

// KeyInput carries the cached data a key is derived from. Header is nil and
// HasFlags false when the respective data has not arrived yet; a message
// with no cached header still gets an index entry so navigation does not
// stall.
type KeyInput struct {
	UID      mail.UID
	Header   *mail.Header
	Flags    mail.Flags
	HasFlags bool
}

// KeyContext is the per-folder state key construction depends on.
type KeyContext struct {
	Mode mail.SortMode
	// UseRecipient selects the To side for name keys, used in sent folders.
	UseRecipient bool
	// FilterRef is the captured reference value for the current-date/name/
	// subject filters.
	FilterRef string
	Norm      *mail.Normalizer
}

// MakeKey builds the display key for one message under one mode. The base
// suffix is "<date-time> <7-digit uid>"; ascending variants are produced by
// inverting every byte of the descending key, which flips iteration order
// without a second map type.
func MakeKey(in KeyInput, kc KeyContext) string {
	base := in.Header.DateTime() + " " + in.UID.ZeroPad()

	switch kc.Mode {
	case mail.SortDefault, mail.SortDateDesc:
		return base

	case mail.SortDateAsc:
		return BitInvert(base)

	case mail.SortUnseenOnly:
		if in.HasFlags && !in.Flags.Seen() {
			return base
		}
		return ""

	case mail.SortAttachOnly:
		if in.Header != nil && in.Header.HasAttachments {
			return base
		}
		return ""

	case mail.SortCurrDateOnly:
		if in.Header != nil && in.Header.DateOnly() == kc.FilterRef {
			return base
		}
		return ""

	case mail.SortCurrNameOnly:
		if in.Header == nil {
			return ""
		}
		if kc.Norm.NormalizeName(nameSide(in.Header, kc.UseRecipient)) == kc.FilterRef {
			return base
		}
		return ""

	case mail.SortCurrSubjOnly:
		if in.Header == nil {
			return ""
		}
		if kc.Norm.NormalizeSubject(in.Header.Subject, true) == kc.FilterRef {
			return base
		}
		return ""

	case mail.SortNameDesc:
		return namePriKey(in, kc) + " " + base
	case mail.SortNameAsc:
		return BitInvert(namePriKey(in, kc) + " " + base)

	case mail.SortSubjDesc:
		return subjPriKey(in, kc) + " " + base
	case mail.SortSubjAsc:
		return BitInvert(subjPriKey(in, kc) + " " + base)

	case mail.SortUnseenDesc:
		return unseenPriKey(in) + " " + base
	case mail.SortUnseenAsc:
		return BitInvert(unseenPriKey(in) + " " + base)

	case mail.SortAttachDesc:
		return attachPriKey(in) + " " + base
	case mail.SortAttachAsc:
		return BitInvert(attachPriKey(in) + " " + base)
	}

	return base
}

// BitInvert returns the string with every byte inverted, reversing its
// lexicographic order relative to the original.
func BitInvert(s string) string {
	b := []byte(s)
	for i := range b {
		b[i] = ^b[i]
	}
	return string(b)
}

func nameSide(h *mail.Header, useRecipient bool) string {
	if useRecipient {
		return h.ShortTo()
	}
	return h.ShortFrom()
}

func namePriKey(in KeyInput, kc KeyContext) string {
	if in.Header == nil {
		return ""
	}
	return kc.Norm.NormalizeName(nameSide(in.Header, kc.UseRecipient))
}

func subjPriKey(in KeyInput, kc KeyContext) string {
	if in.Header == nil {
		return ""
	}
	return kc.Norm.NormalizeSubject(in.Header.Subject, true)
}

func unseenPriKey(in KeyInput) string {
	if in.HasFlags && !in.Flags.Seen() {
		return "1"
	}
	return "0"
}

func attachPriKey(in KeyInput) string {
	if in.Header != nil && in.Header.HasAttachments {
		return "1"
	}
	return "0"
}
