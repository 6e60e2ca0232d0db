package display

import (
	"sort"
	"testing"
	"time"

	"github.com/ternmail/tern/internal/mail"
)

func hdr(date time.Time, from, subject string, attach bool) *mail.Header {
	return &mail.Header{
		Subject:        subject,
		From:           from,
		Date:           date,
		HasAttachments: attach,
	}
}

func ctx(mode mail.SortMode) KeyContext {
	return KeyContext{Mode: mode, Norm: mail.NewNormalizer([]string{"re"})}
}

// Keys under one mode are fixed-width, so byte inversion exactly reverses
// their relative order.
func TestBitInvertReversesOrder(t *testing.T) {
	keys := []string{
		"2023-01-01 15:00:00 0000005",
		"2023-06-01 09:00:00 0000007",
		"2023-06-01 09:00:00 0000009",
		"2024-12-31 23:59:59 0000001",
	}
	for i := 0; i < len(keys); i++ {
		for j := 0; j < len(keys); j++ {
			a, b := keys[i], keys[j]
			if a != b && (a < b) != (BitInvert(a) > BitInvert(b)) {
				t.Errorf("BitInvert broke order for %q vs %q", a, b)
			}
		}
	}
}

func TestBitInvertRoundTrip(t *testing.T) {
	s := "2023-01-01 15:00:00 0000005"
	if got := BitInvert(BitInvert(s)); got != s {
		t.Errorf("double BitInvert = %q, want %q", got, s)
	}
}

// Two messages, uid 5 older and uid 7 newer: default order puts the newer
// key last (consumers read back to front), ascending inverts that.
func TestDateOrdering(t *testing.T) {
	older := KeyInput{UID: 5, Header: hdr(time.Date(2023, 1, 1, 15, 0, 0, 0, time.UTC), "a@x", "s", false)}
	newer := KeyInput{UID: 7, Header: hdr(time.Date(2023, 6, 1, 9, 0, 0, 0, time.UTC), "b@x", "s", false)}

	kOld := MakeKey(older, ctx(mail.SortDefault))
	kNew := MakeKey(newer, ctx(mail.SortDefault))
	if !(kOld < kNew) {
		t.Errorf("default keys out of order: %q !< %q", kOld, kNew)
	}

	aOld := MakeKey(older, ctx(mail.SortDateAsc))
	aNew := MakeKey(newer, ctx(mail.SortDateAsc))
	if !(aNew < aOld) {
		t.Errorf("ascending keys out of order: %q !< %q", aNew, aOld)
	}
}

// Same timestamp: the zero-padded UID breaks the tie numerically.
func TestUIDTieBreak(t *testing.T) {
	when := time.Date(2023, 1, 1, 12, 0, 0, 0, time.UTC)
	k5 := MakeKey(KeyInput{UID: 5, Header: hdr(when, "a@x", "s", false)}, ctx(mail.SortDefault))
	k40 := MakeKey(KeyInput{UID: 40, Header: hdr(when, "a@x", "s", false)}, ctx(mail.SortDefault))
	if !(k5 < k40) {
		t.Errorf("uid tie-break wrong: %q !< %q", k5, k40)
	}
}

// A message with no cached header still gets a non-empty key so it shows up
// in the view.
func TestHeaderlessKey(t *testing.T) {
	k := MakeKey(KeyInput{UID: 9}, ctx(mail.SortDefault))
	if k != " 0000009" {
		t.Errorf("headerless key = %q, want %q", k, " 0000009")
	}
}

func TestUnseenOnlyFilter(t *testing.T) {
	in := KeyInput{UID: 3, Header: hdr(time.Now(), "a@x", "s", false)}

	if k := MakeKey(in, ctx(mail.SortUnseenOnly)); k != "" {
		t.Errorf("no-flags message included in unseen filter: %q", k)
	}
	in.HasFlags = true
	if k := MakeKey(in, ctx(mail.SortUnseenOnly)); k == "" {
		t.Error("unseen message excluded from unseen filter")
	}
	in.Flags = in.Flags.WithSeen(true)
	if k := MakeKey(in, ctx(mail.SortUnseenOnly)); k != "" {
		t.Errorf("seen message included in unseen filter: %q", k)
	}
}

func TestAttachOnlyFilter(t *testing.T) {
	with := KeyInput{UID: 1, Header: hdr(time.Now(), "a@x", "s", true)}
	without := KeyInput{UID: 2, Header: hdr(time.Now(), "a@x", "s", false)}
	if MakeKey(with, ctx(mail.SortAttachOnly)) == "" {
		t.Error("attachment message excluded")
	}
	if MakeKey(without, ctx(mail.SortAttachOnly)) != "" {
		t.Error("plain message included")
	}
	if MakeKey(KeyInput{UID: 3}, ctx(mail.SortAttachOnly)) != "" {
		t.Error("headerless message included")
	}
}

func TestCurrentFilters(t *testing.T) {
	when := time.Date(2023, 5, 10, 8, 0, 0, 0, time.UTC)
	in := KeyInput{UID: 4, Header: hdr(when, "José García <jg@x>", "Re: Plans", false)}
	norm := mail.NewNormalizer([]string{"re"})

	kc := KeyContext{Mode: mail.SortCurrDateOnly, FilterRef: "2023-05-10", Norm: norm}
	if MakeKey(in, kc) == "" {
		t.Error("same-date message excluded")
	}
	kc.FilterRef = "2023-05-11"
	if MakeKey(in, kc) != "" {
		t.Error("other-date message included")
	}

	kc = KeyContext{Mode: mail.SortCurrNameOnly, FilterRef: "jose garcia", Norm: norm}
	if MakeKey(in, kc) == "" {
		t.Error("same-name message excluded")
	}

	kc = KeyContext{Mode: mail.SortCurrSubjOnly, FilterRef: "plans", Norm: norm}
	if MakeKey(in, kc) == "" {
		t.Error("same-subject message excluded after reply-prefix strip")
	}
}

// Unseen-desc groups unseen ("1" prefix) after seen ("0" prefix) in
// ascending key order, so back-to-front consumers see unseen first.
func TestUnseenSortGrouping(t *testing.T) {
	when := time.Now()
	seen := KeyInput{UID: 1, Header: hdr(when, "a@x", "s", false), Flags: mail.FlagSeen, HasFlags: true}
	unseen := KeyInput{UID: 2, Header: hdr(when, "a@x", "s", false), HasFlags: true}

	kSeen := MakeKey(seen, ctx(mail.SortUnseenDesc))
	kUnseen := MakeKey(unseen, ctx(mail.SortUnseenDesc))
	if !(kSeen < kUnseen) {
		t.Errorf("unseen not grouped last: %q !< %q", kSeen, kUnseen)
	}
}

func TestNameSortUsesNormalizedName(t *testing.T) {
	when := time.Now()
	a := MakeKey(KeyInput{UID: 1, Header: hdr(when, "Ärna <a@x>", "s", false)}, ctx(mail.SortNameDesc))
	b := MakeKey(KeyInput{UID: 2, Header: hdr(when, "arna <b@x>", "s", false)}, ctx(mail.SortNameDesc))
	// Same normalized name: keys share the name prefix and differ in uid.
	if a[:5] != b[:5] {
		t.Errorf("normalized name prefixes differ: %q vs %q", a[:5], b[:5])
	}
}

func TestRecipientSideInSentFolder(t *testing.T) {
	h := hdr(time.Now(), "me@x", "s", false)
	h.To = "Zoe <zoe@x>"
	in := KeyInput{UID: 1, Header: h}

	norm := mail.NewNormalizer(nil)
	sender := MakeKey(in, KeyContext{Mode: mail.SortNameDesc, Norm: norm})
	recipient := MakeKey(in, KeyContext{Mode: mail.SortNameDesc, UseRecipient: true, Norm: norm})
	if sender == recipient {
		t.Error("recipient side ignored for name key")
	}
	if got := recipient[:3]; got != "zoe" {
		t.Errorf("recipient key prefix = %q, want %q", got, "zoe")
	}
}

// Sorting the full key set of a folder must equal sorting by (date, uid).
func TestKeySetOrderMatchesDateUID(t *testing.T) {
	base := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	type msg struct {
		uid  mail.UID
		date time.Time
	}
	msgs := []msg{
		{5, base.Add(48 * time.Hour)},
		{7, base.Add(2 * time.Hour)},
		{3, base.Add(48 * time.Hour)},
		{12, base},
	}
	keys := make([]string, len(msgs))
	byKey := make(map[string]mail.UID, len(msgs))
	for i, m := range msgs {
		k := MakeKey(KeyInput{UID: m.uid, Header: hdr(m.date, "a@x", "s", false)}, ctx(mail.SortDefault))
		keys[i] = k
		byKey[k] = m.uid
	}
	sort.Strings(keys)

	want := []mail.UID{12, 7, 3, 5}
	for i, k := range keys {
		if byKey[k] != want[i] {
			t.Fatalf("order[%d] = uid %d, want %d", i, byKey[k], want[i])
		}
	}
}
