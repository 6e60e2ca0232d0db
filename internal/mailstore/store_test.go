package mailstore

import (
	"testing"
	"time"

	"github.com/ternmail/tern/internal/mail"
)

func testStore() *Store {
	return New(Params{
		SentFolder: "Sent",
		Norm:       mail.NewNormalizer([]string{"re"}),
	})
}

func hdr(uid mail.UID, date time.Time, from, subject string) *mail.Header {
	return &mail.Header{Subject: subject, From: from, Date: date}
}

func uidsEqual(t *testing.T, got, want []mail.UID) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("uids = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("uids = %v, want %v", got, want)
		}
	}
}

func TestSetFoldersDiff(t *testing.T) {
	s := testStore()
	added, removed := s.SetFolders([]string{"INBOX", "Sent"})
	if len(added) != 2 || len(removed) != 0 {
		t.Fatalf("added=%v removed=%v", added, removed)
	}
	if !s.HasFolders() {
		t.Error("HasFolders() = false after SetFolders")
	}

	s.ApplyUids("Sent", []mail.UID{1})
	added, removed = s.SetFolders([]string{"INBOX", "Archive"})
	if len(added) != 1 || added[0] != "Archive" {
		t.Errorf("added = %v", added)
	}
	if len(removed) != 1 || removed[0] != "Sent" {
		t.Errorf("removed = %v", removed)
	}
	// State for the removed folder was dropped.
	if s.HasUids("Sent") {
		t.Error("removed folder kept its uid set")
	}
}

func TestApplyUidsDiff(t *testing.T) {
	s := testStore()
	added, removed := s.ApplyUids("INBOX", []mail.UID{5, 7})
	if len(added) != 2 || len(removed) != 0 {
		t.Fatalf("added=%v removed=%v", added, removed)
	}
	uidsEqual(t, s.Uids("INBOX"), []mail.UID{5, 7})

	// Same set again: no changes.
	added, removed = s.ApplyUids("INBOX", []mail.UID{7, 5})
	if len(added) != 0 || len(removed) != 0 {
		t.Errorf("idempotent apply produced added=%v removed=%v", added, removed)
	}

	// 7 leaves, 9 arrives.
	added, removed = s.ApplyUids("INBOX", []mail.UID{5, 9})
	if len(added) != 1 || added[0] != 9 {
		t.Errorf("added = %v", added)
	}
	if len(removed) != 1 || removed[0] != 7 {
		t.Errorf("removed = %v", removed)
	}
}

func TestApplyUidsPurgesRemoved(t *testing.T) {
	s := testStore()
	s.ApplyUids("INBOX", []mail.UID{5, 7})
	s.ApplyHeaders("INBOX", map[mail.UID]*mail.Header{7: hdr(7, time.Now(), "a@x", "s")})
	s.ApplyFlags("INBOX", map[mail.UID]mail.Flags{7: mail.FlagSeen})
	s.ToggleSelected("INBOX", 7)
	s.SetLocalFlags("INBOX", []mail.UID{7}, false)

	s.ApplyUids("INBOX", []mail.UID{5})

	if _, ok := s.Header("INBOX", 7); ok {
		t.Error("header survived uid removal")
	}
	if _, ok := s.Flags("INBOX", 7); ok {
		t.Error("flags survived uid removal")
	}
	if s.IsSelected("INBOX", 7) {
		t.Error("selection survived uid removal")
	}
	if s.Pending("INBOX", 7) {
		t.Error("pending marker survived uid removal")
	}
}

func TestApplyUidsIgnoresZero(t *testing.T) {
	s := testStore()
	s.ApplyUids("INBOX", []mail.UID{0, 3})
	uidsEqual(t, s.Uids("INBOX"), []mail.UID{3})
}

func TestApplyHeadersIgnoresUnknownUID(t *testing.T) {
	s := testStore()
	s.ApplyUids("INBOX", []mail.UID{5})
	s.ApplyHeaders("INBOX", map[mail.UID]*mail.Header{
		5:  hdr(5, time.Now(), "a@x", "s"),
		99: hdr(99, time.Now(), "b@x", "t"),
	})
	if _, ok := s.Header("INBOX", 5); !ok {
		t.Error("header for known uid missing")
	}
	if _, ok := s.Header("INBOX", 99); ok {
		t.Error("header for unknown uid cached")
	}
}

func TestFetchedFlagsSkipPending(t *testing.T) {
	s := testStore()
	s.ApplyUids("INBOX", []mail.UID{5})

	// Optimistic local change, confirmation outstanding.
	s.SetLocalFlags("INBOX", []mail.UID{5}, true)
	if fl, _ := s.Flags("INBOX", 5); !fl.Seen() {
		t.Fatal("optimistic flag not applied")
	}

	// A stale fetch arrives; it must not clobber the local change.
	s.ApplyFlags("INBOX", map[mail.UID]mail.Flags{5: 0})
	if fl, _ := s.Flags("INBOX", 5); !fl.Seen() {
		t.Error("fetched flags overwrote a pending local mutation")
	}

	// After confirmation, fetched data wins again.
	s.ClearPending("INBOX", []mail.UID{5})
	s.ApplyFlags("INBOX", map[mail.UID]mail.Flags{5: 0})
	if fl, _ := s.Flags("INBOX", 5); fl.Seen() {
		t.Error("fetched flags ignored after pending cleared")
	}
}

func TestRemoveLocal(t *testing.T) {
	s := testStore()
	s.ApplyUids("INBOX", []mail.UID{5, 7, 9})
	s.RemoveLocal("INBOX", []mail.UID{7, 42})
	uidsEqual(t, s.Uids("INBOX"), []mail.UID{5, 9})
}

func TestInvalidate(t *testing.T) {
	s := testStore()
	s.ApplyUids("INBOX", []mail.UID{5})
	s.ApplyFlags("INBOX", map[mail.UID]mail.Flags{5: mail.FlagSeen})
	s.ApplyHeaders("INBOX", map[mail.UID]*mail.Header{5: hdr(5, time.Now(), "a@x", "s")})

	s.Invalidate("INBOX")

	if s.HasUids("INBOX") {
		t.Error("HasUids() = true after invalidate")
	}
	if _, ok := s.Flags("INBOX", 5); ok {
		t.Error("flags survived invalidate")
	}
	// Headers are kept; only flags and the uid set go stale.
	if _, ok := s.Header("INBOX", 5); !ok {
		t.Error("headers dropped by invalidate")
	}
	// A uid fetch can be issued again.
	if !s.MarkUidsFlight("INBOX", StateRequested) {
		t.Error("uid refetch suppressed after invalidate")
	}
}

func TestMissingHeaders(t *testing.T) {
	s := testStore()
	s.ApplyUids("INBOX", []mail.UID{1, 2, 3})
	s.ApplyHeaders("INBOX", map[mail.UID]*mail.Header{2: hdr(2, time.Now(), "a@x", "s")})
	missing := s.MissingHeaders("INBOX", []mail.UID{1, 2, 3})
	uidsEqual(t, missing, []mail.UID{1, 3})
}

func TestMarkFlightDedupe(t *testing.T) {
	s := testStore()
	s.ApplyUids("INBOX", []mail.UID{1, 2, 3})

	// First on-demand request covers all three.
	got := s.MarkFlight("INBOX", KindHeaders, []mail.UID{1, 2, 3}, StateRequested)
	uidsEqual(t, got, []mail.UID{1, 2, 3})

	// Second identical request is fully suppressed.
	got = s.MarkFlight("INBOX", KindHeaders, []mail.UID{1, 2, 3}, StateRequested)
	if len(got) != 0 {
		t.Errorf("duplicate on-demand request issued %v", got)
	}

	// Prefetch never covers uids already in flight.
	got = s.MarkFlight("INBOX", KindHeaders, []mail.UID{2, 3}, StatePrefetched)
	if len(got) != 0 {
		t.Errorf("prefetch issued over in-flight uids: %v", got)
	}
}

func TestMarkFlightUpgradesPrefetch(t *testing.T) {
	s := testStore()
	s.ApplyUids("INBOX", []mail.UID{1})

	got := s.MarkFlight("INBOX", KindHeaders, []mail.UID{1}, StatePrefetched)
	uidsEqual(t, got, []mail.UID{1})

	// On-demand re-issues over an outstanding prefetch.
	got = s.MarkFlight("INBOX", KindHeaders, []mail.UID{1}, StateRequested)
	uidsEqual(t, got, []mail.UID{1})
	if st := s.FlightState("INBOX", KindHeaders, 1); st != StateRequested {
		t.Errorf("FlightState = %v, want StateRequested", st)
	}
}

func TestMarkFlightSkipsCached(t *testing.T) {
	s := testStore()
	s.ApplyUids("INBOX", []mail.UID{1, 2})
	s.ApplyHeaders("INBOX", map[mail.UID]*mail.Header{1: hdr(1, time.Now(), "a@x", "s")})

	got := s.MarkFlight("INBOX", KindHeaders, []mail.UID{1, 2}, StateRequested)
	uidsEqual(t, got, []mail.UID{2})
}

func TestApplyHeadersClearsFlight(t *testing.T) {
	s := testStore()
	s.ApplyUids("INBOX", []mail.UID{1})
	s.MarkFlight("INBOX", KindHeaders, []mail.UID{1}, StateRequested)
	s.ApplyHeaders("INBOX", map[mail.UID]*mail.Header{1: hdr(1, time.Now(), "a@x", "s")})
	if st := s.FlightState("INBOX", KindHeaders, 1); st != StateNone {
		t.Errorf("FlightState after apply = %v, want StateNone", st)
	}
}

func TestMarkUidsRefreshBypassesCachedSet(t *testing.T) {
	s := testStore()
	s.ApplyUids("INBOX", []mail.UID{1, 2})

	// A cached set suppresses a plain prefetch but not a refresh.
	if s.MarkUidsFlight("INBOX", StatePrefetched) {
		t.Fatal("prefetch issued over cached uid set")
	}
	if !s.MarkUidsRefresh("INBOX") {
		t.Fatal("refresh suppressed by cached uid set")
	}
	if s.MarkUidsRefresh("INBOX") {
		t.Error("second refresh issued while one is outstanding")
	}
	s.ApplyUids("INBOX", []mail.UID{1, 2, 3})
	if !s.MarkUidsRefresh("INBOX") {
		t.Error("refresh suppressed after the previous one resolved")
	}
}

func TestFoldersFlightSemantics(t *testing.T) {
	s := testStore()
	if !s.MarkFoldersFlight(StatePrefetched) {
		t.Fatal("initial prefetch suppressed")
	}
	// On-demand goes out over the prefetch.
	if !s.MarkFoldersFlight(StateRequested) {
		t.Error("on-demand suppressed by prefetch in flight")
	}
	if s.MarkFoldersFlight(StateRequested) {
		t.Error("duplicate on-demand issued")
	}
	s.SetFolders([]string{"INBOX"})
	// Cached list blocks further prefetch but not explicit requests.
	if s.MarkFoldersFlight(StatePrefetched) {
		t.Error("prefetch issued over cached folder list")
	}
	if !s.MarkFoldersFlight(StateRequested) {
		t.Error("explicit refresh suppressed by cache")
	}
}
