package search

import (
	"testing"

	"go.uber.org/zap"

	"github.com/ternmail/tern/internal/imap"
	"github.com/ternmail/tern/internal/mail"
	"github.com/ternmail/tern/internal/wake"
)

type fakeSearcher struct {
	queries []imap.SearchQuery
}

func (f *fakeSearcher) AsyncRequest(imap.Request)    {}
func (f *fakeSearcher) PrefetchRequest(imap.Request) {}
func (f *fakeSearcher) AsyncAction(imap.Action)      {}
func (f *fakeSearcher) AsyncSearch(q imap.SearchQuery) {
	f.queries = append(f.queries, q)
}

func newTestAccumulator() (*Accumulator, *fakeSearcher, *wake.Waker) {
	client := &fakeSearcher{}
	waker := wake.New()
	return NewAccumulator(client, waker, zap.NewNop()), client, waker
}

func page(folder string, uids ...mail.UID) imap.SearchResult {
	var res imap.SearchResult
	for _, uid := range uids {
		res.FolderUids = append(res.FolderUids, imap.FolderUID{Folder: folder, UID: uid})
		res.Headers = append(res.Headers, &mail.Header{Subject: "s"})
	}
	return res
}

func TestSearchIssuesFirstPage(t *testing.T) {
	a, client, _ := newTestAccumulator()
	a.Search("invoice")

	if len(client.queries) != 1 {
		t.Fatalf("issued %d queries, want 1", len(client.queries))
	}
	q := client.queries[0]
	if q.Text != "invoice" || q.Offset != 0 || q.Max != pageSize {
		t.Errorf("query = %+v", q)
	}
	if !a.Active() {
		t.Error("Active() = false during search")
	}
}

func TestOnResultMergesPages(t *testing.T) {
	a, client, waker := newTestAccumulator()
	a.Search("x")

	res := page("INBOX", 5, 7)
	res.HasMore = true
	a.OnResult(client.queries[0], res)

	hits := a.Results()
	if len(hits) != 2 || hits[0].UID != 5 || hits[1].UID != 7 {
		t.Fatalf("hits = %+v", hits)
	}
	if !a.HasMore() {
		t.Error("HasMore() = false")
	}
	if waker.TryTake()&wake.SearchUpdated == 0 {
		t.Error("merge did not raise the search-updated bit")
	}

	a.RequestMore()
	if len(client.queries) != 2 {
		t.Fatalf("RequestMore issued %d queries total, want 2", len(client.queries))
	}
	if q := client.queries[1]; q.Offset != 2 {
		t.Errorf("second page offset = %d, want 2", q.Offset)
	}

	a.OnResult(client.queries[1], page("Archive", 3))
	hits = a.Results()
	if len(hits) != 3 || hits[2].Folder != "Archive" {
		t.Fatalf("hits after second page = %+v", hits)
	}
	if a.HasMore() {
		t.Error("HasMore() = true after final page")
	}
}

func TestStaleTextDropped(t *testing.T) {
	a, client, _ := newTestAccumulator()
	a.Search("old")
	stale := client.queries[0]
	a.Search("new")

	a.OnResult(stale, page("INBOX", 5))
	if got := a.Results(); len(got) != 0 {
		t.Errorf("stale page merged: %+v", got)
	}
}

func TestStaleOffsetDropped(t *testing.T) {
	a, client, _ := newTestAccumulator()
	a.Search("x")
	first := client.queries[0]

	res := page("INBOX", 5)
	res.HasMore = true
	a.OnResult(first, res)

	// A duplicate delivery of the first page no longer lines up.
	a.OnResult(first, res)
	if got := a.Results(); len(got) != 1 {
		t.Errorf("duplicate page merged, hits = %+v", got)
	}
}

func TestRequestMoreGated(t *testing.T) {
	a, client, _ := newTestAccumulator()

	a.RequestMore() // no search active
	if len(client.queries) != 0 {
		t.Fatal("RequestMore issued without an active search")
	}

	a.Search("x")
	a.RequestMore() // first page still in flight
	if len(client.queries) != 1 {
		t.Fatal("RequestMore issued while a page was in flight")
	}

	a.OnResult(client.queries[0], page("INBOX", 5)) // HasMore false
	a.RequestMore()
	if len(client.queries) != 1 {
		t.Fatal("RequestMore issued past the last page")
	}
}

func TestClearDropsResults(t *testing.T) {
	a, client, _ := newTestAccumulator()
	a.Search("x")
	a.OnResult(client.queries[0], page("INBOX", 5))

	a.Clear()
	if a.Active() {
		t.Error("Active() = true after clear")
	}
	if got := a.Results(); len(got) != 0 {
		t.Errorf("results survived clear: %+v", got)
	}
}

func TestRemoveHit(t *testing.T) {
	a, client, _ := newTestAccumulator()
	a.Search("x")
	a.OnResult(client.queries[0], page("INBOX", 5, 7))

	a.Remove("INBOX", 5)
	hits := a.Results()
	if len(hits) != 1 || hits[0].UID != 7 {
		t.Errorf("hits after remove = %+v", hits)
	}
}
