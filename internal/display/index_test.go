package display

import (
	"testing"

	"github.com/ternmail/tern/internal/mail"
)

func TestIndexInsertOrder(t *testing.T) {
	ix := NewIndex()
	ix.Insert("b", 2)
	ix.Insert("a", 1)
	ix.Insert("c", 3)

	got := ix.UIDs()
	want := []mail.UID{1, 2, 3}
	if len(got) != len(want) {
		t.Fatalf("UIDs() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("UIDs()[%d] = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestIndexRejectsEmptyKeyAndZeroUID(t *testing.T) {
	ix := NewIndex()
	ix.Insert("", 5)
	ix.Insert("k", 0)
	if ix.Len() != 0 {
		t.Errorf("Len() = %d, want 0", ix.Len())
	}
}

func TestIndexRemove(t *testing.T) {
	ix := NewIndex()
	ix.Insert("a", 1)
	ix.Insert("b", 2)
	ix.Remove("a")
	ix.Remove("missing")
	if ix.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", ix.Len())
	}
	if got := ix.UIDs(); got[0] != 2 {
		t.Errorf("UIDs() = %v, want [2]", got)
	}
}

func TestIndexPosition(t *testing.T) {
	ix := NewIndex()
	ix.Insert("a", 10)
	ix.Insert("b", 20)
	ix.Insert("c", 30)

	if pos := ix.Position(20); pos != 1 {
		t.Errorf("Position(20) = %d, want 1", pos)
	}
	if pos := ix.Position(99); pos != -1 {
		t.Errorf("Position(99) = %d, want -1", pos)
	}
}

func TestIndexReplaceSameKey(t *testing.T) {
	ix := NewIndex()
	ix.Insert("a", 1)
	ix.Insert("a", 2)
	if ix.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", ix.Len())
	}
	if got := ix.UIDs(); got[0] != 2 {
		t.Errorf("UIDs() = %v, want [2]", got)
	}
}
