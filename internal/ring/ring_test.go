package ring_test

import (
	"testing"

	"github.com/MrWong99/buzzer/internal/ring"
)

func TestRing_EvictsOldest(t *testing.T) {
	t.Parallel()
	r := ring.New[int](500)
	for i := range 600 {
		r.Push(i)
	}
	if r.Len() != 500 {
		t.Fatalf("len: got %d, want 500", r.Len())
	}
	if r.Total() != 600 {
		t.Errorf("total: got %d, want 600", r.Total())
	}
	got := r.Snapshot()
	for i, v := range got {
		if v != i+100 {
			t.Fatalf("element %d: got %d, want %d", i, v, i+100)
		}
	}
}

func TestRing_PushReportsEviction(t *testing.T) {
	t.Parallel()
	r := ring.New[string](2)
	if _, ev := r.Push("a"); ev {
		t.Error("first push should not evict")
	}
	r.Push("b")
	old, ev := r.Push("c")
	if !ev || old != "a" {
		t.Errorf("got (%q, %v), want (\"a\", true)", old, ev)
	}
}

func TestRing_WrapsInOrder(t *testing.T) {
	t.Parallel()
	r := ring.New[int](4)
	for i := 1; i <= 6; i++ {
		r.Push(i)
	}
	got := r.Snapshot()
	if len(got) != 4 || got[0] != 3 || got[3] != 6 {
		t.Errorf("snapshot: got %v, want [3 4 5 6]", got)
	}
	// The copy is detached from the ring.
	got[0] = 99
	if r.Snapshot()[0] != 3 {
		t.Error("snapshot aliases the ring")
	}
}

func TestRing_Clear(t *testing.T) {
	t.Parallel()
	r := ring.New[int](3)
	r.Push(1)
	r.Push(2)
	r.Clear()
	if r.Len() != 0 || r.Total() != 0 {
		t.Errorf("after clear: len=%d total=%d", r.Len(), r.Total())
	}
	for _, v := range []int{7, 8, 9, 10} {
		r.Push(v)
	}
	if got := r.Snapshot(); len(got) != 3 || got[0] != 8 {
		t.Errorf("snapshot after reuse: got %v, want [8 9 10]", got)
	}
}

func TestRing_MinimumCapacity(t *testing.T) {
	t.Parallel()
	r := ring.New[int](0)
	r.Push(1)
	r.Push(2)
	if got := r.Snapshot(); len(got) != 1 || got[0] != 2 {
		t.Errorf("got %v, want [2]", got)
	}
}
