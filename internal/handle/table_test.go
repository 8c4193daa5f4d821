package handle

import (
	"errors"
	"testing"
)

func TestTableInsertGet(t *testing.T) {
	tbl := New[string](2)
	a := tbl.Insert("a")
	b := tbl.Insert("b")

	if a == b {
		t.Fatalf("Insert() returned equal handles %v", a)
	}
	for _, tt := range []struct {
		h    Handle
		want string
	}{
		{a, "a"},
		{b, "b"},
	} {
		got, err := tbl.Get(tt.h)
		if err != nil {
			t.Fatalf("Get(%v) error = %v", tt.h, err)
		}
		if got != tt.want {
			t.Errorf("Get(%v) = %q, want %q", tt.h, got, tt.want)
		}
	}
	if tbl.Len() != 2 {
		t.Errorf("Len() = %d, want 2", tbl.Len())
	}
}

func TestTableStaleHandle(t *testing.T) {
	tbl := New[int](0)
	old := tbl.Insert(1)
	if _, err := tbl.Remove(old); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}

	reused := tbl.Insert(2)
	if reused.Index() != old.Index() {
		t.Fatalf("Insert() index = %d, want reused index %d", reused.Index(), old.Index())
	}
	if reused.Generation() == old.Generation() {
		t.Fatalf("Insert() generation not bumped: %d", reused.Generation())
	}

	if _, err := tbl.Get(old); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(stale) error = %v, want ErrNotFound", err)
	}
	if _, err := tbl.GetMut(old); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetMut(stale) error = %v, want ErrNotFound", err)
	}
	if _, err := tbl.Remove(old); !errors.Is(err, ErrNotFound) {
		t.Errorf("Remove(stale) error = %v, want ErrNotFound", err)
	}
	if v, err := tbl.Get(reused); err != nil || v != 2 {
		t.Errorf("Get(reused) = %d, %v, want 2, nil", v, err)
	}
}

func TestTableCrossTable(t *testing.T) {
	a := New[int](1)
	b := New[int](1)
	ha := a.Insert(7)
	b.Insert(8)

	if b.Contains(ha) {
		t.Error("Contains() accepted a handle from another table")
	}
	if _, err := b.Get(ha); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(foreign) error = %v, want ErrNotFound", err)
	}
}

func TestTableInvalidHandles(t *testing.T) {
	tbl := New[int](1)
	h := tbl.Insert(1)

	tests := []struct {
		name string
		h    Handle
	}{
		{"zero", Handle{}},
		{"out of range", Handle{table: h.table, index: 99, gen: 1}},
		{"wrong generation", Handle{table: h.table, index: h.index, gen: h.gen + 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tbl.Get(tt.h); !errors.Is(err, ErrNotFound) {
				t.Errorf("Get() error = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestTableGetMut(t *testing.T) {
	tbl := New[int](1)
	h := tbl.Insert(1)

	p, err := tbl.GetMut(h)
	if err != nil {
		t.Fatalf("GetMut() error = %v", err)
	}
	*p = 42
	if v, _ := tbl.Get(h); v != 42 {
		t.Errorf("Get() after GetMut = %d, want 42", v)
	}
}

func TestTableHandles(t *testing.T) {
	tbl := New[int](4)
	var hs []Handle
	for i := range 4 {
		hs = append(hs, tbl.Insert(i))
	}
	if _, err := tbl.Remove(hs[1]); err != nil {
		t.Fatal(err)
	}

	live := tbl.Handles()
	if len(live) != 3 {
		t.Fatalf("Handles() len = %d, want 3", len(live))
	}
	seen := make(map[Handle]bool)
	for _, h := range live {
		seen[h] = true
	}
	for _, i := range []int{0, 2, 3} {
		if !seen[hs[i]] {
			t.Errorf("Handles() missing handle %d", i)
		}
	}
	if seen[hs[1]] {
		t.Error("Handles() contains a removed handle")
	}
}

func TestTableReset(t *testing.T) {
	tbl := New[int](1)
	h := tbl.Insert(1)
	tbl.Reset()

	if tbl.Len() != 0 || tbl.Cap() != 0 {
		t.Errorf("after Reset Len() = %d, Cap() = %d, want 0, 0", tbl.Len(), tbl.Cap())
	}
	again := tbl.Insert(2)
	if again.Index() != h.Index() || again.Generation() != h.Generation() {
		t.Fatalf("Insert() after Reset = %v, expected same slot and generation as %v", again, h)
	}
	if tbl.Contains(h) {
		t.Error("handle issued before Reset still resolves")
	}
}
