package ring

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestWrapRejectsNonPow2(t *testing.T) {
	for _, n := range []int{0, 3, 6, 100} {
		if _, err := Wrap(make([]byte, n)); err != ErrNotPow2 {
			t.Fatalf("Wrap(%d) err = %v, want ErrNotPow2", n, err)
		}
	}
	if _, err := Wrap(make([]byte, 128)); err != nil {
		t.Fatalf("Wrap(128) err = %v", err)
	}
	if IsPow2(-4) {
		t.Fatalf("IsPow2(-4) = true")
	}
}

func TestIndexWraps(t *testing.T) {
	buf := []byte{0, 1, 2, 3, 4, 5, 6, 7}
	r, _ := Wrap(buf)
	if got := r.Prev(0); got != 7 {
		t.Fatalf("Prev(0) = %d, want 7", got)
	}
	if got := r.Index(13); got != 5 {
		t.Fatalf("Index(13) = %d, want 5", got)
	}
	if got := r.At(10); got != 2 {
		t.Fatalf("At(10) = %d, want 2", got)
	}
	buf[2] = 42
	if got := r.At(2); got != 42 {
		t.Fatalf("At(2) = %d after write to backing slice, want 42", got)
	}
}

func TestCopyFromWraps(t *testing.T) {
	r, _ := Wrap([]byte{0, 1, 2, 3, 4, 5, 6, 7})
	dst := make([]byte, 5)
	n := r.CopyFrom(dst, 6)
	if n != 5 {
		t.Fatalf("CopyFrom() = %d, want 5", n)
	}
	if diff := cmp.Diff([]byte{6, 7, 0, 1, 2}, dst); diff != "" {
		t.Fatalf("CopyFrom() mismatch (-want +got):\n%s", diff)
	}
	if n := r.CopyFrom(make([]byte, 20), 0); n != 8 {
		t.Fatalf("CopyFrom() into oversized dst = %d, want 8", n)
	}
}

func TestClear(t *testing.T) {
	buf := []byte{1, 2, 3, 4}
	r, _ := Wrap(buf)
	r.Clear()
	if diff := cmp.Diff([]byte{0, 0, 0, 0}, buf); diff != "" {
		t.Fatalf("Clear() mismatch (-want +got):\n%s", diff)
	}
}
