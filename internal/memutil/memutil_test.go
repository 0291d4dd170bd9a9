package memutil

import "testing"

func TestAccountantAllocateFree(t *testing.T) {
	var a Accountant

	buf := a.Allocate(128)
	if len(buf) != 128 {
		t.Fatalf("len(buf) = %d, want 128", len(buf))
	}
	if got := a.Bytes(); got != 128 {
		t.Fatalf("Bytes() = %d, want 128", got)
	}

	a.Free(buf, 128)
	if got := a.Bytes(); got != 0 {
		t.Fatalf("Bytes() after Free = %d, want 0", got)
	}
}

func TestAccountantAllocateZeroed(t *testing.T) {
	var a Accountant
	buf := a.AllocateZeroed(4, 8)
	if len(buf) != 32 {
		t.Fatalf("len(buf) = %d, want 32", len(buf))
	}
	for _, b := range buf {
		if b != 0 {
			t.Fatalf("AllocateZeroed returned non-zero byte")
		}
	}
}

func TestAccountantReallocate(t *testing.T) {
	var a Accountant
	buf := a.Allocate(16)
	buf = a.Reallocate(buf, 16, 32)
	if len(buf) != 32 {
		t.Fatalf("len(buf) = %d, want 32", len(buf))
	}
	if got := a.Bytes(); got != 32 {
		t.Fatalf("Bytes() = %d, want 32", got)
	}

	buf = a.Reallocate(buf, 32, 0)
	if buf != nil {
		t.Fatalf("Reallocate to 0 should return nil")
	}
	if got := a.Bytes(); got != 0 {
		t.Fatalf("Bytes() after shrink-to-zero = %d, want 0", got)
	}
}

func TestDuplicateString(t *testing.T) {
	s, ok := DuplicateString("coil")
	if !ok {
		t.Fatal("DuplicateString reported failure")
	}
	if s != "coil" {
		t.Fatalf("DuplicateString = %q, want %q", s, "coil")
	}
}

func TestAllocateNonPositive(t *testing.T) {
	var a Accountant
	if buf := a.Allocate(0); buf != nil {
		t.Fatalf("Allocate(0) = %v, want nil", buf)
	}
	if buf := a.AllocateZeroed(0, 8); buf != nil {
		t.Fatalf("AllocateZeroed(0, 8) = %v, want nil", buf)
	}
}
