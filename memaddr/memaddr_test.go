package memaddr

import "testing"

func TestNameAccessors(t *testing.T) {
	cases := []struct {
		s    string
		want string
	}{
		{SpaceGeneric.String(), "generic"},
		{SpaceGlobal.String(), "global"},
		{SpaceLocal.String(), "local"},
		{SpaceShared.String(), "shared"},
		{SpaceConstant.String(), "constant"},
		{SpacePrivate.String(), "private"},
		{OrderRelaxed.String(), "relaxed"},
		{OrderAcquire.String(), "acquire"},
		{OrderRelease.String(), "release"},
		{OrderAcqRel.String(), "acq_rel"},
		{OrderSeqCst.String(), "seq_cst"},
	}
	for _, c := range cases {
		if c.s != c.want {
			t.Errorf("got %q, want %q", c.s, c.want)
		}
	}
}

func TestNaturalAlignmentStandardScalars(t *testing.T) {
	for id := uint32(1); id <= 8; id++ {
		got := NaturalAlignment(id)
		switch got {
		case 1, 2, 4, 8, 16:
		default:
			t.Errorf("NaturalAlignment(%d) = %d, not in {1,2,4,8,16}", id, got)
		}
	}
	if got := NaturalAlignment(999); got != 1 {
		t.Errorf("NaturalAlignment(unknown) = %d, want 1", got)
	}
}

func TestIsAtomic(t *testing.T) {
	atomic8 := Address{Access: AccessAtomic, AlignKind: AlignNatural}
	if !atomic8.IsAtomic(8) {
		t.Fatal("naturally-aligned atomic 8-byte access should be atomic")
	}

	badSize := Address{Access: AccessAtomic, AlignKind: AlignNatural}
	if badSize.IsAtomic(3) {
		t.Fatal("size=3 is not one of {1,2,4,8,16}, must not be atomic")
	}

	notAtomicAccess := Address{Access: AccessNormal, AlignKind: AlignNatural}
	if notAtomicAccess.IsAtomic(8) {
		t.Fatal("access=normal must never be atomic")
	}

	misaligned := Address{Access: AccessAtomic, AlignKind: AlignExplicit, AlignValue: 1}
	if misaligned.IsAtomic(8) {
		t.Fatal("explicit alignment of 1 does not satisfy natural alignment for size 8")
	}
}

func TestResolvedAlignmentPacked(t *testing.T) {
	a := Address{AlignKind: AlignPacked}
	if got := a.ResolvedAlignment(8); got != 1 {
		t.Fatalf("packed alignment = %d, want 1", got)
	}
}

func TestResolvedAlignmentExplicit(t *testing.T) {
	a := Address{AlignKind: AlignExplicit, AlignValue: 32}
	if got := a.ResolvedAlignment(8); got != 32 {
		t.Fatalf("explicit alignment = %d, want 32", got)
	}
}
