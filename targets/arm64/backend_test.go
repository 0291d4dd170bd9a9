package arm64

import (
	"testing"

	"github.com/xyproto/coilasm/target"
)

func TestMapRetEncodesRetX30(t *testing.T) {
	var b Backend
	insn, err := b.MapInstruction(&target.Context{}, target.Instruction{Op: target.OpRet})
	if err != nil {
		t.Fatalf("MapInstruction(ret): %v", err)
	}
	if len(insn.Bytes) != 4 {
		t.Fatalf("len(Bytes) = %d, want 4", len(insn.Bytes))
	}
}

func TestMapMovzOutOfRangeImmFails(t *testing.T) {
	var b Backend
	_, err := b.MapInstruction(&target.Context{}, target.Instruction{Op: target.OpMovRegImm, Dst: "x0", Imm: 1 << 20})
	if err == nil {
		t.Fatal("MapInstruction accepted a 16-bit-overflowing MOVZ immediate")
	}
}

func TestMapAddRegReg(t *testing.T) {
	var b Backend
	insn, err := b.MapInstruction(&target.Context{}, target.Instruction{Op: target.OpAddRegReg, Dst: "x0", Src: "x1"})
	if err != nil {
		t.Fatalf("MapInstruction(add): %v", err)
	}
	if len(insn.Bytes) != 4 {
		t.Fatalf("len(Bytes) = %d, want 4", len(insn.Bytes))
	}
}

func TestRegisteredInRegistry(t *testing.T) {
	if _, ok := target.GetByName("arm64"); !ok {
		t.Fatal("arm64 backend did not self-register")
	}
}
