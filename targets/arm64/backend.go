// Package arm64 is the reference AArch64 target.Backend, encoding the same
// minimal opcode set x86_64 and riscv64 do, grounded in the teacher's own
// arm64_instructions.go bit-field layouts (A64 is a fixed 32-bit-instruction
// ISA, so every encoder here builds one uint32 and appends it little-endian).
package arm64

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/xyproto/coilasm/target"
)

// register maps COIL-neutral register names (r0..r7) onto A64 general
// register numbers X0..X7, plus X30, the link register RET uses when no
// operand is given.
var register = map[string]uint32{
	"r30": 30, "x30": 30,
	"r0": 0, "x0": 0,
	"r1": 1, "x1": 1,
	"r2": 2, "x2": 2,
	"r3": 3, "x3": 3,
	"r4": 4, "x4": 4,
	"r5": 5, "x5": 5,
	"r6": 6, "x6": 6,
	"r7": 7, "x7": 7,
}

func regNum(name string) (uint32, error) {
	n, ok := register[name]
	if !ok {
		return 0, fmt.Errorf("arm64: unknown register %q", name)
	}
	return n, nil
}

func encodeU32(v uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return b
}

type state struct {
	initialized bool
}

// Backend is the arm64 target.Backend implementation.
type Backend struct{}

func (Backend) Initialize(ctx *target.Context) error {
	ctx.State = &state{initialized: true}
	return nil
}

func (Backend) Finalize(ctx *target.Context) error {
	ctx.State = nil
	return nil
}

func (Backend) MapInstruction(ctx *target.Context, insn target.Instruction) (target.TargetInsn, error) {
	switch insn.Op {
	case target.OpNop:
		return target.TargetInsn{Mnemonic: "nop", Bytes: encodeU32(0xD503201F)}, nil

	case target.OpRet:
		rn, err := regNum(defaultReg(insn.Dst, "r30"))
		if err != nil {
			return target.TargetInsn{}, err
		}
		// RET Xn: 0xD65F0000 | Rn<<5
		return target.TargetInsn{Mnemonic: "ret", Bytes: encodeU32(0xD65F0000 | rn<<5)}, nil

	case target.OpMovRegImm:
		dst, err := regNum(insn.Dst)
		if err != nil {
			return target.TargetInsn{}, err
		}
		if insn.Imm < 0 || insn.Imm > 0xFFFF {
			return target.TargetInsn{}, fmt.Errorf("arm64: MOVZ immediate %d out of 16-bit range", insn.Imm)
		}
		// MOVZ Xd, #imm16: sf=1,opc=10,...,imm16,Rd
		instr := uint32(0xD2800000) | (uint32(insn.Imm) << 5) | dst
		return target.TargetInsn{Mnemonic: fmt.Sprintf("movz %s, #%d", insn.Dst, insn.Imm), Bytes: encodeU32(instr)}, nil

	case target.OpMovRegReg:
		dst, err := regNum(insn.Dst)
		if err != nil {
			return target.TargetInsn{}, err
		}
		src, err := regNum(insn.Src)
		if err != nil {
			return target.TargetInsn{}, err
		}
		// MOV Xd, Xm is an alias for ORR Xd, XZR, Xm.
		instr := uint32(0xAA0003E0) | (src << 16) | dst
		return target.TargetInsn{Mnemonic: fmt.Sprintf("mov %s, %s", insn.Dst, insn.Src), Bytes: encodeU32(instr)}, nil

	case target.OpAddRegReg, target.OpSubRegReg, target.OpXorRegReg:
		dst, err := regNum(insn.Dst)
		if err != nil {
			return target.TargetInsn{}, err
		}
		src, err := regNum(insn.Src)
		if err != nil {
			return target.TargetInsn{}, err
		}
		base, mnemonic := arithBase(insn.Op)
		// Xd, Xd, Xm shape: Rd=dst, Rn=dst, Rm=src.
		instr := base | (src << 16) | (dst << 5) | dst
		return target.TargetInsn{Mnemonic: fmt.Sprintf("%s %s, %s, %s", mnemonic, insn.Dst, insn.Dst, insn.Src), Bytes: encodeU32(instr)}, nil

	case target.OpCmpRegReg:
		dst, err := regNum(insn.Dst)
		if err != nil {
			return target.TargetInsn{}, err
		}
		src, err := regNum(insn.Src)
		if err != nil {
			return target.TargetInsn{}, err
		}
		base, mnemonic := arithBase(insn.Op)
		// CMP Xn, Xm is SUBS XZR, Xn, Xm: Rd=XZR already baked into base, Rn=dst.
		instr := base | (src << 16) | (dst << 5)
		return target.TargetInsn{Mnemonic: fmt.Sprintf("%s %s, %s", mnemonic, insn.Dst, insn.Src), Bytes: encodeU32(instr)}, nil

	case target.OpJmp:
		return target.TargetInsn{Mnemonic: "b " + insn.Label, Bytes: encodeU32(0x14000000)}, nil

	case target.OpCall:
		return target.TargetInsn{Mnemonic: "bl " + insn.Label, Bytes: encodeU32(0x94000000)}, nil

	default:
		return target.TargetInsn{}, fmt.Errorf("arm64: unsupported opcode %s", insn.Op)
	}
}

func defaultReg(name, fallback string) string {
	if name == "" {
		return fallback
	}
	return name
}

func arithBase(op target.Opcode) (uint32, string) {
	switch op {
	case target.OpAddRegReg:
		return 0x8B000000, "add" // ADD Xd, Xn, Xm
	case target.OpSubRegReg:
		return 0xCB000000, "sub" // SUB Xd, Xn, Xm
	case target.OpXorRegReg:
		return 0xCA000000, "eor" // EOR Xd, Xn, Xm
	case target.OpCmpRegReg:
		return 0xEB00001F, "cmp" // SUBS XZR, Xn, Xm
	default:
		return 0xD503201F, "nop"
	}
}

func (Backend) GenerateCode(ctx *target.Context, insns []target.TargetInsn, relocations []target.Relocation, out *bytes.Buffer) error {
	for _, insn := range insns {
		out.Write(insn.Bytes)
	}
	return target.PatchRelocations(out.Bytes(), relocations)
}

func init() {
	target.Register(&target.Descriptor{
		Name:        "arm64",
		DeviceClass: target.DeviceCPU,
		Version:     target.MustVersion("1.0.0"),
		Vendor:      "generic",
		Backend:     Backend{},
	})
}
