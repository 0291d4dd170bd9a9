// Package riscv64 is the reference RISC-V (RV64I) target.Backend. RISC-V
// uses fixed 32-bit little-endian instructions built from a handful of
// field layouts (R-type, I-type, ...); this encoder reuses exactly those
// layouts from the teacher's riscv64_instructions.go.
package riscv64

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/xyproto/coilasm/target"
)

// register maps COIL-neutral register names (r0..r7) onto the RV64
// integer register numbers a0..a7 (the argument/caller-saved registers),
// matching the teacher's riscvGPRegs table.
var register = map[string]uint32{
	"r0": 10, "a0": 10,
	"r1": 11, "a1": 11,
	"r2": 12, "a2": 12,
	"r3": 13, "a3": 13,
	"r4": 14, "a4": 14,
	"r5": 15, "a5": 15,
	"r6": 16, "a6": 16,
	"r7": 17, "a7": 17,
	"ra": 1, "sp": 2,
}

func regNum(name string) (uint32, error) {
	n, ok := register[name]
	if !ok {
		return 0, fmt.Errorf("riscv64: unknown register %q", name)
	}
	return n, nil
}

func encodeU32(v uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return b
}

func rType(opcode, funct3, funct7, rd, rs1, rs2 uint32) uint32 {
	return opcode | (rd << 7) | (funct3 << 12) | (rs1 << 15) | (rs2 << 20) | (funct7 << 25)
}

func iType(opcode, funct3, rd, rs1 uint32, imm int32) uint32 {
	return opcode | (rd << 7) | (funct3 << 12) | (rs1 << 15) | (uint32(imm&0xfff) << 20)
}

const (
	opOP    = 0x33
	opOPIMM = 0x13
	opJAL   = 0x6F
	opJALR  = 0x67
)

type state struct {
	initialized bool
}

// Backend is the riscv64 target.Backend implementation.
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
		// ADDI x0, x0, 0
		return target.TargetInsn{Mnemonic: "nop", Bytes: encodeU32(iType(opOPIMM, 0x0, 0, 0, 0))}, nil

	case target.OpRet:
		// JALR x0, x1, 0 (ra)
		return target.TargetInsn{Mnemonic: "ret", Bytes: encodeU32(iType(opJALR, 0x0, 0, 1, 0))}, nil

	case target.OpMovRegImm:
		rd, err := regNum(insn.Dst)
		if err != nil {
			return target.TargetInsn{}, err
		}
		if insn.Imm < -2048 || insn.Imm > 2047 {
			return target.TargetInsn{}, fmt.Errorf("riscv64: immediate %d out of 12-bit ADDI range", insn.Imm)
		}
		// ADDI rd, x0, imm
		instr := iType(opOPIMM, 0x0, rd, 0, int32(insn.Imm))
		return target.TargetInsn{Mnemonic: fmt.Sprintf("li %s, %d", insn.Dst, insn.Imm), Bytes: encodeU32(instr)}, nil

	case target.OpMovRegReg:
		rd, err := regNum(insn.Dst)
		if err != nil {
			return target.TargetInsn{}, err
		}
		rs1, err := regNum(insn.Src)
		if err != nil {
			return target.TargetInsn{}, err
		}
		// ADDI rd, rs1, 0 (the canonical RISC-V "mv" pseudo-instruction)
		instr := iType(opOPIMM, 0x0, rd, rs1, 0)
		return target.TargetInsn{Mnemonic: fmt.Sprintf("mv %s, %s", insn.Dst, insn.Src), Bytes: encodeU32(instr)}, nil

	case target.OpAddRegReg, target.OpSubRegReg, target.OpXorRegReg:
		rd, err := regNum(insn.Dst)
		if err != nil {
			return target.TargetInsn{}, err
		}
		rs2, err := regNum(insn.Src)
		if err != nil {
			return target.TargetInsn{}, err
		}
		funct7, mnemonic := arithFunct7(insn.Op)
		instr := rType(opOP, arithFunct3(insn.Op), funct7, rd, rd, rs2)
		return target.TargetInsn{Mnemonic: fmt.Sprintf("%s %s, %s, %s", mnemonic, insn.Dst, insn.Dst, insn.Src), Bytes: encodeU32(instr)}, nil

	case target.OpCmpRegReg:
		rs1, err := regNum(insn.Dst)
		if err != nil {
			return target.TargetInsn{}, err
		}
		rs2, err := regNum(insn.Src)
		if err != nil {
			return target.TargetInsn{}, err
		}
		// RISC-V has no flags register; "compare" lowers to an XOR of the
		// two operands whose result is written to x0 and so discarded,
		// matching the teacher's own "no condition codes" comment style
		// (riscv64_backend.go) for branch-on-comparison architectures.
		instr := rType(opOP, 0x4, 0x00, 0, rs1, rs2) // XOR zero(throwaway), rs1, rs2
		return target.TargetInsn{Mnemonic: fmt.Sprintf("cmp %s, %s", insn.Dst, insn.Src), Bytes: encodeU32(instr)}, nil

	case target.OpJmp:
		return target.TargetInsn{Mnemonic: "jal " + insn.Label, Bytes: encodeU32(opJAL)}, nil

	case target.OpCall:
		return target.TargetInsn{Mnemonic: "jal ra, " + insn.Label, Bytes: encodeU32(opJAL | (1 << 7))}, nil

	default:
		return target.TargetInsn{}, fmt.Errorf("riscv64: unsupported opcode %s", insn.Op)
	}
}

func arithFunct3(op target.Opcode) uint32 {
	switch op {
	case target.OpXorRegReg:
		return 0x4
	default:
		return 0x0
	}
}

func arithFunct7(op target.Opcode) (uint32, string) {
	switch op {
	case target.OpAddRegReg:
		return 0x00, "add"
	case target.OpSubRegReg:
		return 0x20, "sub"
	case target.OpXorRegReg:
		return 0x00, "xor"
	default:
		return 0x00, "nop"
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
		Name:        "riscv64",
		DeviceClass: target.DeviceCPU,
		Version:     target.MustVersion("1.0.0"),
		Vendor:      "generic",
		Backend:     Backend{},
	})
}
