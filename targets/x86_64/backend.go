// Package x86_64 is the reference x86-64 target.Backend: a minimal, honest
// encoder for the handful of opcodes target.Instruction carries (mov, add,
// sub, xor, cmp, jmp, call, ret). Full x86-64 ISA lowering is out of scope
// (spec.md §1); this exists to prove the pipeline emits architecture-real
// bytes, grounded in the teacher's own x86_64_codegen.go encodings.
package x86_64

import (
	"bytes"
	"fmt"

	"github.com/xyproto/coilasm/target"
)

// register maps the COIL-neutral register names the instruction decoder
// produces (r0..r7) onto x86-64 general-purpose register encodings for
// rax, rcx, rdx, rbx, rsp, rbp, rsi, rdi — the classic 3-bit ModRM/REX.B
// field values used throughout the teacher's encoder.
var register = map[string]byte{
	"r0": 0, "rax": 0,
	"r1": 1, "rcx": 1,
	"r2": 2, "rdx": 2,
	"r3": 3, "rbx": 3,
	"r4": 4, "rsp": 4,
	"r5": 5, "rbp": 5,
	"r6": 6, "rsi": 6,
	"r7": 7, "rdi": 7,
}

func regNum(name string) (byte, error) {
	n, ok := register[name]
	if !ok {
		return 0, fmt.Errorf("x86_64: unknown register %q", name)
	}
	return n, nil
}

// modrm builds a ModRM byte for the register-direct addressing mode
// (mod=11) used by every reg/reg and reg/imm form this backend emits.
func modrm(reg, rm byte) byte {
	return 0xC0 | (reg << 3) | rm
}

type state struct {
	initialized bool
}

// Backend is the x86_64 target.Backend implementation.
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
		return target.TargetInsn{Mnemonic: "nop", Bytes: []byte{0x90}}, nil

	case target.OpRet:
		return target.TargetInsn{Mnemonic: "ret", Bytes: []byte{0xC3}}, nil

	case target.OpMovRegImm:
		dst, err := regNum(insn.Dst)
		if err != nil {
			return target.TargetInsn{}, err
		}
		buf := []byte{0x48, 0xB8 | dst}
		buf = appendImm64(buf, insn.Imm)
		return target.TargetInsn{Mnemonic: fmt.Sprintf("mov %s, %d", insn.Dst, insn.Imm), Bytes: buf}, nil

	case target.OpMovRegReg:
		dst, err := regNum(insn.Dst)
		if err != nil {
			return target.TargetInsn{}, err
		}
		src, err := regNum(insn.Src)
		if err != nil {
			return target.TargetInsn{}, err
		}
		return target.TargetInsn{
			Mnemonic: fmt.Sprintf("mov %s, %s", insn.Dst, insn.Src),
			Bytes:    []byte{0x48, 0x89, modrm(src, dst)},
		}, nil

	case target.OpAddRegReg, target.OpSubRegReg, target.OpXorRegReg, target.OpCmpRegReg:
		dst, err := regNum(insn.Dst)
		if err != nil {
			return target.TargetInsn{}, err
		}
		src, err := regNum(insn.Src)
		if err != nil {
			return target.TargetInsn{}, err
		}
		opcode, mnemonic := arithOpcode(insn.Op)
		return target.TargetInsn{
			Mnemonic: fmt.Sprintf("%s %s, %s", mnemonic, insn.Dst, insn.Src),
			Bytes:    []byte{0x48, opcode, modrm(src, dst)},
		}, nil

	case target.OpJmp:
		// rel32 placeholder; relocation stage patches the displacement.
		return target.TargetInsn{Mnemonic: "jmp " + insn.Label, Bytes: []byte{0xE9, 0, 0, 0, 0}}, nil

	case target.OpCall:
		return target.TargetInsn{Mnemonic: "call " + insn.Label, Bytes: []byte{0xE8, 0, 0, 0, 0}}, nil

	default:
		return target.TargetInsn{}, fmt.Errorf("x86_64: unsupported opcode %s", insn.Op)
	}
}

func arithOpcode(op target.Opcode) (byte, string) {
	switch op {
	case target.OpAddRegReg:
		return 0x01, "add"
	case target.OpSubRegReg:
		return 0x29, "sub"
	case target.OpXorRegReg:
		return 0x31, "xor"
	case target.OpCmpRegReg:
		return 0x39, "cmp"
	default:
		return 0x90, "nop"
	}
}

func appendImm64(buf []byte, v int64) []byte {
	u := uint64(v)
	for i := 0; i < 8; i++ {
		buf = append(buf, byte(u>>(8*i)))
	}
	return buf
}

func (Backend) GenerateCode(ctx *target.Context, insns []target.TargetInsn, relocations []target.Relocation, out *bytes.Buffer) error {
	for _, insn := range insns {
		out.Write(insn.Bytes)
	}
	return target.PatchRelocations(out.Bytes(), relocations)
}

func init() {
	target.Register(&target.Descriptor{
		Name:        "x86_64",
		DeviceClass: target.DeviceCPU,
		Version:     target.MustVersion("1.0.0"),
		Vendor:      "generic",
		Backend:     Backend{},
	})
}
