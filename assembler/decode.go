package assembler

import (
	"encoding/binary"
	"fmt"

	"github.com/xyproto/coilasm/memaddr"
	"github.com/xyproto/coilasm/target"
)

// FunctionDecl is one entry decoded from a module's FUNCTION section
// (SPEC_FULL.md §3 expansion: the spec names the section but leaves its
// entry shape to the implementation).
type FunctionDecl struct {
	ID     uint32
	Name   string
	TypeID uint32
	Flags  uint32
}

// byteReader walks a []byte payload with bounds-checked fixed and
// length-prefixed reads, used by every *_test.go-adjacent section decoder
// below. Mirrors the teacher's lexer.go hand-rolled cursor rather than
// pulling in a third encoding framework for formats this small.
type byteReader struct {
	data []byte
	pos  int
}

func (r *byteReader) u8() (uint8, error) {
	if r.pos+1 > len(r.data) {
		return 0, fmt.Errorf("truncated u8 at offset %d", r.pos)
	}
	v := r.data[r.pos]
	r.pos++
	return v, nil
}

func (r *byteReader) u32() (uint32, error) {
	if r.pos+4 > len(r.data) {
		return 0, fmt.Errorf("truncated u32 at offset %d", r.pos)
	}
	v := binary.LittleEndian.Uint32(r.data[r.pos : r.pos+4])
	r.pos += 4
	return v, nil
}

func (r *byteReader) i64() (int64, error) {
	if r.pos+8 > len(r.data) {
		return 0, fmt.Errorf("truncated i64 at offset %d", r.pos)
	}
	v := int64(binary.LittleEndian.Uint64(r.data[r.pos : r.pos+8]))
	r.pos += 8
	return v, nil
}

func (r *byteReader) bytes(n int) ([]byte, error) {
	if n < 0 || r.pos+n > len(r.data) {
		return nil, fmt.Errorf("truncated %d-byte field at offset %d", n, r.pos)
	}
	v := r.data[r.pos : r.pos+n]
	r.pos += n
	return v, nil
}

func (r *byteReader) lenPrefixedString() (string, error) {
	n, err := r.u32()
	if err != nil {
		return "", err
	}
	b, err := r.bytes(int(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (r *byteReader) atEnd() bool { return r.pos == len(r.data) }

// decodeFunctions parses a FUNCTION section payload: a u32 count followed
// by that many (id u32, name string, type_id u32, flags u32) records.
func decodeFunctions(payload []byte) ([]FunctionDecl, error) {
	r := &byteReader{data: payload}
	count, err := r.u32()
	if err != nil {
		return nil, fmt.Errorf("function section: %w", err)
	}
	out := make([]FunctionDecl, 0, count)
	for i := uint32(0); i < count; i++ {
		id, err := r.u32()
		if err != nil {
			return nil, fmt.Errorf("function %d: id: %w", i, err)
		}
		name, err := r.lenPrefixedString()
		if err != nil {
			return nil, fmt.Errorf("function %d: name: %w", i, err)
		}
		typeID, err := r.u32()
		if err != nil {
			return nil, fmt.Errorf("function %d: type_id: %w", i, err)
		}
		flags, err := r.u32()
		if err != nil {
			return nil, fmt.Errorf("function %d: flags: %w", i, err)
		}
		out = append(out, FunctionDecl{ID: id, Name: name, TypeID: typeID, Flags: flags})
	}
	if !r.atEnd() {
		return nil, fmt.Errorf("function section: %d trailing bytes", len(r.data)-r.pos)
	}
	return out, nil
}

// decodeGlobals parses a GLOBAL section payload: a u32 count followed by
// that many globals (id, name, space, access, align_kind, align_value,
// order, type_id, size, flags, init_len, init bytes).
func decodeGlobals(payload []byte) ([]memaddr.GlobalVariable, error) {
	r := &byteReader{data: payload}
	count, err := r.u32()
	if err != nil {
		return nil, fmt.Errorf("global section: %w", err)
	}
	out := make([]memaddr.GlobalVariable, 0, count)
	for i := uint32(0); i < count; i++ {
		id, err := r.u32()
		if err != nil {
			return nil, fmt.Errorf("global %d: id: %w", i, err)
		}
		name, err := r.lenPrefixedString()
		if err != nil {
			return nil, fmt.Errorf("global %d: name: %w", i, err)
		}
		space, err := r.u8()
		if err != nil {
			return nil, fmt.Errorf("global %d: space: %w", i, err)
		}
		access, err := r.u8()
		if err != nil {
			return nil, fmt.Errorf("global %d: access: %w", i, err)
		}
		alignKind, err := r.u8()
		if err != nil {
			return nil, fmt.Errorf("global %d: align_kind: %w", i, err)
		}
		alignValue, err := r.u32()
		if err != nil {
			return nil, fmt.Errorf("global %d: align_value: %w", i, err)
		}
		order, err := r.u8()
		if err != nil {
			return nil, fmt.Errorf("global %d: order: %w", i, err)
		}
		typeID, err := r.u32()
		if err != nil {
			return nil, fmt.Errorf("global %d: type_id: %w", i, err)
		}
		size, err := r.u32()
		if err != nil {
			return nil, fmt.Errorf("global %d: size: %w", i, err)
		}
		flags, err := r.u32()
		if err != nil {
			return nil, fmt.Errorf("global %d: flags: %w", i, err)
		}
		initLen, err := r.u32()
		if err != nil {
			return nil, fmt.Errorf("global %d: init_len: %w", i, err)
		}
		var initVal []byte
		if initLen > 0 {
			raw, err := r.bytes(int(initLen))
			if err != nil {
				return nil, fmt.Errorf("global %d: init: %w", i, err)
			}
			initVal = append([]byte(nil), raw...)
		}

		addr := memaddr.Address{
			Space:      memaddr.Space(space),
			Access:     memaddr.Access(access),
			AlignKind:  memaddr.AlignKind(alignKind),
			AlignValue: alignValue,
			Order:      memaddr.Order(order),
		}
		out = append(out, memaddr.GlobalVariable{
			ID: id, Name: name, Addr: addr, TypeID: typeID,
			Size: size, Flags: flags, InitialValue: initVal,
		})
	}
	if !r.atEnd() {
		return nil, fmt.Errorf("global section: %d trailing bytes", len(r.data)-r.pos)
	}
	return out, nil
}

// decodeCode parses a CODE section payload: a u32 count followed by that
// many target.Instruction records (op u8, dst, src length-prefixed
// strings, imm i64, label length-prefixed string).
func decodeCode(payload []byte) ([]target.Instruction, error) {
	r := &byteReader{data: payload}
	count, err := r.u32()
	if err != nil {
		return nil, fmt.Errorf("code section: %w", err)
	}
	out := make([]target.Instruction, 0, count)
	for i := uint32(0); i < count; i++ {
		op, err := r.u8()
		if err != nil {
			return nil, fmt.Errorf("instruction %d: op: %w", i, err)
		}
		dst, err := r.lenPrefixedString()
		if err != nil {
			return nil, fmt.Errorf("instruction %d: dst: %w", i, err)
		}
		src, err := r.lenPrefixedString()
		if err != nil {
			return nil, fmt.Errorf("instruction %d: src: %w", i, err)
		}
		imm, err := r.i64()
		if err != nil {
			return nil, fmt.Errorf("instruction %d: imm: %w", i, err)
		}
		label, err := r.lenPrefixedString()
		if err != nil {
			return nil, fmt.Errorf("instruction %d: label: %w", i, err)
		}
		out = append(out, target.Instruction{
			Op: target.Opcode(op), Dst: dst, Src: src, Imm: imm, Label: label,
		})
	}
	if !r.atEnd() {
		return nil, fmt.Errorf("code section: %d trailing bytes", len(r.data)-r.pos)
	}
	return out, nil
}

// decodeRelocations parses a RELOCATION section payload: a u32 count
// followed by that many (offset u32, symbol string, kind u8, addend i64)
// records. kind must be one of target.RelocAbs32/RelocAbs64/RelocPCRel32/
// RelocPCRel64 (SPEC_FULL.md §3 expansion).
func decodeRelocations(payload []byte) ([]target.Relocation, error) {
	r := &byteReader{data: payload}
	count, err := r.u32()
	if err != nil {
		return nil, fmt.Errorf("relocation section: %w", err)
	}
	out := make([]target.Relocation, 0, count)
	for i := uint32(0); i < count; i++ {
		offset, err := r.u32()
		if err != nil {
			return nil, fmt.Errorf("relocation %d: offset: %w", i, err)
		}
		symbol, err := r.lenPrefixedString()
		if err != nil {
			return nil, fmt.Errorf("relocation %d: symbol: %w", i, err)
		}
		kind, err := r.u8()
		if err != nil {
			return nil, fmt.Errorf("relocation %d: kind: %w", i, err)
		}
		if kind > uint8(target.RelocPCRel64) {
			return nil, fmt.Errorf("relocation %d: unknown kind %d", i, kind)
		}
		addend, err := r.i64()
		if err != nil {
			return nil, fmt.Errorf("relocation %d: addend: %w", i, err)
		}
		out = append(out, target.Relocation{
			Offset: offset, Symbol: symbol, Kind: target.RelocationKind(kind), Addend: addend,
		})
	}
	if !r.atEnd() {
		return nil, fmt.Errorf("relocation section: %d trailing bytes", len(r.data)-r.pos)
	}
	return out, nil
}
