// Package coil implements the COIL binary module: header, section table,
// and section payloads, together with the load/store/validate/mutate
// operations and invariants from spec.md §3/§4.3.
package coil

import (
	"encoding/binary"
	"fmt"
	"os"

	"github.com/xyproto/coilasm/internal/memutil"
)

// Magic is the canonical COIL module magic number: the ASCII bytes "COIL"
// read as a big-endian number. It is stored little-endian on disk, so the
// first four file bytes are 4C 49 4F 43 ("LIOC").
const Magic uint32 = 0x434F494C

const (
	headerSize = 16
	entrySize  = 12
	alignment  = 4
)

// SectionType tags a section's payload interpretation.
type SectionType uint32

const (
	Unknown SectionType = iota
	Type
	Function
	Global
	Constant
	Code
	Relocation
	Metadata
	Debug
	Custom
)

func (t SectionType) String() string {
	switch t {
	case Unknown:
		return "unknown"
	case Type:
		return "type"
	case Function:
		return "function"
	case Global:
		return "global"
	case Constant:
		return "constant"
	case Code:
		return "code"
	case Relocation:
		return "relocation"
	case Metadata:
		return "metadata"
	case Debug:
		return "debug"
	case Custom:
		return "custom"
	default:
		return fmt.Sprintf("type(%d)", uint32(t))
	}
}

// Header is the 16-byte module header, little-endian on disk.
type Header struct {
	Magic        uint32
	VersionMajor uint8
	VersionMinor uint8
	VersionPatch uint16
	SectionCount uint32
	Flags        uint32
}

// SectionEntry is one 12-byte section-table row.
type SectionEntry struct {
	Type   SectionType
	Offset uint32
	Size   uint32
}

// Section pairs a table entry with its owned payload bytes. Payload is nil
// when Entry.Size == 0 (a permitted, absent-payload section).
type Section struct {
	Entry   SectionEntry
	Payload []byte
}

// Module is the in-memory representation of a COIL module. The zero value
// is not valid; use New or one of the Load* constructors.
type Module struct {
	Header   Header
	sections []Section
	acct     memutil.Accountant
}

// New returns an empty module with the canonical magic, version 1.0.0, and
// zero sections.
func New() *Module {
	return &Module{
		Header: Header{
			Magic:        Magic,
			VersionMajor: 1,
			VersionMinor: 0,
			VersionPatch: 0,
			SectionCount: 0,
			Flags:        0,
		},
	}
}

// LoadFromMemory validates header length, magic, and that
// header_size + count*entry_size <= len(data), then copies the section
// table and each section's payload bytes into owned storage. data may be
// dropped by the caller immediately after this call returns. Any failure
// releases all partial state and returns an error.
func LoadFromMemory(data []byte) (*Module, error) {
	if len(data) < headerSize {
		return nil, fmt.Errorf("coil: truncated header: %d bytes, need %d", len(data), headerSize)
	}

	hdr := Header{
		Magic:        binary.LittleEndian.Uint32(data[0:4]),
		VersionMajor: data[4],
		VersionMinor: data[5],
		VersionPatch: binary.LittleEndian.Uint16(data[6:8]),
		SectionCount: binary.LittleEndian.Uint32(data[8:12]),
		Flags:        binary.LittleEndian.Uint32(data[12:16]),
	}
	if hdr.Magic != Magic {
		return nil, fmt.Errorf("coil: bad magic: got 0x%08x, want 0x%08x", hdr.Magic, Magic)
	}

	tableEnd := headerSize + int(hdr.SectionCount)*entrySize
	if tableEnd > len(data) {
		return nil, fmt.Errorf("coil: section table extends past end of data: need %d bytes, have %d", tableEnd, len(data))
	}

	m := &Module{Header: hdr}
	m.sections = make([]Section, 0, hdr.SectionCount)

	off := headerSize
	for i := uint32(0); i < hdr.SectionCount; i++ {
		entry := SectionEntry{
			Type:   SectionType(binary.LittleEndian.Uint32(data[off : off+4])),
			Offset: binary.LittleEndian.Uint32(data[off+4 : off+8]),
			Size:   binary.LittleEndian.Uint32(data[off+8 : off+12]),
		}
		off += entrySize

		var payload []byte
		if entry.Size > 0 {
			end := uint64(entry.Offset) + uint64(entry.Size)
			if end > uint64(len(data)) {
				return nil, fmt.Errorf("coil: section %d (%s) range [%d,%d) exceeds data length %d",
					i, entry.Type, entry.Offset, end, len(data))
			}
			payload = m.acct.Allocate(int(entry.Size))
			copy(payload, data[entry.Offset:end])
		}

		m.sections = append(m.sections, Section{Entry: entry, Payload: payload})
	}

	return m, nil
}

// LoadFromFile reads path in full and delegates to LoadFromMemory.
func LoadFromFile(path string) (*Module, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("coil: read %s: %w", path, err)
	}
	return LoadFromMemory(data)
}

// WriteToFile writes the header, then the section table, then each
// section's payload in table order, zero-padding gaps up to each
// section's declared offset. It never truncates — offsets must already be
// non-overlapping and monotonic (Validate checks this).
func (m *Module) WriteToFile(path string) error {
	buf := make([]byte, 0, headerSize+len(m.sections)*entrySize)

	hdr := make([]byte, headerSize)
	binary.LittleEndian.PutUint32(hdr[0:4], m.Header.Magic)
	hdr[4] = m.Header.VersionMajor
	hdr[5] = m.Header.VersionMinor
	binary.LittleEndian.PutUint16(hdr[6:8], m.Header.VersionPatch)
	binary.LittleEndian.PutUint32(hdr[8:12], uint32(len(m.sections)))
	binary.LittleEndian.PutUint32(hdr[12:16], m.Header.Flags)
	buf = append(buf, hdr...)

	for _, s := range m.sections {
		entry := make([]byte, entrySize)
		binary.LittleEndian.PutUint32(entry[0:4], uint32(s.Entry.Type))
		binary.LittleEndian.PutUint32(entry[4:8], s.Entry.Offset)
		binary.LittleEndian.PutUint32(entry[8:12], s.Entry.Size)
		buf = append(buf, entry...)
	}

	for _, s := range m.sections {
		if int(s.Entry.Offset) < len(buf) {
			return fmt.Errorf("coil: section %s offset %d would truncate already-written data (at %d)",
				s.Entry.Type, s.Entry.Offset, len(buf))
		}
		for len(buf) < int(s.Entry.Offset) {
			buf = append(buf, 0)
		}
		buf = append(buf, s.Payload...)
	}

	if err := os.WriteFile(path, buf, 0o644); err != nil {
		return fmt.Errorf("coil: write %s: %w", path, err)
	}
	return nil
}

// GetSection returns the first payload whose tag equals t, or (nil, false).
func (m *Module) GetSection(t SectionType) ([]byte, bool) {
	for _, s := range m.sections {
		if s.Entry.Type == t {
			return s.Payload, true
		}
	}
	return nil, false
}

// Sections returns the module's section table in insertion/table order.
// The returned slice is a copy; mutating it does not affect m.
func (m *Module) Sections() []Section {
	out := make([]Section, len(m.sections))
	copy(out, m.sections)
	return out
}

// Validate enforces every invariant from spec.md §3 and returns an error
// describing the first violation found, or nil if m is well-formed.
func (m *Module) Validate() error {
	if m.Header.Magic != Magic {
		return fmt.Errorf("coil: invalid magic 0x%08x", m.Header.Magic)
	}
	if int(m.Header.SectionCount) != len(m.sections) {
		return fmt.Errorf("coil: header section_count %d does not match %d sections",
			m.Header.SectionCount, len(m.sections))
	}

	seen := make(map[SectionType]bool, len(m.sections))
	type rng struct{ lo, hi uint64 }
	var ranges []rng

	for _, s := range m.sections {
		if s.Entry.Type == Unknown {
			return fmt.Errorf("coil: section has type UNKNOWN")
		}
		if seen[s.Entry.Type] {
			return fmt.Errorf("coil: duplicate section type %s", s.Entry.Type)
		}
		seen[s.Entry.Type] = true

		if s.Entry.Size > 0 {
			if len(s.Payload) != int(s.Entry.Size) {
				return fmt.Errorf("coil: section %s declares size %d but has payload of %d bytes",
					s.Entry.Type, s.Entry.Size, len(s.Payload))
			}
			ranges = append(ranges, rng{uint64(s.Entry.Offset), uint64(s.Entry.Offset) + uint64(s.Entry.Size)})
		}
	}

	for i := 0; i < len(ranges); i++ {
		for j := i + 1; j < len(ranges); j++ {
			if ranges[i].lo < ranges[j].hi && ranges[j].lo < ranges[i].hi {
				return fmt.Errorf("coil: overlapping section byte ranges [%d,%d) and [%d,%d)",
					ranges[i].lo, ranges[i].hi, ranges[j].lo, ranges[j].hi)
			}
		}
	}

	return nil
}

// alignUp4 rounds n up to the next multiple of 4.
func alignUp4(n uint32) uint32 {
	return (n + alignment - 1) &^ (alignment - 1)
}

// layoutOffsets assigns every section its offset in table order: the first
// starts at the end of a section table holding len(sections) entries, each
// later one at the end of the previous section's byte range, all rounded up
// to a 4-byte boundary. Adding an entry moves the table end by entrySize
// bytes, so AddSection lays out every section again rather than only the
// new one; otherwise an earlier section would sit inside the grown table.
func layoutOffsets(sections []Section) {
	off := alignUp4(uint32(headerSize + len(sections)*entrySize))
	for i := range sections {
		sections[i].Entry.Offset = off
		off = alignUp4(off + sections[i].Entry.Size)
	}
}

// AddSection appends a new section of type t with the given payload bytes.
// It rejects a duplicate type, leaving the module in its prior state. All
// offsets are recomputed by layoutOffsets on a copy of the table, and table
// capacity is reserved before the payload is copied, so a (hypothetical)
// allocation failure during the copy cannot leave the table grown with no
// matching payload (spec.md §9's use-after-free note).
func (m *Module) AddSection(t SectionType, payload []byte) error {
	for _, s := range m.sections {
		if s.Entry.Type == t {
			return fmt.Errorf("coil: section type %s already present", t)
		}
	}

	newCount := len(m.sections) + 1

	entry := SectionEntry{Type: t, Size: uint32(len(payload))}

	var owned []byte
	if len(payload) > 0 {
		owned = m.acct.Allocate(len(payload))
		copy(owned, payload)
	}

	// Reserve-first, commit-last: build the new slice before mutating m so
	// a panic/failure during append leaves m.sections untouched.
	grown := make([]Section, len(m.sections), newCount)
	copy(grown, m.sections)
	grown = append(grown, Section{Entry: entry, Payload: owned})
	layoutOffsets(grown)

	m.sections = grown
	m.Header.SectionCount = uint32(len(m.sections))
	return nil
}

// ReplaceSection overwrites the payload of the section with type t,
// keeping its existing offset, or returns an error if no such section
// exists. Added per spec.md §9's resolution of the add-vs-replace open
// question: AddSection keeps rejecting duplicates, ReplaceSection exists
// for explicit overwrite.
func (m *Module) ReplaceSection(t SectionType, payload []byte) error {
	for i := range m.sections {
		if m.sections[i].Entry.Type != t {
			continue
		}
		old := m.sections[i].Payload
		m.acct.Free(old, len(old))

		var owned []byte
		if len(payload) > 0 {
			owned = m.acct.Allocate(len(payload))
			copy(owned, payload)
		}
		m.sections[i].Payload = owned
		m.sections[i].Entry.Size = uint32(len(payload))
		return nil
	}
	return fmt.Errorf("coil: no section of type %s to replace", t)
}
