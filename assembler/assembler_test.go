package assembler

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/xyproto/coilasm/coil"
	_ "github.com/xyproto/coilasm/targets/x86_64"
)

// TestEmptyModuleRoundTrip covers spec.md §8's first end-to-end scenario:
// an empty module processes and writes cleanly against a real target.
func TestEmptyModuleRoundTrip(t *testing.T) {
	a := New()
	defer a.Close()

	if err := a.SetTarget("x86_64"); err != nil {
		t.Fatalf("SetTarget: %v", err)
	}
	if err := a.ProcessModule(coil.New()); err != nil {
		t.Fatalf("ProcessModule: %v", err)
	}

	path := filepath.Join(t.TempDir(), "out.bin")
	if err := a.WriteOutput(path); err != nil {
		t.Fatalf("WriteOutput: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("output file missing: %v", err)
	}
	if a.st != stateWritten {
		t.Fatalf("state = %v, want stateWritten", a.st)
	}
}

// TestBadMagicFailsProcessModule covers spec.md §8's second scenario: a
// module with a corrupted magic fails validation, not silently.
func TestBadMagicFailsProcessModule(t *testing.T) {
	a := New()
	defer a.Close()

	if err := a.SetTarget("x86_64"); err != nil {
		t.Fatalf("SetTarget: %v", err)
	}

	m := coil.New()
	m.Header.Magic = 0xDEADBEEF
	if err := a.ProcessModule(m); err == nil {
		t.Fatal("ProcessModule accepted a bad-magic module")
	}
	if a.LastError() == "" {
		t.Fatal("LastError empty after a failed ProcessModule")
	}
	if a.st == stateProcessed {
		t.Fatal("state advanced to stateProcessed despite a failed ProcessModule")
	}
}

// buildOverlappingModuleBytes hand-assembles a well-formed header and
// section table around two sections whose byte ranges overlap — something
// AddSection can never produce, so this bypasses it the way a corrupted
// file on disk would.
func buildOverlappingModuleBytes(t *testing.T) []byte {
	t.Helper()
	const (
		totalLen  = 64
		sec0Off   = 40
		sec1Off   = 44
		secSize   = 8
	)
	data := make([]byte, totalLen)
	binary.LittleEndian.PutUint32(data[0:4], coil.Magic)
	data[4], data[5] = 1, 0
	binary.LittleEndian.PutUint16(data[6:8], 0)
	binary.LittleEndian.PutUint32(data[8:12], 2)
	binary.LittleEndian.PutUint32(data[12:16], 0)

	binary.LittleEndian.PutUint32(data[16:20], uint32(coil.Type))
	binary.LittleEndian.PutUint32(data[20:24], sec0Off)
	binary.LittleEndian.PutUint32(data[24:28], secSize)

	binary.LittleEndian.PutUint32(data[28:32], uint32(coil.Function))
	binary.LittleEndian.PutUint32(data[32:36], sec1Off)
	binary.LittleEndian.PutUint32(data[36:40], secSize)

	return data
}

// TestOverlappingSectionsFailProcessModule covers spec.md §8's third
// scenario.
func TestOverlappingSectionsFailProcessModule(t *testing.T) {
	a := New()
	defer a.Close()

	if err := a.SetTarget("x86_64"); err != nil {
		t.Fatalf("SetTarget: %v", err)
	}

	m, err := coil.LoadFromMemory(buildOverlappingModuleBytes(t))
	if err != nil {
		t.Fatalf("LoadFromMemory: %v", err)
	}
	if err := a.ProcessModule(m); err == nil {
		t.Fatal("ProcessModule accepted a module with overlapping sections")
	}
}

// TestUnknownTargetFails covers spec.md §8's fourth scenario.
func TestUnknownTargetFails(t *testing.T) {
	a := New()
	defer a.Close()

	if err := a.SetTarget("not-a-real-target"); err == nil {
		t.Fatal("SetTarget accepted an unregistered target name")
	}
	if a.CurrentTarget() != nil {
		t.Fatal("CurrentTarget non-nil after a failed SetTarget")
	}
}

// TestOptimizationLevelClamp covers spec.md §8's fifth scenario: an
// out-of-range level clamps to DefaultOptLevel instead of failing.
func TestOptimizationLevelClamp(t *testing.T) {
	a := New()
	defer a.Close()

	a.SetOptimizationLevel(OptLevel(99))
	if a.optLevel != DefaultOptLevel {
		t.Fatalf("optLevel = %v, want %v (clamped)", a.optLevel, DefaultOptLevel)
	}

	a.SetOptimizationLevel(Opt3)
	if a.optLevel != Opt3 {
		t.Fatalf("optLevel = %v, want %v", a.optLevel, Opt3)
	}
}

// TestWriteOutputWithoutProcessFails covers spec.md §8's sixth scenario.
func TestWriteOutputWithoutProcessFails(t *testing.T) {
	a := New()
	defer a.Close()

	if err := a.WriteOutput(filepath.Join(t.TempDir(), "out.bin")); err == nil {
		t.Fatal("WriteOutput succeeded with no prior ProcessModule call")
	}
}

// TestSetTargetSameNameIsNoOp exercises the pipeline idempotence of
// setters: calling SetTarget twice with the same name does not recreate
// the context.
func TestSetTargetSameNameIsNoOp(t *testing.T) {
	a := New()
	defer a.Close()

	if err := a.SetTarget("x86_64"); err != nil {
		t.Fatalf("SetTarget: %v", err)
	}
	first := a.targetCtx
	if err := a.SetTarget("x86_64"); err != nil {
		t.Fatalf("second SetTarget: %v", err)
	}
	if a.targetCtx != first {
		t.Fatal("SetTarget with the same name recreated the target context")
	}
}

// TestSetOutputFormatClamp mirrors TestOptimizationLevelClamp for format.
func TestSetOutputFormatClamp(t *testing.T) {
	a := New()
	defer a.Close()

	a.SetOutputFormat(OutputFormat(99))
	if a.format != DefaultOutputFormat {
		t.Fatalf("format = %v, want %v (clamped)", a.format, DefaultOutputFormat)
	}
}

// TestProcessModuleWithCodeSection exercises the full decode-optimize-lower
// path against a hand-built CODE section, the diagnostics-monotonicity
// property (the note count does not decrease across a successful run), and
// the registry stability property (Targets() returns the same number of
// descriptors before and after processing).
func TestProcessModuleWithCodeSection(t *testing.T) {
	a := New()
	defer a.Close()

	before := a.Targets()
	if err := a.SetTarget("x86_64"); err != nil {
		t.Fatalf("SetTarget: %v", err)
	}

	m := coil.New()
	code := encodeOneInstructionCodeSection(t)
	if err := m.AddSection(coil.Code, code); err != nil {
		t.Fatalf("AddSection: %v", err)
	}

	noteCountBefore := a.diagnostics.Count(0)
	if err := a.ProcessModule(m); err != nil {
		t.Fatalf("ProcessModule: %v", err)
	}
	if a.diagnostics.Count(0) < noteCountBefore {
		t.Fatal("note count decreased across a successful ProcessModule call")
	}

	after := a.Targets()
	if len(before) != len(after) {
		t.Fatalf("Targets() length changed: %d -> %d", len(before), len(after))
	}
}

// encodeOneInstructionCodeSection builds a CODE section payload containing
// a single ret instruction, matching decodeCode's format.
func encodeOneInstructionCodeSection(t *testing.T) []byte {
	t.Helper()
	buf := make([]byte, 0, 4+1+4+4+8+4)
	buf = appendU32(buf, 1) // count
	buf = append(buf, 9)    // OpRet
	buf = appendU32(buf, 0) // dst len
	buf = appendU32(buf, 0) // src len
	buf = appendI64(buf, 0) // imm
	buf = appendU32(buf, 0) // label len
	return buf
}

func appendU32(buf []byte, v uint32) []byte {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	return append(buf, tmp[:]...)
}

func appendI64(buf []byte, v int64) []byte {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], uint64(v))
	return append(buf, tmp[:]...)
}
