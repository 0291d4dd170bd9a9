package assembler

import (
	"bytes"
	"fmt"
	"os"

	"github.com/xyproto/coilasm/cerr"
	"github.com/xyproto/coilasm/coil"
	"github.com/xyproto/coilasm/diag"
	"github.com/xyproto/coilasm/memaddr"
	"github.com/xyproto/coilasm/target"
)

// ProcessModule runs the nine-stage pipeline over m: precondition check,
// module validation, function-declaration decoding, global-variable
// decoding, optimization, target-native code lowering, relocation
// decoding, target emission, and failure handling (SPEC_FULL.md §4.8). A
// failure at any stage stops the pipeline and populates LastError; a's
// state and any output from an earlier successful call are left as they
// were. Success advances a to stateProcessed with a freshly emitted output
// buffer ready for WriteOutput.
func (a *Assembler) ProcessModule(m *coil.Module) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	// Step 1: precondition.
	if m == nil {
		return a.fail(cerr.InvalidArgument, 1, "process_module called with nil module")
	}
	if a.targetCtx == nil {
		return a.fail(cerr.InvalidState, 2, "process_module called with no target set")
	}

	// Step 2: validate.
	if err := m.Validate(); err != nil {
		return a.fail(cerr.ValidationError, 2, "%v", err)
	}

	// Dead-section elimination (level >= 1): a parsed DEBUG/METADATA section
	// is never lowered by this pipeline; at level 0 that's simply silent,
	// but level >= 1 reports it as the optimization it is so a caller can
	// see the pass fired.
	opt := newOptimizer(a.optLevel, a.diagnostics)
	opt.EliminateDeadSections(m)

	// Step 3: functions.
	functions, err := a.decodeOptionalFunctions(m)
	if err != nil {
		return a.fail(cerr.ParseError, 1, "%v", err)
	}

	// Step 4: globals.
	globals, err := a.decodeOptionalGlobals(m)
	if err != nil {
		return a.fail(cerr.ParseError, 2, "%v", err)
	}
	globals = opt.FoldGlobalConstants(globals)

	// Step 5: optimize. Decoding the raw CODE section happens here because
	// the optimizer operates on the target-neutral instruction stream
	// before it is lowered to native encodings (SPEC_FULL.md §4.8).
	insns, err := a.decodeOptionalCode(m)
	if err != nil {
		return a.fail(cerr.ParseError, 3, "%v", err)
	}
	insns = opt.Run(insns)

	// Step 6: code — lower the optimized instruction stream to target-native
	// encodings via the current backend.
	backend := a.targetCtx.Descriptor.Backend
	if opt.PrefersShortestEncoding() {
		insns = opt.PreferShortestEncoding(a.targetCtx, backend, insns)
	}
	lowered, err := a.lowerInstructions(insns)
	if err != nil {
		return a.fail(cerr.TargetError, 3, "%v", err)
	}

	// Step 7: relocations.
	relocations, err := a.decodeOptionalRelocations(m)
	if err != nil {
		return a.fail(cerr.ParseError, 4, "%v", err)
	}

	// Step 8: emit.
	out := bytes.NewBuffer(make([]byte, 0, outputBufferBaseline))
	if err := backend.GenerateCode(a.targetCtx, lowered, relocations, out); err != nil {
		return a.fail(cerr.TargetError, 4, "generate code: %v", err)
	}

	// Step 9: failure handling — a Fatal diagnostic reported by any earlier
	// stage (e.g. from an InstructionValidator) poisons the context even
	// though each individual stage returned nil; check once, at the end,
	// rather than duplicating the check after every stage.
	if a.diagnostics.Poisoned() {
		return a.fail(cerr.InvalidState, 4, "processing aborted: a fatal diagnostic was reported")
	}

	a.diagnostics.Reportf(diag.Note, diag.CategoryGeneral, 1,
		"processed %d function(s), %d global(s), %d relocation(s)", len(functions), len(globals), len(relocations))

	a.output = out
	a.st = stateProcessed
	return nil
}

func (a *Assembler) decodeOptionalFunctions(m *coil.Module) ([]FunctionDecl, error) {
	payload, ok := m.GetSection(coil.Function)
	if !ok {
		a.diagnostics.Report(diag.Warning, diag.CategoryParser, 0, "module has no FUNCTION section")
		return nil, nil
	}
	return decodeFunctions(payload)
}

func (a *Assembler) decodeOptionalGlobals(m *coil.Module) ([]memaddr.GlobalVariable, error) {
	payload, ok := m.GetSection(coil.Global)
	if !ok {
		return nil, nil
	}
	return decodeGlobals(payload)
}

func (a *Assembler) decodeOptionalCode(m *coil.Module) ([]target.Instruction, error) {
	payload, ok := m.GetSection(coil.Code)
	if !ok {
		a.diagnostics.Report(diag.Warning, diag.CategoryParser, 0, "module has no CODE section; nothing to assemble")
		return nil, nil
	}
	return decodeCode(payload)
}

func (a *Assembler) decodeOptionalRelocations(m *coil.Module) ([]target.Relocation, error) {
	payload, ok := m.GetSection(coil.Relocation)
	if !ok {
		return nil, nil
	}
	return decodeRelocations(payload)
}

// lowerInstructions maps every target-neutral instruction to its
// target-native encoding via the current backend, running the backend's
// optional InstructionValidator first when it implements one.
func (a *Assembler) lowerInstructions(insns []target.Instruction) ([]target.TargetInsn, error) {
	backend := a.targetCtx.Descriptor.Backend
	validator, hasValidator := backend.(target.InstructionValidator)

	out := make([]target.TargetInsn, 0, len(insns))
	for i, insn := range insns {
		if hasValidator {
			if err := validator.ValidateInstruction(a.targetCtx, insn); err != nil {
				return nil, fmt.Errorf("instruction %d (%s): %v", i, insn.Op, err)
			}
		}
		mapped, err := backend.MapInstruction(a.targetCtx, insn)
		if err != nil {
			return nil, fmt.Errorf("instruction %d (%s): %v", i, insn.Op, err)
		}
		out = append(out, mapped)
	}
	return out, nil
}

func writeFile(path string, data []byte) error {
	return os.WriteFile(path, data, 0o644)
}
