// Package assembler implements the orchestrating pipeline and its public
// façade (spec.md §4.8): validate → functions → globals → optimize → code
// → relocations → emit, plus the setters that configure an Assembler
// before a call to ProcessModule.
package assembler

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/xyproto/coilasm/cerr"
	"github.com/xyproto/coilasm/coil"
	"github.com/xyproto/coilasm/config"
	"github.com/xyproto/coilasm/diag"
	"github.com/xyproto/coilasm/target"
)

// OptLevel names an optimization level accepted by SetOptimizationLevel.
type OptLevel int

const (
	Opt0 OptLevel = iota
	Opt1
	Opt2
	Opt3
	OptSize
)

// DefaultOptLevel is the level an out-of-range SetOptimizationLevel call
// clamps to (spec.md §4.8).
const DefaultOptLevel = Opt1

func (l OptLevel) String() string {
	switch l {
	case Opt0:
		return "0"
	case Opt1:
		return "1"
	case Opt2:
		return "2"
	case Opt3:
		return "3"
	case OptSize:
		return "s"
	default:
		return "?"
	}
}

// OutputFormat names the emitted artifact shape.
type OutputFormat int

const (
	FormatObject OutputFormat = iota
	FormatAssembly
	FormatExecutable
	FormatLibrary
)

// DefaultOutputFormat is the format an out-of-range SetOutputFormat call
// clamps to (spec.md §4.8).
const DefaultOutputFormat = FormatObject

func (f OutputFormat) String() string {
	switch f {
	case FormatObject:
		return "object"
	case FormatAssembly:
		return "assembly"
	case FormatExecutable:
		return "executable"
	case FormatLibrary:
		return "library"
	default:
		return "?"
	}
}

// state is the assembler's own lifecycle: Created → Configured → Processed
// → Written (spec.md §4.8).
type state int

const (
	stateCreated state = iota
	stateConfigured
	stateProcessed
	stateWritten
)

// outputBufferBaseline is the starting capacity the output buffer grows
// from during code emission (spec.md §4.8 step 8).
const outputBufferBaseline = 64 * 1024

// Assembler is the pipeline orchestrator and public façade.
type Assembler struct {
	mu sync.Mutex

	diagnostics *diag.Context
	optLevel    OptLevel
	format      OutputFormat

	targetCtx  *target.Context
	targetCfg  *config.Config

	output    *bytes.Buffer
	lastError string

	st state

	// module is borrowed for the duration of ProcessModule only; the
	// assembler never retains it afterwards (spec.md §3).
	module *coil.Module
}

// New returns a freshly created Assembler with no target set.
func New() *Assembler {
	return &Assembler{
		diagnostics: diag.New(),
		optLevel:    DefaultOptLevel,
		format:      DefaultOutputFormat,
		st:          stateCreated,
	}
}

// Close releases a's target context and diagnostics handler.
func (a *Assembler) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closeTargetLocked()
	a.diagnostics.Close()
}

func (a *Assembler) closeTargetLocked() {
	if a.targetCtx != nil {
		a.targetCtx.Close()
		a.targetCtx = nil
	}
}

func (a *Assembler) fail(kind cerr.Kind, code int, format string, args ...any) error {
	err := cerr.New(kind, fmt.Sprintf(format, args...))
	a.lastError = cerr.Report(a.diagnostics, err, code)
	return err
}

// SetTarget looks up name in the target registry, creates and initializes
// a context for it, and replaces any prior target (finalizing it first).
// Calling SetTarget with the already-current target name is an observable
// no-op beyond one debug-level note (spec.md §8, pipeline idempotence of
// setters).
func (a *Assembler) SetTarget(name string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.targetCtx != nil && a.targetCtx.Descriptor.Name == name {
		a.diagnostics.Report(diag.Note, diag.CategoryTarget, 0, "target already set to "+name)
		return nil
	}

	descriptor, ok := target.GetByName(name)
	if !ok {
		return a.fail(cerr.TargetError, 1, "unknown target %q", name)
	}

	ctx, err := target.NewContext(descriptor)
	if err != nil {
		return a.fail(cerr.TargetError, 2, "create context for %q: %v", name, err)
	}

	a.closeTargetLocked()
	a.targetCtx = ctx
	if a.st == stateCreated {
		a.st = stateConfigured
	}
	if a.st == stateProcessed || a.st == stateWritten {
		// Re-setting the target after processing discards the output.
		a.output = nil
		a.st = stateConfigured
	}
	return nil
}

// SetTargetConfig loads path and applies it to the current target context
// via its backend's optional Configurable capability. Fails if no target
// is set.
func (a *Assembler) SetTargetConfig(path string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.targetCtx == nil {
		return a.fail(cerr.InvalidState, 1, "set_target_config called with no target set")
	}

	cfg, err := config.Load(path)
	if err != nil {
		return a.fail(cerr.ConfigError, 1, "load %s: %v", path, err)
	}

	cc, ok := a.targetCtx.Descriptor.Backend.(target.Configurable)
	if !ok {
		a.targetCfg = cfg
		a.diagnostics.Report(diag.Note, diag.CategoryConfig, 0, "target has no configurable capability; config stored but unapplied")
		return nil
	}
	if err := cc.ApplyConfiguration(a.targetCtx, cfg.Get); err != nil {
		return a.fail(cerr.ConfigError, 2, "apply config %s: %v", path, err)
	}
	a.targetCfg = cfg
	return nil
}

// SetOptimizationLevel accepts Opt0..Opt3 or OptSize; any other value
// clamps to DefaultOptLevel with a warning.
func (a *Assembler) SetOptimizationLevel(level OptLevel) {
	a.mu.Lock()
	defer a.mu.Unlock()
	switch level {
	case Opt0, Opt1, Opt2, Opt3, OptSize:
		a.optLevel = level
	default:
		a.diagnostics.Reportf(diag.Warning, diag.CategoryOptimizer, 1,
			"optimization level %v out of range, clamped to %v", level, DefaultOptLevel)
		a.optLevel = DefaultOptLevel
	}
}

// SetOutputFormat accepts FormatObject..FormatLibrary; any other value
// clamps to DefaultOutputFormat with a warning.
func (a *Assembler) SetOutputFormat(format OutputFormat) {
	a.mu.Lock()
	defer a.mu.Unlock()
	switch format {
	case FormatObject, FormatAssembly, FormatExecutable, FormatLibrary:
		a.format = format
	default:
		a.diagnostics.Reportf(diag.Warning, diag.CategoryGeneral, 1,
			"output format %v out of range, clamped to %v", format, DefaultOutputFormat)
		a.format = DefaultOutputFormat
	}
}

// SetDiagnosticsHandler installs handler on a's diagnostics context.
func (a *Assembler) SetDiagnosticsHandler(handler diag.Handler) {
	a.diagnostics.SetHandler(handler)
}

// LastError returns the most recent human-readable error message, or "" if
// no call has failed yet.
func (a *Assembler) LastError() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastError
}

// Targets returns every registered target descriptor.
func (a *Assembler) Targets() []*target.Descriptor {
	return target.List()
}

// CurrentTarget returns the descriptor of the currently-set target, or nil.
func (a *Assembler) CurrentTarget() *target.Descriptor {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.targetCtx == nil {
		return nil
	}
	return a.targetCtx.Descriptor
}

// WriteOutput persists the most recent successful ProcessModule output to
// path. Fails if no output has been produced yet.
func (a *Assembler) WriteOutput(path string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.output == nil {
		return a.fail(cerr.InvalidState, 3, "write_output called with no processed output")
	}
	if err := writeFile(path, a.output.Bytes()); err != nil {
		return a.fail(cerr.IoError, 1, "write %s: %v", path, err)
	}
	a.st = stateWritten
	return nil
}
