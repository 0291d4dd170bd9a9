// Package diag implements the structured diagnostics sink every other
// component in this module reports through (spec.md §4.2). A Context
// accumulates per-severity counts and, when no handler is attached, writes
// each record to stderr in the canonical one-line format
// "<severity>[<category>:<code>]: <message>".
package diag

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"
)

// Severity orders diagnostic records from least to most serious.
type Severity int

const (
	Note Severity = iota
	Warning
	Error
	Fatal
)

func (s Severity) String() string {
	switch s {
	case Note:
		return "note"
	case Warning:
		return "warning"
	case Error:
		return "error"
	case Fatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Category groups diagnostics by the subsystem that raised them.
type Category int

const (
	CategoryGeneral Category = iota
	CategoryParser
	CategoryTarget
	CategoryOptimizer
	CategoryCodegen
	CategoryIO
	CategoryConfig
)

func (c Category) String() string {
	switch c {
	case CategoryGeneral:
		return "general"
	case CategoryParser:
		return "parser"
	case CategoryTarget:
		return "target"
	case CategoryOptimizer:
		return "optimizer"
	case CategoryCodegen:
		return "codegen"
	case CategoryIO:
		return "io"
	case CategoryConfig:
		return "config"
	default:
		return "unknown"
	}
}

// Location is an optional source position attached to a Record.
type Location struct {
	File   string
	Line   int
	Column int
}

// Record is one structured diagnostic.
type Record struct {
	Severity Severity
	Category Category
	Code     int
	Message  string
	Location *Location // nil when no position is known
}

// String renders r in the canonical one-line format.
func (r Record) String() string {
	return fmt.Sprintf("%s[%s:%d]: %s", r.Severity, r.Category, r.Code, r.Message)
}

// Handler receives every reported Record. Implementations must not retain
// the Record's Message beyond the call's dynamic extent if they plan to
// mutate it — Go strings are immutable, so retaining the string itself is
// always safe; this mirrors the C ABI's "don't hold the pointer" rule so
// a Handler ported straight across stays correct either way.
type Handler func(Record)

// Context is a diagnostics sink. The zero value is not usable; use New.
type Context struct {
	mu       sync.Mutex
	handler  Handler
	counts   [4]int64 // indexed by Severity
	poisoned int32
}

// New returns a ready-to-use diagnostics Context with no handler attached
// (records print to stderr until SetHandler is called).
func New() *Context {
	return &Context{}
}

// SetHandler installs handler as the sink for future Report calls. A nil
// handler reverts to the default stderr writer.
func (c *Context) SetHandler(handler Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = handler
}

// Report records one diagnostic. Reporting Fatal poisons the context;
// subsequent reports are still accepted (Poisoned only advises the owning
// pipeline to stop at its next check, it does not block further calls).
func (c *Context) Report(severity Severity, category Category, code int, message string) {
	rec := Record{Severity: severity, Category: category, Code: code, Message: message}
	atomic.AddInt64(&c.counts[severity], 1)
	if severity == Fatal {
		atomic.StoreInt32(&c.poisoned, 1)
	}

	c.mu.Lock()
	h := c.handler
	c.mu.Unlock()

	if h != nil {
		h(rec)
		return
	}
	fmt.Fprintln(os.Stderr, rec.String())
}

// Reportf is Report with the message built via fmt.Sprintf.
func (c *Context) Reportf(severity Severity, category Category, code int, format string, args ...any) {
	c.Report(severity, category, code, fmt.Sprintf(format, args...))
}

// Counts returns a snapshot of the per-severity report counts.
func (c *Context) Counts() map[Severity]int {
	out := make(map[Severity]int, len(c.counts))
	for i := range c.counts {
		out[Severity(i)] = int(atomic.LoadInt64(&c.counts[i]))
	}
	return out
}

// Count returns the report count for one severity.
func (c *Context) Count(severity Severity) int {
	if severity < 0 || int(severity) >= len(c.counts) {
		return 0
	}
	return int(atomic.LoadInt64(&c.counts[severity]))
}

// Poisoned reports whether a Fatal diagnostic has ever been reported.
func (c *Context) Poisoned() bool {
	return atomic.LoadInt32(&c.poisoned) != 0
}

// Close releases c's handler. Context holds no other closable resources;
// Close exists for symmetry with the C lifecycle this was ported from and
// so callers can defer it unconditionally.
func (c *Context) Close() {
	c.SetHandler(nil)
}
