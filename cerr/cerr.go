// Package cerr defines the error taxonomy shared by every component and the
// single helper that records a diagnostic and derives a human-readable
// last-error string from it, replacing the per-stage duplication the C
// source carried in every pipeline step (spec.md §9).
package cerr

import (
	"errors"
	"fmt"

	"github.com/xyproto/coilasm/diag"
)

// Kind names one branch of the error taxonomy from spec.md §7.
type Kind int

const (
	InvalidArgument Kind = iota
	ParseError
	ValidationError
	TargetError
	ConfigError
	OptimizerWarning
	IoError
	AllocationFailure
	InvalidState
)

func (k Kind) String() string {
	switch k {
	case InvalidArgument:
		return "InvalidArgument"
	case ParseError:
		return "ParseError"
	case ValidationError:
		return "ValidationError"
	case TargetError:
		return "TargetError"
	case ConfigError:
		return "ConfigError"
	case OptimizerWarning:
		return "OptimizerWarning"
	case IoError:
		return "IoError"
	case AllocationFailure:
		return "AllocationFailure"
	case InvalidState:
		return "InvalidState"
	default:
		return "Unknown"
	}
}

// Error is a typed, wrappable error carrying the taxonomy Kind so callers
// can branch with errors.As instead of string matching.
type Error struct {
	Kind Kind
	Msg  string
	Err  error // optional wrapped cause
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// New constructs an *Error of the given kind.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Wrap constructs an *Error of the given kind wrapping cause.
func Wrap(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: cause}
}

// Is reports whether err is (or wraps) a *cerr.Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}

// kindToCategory maps a taxonomy Kind onto the diag.Category it is reported
// under, so every stage reports consistently without its own switch.
func kindToCategory(k Kind) diag.Category {
	switch k {
	case ParseError:
		return diag.CategoryParser
	case ValidationError:
		return diag.CategoryParser
	case TargetError:
		return diag.CategoryTarget
	case ConfigError:
		return diag.CategoryConfig
	case OptimizerWarning:
		return diag.CategoryOptimizer
	case IoError:
		return diag.CategoryIO
	default:
		return diag.CategoryGeneral
	}
}

// kindToSeverity maps a taxonomy Kind onto the diag.Severity it is reported
// at. Only OptimizerWarning is non-fatal by default; everything else is an
// Error unless the caller overrides with ReportAs.
func kindToSeverity(k Kind) diag.Severity {
	if k == OptimizerWarning {
		return diag.Warning
	}
	return diag.Error
}

// Report records err through d at code, deriving category and severity
// from its Kind (an err that is not, and does not wrap, a *cerr.Error is
// reported as InvalidState with err's text as the message), and returns a short
// human-readable string suitable for an owning component's last-error
// field. This is the single helper spec.md §9 calls for in place of the
// duplicated error-string handling in every stage.
func Report(d *diag.Context, err error, code int) string {
	var e *Error
	if !errors.As(err, &e) {
		e = &Error{Kind: InvalidState, Msg: err.Error()}
	}
	d.Report(kindToSeverity(e.Kind), kindToCategory(e.Kind), code, e.Error())
	return e.Error()
}

// ReportAs is Report with an explicit severity override, for callers that
// need to downgrade an otherwise-fatal Kind to a warning or note.
func ReportAs(d *diag.Context, sev diag.Severity, err error, code int) string {
	var e *Error
	if !errors.As(err, &e) {
		e = &Error{Kind: InvalidState, Msg: err.Error()}
	}
	d.Report(sev, kindToCategory(e.Kind), code, e.Error())
	return e.Error()
}
