package cerr

import (
	"errors"
	"testing"

	"github.com/xyproto/coilasm/diag"
)

func TestIsMatchesWrappedKind(t *testing.T) {
	base := New(TargetError, "no such target")
	wrapped := Wrap(ValidationError, "module check failed", base)

	if !Is(wrapped, ValidationError) {
		t.Fatal("Is did not match the outer wrapping kind")
	}
	if Is(wrapped, TargetError) {
		t.Fatal("Is matched the inner cause's kind instead of the outer wrap")
	}
}

func TestUnwrapReachesCause(t *testing.T) {
	cause := errors.New("disk full")
	err := Wrap(IoError, "write output", cause)
	if !errors.Is(err, cause) {
		t.Fatal("errors.Is did not find the wrapped cause")
	}
}

func TestReportRecordsAtDerivedSeverityAndCategory(t *testing.T) {
	d := diag.New()
	var got diag.Record
	d.SetHandler(func(r diag.Record) { got = r })

	msg := Report(d, New(TargetError, "unknown target \"gpu9\""), 7)

	if got.Severity != diag.Error {
		t.Fatalf("Severity = %v, want Error", got.Severity)
	}
	if got.Category != diag.CategoryTarget {
		t.Fatalf("Category = %v, want CategoryTarget", got.Category)
	}
	if got.Code != 7 {
		t.Fatalf("Code = %d, want 7", got.Code)
	}
	if msg != got.Message {
		t.Fatalf("Report returned %q, want the recorded message %q", msg, got.Message)
	}
}

func TestReportOptimizerWarningIsNonFatal(t *testing.T) {
	d := diag.New()
	Report(d, New(OptimizerWarning, "loop unrolled past budget"), 1)
	if d.Count(diag.Warning) != 1 {
		t.Fatalf("Warning count = %d, want 1", d.Count(diag.Warning))
	}
	if d.Poisoned() {
		t.Fatal("OptimizerWarning poisoned the context")
	}
}

func TestReportAsOverridesSeverity(t *testing.T) {
	d := diag.New()
	ReportAs(d, diag.Note, New(ConfigError, "optional tuning file absent"), 1)
	if d.Count(diag.Note) != 1 {
		t.Fatalf("Note count = %d, want 1", d.Count(diag.Note))
	}
	if d.Count(diag.Error) != 0 {
		t.Fatalf("Error count = %d, want 0", d.Count(diag.Error))
	}
}

func TestReportWrapsNonCerrError(t *testing.T) {
	d := diag.New()
	plain := errors.New("unexpected EOF")
	msg := Report(d, plain, 1)
	if msg == "" {
		t.Fatal("Report returned an empty message for a non-*cerr.Error input")
	}
	if d.Count(diag.Error) != 1 {
		t.Fatalf("Error count = %d, want 1", d.Count(diag.Error))
	}
}
