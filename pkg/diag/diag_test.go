package diag

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/raymyers/ralph-pet/pkg/cabs"
)

func TestKinds(t *testing.T) {
	tests := []struct {
		err  error
		kind Kind
	}{
		{Unsupportedf(cabs.Span{}, "goto"), Unsupported},
		{Missingf(cabs.Span{}, "missing increment"), Missing},
		{Errorf(UnbalancedPragmas, cabs.Span{}, "unbalanced pragmas"), UnbalancedPragmas},
		{fmt.Errorf("scan f: %w", Internalf("unresolved parameter %s", "$n0")), Internal},
	}
	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			k, ok := KindOf(tt.err)
			if !ok || k != tt.kind {
				t.Errorf("KindOf(%v) = %v, %v", tt.err, k, ok)
			}
			if IsInternal(tt.err) != (tt.kind == Internal) {
				t.Errorf("IsInternal(%v) = %v", tt.err, IsInternal(tt.err))
			}
		})
	}
	if _, ok := KindOf(fmt.Errorf("plain")); ok {
		t.Error("plain errors have no kind")
	}
}

func TestReport(t *testing.T) {
	src := "void f() {\n  x = a[i++];\n}\n"
	span := cabs.Span{Start: 17, End: 20, Line: 2, Column: 9, EndLine: 2}

	var buf bytes.Buffer
	r := NewReporter(&buf, "k.c", src)
	r.Report(Unsupportedf(span, "increment inside subscript"))
	want := "k.c:2:9: error: increment inside subscript\n" +
		"  x = a[i++];\n" +
		"        ^~~\n"
	if buf.String() != want {
		t.Errorf("got:\n%q\nwant:\n%q", buf.String(), want)
	}
	if r.Count() != 1 {
		t.Errorf("Count = %d", r.Count())
	}
}

func TestReportAutodetect(t *testing.T) {
	var buf bytes.Buffer
	r := NewReporter(&buf, "k.c", "")
	r.Autodetect = true
	r.Report(Unsupportedf(cabs.Span{Line: 1, Column: 1}, "switch"))
	if buf.Len() != 0 || r.Count() != 0 {
		t.Errorf("autodetect printed %q", buf.String())
	}
	r.Report(Internalf("broken invariant"))
	if !strings.Contains(buf.String(), "internal error: broken invariant") {
		t.Errorf("internal error not printed: %q", buf.String())
	}
}

func TestTerminal(t *testing.T) {
	var buf bytes.Buffer
	w, tty := Terminal(&buf)
	if tty {
		t.Error("a buffer is not a terminal")
	}
	if w != &buf {
		t.Error("non-file writers are returned unchanged")
	}
}
