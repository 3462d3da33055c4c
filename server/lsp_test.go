package server

import (
	"strings"
	"testing"

	protocol "github.com/tliron/glsp/protocol_3_16"

	"github.com/chazu/m43/vm"
)

// ---------------------------------------------------------------------------
// Diagnostics
// ---------------------------------------------------------------------------

func TestDiagnose_CleanProgram(t *testing.T) {
	if d := diagnose(doubleSrc); len(d) != 0 {
		t.Errorf("diagnostics for a valid program: %+v", d)
	}
}

func TestDiagnose_ParseErrorPosition(t *testing.T) {
	d := diagnose("S> p @\n=1 zz @\n")
	if len(d) != 1 {
		t.Fatalf("got %d diagnostics, want 1", len(d))
	}
	start := d[0].Range.Start
	if start.Line != 1 || start.Character != 3 {
		t.Errorf("diagnostic at %d:%d, want 1:3", start.Line, start.Character)
	}
	if *d[0].Severity != protocol.DiagnosticSeverityError {
		t.Errorf("severity = %v, want error", *d[0].Severity)
	}
	if *d[0].Source != lspName {
		t.Errorf("source = %q", *d[0].Source)
	}
}

func TestDiagnose_MissingStart(t *testing.T) {
	d := diagnose("=1 p @\n")
	if len(d) != 1 || d[0].Message != vm.FaultMissingStart.Error() {
		t.Errorf("diagnostics = %+v", d)
	}
}

func TestDiagnose_ExtraStartIsWarned(t *testing.T) {
	d := diagnose("S> p  @\nSv .  .\n")
	if len(d) != 1 {
		t.Fatalf("got %d diagnostics, want 1", len(d))
	}
	if *d[0].Severity != protocol.DiagnosticSeverityWarning {
		t.Errorf("severity = %v, want warning", *d[0].Severity)
	}
	r := d[0].Range
	if r.Start.Line != 1 || r.Start.Character != 0 || r.End.Character != 2 {
		t.Errorf("range = %+v", r)
	}
}

// ---------------------------------------------------------------------------
// Hover
// ---------------------------------------------------------------------------

func TestHover_DescribesCell(t *testing.T) {
	h := hover(doubleSrc, protocol.Position{Line: 0, Character: 4})
	if h == nil {
		t.Fatal("no hover on =43")
	}
	md := h.Contents.(protocol.MarkupContent).Value
	if !strings.Contains(md, "Set(43)") || !strings.Contains(md, "position 1") {
		t.Errorf("hover = %q", md)
	}
	if !strings.Contains(md, vm.DescribeBlock(vm.Set{Value: 43})) {
		t.Errorf("hover lacks the cell description: %q", md)
	}
}

func TestHover_EmptyCell(t *testing.T) {
	h := hover("S> . @\n", protocol.Position{Line: 0, Character: 3})
	if h == nil {
		t.Fatal("no hover on empty cell")
	}
	if md := h.Contents.(protocol.MarkupContent).Value; !strings.HasPrefix(md, "**Empty**") {
		t.Errorf("hover = %q", md)
	}
}

func TestHover_Whitespace(t *testing.T) {
	if h := hover(doubleSrc, protocol.Position{Line: 0, Character: 2}); h != nil {
		t.Errorf("hover between tokens = %+v", h)
	}
	if h := hover("S> zz\n", protocol.Position{Line: 0, Character: 0}); h != nil {
		t.Errorf("hover on unparsable text = %+v", h)
	}
}

// ---------------------------------------------------------------------------
// Formatting
// ---------------------------------------------------------------------------

func TestFormatEdits(t *testing.T) {
	text := "S>   =43\n  p  @"
	edits := formatEdits(text)
	if len(edits) != 1 {
		t.Fatalf("got %d edits, want 1", len(edits))
	}
	e := edits[0]
	if e.NewText != "S> =43\np  @\n" {
		t.Errorf("formatted = %q", e.NewText)
	}
	if e.Range.End.Line != 1 || e.Range.End.Character != 6 {
		t.Errorf("edit range = %+v", e.Range)
	}

	if edits := formatEdits(e.NewText); len(edits) != 0 {
		t.Errorf("canonical text produced edits: %+v", edits)
	}
	if edits := formatEdits("S> zz"); edits != nil {
		t.Errorf("unparsable text produced edits: %+v", edits)
	}
}

func TestFormatEdits_KeepsComments(t *testing.T) {
	edits := formatEdits("# greet\nS>   =43 p # print it\n  @ . .\n")
	if len(edits) != 1 {
		t.Fatalf("got %d edits, want 1", len(edits))
	}
	want := "# greet\nS> =43 p # print it\n@  .   .\n"
	if got := edits[0].NewText; got != want {
		t.Errorf("formatted = %q, want %q", got, want)
	}
}
