package detect

import (
	"testing"

	"github.com/local/pdfeditor/internal/pdfdoc"
)

func page(content string) *pdfdoc.Page {
	return &pdfdoc.Page{Content: []byte(content), ExtGStates: map[string]pdfdoc.ExtGState{}}
}

func TestClassifyStructural(t *testing.T) {
	transparent := map[string]pdfdoc.ExtGState{
		"GS0": {FillAlpha: 0, StrokeAlpha: 0, HasFill: true, HasStroke: true},
		"GS1": {FillAlpha: 1, StrokeAlpha: 1, HasFill: true, HasStroke: true},
	}
	tests := []struct {
		name      string
		content   string
		gs        map[string]pdfdoc.ExtGState
		wantEmpty bool
		want      Reason
	}{
		{"empty stream", "", nil, true, ReasonNoContent},
		{"whitespace only", " \n\t \n", nil, true, ReasonNoContent},
		{"comment only", "% nothing here\n", nil, true, ReasonNoContent},
		{"state only", "q 1 0 0 1 0 0 cm BT ET Q", nil, true, ReasonNoPaintOps},
		{"text positioning without show", "BT /F1 12 Tf 72 720 Td ET", nil, true, ReasonNoPaintOps},
		{"clip without paint", "0 0 100 100 re W n", nil, true, ReasonNoPaintOps},
		{"font resource only", "/F1 12 Tf", nil, true, ReasonNoPaintOps},
		{"invisible render mode", "BT 3 Tr /F1 12 Tf 72 720 Td (Invisible) Tj ET", nil, true, ReasonInvisiblePaint},
		{"clip render mode", "BT 7 Tr /F1 12 Tf (Clip) Tj ET", nil, true, ReasonInvisiblePaint},
		{"zero font size", "BT /F1 0 Tf 72 720 Td (Zero) Tj ET", nil, true, ReasonInvisiblePaint},
		{"zero opacity text", "/GS0 gs BT /F1 12 Tf 72 720 Td (Ghost) Tj ET", transparent, true, ReasonInvisiblePaint},
		{"zero opacity fill", "/GS0 gs 0 0 100 100 re f", transparent, true, ReasonInvisiblePaint},
		{"empty string show", "BT /F1 12 Tf () Tj [] TJ ET", nil, true, ReasonNoPaintOps},
		{"paint without path", "f S", nil, true, ReasonNoPaintOps},
		{"visible text", "BT /F1 12 Tf 72 700 Td (x) Tj ET", nil, false, ReasonHasVisiblePaint},
		{"visible shape", "0 0 0 RG 72 72 144 72 re S", nil, false, ReasonHasVisiblePaint},
		{"hex text", "BT /F1 12 Tf <48> Tj ET", nil, false, ReasonHasVisiblePaint},
		{"TJ array", "BT /F1 12 Tf [(A) -50 (B)] TJ ET", nil, false, ReasonHasVisiblePaint},
		{"opacity restored by Q", "q /GS0 gs Q BT /F1 12 Tf (x) Tj ET", transparent, false, ReasonHasVisiblePaint},
		{"opacity restored by gs", "/GS0 gs /GS1 gs 0 0 1 1 re f", transparent, false, ReasonHasVisiblePaint},
		{"render mode restored by Q", "q BT 3 Tr ET Q BT /F1 12 Tf (x) Tj ET", nil, false, ReasonHasVisiblePaint},
		{"shading", "/Sh0 sh", nil, false, ReasonHasVisiblePaint},
		{"xobject", "q 100 0 0 100 0 0 cm /Im0 Do Q", nil, false, ReasonXObjectReference},
		{"xobject under zero opacity", "/GS0 gs /Fm0 Do", transparent, false, ReasonXObjectReference},
		{"inline image", "q BI /W 1 /H 1 /CS /G /BPC 8 ID \x00 EI Q", nil, false, ReasonInlineImage},
		{"parse error", "(unterminated Tj", nil, false, ReasonContentParseError},
		{"paint before parse error", "0 0 1 1 re f (broken", nil, false, ReasonHasVisiblePaint},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := page(tt.content)
			if tt.gs != nil {
				p.ExtGStates = tt.gs
			}
			got := ClassifyStructural(p, StructuralOptions{TreatAnnotationsAsEmpty: true})
			if got.IsEmpty != tt.wantEmpty || got.Reason != tt.want {
				t.Errorf("got empty=%v reason=%s, want empty=%v reason=%s", got.IsEmpty, got.Reason, tt.wantEmpty, tt.want)
			}
		})
	}
}

func TestClassifyStructuralAnnotationToggle(t *testing.T) {
	p := page("")
	p.Annotations = 2

	on := ClassifyStructural(p, StructuralOptions{TreatAnnotationsAsEmpty: true})
	if !on.IsEmpty || on.Reason != ReasonAnnotationOnly {
		t.Errorf("annotations as empty: got %v/%s", on.IsEmpty, on.Reason)
	}
	off := ClassifyStructural(p, StructuralOptions{TreatAnnotationsAsEmpty: false})
	if off.IsEmpty || off.Reason != ReasonHasAnnotations {
		t.Errorf("annotations as content: got %v/%s", off.IsEmpty, off.Reason)
	}
	if p.Annotations != 2 || len(p.Content) != 0 {
		t.Error("page snapshot was mutated")
	}

	p.Content = []byte("BT /F1 12 Tf (x) Tj ET")
	visible := ClassifyStructural(p, StructuralOptions{TreatAnnotationsAsEmpty: true})
	if visible.IsEmpty {
		t.Error("visible paint with annotations must be non-empty")
	}
}

func TestClassifyStructuralDeterministicTally(t *testing.T) {
	p := page("q 0 0 1 1 re f Q q 0 0 1 1 re f Q")
	a := ClassifyStructural(p, StructuralOptions{})
	b := ClassifyStructural(p, StructuralOptions{})
	if a.IsEmpty != b.IsEmpty || a.Reason != b.Reason {
		t.Fatal("same content produced different decisions")
	}
	counts := a.Details["operator_counts"].(map[string]int)
	if counts["re"] != 2 || counts["f"] != 2 || counts["q"] != 2 {
		t.Errorf("unexpected tally %v", counts)
	}
	if a.Details["visible_paint_ops"].(int) != 2 {
		t.Errorf("expected 2 visible paint ops, got %v", a.Details["visible_paint_ops"])
	}
}

func TestClassifyStructuralContentError(t *testing.T) {
	p := page("")
	p.ContentErr = errFake("unsupported filter")
	got := ClassifyStructural(p, StructuralOptions{TreatAnnotationsAsEmpty: true})
	if got.IsEmpty || got.Reason != ReasonContentParseError {
		t.Errorf("got %v/%s", got.IsEmpty, got.Reason)
	}
}

type errFake string

func (e errFake) Error() string { return string(e) }
