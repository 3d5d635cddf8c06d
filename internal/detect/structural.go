package detect

import (
	"bytes"
	"encoding/hex"

	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	"github.com/local/pdfeditor/internal/contentstream"
	"github.com/local/pdfeditor/internal/pdfdoc"
)

// StructuralOptions configures ClassifyStructural.
type StructuralOptions struct {
	// TreatAnnotationsAsEmpty classifies pages whose only marks are
	// annotations as empty.
	TreatAnnotationsAsEmpty bool
}

// paint operator groups
var (
	pathConstruction = map[string]bool{"m": true, "l": true, "c": true, "v": true, "y": true, "h": true, "re": true}
	strokeOps        = map[string]bool{"S": true, "s": true}
	fillOps          = map[string]bool{"f": true, "F": true, "f*": true}
	fillStrokeOps    = map[string]bool{"B": true, "B*": true, "b": true, "b*": true}
	textShowOps      = map[string]bool{"Tj": true, "TJ": true, "'": true, "\"": true}
)

// gstate is the subset of the graphics state that affects visibility.
type gstate struct {
	fillAlpha   float64
	strokeAlpha float64
	renderMode  int
	fontSize    float64
	fontSet     bool
}

type walker struct {
	page    *pdfdoc.Page
	state   gstate
	stack   []gstate
	path    bool
	tally   map[string]int
	visible int
	hidden  int
	trigger Reason
}

// ClassifyStructural inspects the page's content stream operators.
func ClassifyStructural(page *pdfdoc.Page, opts StructuralOptions) PageDecision {
	d := PageDecision{PageIndex: page.Index}
	w := &walker{
		page:  page,
		state: gstate{fillAlpha: 1, strokeAlpha: 1},
		tally: map[string]int{},
	}

	content := bytes.TrimSpace(page.Content)
	var ops []contentstream.Operation
	parseErr := page.ContentErr
	if parseErr == nil && len(content) > 0 {
		ops, parseErr = contentstream.Parse(content)
	}
	for _, op := range ops {
		w.step(op)
	}

	details := map[string]any{
		"operator_counts":     w.tally,
		"operator_total":      len(ops),
		"visible_paint_ops":   w.visible,
		"invisible_paint_ops": w.hidden,
		"annotations":         page.Annotations,
		"content_bytes":       len(page.Content),
	}
	if len(page.XObjects) > 0 {
		details["xobjects"] = len(page.XObjects)
	}
	if parseErr != nil {
		details["parse_error"] = parseErr.Error()
	}
	d.Details = details

	switch {
	case w.visible > 0:
		d.Reason = w.trigger
	case parseErr != nil:
		// undecodable content is kept
		d.Reason = ReasonContentParseError
	case page.Annotations > 0:
		if opts.TreatAnnotationsAsEmpty {
			d.IsEmpty, d.Reason = true, ReasonAnnotationOnly
		} else {
			d.Reason = ReasonHasAnnotations
		}
	case w.hidden > 0:
		d.IsEmpty, d.Reason = true, ReasonInvisiblePaint
	case len(ops) == 0:
		d.IsEmpty, d.Reason = true, ReasonNoContent
	default:
		d.IsEmpty, d.Reason = true, ReasonNoPaintOps
	}
	return d
}

func (w *walker) step(op contentstream.Operation) {
	name := op.Operator
	w.tally[name]++
	switch {
	case name == "q":
		w.stack = append(w.stack, w.state)
	case name == "Q":
		if n := len(w.stack); n > 0 {
			w.state = w.stack[n-1]
			w.stack = w.stack[:n-1]
		}
	case name == "gs":
		w.applyExtGState(op)
	case name == "Tr":
		if v, ok := intOperand(op, 0); ok {
			w.state.renderMode = v
		}
	case name == "Tf":
		if v, ok := numberOperand(op, 1); ok {
			w.state.fontSize = v
			w.state.fontSet = true
		}
	case pathConstruction[name]:
		w.path = true
	case name == "n":
		w.path = false
	case strokeOps[name]:
		w.paintPath(w.state.strokeAlpha > 0)
	case fillOps[name]:
		w.paintPath(w.state.fillAlpha > 0)
	case fillStrokeOps[name]:
		w.paintPath(w.state.fillAlpha > 0 || w.state.strokeAlpha > 0)
	case name == "sh":
		w.mark(w.state.fillAlpha > 0, ReasonHasVisiblePaint)
	case textShowOps[name]:
		if !showsGlyphs(op) {
			return
		}
		w.mark(w.textVisible(), ReasonHasVisiblePaint)
	case name == "Do":
		// external objects are never inspected
		w.mark(true, ReasonXObjectReference)
	case name == "BI":
		w.mark(true, ReasonInlineImage)
	}
}

func (w *walker) paintPath(visible bool) {
	if !w.path {
		return
	}
	w.path = false
	w.mark(visible, ReasonHasVisiblePaint)
}

func (w *walker) mark(visible bool, reason Reason) {
	if !visible {
		w.hidden++
		return
	}
	if w.visible == 0 {
		w.trigger = reason
	}
	w.visible++
}

// textVisible applies the text rendering mode, font size and opacity rules.
func (w *walker) textVisible() bool {
	s := w.state
	if s.fontSet && s.fontSize == 0 {
		return false
	}
	switch s.renderMode {
	case 3, 7:
		return false
	case 0, 4:
		return s.fillAlpha > 0
	case 1, 5:
		return s.strokeAlpha > 0
	default:
		return s.fillAlpha > 0 || s.strokeAlpha > 0
	}
}

func (w *walker) applyExtGState(op contentstream.Operation) {
	if len(op.Operands) == 0 {
		return
	}
	name, ok := op.Operands[0].(types.Name)
	if !ok {
		return
	}
	gs, ok := w.page.ExtGStates[string(name)]
	if !ok {
		return
	}
	if gs.HasFill {
		w.state.fillAlpha = gs.FillAlpha
	}
	if gs.HasStroke {
		w.state.strokeAlpha = gs.StrokeAlpha
	}
}

// showsGlyphs reports whether a text-showing operation has a non-empty string.
func showsGlyphs(op contentstream.Operation) bool {
	for _, o := range op.Operands {
		switch v := o.(type) {
		case types.StringLiteral:
			if len(v) > 0 {
				return true
			}
		case types.HexLiteral:
			if b, err := hex.DecodeString(string(v)); err == nil && len(b) > 0 {
				return true
			}
		case types.Array:
			if showsGlyphs(contentstream.Operation{Operands: v}) {
				return true
			}
		}
	}
	return false
}

func numberOperand(op contentstream.Operation, i int) (float64, bool) {
	if i >= len(op.Operands) {
		return 0, false
	}
	switch v := op.Operands[i].(type) {
	case types.Integer:
		return float64(v), true
	case types.Float:
		return float64(v), true
	}
	return 0, false
}

func intOperand(op contentstream.Operation, i int) (int, bool) {
	f, ok := numberOperand(op, i)
	return int(f), ok
}
