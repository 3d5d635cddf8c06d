// Package detect classifies pages as empty or non-empty.
//
// Classification functions are pure: they take a page snapshot or a rendered
// image plus configuration scalars and return a PageDecision.
package detect

import "fmt"

// Reason explains a page decision.
type Reason string

// Structural reasons.
const (
	ReasonNoContent         Reason = "no_content"
	ReasonNoPaintOps        Reason = "no_paint_ops"
	ReasonInvisiblePaint    Reason = "invisible_paint"
	ReasonAnnotationOnly    Reason = "annotation_only"
	ReasonHasAnnotations    Reason = "has_annotations"
	ReasonHasVisiblePaint   Reason = "has_visible_paint"
	ReasonXObjectReference  Reason = "xobject_reference"
	ReasonInlineImage       Reason = "inline_image"
	ReasonContentParseError Reason = "content_parse_error"
)

// Render reasons. ReasonHasVisiblePaint is shared.
const (
	ReasonRenderBelowThreshold Reason = "render_below_threshold"
	ReasonInvalidSampleArea    Reason = "invalid_sample_area"
	ReasonRenderFailed         Reason = "render_failed"
)

// Combined reasons for the both mode.
const (
	ReasonBothEmpty       Reason = "both_empty"
	ReasonStructuralEmpty Reason = "structural_empty"
	ReasonRenderEmpty     Reason = "render_empty"
	ReasonNonEmpty        Reason = "non_empty"
)

// PageDecision is the outcome of classifying one page. Details is diagnostic
// only and is never interpreted downstream.
type PageDecision struct {
	PageIndex int            `json:"page_index"`
	IsEmpty   bool           `json:"is_empty"`
	Reason    Reason         `json:"reason"`
	Details   map[string]any `json:"details,omitempty"`
}

// Mode selects which detectors decide.
type Mode string

const (
	ModeStructural Mode = "structural"
	ModeRender     Mode = "render"
	ModeBoth       Mode = "both"
)

// ParseMode validates a mode name.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case ModeStructural, ModeRender, ModeBoth:
		return m, nil
	}
	return "", fmt.Errorf("unknown detection mode %q (want structural, render or both)", s)
}

// NeedsRender reports whether the mode runs the render classifier.
func (m Mode) NeedsRender() bool { return m == ModeRender || m == ModeBoth }
