package detect

import (
	"errors"
	"fmt"
)

// ErrRenderUnavailable is returned when render mode is requested without a
// rendering capability.
var ErrRenderUnavailable = errors.New("render mode requested but no page renderer is available")

// CombinedDecision is the per-page outcome used for planning.
type CombinedDecision struct {
	PageDecision
	Mode       Mode          `json:"mode"`
	Structural *PageDecision `json:"structural,omitempty"`
	Render     *PageDecision `json:"render,omitempty"`
}

// ResolveMode maps the requested mode onto what can run. Both degrades to
// structural with a warning when rendering is unavailable; render alone fails.
func ResolveMode(requested Mode, renderAvailable bool) (Mode, string, error) {
	if renderAvailable || !requested.NeedsRender() {
		return requested, "", nil
	}
	if requested == ModeRender {
		return "", "", ErrRenderUnavailable
	}
	return ModeStructural, "page renderer unavailable; mode both degraded to structural", nil
}

// Combine merges the detector decisions for one page according to mode.
func Combine(structural, render *PageDecision, mode Mode) (CombinedDecision, error) {
	c := CombinedDecision{Mode: mode, Structural: structural, Render: render}
	switch mode {
	case ModeStructural:
		if structural == nil {
			return c, fmt.Errorf("structural decision required for mode %s", mode)
		}
		c.PageDecision = *structural
	case ModeRender:
		if render == nil {
			return c, fmt.Errorf("render decision required for mode %s", mode)
		}
		c.PageDecision = *render
	case ModeBoth:
		if structural == nil || render == nil {
			return c, fmt.Errorf("structural and render decisions required for mode %s", mode)
		}
		if structural.PageIndex != render.PageIndex {
			return c, fmt.Errorf("page index mismatch: structural %d, render %d", structural.PageIndex, render.PageIndex)
		}
		c.PageIndex = structural.PageIndex
		c.IsEmpty = structural.IsEmpty || render.IsEmpty
		switch {
		case structural.IsEmpty && render.IsEmpty:
			c.Reason = ReasonBothEmpty
		case structural.IsEmpty:
			c.Reason = ReasonStructuralEmpty
		case render.IsEmpty:
			c.Reason = ReasonRenderEmpty
		default:
			c.Reason = ReasonNonEmpty
		}
		c.Details = map[string]any{
			"structural_reason":   structural.Reason,
			"structural_is_empty": structural.IsEmpty,
			"render_reason":       render.Reason,
			"render_is_empty":     render.IsEmpty,
		}
	default:
		return c, fmt.Errorf("unknown detection mode %q", mode)
	}
	return c, nil
}

// Summary counts decisions by outcome and reason.
type Summary struct {
	Empty           int            `json:"empty_pages"`
	NonEmpty        int            `json:"non_empty_pages"`
	StructuralEmpty int            `json:"structural_empty_pages"`
	RenderEmpty     int            `json:"render_empty_pages"`
	BothEmpty       int            `json:"both_empty_pages"`
	Reasons         map[Reason]int `json:"reasons"`
}

// Summarize tallies combined decisions.
func Summarize(decisions []CombinedDecision) Summary {
	s := Summary{Reasons: map[Reason]int{}}
	for _, d := range decisions {
		if d.IsEmpty {
			s.Empty++
		} else {
			s.NonEmpty++
		}
		s.Reasons[d.Reason]++
		se := d.Structural != nil && d.Structural.IsEmpty
		re := d.Render != nil && d.Render.IsEmpty
		if se {
			s.StructuralEmpty++
		}
		if re {
			s.RenderEmpty++
		}
		if se && re {
			s.BothEmpty++
		}
	}
	return s
}
