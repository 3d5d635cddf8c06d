// Package stamp covers the printed page-number box of each output page and
// draws a fresh label numbered in output order.
package stamp

import (
	"fmt"
	"image"
	"image/color"
	"sort"
	"strconv"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/font"
	"github.com/rs/zerolog/log"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"

	"github.com/local/pdfeditor/internal/detect"
	"github.com/local/pdfeditor/internal/pdfdoc"
	"github.com/local/pdfeditor/internal/render"
)

const pointsPerInch = 72.0

var (
	paper = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	black = color.RGBA{A: 255}
)

// Action is the per-page stamping outcome.
type Action string

const (
	ActionStamped          Action = "stamped"
	ActionStampedForced    Action = "stamped_forced"
	ActionGuardrailSkipped Action = "guardrail_skipped"
)

// Skip reasons.
const (
	ReasonInkThresholdExceeded = "ink_threshold_exceeded"
	ReasonInvalidSampleArea    = "invalid_sample_area"
)

// Box is a rectangle in inches with a bottom-left origin.
type Box struct {
	X, Y, W, H float64
}

// Points returns the box in PDF user space units.
func (b Box) Points() (x, y, w, h float64) {
	return b.X * pointsPerInch, b.Y * pointsPerInch, b.W * pointsPerInch, b.H * pointsPerInch
}

// Spec describes what to stamp.
type Spec struct {
	Box    Box
	Font   string
	Size   float64
	Format string
	Force  bool
}

// Params are the sampling parameters shared with render detection.
type Params struct {
	DPI            float64
	WhiteThreshold uint8
	InkThreshold   float64
}

// Sample is the pixel analysis of the box on one rendered page.
type Sample struct {
	Rect     image.Rectangle
	Valid    bool
	InkRatio float64
	Cover    color.RGBA
}

// Outcome records what happened on one output page.
type Outcome struct {
	PageIndex  int      `json:"output_page_index"`
	PageNumber int      `json:"output_page_number"`
	Action     Action   `json:"action"`
	Reason     string   `json:"reason"`
	Label      string   `json:"stamped_label"`
	InkRatio   float64  `json:"box_ink_ratio"`
	CoverRGB   [3]uint8 `json:"cover_color_rgb"`
	SampleBox  [4]int   `json:"sample_box_px"`
}

// SampleBox measures ink coverage and the background tone of box on img.
func SampleBox(img image.Image, dpi float64, box Box, white uint8) Sample {
	s := Sample{Cover: paper}
	r, ok := detect.BoxRect(img.Bounds(), dpi, box.X, box.Y, box.W, box.H)
	s.Rect = r
	if !ok {
		return s
	}
	s.Valid = true
	ink, total := detect.InkCoverage(img, r, white)
	if total > 0 {
		s.InkRatio = float64(ink) / float64(total)
	}
	s.Cover = CoverColor(img, r)
	return s
}

// Evaluate applies the guardrail. The guardrail trips when the box cannot be
// sampled or its ink ratio reaches threshold; force bypasses it.
func Evaluate(s Sample, force bool, threshold float64) (Action, string) {
	tripped, reason := false, ""
	switch {
	case !s.Valid:
		tripped, reason = true, ReasonInvalidSampleArea
	case s.InkRatio >= threshold:
		tripped, reason = true, ReasonInkThresholdExceeded
	}
	if !tripped {
		return ActionStamped, string(ActionStamped)
	}
	if force {
		return ActionStampedForced, string(ActionStampedForced)
	}
	return ActionGuardrailSkipped, reason
}

// ringWidth is how many pixels in from the box edge count as border.
const ringWidth = 2

// CoverColor returns the per-channel median of the pixels along the inner
// border of r.
func CoverColor(img image.Image, r image.Rectangle) color.RGBA {
	r = r.Intersect(img.Bounds())
	if r.Empty() {
		return paper
	}
	inner := r.Inset(ringWidth)
	var reds, greens, blues []int
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			if !inner.Empty() && (image.Point{X: x, Y: y}).In(inner) {
				continue
			}
			c := color.RGBAModel.Convert(img.At(x, y)).(color.RGBA)
			if c.A == 0 {
				c = paper
			}
			reds = append(reds, int(c.R))
			greens = append(greens, int(c.G))
			blues = append(blues, int(c.B))
		}
	}
	return color.RGBA{R: median(reds), G: median(greens), B: median(blues), A: 255}
}

func median(v []int) uint8 {
	sort.Ints(v)
	return uint8(v[len(v)/2])
}

// TextColor picks black on light covers and white on dark ones.
func TextColor(cover color.RGBA) color.RGBA {
	lum := 0.299*float64(cover.R) + 0.587*float64(cover.G) + 0.114*float64(cover.B)
	if lum >= 186 {
		return black
	}
	return paper
}

var fallbackWidth = map[string]float64{
	"Courier":     0.60,
	"Helvetica":   0.56,
	"Times-Roman": 0.50,
}

// TextWidth returns the advance width of label in points.
func TextWidth(label, fontName string, size float64) float64 {
	if font.IsCoreFont(fontName) {
		if w := font.TextWidth(label, fontName, 1000); w > 0 {
			return w * size / 1000
		}
	}
	avg, ok := fallbackWidth[fontName]
	if !ok {
		avg = 0.56
	}
	return avg * size * float64(len([]rune(label)))
}

// encodeLabel converts label to the single-byte encoding of the stamp font.
func encodeLabel(label string) []byte {
	enc := encoding.ReplaceUnsupported(charmap.Windows1252.NewEncoder())
	b, err := enc.Bytes([]byte(label))
	if err != nil {
		return []byte(label)
	}
	return b
}

func rgb(c color.RGBA) string {
	f := func(v uint8) string { return strconv.FormatFloat(float64(v)/255, 'f', 6, 64) }
	return f(c.R) + " " + f(c.G) + " " + f(c.B)
}

func pt(v float64) string { return strconv.FormatFloat(v, 'f', 3, 64) }

// OverlayContent returns the content stream that paints the cover rectangle
// and draws label centred in the box using font resource res.
func OverlayContent(res string, spec Spec, label string, cover color.RGBA) []byte {
	x, y, w, h := spec.Box.Points()
	cx, cy := x+w/2, y+h/2
	tx := cx - TextWidth(label, spec.Font, spec.Size)/2
	ty := cy - spec.Size*0.35

	var sb strings.Builder
	fmt.Fprintf(&sb, "q %s rg %s %s %s %s re f Q\n", rgb(cover), pt(x), pt(y), pt(w), pt(h))
	fmt.Fprintf(&sb, "q BT /%s %s Tf %s rg 1 0 0 1 %s %s Tm (%s) Tj ET Q\n",
		res, pt(spec.Size), rgb(TextColor(cover)), pt(tx), pt(ty), pdfdoc.EscapeLiteral(encodeLabel(label)))
	return []byte(sb.String())
}

// Stamp evaluates and stamps every page of doc. Pages are rendered from the
// document as it is on entry; output page i is numbered i+1.
func Stamp(doc *pdfdoc.Document, opener render.Opener, spec Spec, params Params) ([]Outcome, error) {
	data, err := doc.Bytes()
	if err != nil {
		return nil, err
	}
	r, err := opener.OpenBytes(data)
	if err != nil {
		return nil, fmt.Errorf("open for stamping: %w", err)
	}
	defer r.Close()

	n := doc.PageCount()
	if r.NumPage() != n {
		return nil, fmt.Errorf("renderer sees %d pages, document has %d", r.NumPage(), n)
	}
	outcomes := make([]Outcome, 0, n)
	for i := 0; i < n; i++ {
		label, err := FormatLabel(spec.Format, i+1)
		if err != nil {
			return outcomes, err
		}
		img, err := render.Page(r, i, params.DPI)
		if err != nil {
			return outcomes, err
		}
		s := SampleBox(img, params.DPI, spec.Box, params.WhiteThreshold)
		action, reason := Evaluate(s, spec.Force, params.InkThreshold)
		o := Outcome{
			PageIndex:  i,
			PageNumber: i + 1,
			Action:     action,
			Reason:     reason,
			Label:      label,
			InkRatio:   s.InkRatio,
			CoverRGB:   [3]uint8{s.Cover.R, s.Cover.G, s.Cover.B},
			SampleBox:  [4]int{s.Rect.Min.X, s.Rect.Min.Y, s.Rect.Max.X, s.Rect.Max.Y},
		}
		outcomes = append(outcomes, o)
		if action == ActionGuardrailSkipped {
			log.Debug().Int("page", i+1).Str("reason", reason).Float64("ink_ratio", s.InkRatio).Msg("stamp skipped")
			continue
		}

		res, err := doc.AddStandardFont(i, spec.Font)
		if err != nil {
			return outcomes, fmt.Errorf("page %d: %w", i+1, err)
		}
		if err := doc.AppendContent(i, OverlayContent(res, spec, label, s.Cover)); err != nil {
			return outcomes, fmt.Errorf("page %d: %w", i+1, err)
		}
	}
	return outcomes, nil
}

// Counts tallies outcomes by action.
func Counts(outcomes []Outcome) (applied, forced, skipped int) {
	for _, o := range outcomes {
		switch o.Action {
		case ActionStamped:
			applied++
		case ActionStampedForced:
			applied++
			forced++
		case ActionGuardrailSkipped:
			skipped++
		}
	}
	return applied, forced, skipped
}
