package detect

import (
	"image"
	"math"
)

// SampleRegion holds body margins in inches measured from the page edges.
type SampleRegion struct {
	Top, Left, Right, Bottom float64
}

// RenderOptions configures ClassifyRender.
type RenderOptions struct {
	Region         SampleRegion
	WhiteThreshold uint8   // channel floor for background pixels
	InkThreshold   float64 // coverage below which a page is empty
}

// RenderedPage is a rasterized page and the resolution it was rendered at.
type RenderedPage struct {
	Index int
	Image image.Image
	DPI   float64
}

// BodyRect returns the pixel rectangle left after removing the margins from
// bounds. ok is false when the rectangle has no positive area.
func BodyRect(bounds image.Rectangle, dpi float64, region SampleRegion) (image.Rectangle, bool) {
	left := bounds.Min.X + px(region.Left, dpi)
	top := bounds.Min.Y + px(region.Top, dpi)
	right := bounds.Max.X - px(region.Right, dpi)
	bottom := bounds.Max.Y - px(region.Bottom, dpi)
	r := image.Rect(left, top, right, bottom)
	if right <= left || bottom <= top {
		return r, false
	}
	return r, true
}

// BoxRect converts a box given in inches with a bottom-left origin to a pixel
// rectangle clamped to bounds. ok is false when nothing remains after clamping.
func BoxRect(bounds image.Rectangle, dpi, x, y, w, h float64) (image.Rectangle, bool) {
	height := bounds.Dy()
	x0 := bounds.Min.X + px(x, dpi)
	x1 := bounds.Min.X + px(x+w, dpi)
	y0 := bounds.Min.Y + height - px(y+h, dpi)
	y1 := bounds.Min.Y + height - px(y, dpi)
	r := image.Rect(x0, y0, x1, y1).Intersect(bounds)
	return r, !r.Empty()
}

func px(inches, dpi float64) int {
	return int(math.Round(inches * dpi))
}

// InkCoverage counts non-background pixels in r. A pixel is background when
// every channel is at least white or it is fully transparent.
func InkCoverage(img image.Image, r image.Rectangle, white uint8) (ink, total int) {
	r = r.Intersect(img.Bounds())
	if r.Empty() {
		return 0, 0
	}
	total = r.Dx() * r.Dy()
	if rgba, ok := img.(*image.RGBA); ok {
		for y := r.Min.Y; y < r.Max.Y; y++ {
			off := rgba.PixOffset(r.Min.X, y)
			row := rgba.Pix[off : off+4*r.Dx()]
			for i := 0; i < len(row); i += 4 {
				if row[i+3] == 0 {
					continue
				}
				if row[i] < white || row[i+1] < white || row[i+2] < white {
					ink++
				}
			}
		}
		return ink, total
	}
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			cr, cg, cb, ca := img.At(x, y).RGBA()
			if ca == 0 {
				continue
			}
			if uint8(cr>>8) < white || uint8(cg>>8) < white || uint8(cb>>8) < white {
				ink++
			}
		}
	}
	return ink, total
}

// ClassifyRender samples the body region of a rendered page.
func ClassifyRender(page RenderedPage, opts RenderOptions) PageDecision {
	d := PageDecision{PageIndex: page.Index}
	bounds := page.Image.Bounds()
	body, ok := BodyRect(bounds, page.DPI, opts.Region)
	details := map[string]any{
		"dpi":             page.DPI,
		"image_width":     bounds.Dx(),
		"image_height":    bounds.Dy(),
		"white_threshold": int(opts.WhiteThreshold),
		"ink_threshold":   opts.InkThreshold,
		"sample_rect":     rectDetails(body),
	}
	d.Details = details
	if !ok {
		// never remove a page that cannot be sampled
		d.Reason = ReasonInvalidSampleArea
		return d
	}
	ink, total := InkCoverage(page.Image, body, opts.WhiteThreshold)
	ratio := 0.0
	if total > 0 {
		ratio = float64(ink) / float64(total)
	}
	details["ink_pixels"] = ink
	details["sampled_pixels"] = total
	details["ink_ratio"] = ratio
	if ratio < opts.InkThreshold {
		d.IsEmpty, d.Reason = true, ReasonRenderBelowThreshold
	} else {
		d.Reason = ReasonHasVisiblePaint
	}
	return d
}

// RenderFailed is the conservative decision for a page that could not be rasterized.
func RenderFailed(index int, err error) PageDecision {
	return PageDecision{
		PageIndex: index,
		Reason:    ReasonRenderFailed,
		Details:   map[string]any{"error": err.Error()},
	}
}

func rectDetails(r image.Rectangle) map[string]int {
	return map[string]int{"x0": r.Min.X, "y0": r.Min.Y, "x1": r.Max.X, "y1": r.Max.Y}
}
