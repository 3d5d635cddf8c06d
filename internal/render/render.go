// Package render rasterizes PDF pages for pixel sampling.
package render

import (
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/rs/zerolog/log"
)

// ErrUnavailable is returned when no rendering backend is compiled in.
var ErrUnavailable = errors.New("page renderer unavailable")

// Rasterizer renders pages of one open document.
type Rasterizer interface {
	NumPage() int
	// Render rasterizes the 0-based page at dpi.
	Render(page int, dpi float64) (*image.RGBA, error)
	Close() error
}

// Opener opens serialized documents for rendering.
type Opener interface {
	OpenBytes(data []byte) (Rasterizer, error)
}

// defaultOpener is provided in fitz.go using go-fitz.
var defaultOpener Opener

// setDefaultOpener allows swapping the default opener, useful for tests or alternate backends.
func setDefaultOpener(o Opener) { defaultOpener = o }

// Available reports whether a rendering backend is present.
func Available() bool { return defaultOpener != nil }

// Default returns the compiled-in opener.
func Default() (Opener, error) {
	if defaultOpener == nil {
		return nil, ErrUnavailable
	}
	return defaultOpener, nil
}

// Page renders one page and logs its size and timing at debug level.
func Page(r Rasterizer, page int, dpi float64) (*image.RGBA, error) {
	if dpi <= 0 {
		return nil, fmt.Errorf("invalid dpi %v", dpi)
	}
	if page < 0 || page >= r.NumPage() {
		return nil, fmt.Errorf("page index %d out of range [0,%d)", page, r.NumPage())
	}
	start := time.Now()
	img, err := r.Render(page, dpi)
	if err != nil {
		return nil, fmt.Errorf("failed to render page %d: %w", page+1, err)
	}
	bounds := img.Bounds()
	log.Debug().
		Int("page", page+1).
		Int("width", bounds.Dx()).
		Int("height", bounds.Dy()).
		Float64("dpi", dpi).
		Dur("took", time.Since(start)).
		Msg("rendered page")
	return img, nil
}
