//go:build !nofitz

package render

import (
	"image"

	fitz "github.com/gen2brain/go-fitz"
)

// fitzOpener implements Opener using github.com/gen2brain/go-fitz.
type fitzOpener struct{}

func (fitzOpener) OpenBytes(data []byte) (Rasterizer, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, err
	}
	return fitzDoc{doc}, nil
}

// Ensure default opener is set to fitz-based implementation.
func init() {
	setDefaultOpener(fitzOpener{})
}

type fitzDoc struct{ *fitz.Document }

// go-fitz uses 0-based indexing
func (d fitzDoc) Render(page int, dpi float64) (*image.RGBA, error) {
	return d.Document.ImageDPI(page, dpi)
}
