package pdfdoc

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

// Letter is used when a page has no resolvable media box.
var Letter = Box{URX: 612, URY: 792}

// Box is a rectangle in default user space units (1/72 inch).
type Box struct {
	LLX, LLY, URX, URY float64
}

// Width returns the box width.
func (b Box) Width() float64 { return b.URX - b.LLX }

// Height returns the box height.
func (b Box) Height() float64 { return b.URY - b.LLY }

// ExtGState holds the opacity entries of a graphics state parameter dict.
type ExtGState struct {
	FillAlpha   float64
	StrokeAlpha float64
	HasFill     bool
	HasStroke   bool
}

// Page is a read-only snapshot of what classification needs from one page.
type Page struct {
	Index       int
	Content     []byte // decoded content streams, concatenated
	ContentErr  error  // set when a content stream could not be decoded
	Annotations int
	ExtGStates  map[string]ExtGState
	XObjects    map[string]string // resource name -> subtype
	Fonts       []string          // font resource names
	MediaBox    Box
}

// Page returns the 0-based page i.
func (d *Document) Page(i int) (*Page, error) {
	if d.ctx == nil {
		return nil, ErrClosed
	}
	if i < 0 || i >= d.ctx.PageCount {
		return nil, fmt.Errorf("page index %d out of range [0,%d)", i, d.ctx.PageCount)
	}
	pd, _, inh, err := d.ctx.PageDict(i+1, false)
	if err != nil {
		return nil, fmt.Errorf("%w: page %d: %v", ErrUnreadable, i+1, err)
	}
	if pd == nil {
		return nil, fmt.Errorf("%w: page %d missing", ErrUnreadable, i+1)
	}

	p := &Page{
		Index:      i,
		ExtGStates: map[string]ExtGState{},
		XObjects:   map[string]string{},
		MediaBox:   d.mediaBox(pd, inh),
	}
	p.Content, p.ContentErr = d.pageContent(pd)

	if o, found := pd.Find("Annots"); found {
		if arr, err := d.ctx.DereferenceArray(o); err == nil {
			p.Annotations = len(arr)
		}
	}

	res := d.pageResources(pd, inh)
	if res != nil {
		d.collectResources(res, p)
	}
	return p, nil
}

func (d *Document) mediaBox(pd types.Dict, inh *model.InheritedPageAttrs) Box {
	if o, found := pd.Find("MediaBox"); found {
		if arr, err := d.ctx.DereferenceArray(o); err == nil && len(arr) == 4 {
			var v [4]float64
			ok := true
			for k := range arr {
				n, isNum := d.number(arr[k])
				if !isNum {
					ok = false
					break
				}
				v[k] = n
			}
			if ok {
				return normalizeBox(v[0], v[1], v[2], v[3])
			}
		}
	}
	if inh != nil && inh.MediaBox != nil {
		r := inh.MediaBox
		return normalizeBox(r.LL.X, r.LL.Y, r.UR.X, r.UR.Y)
	}
	return Letter
}

func normalizeBox(x0, y0, x1, y1 float64) Box {
	if x0 > x1 {
		x0, x1 = x1, x0
	}
	if y0 > y1 {
		y0, y1 = y1, y0
	}
	return Box{LLX: x0, LLY: y0, URX: x1, URY: y1}
}

// pageContent decodes and concatenates the page's content streams.
func (d *Document) pageContent(pd types.Dict) ([]byte, error) {
	o, found := pd.Find("Contents")
	if !found || o == nil {
		return nil, nil
	}
	obj, err := d.ctx.Dereference(o)
	if err != nil {
		return nil, err
	}
	var streams []types.Object
	switch v := obj.(type) {
	case types.StreamDict:
		streams = []types.Object{o}
	case types.Array:
		streams = v
	case nil:
		return nil, nil
	default:
		return nil, fmt.Errorf("unexpected /Contents type %T", obj)
	}
	var buf bytes.Buffer
	for _, s := range streams {
		sd, _, err := d.ctx.DereferenceStreamDict(s)
		if err != nil {
			return buf.Bytes(), err
		}
		if sd == nil {
			continue
		}
		if err := sd.Decode(); err != nil {
			return buf.Bytes(), fmt.Errorf("decode content stream: %w", err)
		}
		buf.Write(sd.Content)
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

// pageResources returns the page's own resources or the inherited ones.
func (d *Document) pageResources(pd types.Dict, inh *model.InheritedPageAttrs) types.Dict {
	if o, found := pd.Find("Resources"); found {
		if res, err := d.ctx.DereferenceDict(o); err == nil && res != nil {
			return res
		}
	}
	if inh != nil && inh.Resources != nil {
		return inh.Resources
	}
	return nil
}

func (d *Document) collectResources(res types.Dict, p *Page) {
	if o, found := res.Find("ExtGState"); found {
		if gsDict, err := d.ctx.DereferenceDict(o); err == nil {
			for name, v := range gsDict {
				gs, err := d.ctx.DereferenceDict(v)
				if err != nil || gs == nil {
					continue
				}
				var e ExtGState
				if n, ok := d.lookupNumber(gs, "ca"); ok {
					e.FillAlpha, e.HasFill = n, true
				}
				if n, ok := d.lookupNumber(gs, "CA"); ok {
					e.StrokeAlpha, e.HasStroke = n, true
				}
				p.ExtGStates[name] = e
			}
		}
	}
	if o, found := res.Find("XObject"); found {
		if xoDict, err := d.ctx.DereferenceDict(o); err == nil {
			for name, v := range xoDict {
				subtype := ""
				if sd, _, err := d.ctx.DereferenceStreamDict(v); err == nil && sd != nil {
					if st := sd.Dict.Subtype(); st != nil {
						subtype = *st
					}
				}
				p.XObjects[name] = subtype
			}
		}
	}
	if o, found := res.Find("Font"); found {
		if fontDict, err := d.ctx.DereferenceDict(o); err == nil {
			for name := range fontDict {
				p.Fonts = append(p.Fonts, name)
			}
			sort.Strings(p.Fonts)
		}
	}
}

func (d *Document) lookupNumber(dict types.Dict, key string) (float64, bool) {
	o, found := dict.Find(key)
	if !found {
		return 0, false
	}
	return d.number(o)
}

func (d *Document) number(o types.Object) (float64, bool) {
	obj, err := d.ctx.Dereference(o)
	if err != nil {
		return 0, false
	}
	switch v := obj.(type) {
	case types.Integer:
		return float64(v), true
	case types.Float:
		return float64(v), true
	}
	return 0, false
}
