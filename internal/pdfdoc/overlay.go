package pdfdoc

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"

	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

// Info returns the document information entries with indirect values resolved.
func (d *Document) Info() (map[string]types.Object, error) {
	if d.ctx == nil {
		return nil, ErrClosed
	}
	out := map[string]types.Object{}
	if d.ctx.Info == nil {
		return out, nil
	}
	info, err := d.ctx.DereferenceDict(*d.ctx.Info)
	if err != nil {
		return nil, fmt.Errorf("info dict: %w", err)
	}
	for k, v := range info {
		obj, err := d.ctx.Dereference(v)
		if err != nil {
			continue
		}
		switch obj.(type) {
		case types.StringLiteral, types.HexLiteral, types.Name, types.Integer, types.Float, types.Boolean:
			out[k] = obj
		}
	}
	return out, nil
}

// SetInfo replaces the document information dict with entries and pins them,
// see PinInfo.
func (d *Document) SetInfo(entries map[string]types.Object) error {
	if d.ctx == nil {
		return ErrClosed
	}
	var info types.Dict
	if d.ctx.Info != nil {
		var err error
		if info, err = d.ctx.DereferenceDict(*d.ctx.Info); err != nil {
			return fmt.Errorf("info dict: %w", err)
		}
	}
	if info == nil {
		info = types.Dict{}
		ref, err := d.ctx.IndRefForNewObject(info)
		if err != nil {
			return err
		}
		d.ctx.Info = ref
	}
	for k := range info {
		delete(info, k)
	}
	for k, v := range entries {
		info[k] = v
	}
	d.PinInfo(entries)
	d.dirty = true
	return nil
}

// PinInfo makes every later serialization write exactly entries as the
// information dict. pdfcpu stamps Producer, CreationDate and ModDate on each
// write; pinned entries are restored by an incremental update afterwards.
func (d *Document) PinInfo(entries map[string]types.Object) {
	d.info = make(map[string]types.Object, len(entries))
	for k, v := range entries {
		d.info[k] = v
	}
}

// pinInfo appends an incremental update to data, a document pdfcpu just wrote
// and ctx its parsed form, replacing the information dict with entries.
func pinInfo(data []byte, ctx *model.Context, entries map[string]types.Object) ([]byte, error) {
	if ctx.Info == nil || ctx.Root == nil || ctx.Size == nil {
		return nil, errors.New("written document lacks trailer entries")
	}
	prev, err := lastStartXRef(data)
	if err != nil {
		return nil, err
	}
	info := types.Dict{}
	for k, v := range entries {
		info[k] = v
	}

	var b bytes.Buffer
	b.Grow(len(data) + 512)
	b.Write(data)
	if !bytes.HasSuffix(data, []byte("\n")) {
		b.WriteByte('\n')
	}
	nr, gen := ctx.Info.ObjectNumber.Value(), ctx.Info.GenerationNumber.Value()
	objAt := b.Len()
	fmt.Fprintf(&b, "%d %d obj\n%s\nendobj\n", nr, gen, info.PDFString())
	xrefAt := b.Len()
	// entries are exactly 20 bytes including the CRLF
	fmt.Fprintf(&b, "xref\n%d 1\n%010d %05d n\r\n", nr, objAt, gen)
	trailer := types.Dict{
		"Size": types.Integer(*ctx.Size),
		"Root": *ctx.Root,
		"Info": *ctx.Info,
		"Prev": types.Integer(prev),
	}
	if len(ctx.ID) > 0 {
		trailer["ID"] = ctx.ID
	}
	fmt.Fprintf(&b, "trailer\n%s\nstartxref\n%d\n%%%%EOF\n", trailer.PDFString(), xrefAt)
	return b.Bytes(), nil
}

func lastStartXRef(data []byte) (int, error) {
	i := bytes.LastIndex(data, []byte("startxref"))
	if i < 0 {
		return 0, errors.New("startxref not found")
	}
	fields := bytes.Fields(data[i+len("startxref"):])
	if len(fields) == 0 {
		return 0, errors.New("startxref without offset")
	}
	off, err := strconv.Atoi(string(fields[0]))
	if err != nil {
		return 0, fmt.Errorf("startxref offset: %w", err)
	}
	return off, nil
}

// AddStandardFont makes one of the 14 standard fonts available to page i and
// returns its resource name.
func (d *Document) AddStandardFont(i int, baseFont string) (string, error) {
	if d.ctx == nil {
		return "", ErrClosed
	}
	pd, _, inh, err := d.ctx.PageDict(i+1, false)
	if err != nil {
		return "", fmt.Errorf("page %d: %w", i+1, err)
	}

	var res types.Dict
	if o, found := pd.Find("Resources"); found {
		if res, err = d.ctx.DereferenceDict(o); err != nil {
			return "", fmt.Errorf("page %d resources: %w", i+1, err)
		}
	}
	if res == nil {
		// own resources replace inherited ones as a whole
		if inh != nil && inh.Resources != nil {
			res = inh.Resources.Clone().(types.Dict)
		} else {
			res = types.Dict{}
		}
		pd["Resources"] = res
	}

	var fonts types.Dict
	if o, found := res.Find("Font"); found {
		if fonts, err = d.ctx.DereferenceDict(o); err != nil {
			return "", fmt.Errorf("page %d fonts: %w", i+1, err)
		}
	}
	if fonts == nil {
		fonts = types.Dict{}
		res["Font"] = fonts
	}

	fontRef, err := d.standardFontRef(baseFont)
	if err != nil {
		return "", err
	}
	for n := 0; ; n++ {
		name := "FPN"
		if n > 0 {
			name = fmt.Sprintf("FPN%d", n)
		}
		existing, found := fonts.Find(name)
		if !found {
			fonts[name] = fontRef
			d.dirty = true
			return name, nil
		}
		if ref, ok := existing.(types.IndirectRef); ok && ref.ObjectNumber == fontRef.ObjectNumber {
			return name, nil
		}
	}
}

func (d *Document) standardFontRef(baseFont string) (types.IndirectRef, error) {
	if ref, ok := d.stampFont[baseFont]; ok {
		return ref, nil
	}
	font := types.Dict{
		"Type":     types.Name("Font"),
		"Subtype":  types.Name("Type1"),
		"BaseFont": types.Name(baseFont),
	}
	if baseFont != "Symbol" && baseFont != "ZapfDingbats" {
		font["Encoding"] = types.Name("WinAnsiEncoding")
	}
	ref, err := d.ctx.IndRefForNewObject(font)
	if err != nil {
		return types.IndirectRef{}, err
	}
	if d.stampFont == nil {
		d.stampFont = map[string]types.IndirectRef{}
	}
	d.stampFont[baseFont] = *ref
	return *ref, nil
}

// AppendContent draws content on top of page i. The existing content is
// wrapped in q/Q so its graphics state does not leak into the overlay.
func (d *Document) AppendContent(i int, content []byte) error {
	if d.ctx == nil {
		return ErrClosed
	}
	pd, _, _, err := d.ctx.PageDict(i+1, false)
	if err != nil {
		return fmt.Errorf("page %d: %w", i+1, err)
	}
	pre, err := d.newContentStream([]byte("q\n"))
	if err != nil {
		return err
	}
	post, err := d.newContentStream(append([]byte("\nQ\n"), content...))
	if err != nil {
		return err
	}

	contents := types.Array{pre}
	if o, found := pd.Find("Contents"); found && o != nil {
		obj, err := d.ctx.Dereference(o)
		if err != nil {
			return fmt.Errorf("page %d contents: %w", i+1, err)
		}
		switch v := obj.(type) {
		case types.Array:
			contents = append(contents, v...)
		case types.StreamDict:
			contents = append(contents, o)
		}
	}
	contents = append(contents, post)
	pd["Contents"] = contents
	d.dirty = true
	return nil
}

func (d *Document) newContentStream(buf []byte) (types.IndirectRef, error) {
	sd, err := d.ctx.NewStreamDictForBuf(buf)
	if err != nil {
		return types.IndirectRef{}, err
	}
	if err := sd.Encode(); err != nil {
		return types.IndirectRef{}, err
	}
	ref, err := d.ctx.IndRefForNewObject(*sd)
	if err != nil {
		return types.IndirectRef{}, err
	}
	return *ref, nil
}
