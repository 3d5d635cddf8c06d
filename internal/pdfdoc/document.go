// Package pdfdoc wraps a pdfcpu context as a document handle scoped to one file.
package pdfdoc

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	"github.com/rs/zerolog/log"

	"github.com/local/pdfeditor/internal/filetype"
	"github.com/local/pdfeditor/internal/pdfwarn"
)

var (
	// ErrUnreadable is returned for corrupt or unsupported document structure.
	ErrUnreadable = errors.New("unreadable document")
	// ErrEncrypted is returned for password-protected documents.
	ErrEncrypted = errors.New("encrypted document not supported")
	// ErrNotPDF is returned when the content is not a PDF at all.
	ErrNotPDF = errors.New("not a PDF document")
	// ErrClosed is returned by operations on a closed document.
	ErrClosed = errors.New("document closed")
)

func init() {
	// keep pdfcpu from creating its user config dir
	model.ConfigPath = "disable"
}

// NewConfiguration returns the pdfcpu configuration used for every read and write.
func NewConfiguration() *model.Configuration {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return conf
}

// Document is an open PDF. It is not safe for concurrent use.
type Document struct {
	Name string

	ctx   *model.Context
	data  []byte
	dirty bool
	warn  *pdfwarn.Collector

	pageRefs  []types.IndirectRef
	stampFont map[string]types.IndirectRef
	info      map[string]types.Object // pinned, see PinInfo
}

// Open reads the file at path. The file is only read, never opened for writing.
func Open(path string, warn *pdfwarn.Collector) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}
	return OpenBytes(filepath.Base(path), data, warn)
}

// OpenBytes parses data as a PDF document.
func OpenBytes(name string, data []byte, warn *pdfwarn.Collector) (*Document, error) {
	if !filetype.IsPDF(data) {
		return nil, ErrNotPDF
	}
	ctx, err := api.ReadContext(bytes.NewReader(data), NewConfiguration())
	if err != nil {
		return nil, classifyReadError(err)
	}
	if err := ctx.EnsurePageCount(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}
	if err := api.ValidateContext(ctx); err != nil {
		// relaxed validation failures are tolerated; page access decides
		warn.Addf(pdfwarn.SourceLibrary, "validation: %v", err)
		log.Debug().Str("file", name).Err(err).Msg("relaxed validation reported issues")
	}
	return &Document{Name: name, ctx: ctx, data: data, warn: warn}, nil
}

func classifyReadError(err error) error {
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "password") || strings.Contains(msg, "encrypt") {
		return fmt.Errorf("%w: %v", ErrEncrypted, err)
	}
	return fmt.Errorf("%w: %v", ErrUnreadable, err)
}

// PageCount returns the number of pages.
func (d *Document) PageCount() int {
	if d.ctx == nil {
		return 0
	}
	return d.ctx.PageCount
}

// Bytes serializes the document. Unmodified documents return their source bytes.
func (d *Document) Bytes() ([]byte, error) {
	if d.ctx == nil {
		return nil, ErrClosed
	}
	if !d.dirty {
		return d.data, nil
	}
	var buf bytes.Buffer
	if err := api.WriteContext(d.ctx, &buf); err != nil {
		return nil, fmt.Errorf("write document: %w", err)
	}
	// a written context is not reusable; reload from the serialized form
	data := buf.Bytes()
	ctx, err := reload(data)
	if err != nil {
		return nil, err
	}
	if d.info != nil {
		if data, err = pinInfo(data, ctx, d.info); err != nil {
			return nil, fmt.Errorf("restore metadata: %w", err)
		}
		if ctx, err = reload(data); err != nil {
			return nil, err
		}
	}
	d.ctx = ctx
	d.data = data
	d.dirty = false
	d.pageRefs = nil
	d.stampFont = nil
	return d.data, nil
}

func reload(data []byte) (*model.Context, error) {
	ctx, err := api.ReadContext(bytes.NewReader(data), NewConfiguration())
	if err != nil {
		return nil, fmt.Errorf("reload document: %w", err)
	}
	if err := ctx.EnsurePageCount(); err != nil {
		return nil, fmt.Errorf("reload document: %w", err)
	}
	return ctx, nil
}

// WriteExclusive creates path and writes the document to it. It fails with an
// error matching fs.ErrExist if path already exists.
func (d *Document) WriteExclusive(path string) error {
	b, err := d.Bytes()
	if err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(b); err != nil {
		f.Close()
		os.Remove(path)
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return fmt.Errorf("close %s: %w", path, err)
	}
	return nil
}

// WithoutPages returns a new document with the given 0-based pages removed.
// The receiver is left untouched.
func (d *Document) WithoutPages(pages []int) (*Document, error) {
	src, err := d.Bytes()
	if err != nil {
		return nil, err
	}
	sel := make([]string, 0, len(pages))
	for _, p := range pages {
		if p < 0 || p >= d.PageCount() {
			return nil, fmt.Errorf("page index %d out of range", p)
		}
		sel = append(sel, strconv.Itoa(p+1))
	}
	var buf bytes.Buffer
	if err := api.RemovePages(bytes.NewReader(src), &buf, sel, NewConfiguration()); err != nil {
		return nil, fmt.Errorf("remove pages: %w", err)
	}
	return OpenBytes(d.Name, buf.Bytes(), d.warn)
}

// Clone returns an independent handle on the same serialized content.
func (d *Document) Clone() (*Document, error) {
	b, err := d.Bytes()
	if err != nil {
		return nil, err
	}
	return OpenBytes(d.Name, b, d.warn)
}

// Close releases the document. It is safe to call more than once.
func (d *Document) Close() error {
	d.ctx = nil
	d.data = nil
	d.pageRefs = nil
	d.stampFont = nil
	return nil
}

// PDFVersion returns the header version of the document.
func (d *Document) PDFVersion() string {
	if d.ctx == nil || d.ctx.HeaderVersion == nil {
		return ""
	}
	return d.ctx.HeaderVersion.String()
}

func (d *Document) refs() ([]types.IndirectRef, error) {
	if d.ctx == nil {
		return nil, ErrClosed
	}
	if d.pageRefs != nil {
		return d.pageRefs, nil
	}
	refs := make([]types.IndirectRef, 0, d.ctx.PageCount)
	for i := 1; i <= d.ctx.PageCount; i++ {
		_, ref, _, err := d.ctx.PageDict(i, false)
		if err != nil {
			return nil, fmt.Errorf("%w: page %d: %v", ErrUnreadable, i, err)
		}
		if ref == nil {
			return nil, fmt.Errorf("%w: page %d is not an indirect object", ErrUnreadable, i)
		}
		refs = append(refs, *ref)
	}
	d.pageRefs = refs
	return refs, nil
}
