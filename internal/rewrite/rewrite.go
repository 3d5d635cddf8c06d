// Package rewrite materializes an edit plan as a new document. The source
// file is never opened for writing.
package rewrite

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/local/pdfeditor/internal/pdfdoc"
	"github.com/local/pdfeditor/internal/plan"
)

// ErrNothingRetained is returned when a plan removes every page.
var ErrNothingRetained = errors.New("every page would be removed")

// maxSuffix bounds the collision scan.
const maxSuffix = 100000

// Status is the rewrite outcome.
type Status string

const (
	StatusChanged   Status = "changed"
	StatusUnchanged Status = "unchanged"
	StatusFailed    Status = "failed"
)

// Options control a single rewrite.
type Options struct {
	// OutDir receives the output file. Empty means the source's directory.
	OutDir string
	// WriteWhenUnchanged writes a copy even when the plan removes nothing.
	WriteWhenUnchanged bool
	// Finish runs on the output document before it is written.
	Finish func(out *pdfdoc.Document) error
}

// Outcome reports what the rewrite did.
type Outcome struct {
	Status              Status        `json:"status"`
	OutputPath          string        `json:"output_path,omitempty"`
	PagesRemoved        int           `json:"pages_removed"`
	PagesOutput         int           `json:"pages_output"`
	OutlinesCopied      int           `json:"outlines_copied"`
	OutlinesDropped     int           `json:"outlines_dropped"`
	DestinationsDropped int           `json:"destinations_dropped"`
	OutlineLinksLost    int           `json:"outline_links_lost"`
	Warnings            []string      `json:"warnings,omitempty"`
	Took                time.Duration `json:"-"`
	Err                 error         `json:"-"`
}

// Build returns a new document holding exactly the retained pages with the
// pruned references attached and the source metadata copied. src is not
// modified. A plan that removes nothing yields an independent copy.
func Build(src *pdfdoc.Document, p *plan.Plan) (*pdfdoc.Document, error) {
	if p.PageCount != src.PageCount() {
		return nil, fmt.Errorf("plan covers %d pages, document has %d", p.PageCount, src.PageCount())
	}
	if len(p.Retained) == 0 {
		return nil, ErrNothingRetained
	}
	info, err := src.Info()
	if err != nil {
		return nil, err
	}
	if p.Unchanged() {
		out, err := src.Clone()
		if err != nil {
			return nil, err
		}
		// the copy stays byte-identical unless a finisher modifies it
		out.PinInfo(info)
		return out, nil
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}

	out, err := src.WithoutPages(p.Removed)
	if err != nil {
		return nil, err
	}
	if out.PageCount() != len(p.Retained) {
		out.Close()
		return nil, fmt.Errorf("output has %d pages, expected %d", out.PageCount(), len(p.Retained))
	}
	if err := out.SetReferences(p.References); err != nil {
		out.Close()
		return nil, fmt.Errorf("attach references: %w", err)
	}
	if err := out.SetInfo(info); err != nil {
		out.Close()
		return nil, fmt.Errorf("copy metadata: %w", err)
	}
	return out, nil
}

// OutputPath returns the n-th candidate output path for srcPath: n == 0
// gives <stem>.edited.pdf, n > 0 gives <stem>.edited.<n>.pdf.
func OutputPath(srcPath, outDir string, n int) string {
	if outDir == "" {
		outDir = filepath.Dir(srcPath)
	}
	base := filepath.Base(srcPath)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if n == 0 {
		return filepath.Join(outDir, stem+".edited.pdf")
	}
	return filepath.Join(outDir, stem+".edited."+strconv.Itoa(n)+".pdf")
}

// Commit writes doc to the first free output path for srcPath. Paths are
// claimed with an exclusive create so an existing file is never replaced.
func Commit(doc *pdfdoc.Document, srcPath, outDir string) (string, []string, error) {
	if outDir != "" {
		if err := os.MkdirAll(outDir, 0o755); err != nil {
			return "", nil, fmt.Errorf("create output dir: %w", err)
		}
	}
	srcAbs, _ := filepath.Abs(srcPath)
	for n := 0; n <= maxSuffix; n++ {
		candidate := OutputPath(srcPath, outDir, n)
		if abs, _ := filepath.Abs(candidate); abs == srcAbs {
			continue
		}
		err := doc.WriteExclusive(candidate)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return "", nil, err
		}
		var warnings []string
		if n > 0 {
			warnings = append(warnings, fmt.Sprintf("Output path already existed; wrote to '%s' instead.", filepath.Base(candidate)))
		}
		return candidate, warnings, nil
	}
	return "", nil, fmt.Errorf("no free output name for %s", filepath.Base(srcPath))
}

// Rewrite applies p to src and writes the result. Failures are reported in
// the outcome rather than returned.
func Rewrite(src *pdfdoc.Document, p *plan.Plan, srcPath string, opts Options) Outcome {
	start := time.Now()
	o := Outcome{
		Status:              StatusUnchanged,
		PagesRemoved:        len(p.Removed),
		PagesOutput:         p.PageCount,
		OutlinesCopied:      p.OutlinesKept,
		OutlinesDropped:     p.OutlinesDropped,
		DestinationsDropped: p.DestinationsDropped,
		OutlineLinksLost:    p.OutlineLinksLost,
	}
	if p.Unchanged() && !opts.WriteWhenUnchanged {
		return o
	}
	fail := func(err error) Outcome {
		o.Status = StatusFailed
		o.OutputPath = ""
		o.PagesOutput = 0
		o.Err = err
		o.Took = time.Since(start)
		return o
	}

	out, err := Build(src, p)
	if err != nil {
		return fail(err)
	}
	defer out.Close()

	if opts.Finish != nil {
		if err := opts.Finish(out); err != nil {
			return fail(err)
		}
	}
	path, warnings, err := Commit(out, srcPath, opts.OutDir)
	if err != nil {
		return fail(err)
	}

	if !p.Unchanged() {
		o.Status = StatusChanged
		o.PagesOutput = len(p.Retained)
	}
	o.OutputPath = path
	o.Warnings = append(o.Warnings, warnings...)
	if p.OutlinesDropped > 0 {
		o.Warnings = append(o.Warnings, fmt.Sprintf("Dropped %d outline item(s) that referenced removed pages.", p.OutlinesDropped))
	}
	if n := p.DestinationsDropped - p.DestinationsUnresolved; n > 0 {
		o.Warnings = append(o.Warnings, fmt.Sprintf("Dropped %d named destination(s) that referenced removed pages.", n))
	}
	if p.DestinationsUnresolved > 0 {
		o.Warnings = append(o.Warnings, fmt.Sprintf("Dropped %d named destination(s) that did not resolve to a page.", p.DestinationsUnresolved))
	}
	if p.OutlineLinksLost > 0 {
		o.Warnings = append(o.Warnings, fmt.Sprintf("Kept %d outline item(s) without their link, which could not be resolved or carried over.", p.OutlineLinksLost))
	}
	o.Took = time.Since(start)

	log.Debug().
		Str("file", filepath.Base(srcPath)).
		Str("output", path).
		Int("pages_removed", o.PagesRemoved).
		Int("pages_output", o.PagesOutput).
		Dur("took", o.Took).
		Msg("document rewritten")
	return o
}
