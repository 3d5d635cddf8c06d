package orchestrator

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/local/pdfeditor/internal/config"
	"github.com/local/pdfeditor/internal/detect"
	"github.com/local/pdfeditor/internal/metrics"
	"github.com/local/pdfeditor/internal/pdfdoc"
	"github.com/local/pdfeditor/internal/pdfwarn"
	"github.com/local/pdfeditor/internal/plan"
	"github.com/local/pdfeditor/internal/refgraph"
	"github.com/local/pdfeditor/internal/render"
	"github.com/local/pdfeditor/internal/rewrite"
	"github.com/local/pdfeditor/internal/stamp"
)

// File statuses.
const (
	StatusChanged   = "changed"
	StatusUnchanged = "unchanged"
	StatusDryRun    = "dry_run"
	StatusFailed    = "failed"
)

// StampSummary reports page-number stamping for one file.
type StampSummary struct {
	Enabled  bool            `json:"enabled"`
	Applied  int             `json:"applied_pages"`
	Forced   int             `json:"forced_pages"`
	Skipped  int             `json:"skipped_pages"`
	Outcomes []stamp.Outcome `json:"outcomes,omitempty"`
}

// FileResult is everything recorded about one input file.
type FileResult struct {
	InputPath           string                    `json:"input_path"`
	OutputPath          string                    `json:"output_path,omitempty"`
	PDFVersion          string                    `json:"pdf_version,omitempty"`
	Status              string                    `json:"status"`
	ErrorCode           string                    `json:"error_code,omitempty"`
	PagesOriginal       int                       `json:"pages_original"`
	PagesRemoved        int                       `json:"pages_removed"`
	PagesOutput         int                       `json:"pages_output"`
	Summary             detect.Summary            `json:"decisions_summary"`
	Decisions           []detect.CombinedDecision `json:"page_decisions"`
	OutlinesCopied      int                       `json:"outlines_copied"`
	OutlinesDropped     int                       `json:"outlines_dropped"`
	DestinationsDropped int                       `json:"destinations_dropped"`
	OutlineLinksLost    int                       `json:"outline_links_lost"`
	Stamping            StampSummary              `json:"stamping"`
	LibraryWarnings     []pdfwarn.Event           `json:"library_warnings,omitempty"`
	RewriteWarnings     []pdfwarn.Event           `json:"rewrite_warnings,omitempty"`
	Warnings            []string                  `json:"warnings"`
	Errors              []string                  `json:"errors"`
	Timings             map[string]float64        `json:"timings"`
	DebugPath           string                    `json:"debug_path,omitempty"`
}

// Failed reports whether the file failed.
func (r *FileResult) Failed() bool { return r.Status == StatusFailed }

func (r *FileResult) fail(err error) {
	r.Status = StatusFailed
	r.ErrorCode = classify(err)
	r.OutputPath = ""
	r.PagesOutput = 0
	r.Errors = append(r.Errors, fmt.Sprintf("%s: %v", r.ErrorCode, err))
}

// Processor runs the per-file pipeline with one run configuration.
type Processor struct {
	cfg      config.Config
	mode     detect.Mode
	opener   render.Opener
	warnings []string
}

// New resolves the detection mode against the available renderer. opener
// may be nil when no renderer is available. Configuration errors are fatal
// for the run.
func New(cfg config.Config, opener render.Opener) (*Processor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	requested, err := detect.ParseMode(cfg.Detection.Mode)
	if err != nil {
		return nil, err
	}
	mode, warning, err := detect.ResolveMode(requested, opener != nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrInvalid, err)
	}
	p := &Processor{cfg: cfg, mode: mode, opener: opener}
	if warning != "" {
		p.warnings = append(p.warnings, warning)
		log.Warn().Str("requested", string(requested)).Str("mode", string(mode)).Msg(warning)
	}
	return p, nil
}

// Mode returns the effective detection mode.
func (p *Processor) Mode() detect.Mode { return p.mode }

// Warnings returns run-level warnings raised while resolving configuration.
func (p *Processor) Warnings() []string { return p.warnings }

// ProcessFile classifies, plans and rewrites one file. Errors are recorded
// in the result and never returned.
func (p *Processor) ProcessFile(ctx context.Context, path string) (res FileResult) {
	start := time.Now()
	res = FileResult{
		InputPath: path,
		Status:    StatusFailed,
		Stamping:  StampSummary{Enabled: p.cfg.Stamp.Enabled},
		Warnings:  []string{},
		Errors:    []string{},
		Timings:   map[string]float64{},
	}
	defer func() {
		took := time.Since(start)
		res.Timings["total_seconds"] = took.Seconds()
		metrics.ObserveFile(res.Status, took)
		ev := log.Info()
		if res.Failed() {
			ev = log.Warn().Str("error_code", res.ErrorCode)
		}
		ev.Str("file", filepath.Base(path)).
			Str("status", res.Status).
			Int("pages_original", res.PagesOriginal).
			Int("pages_removed", res.PagesRemoved).
			Dur("took", took).
			Msg("file processed")
	}()

	if err := ctx.Err(); err != nil {
		res.fail(err)
		return res
	}

	collector := pdfwarn.NewCollector()
	release := func() {}
	if p.cfg.Run.CaptureWarnings || p.cfg.Run.StrictWarnings {
		release = pdfwarn.Capture(collector)
	}
	defer func() {
		release()
		res.LibraryWarnings = collector.Events()
		res.RewriteWarnings = collector.Late()
		metrics.AddLibraryWarnings(len(res.LibraryWarnings) + len(res.RewriteWarnings))
	}()

	doc, err := pdfdoc.Open(path, collector)
	if err != nil {
		res.fail(err)
		return res
	}
	defer doc.Close()
	res.PagesOriginal = doc.PageCount()
	res.PDFVersion = doc.PDFVersion()

	detectStart := time.Now()
	decisions, err := p.classify(doc)
	if err != nil {
		res.fail(err)
		return res
	}
	res.Decisions = decisions
	res.Summary = detect.Summarize(decisions)
	res.Timings["detection_seconds"] = time.Since(detectStart).Seconds()
	for _, d := range decisions {
		metrics.IncPage(string(d.Reason), d.IsEmpty)
	}

	graph, err := doc.ReferenceGraph()
	if err != nil {
		res.Warnings = append(res.Warnings, fmt.Sprintf("Dropped all outlines due to outline read error: %v", err))
		graph = refgraph.New()
	}

	// Re-validating the output reports through the same hooks; those events
	// go to RewriteWarnings and never count against the source.
	collector.Seal()
	if p.cfg.Run.StrictWarnings && collector.Len() > 0 {
		res.fail(&StrictWarningError{Count: collector.Len()})
		return res
	}
	pl, err := plan.Build(decisions, graph)
	if err != nil {
		res.fail(err)
		return res
	}
	res.PagesRemoved = len(pl.Removed)
	res.PagesOutput = len(pl.Retained)
	res.OutlinesCopied = pl.OutlinesKept
	res.OutlinesDropped = pl.OutlinesDropped
	res.DestinationsDropped = pl.DestinationsDropped
	res.OutlineLinksLost = pl.OutlineLinksLost

	if len(pl.Retained) == 0 {
		res.fail(rewrite.ErrNothingRetained)
		return res
	}
	if p.cfg.Run.DryRun {
		res.Status = StatusUnchanged
		if !pl.Unchanged() {
			res.Status = StatusDryRun
		}
		return res
	}

	opts := rewrite.Options{
		OutDir:             p.cfg.Run.OutDir,
		WriteWhenUnchanged: p.cfg.Run.WriteWhenUnchanged,
	}
	if p.cfg.Stamp.Enabled {
		opts.Finish = func(out *pdfdoc.Document) error {
			return p.stampPages(out, &res.Stamping)
		}
	}

	writeStart := time.Now()
	outcome := rewrite.Rewrite(doc, pl, path, opts)
	res.Warnings = append(res.Warnings, outcome.Warnings...)
	if outcome.Status == rewrite.StatusFailed {
		res.fail(outcome.Err)
		return res
	}
	if outcome.OutputPath != "" {
		res.Timings["write_seconds"] = time.Since(writeStart).Seconds()
	}
	res.OutputPath = outcome.OutputPath
	res.PagesOutput = outcome.PagesOutput
	res.Status = StatusUnchanged
	if outcome.Status == rewrite.StatusChanged {
		res.Status = StatusChanged
		metrics.AddPagesRemoved(outcome.PagesRemoved)
		metrics.AddOutlinesDropped(outcome.OutlinesDropped)
		metrics.AddDestinationsDropped(outcome.DestinationsDropped)
		metrics.AddOutlineLinksLost(outcome.OutlineLinksLost)
	}
	return res
}

// classify runs the configured detectors over every page of doc.
func (p *Processor) classify(doc *pdfdoc.Document) ([]detect.CombinedDecision, error) {
	n := doc.PageCount()
	structural := make([]*detect.PageDecision, n)
	sopts := detect.StructuralOptions{TreatAnnotationsAsEmpty: p.cfg.Detection.TreatAnnotationsAsEmpty}
	for i := 0; i < n; i++ {
		page, err := doc.Page(i)
		var d detect.PageDecision
		if err != nil {
			d = detect.PageDecision{
				PageIndex: i,
				Reason:    detect.ReasonContentParseError,
				Details:   map[string]any{"error": err.Error()},
			}
		} else {
			d = detect.ClassifyStructural(page, sopts)
		}
		structural[i] = &d
	}

	var rendered []*detect.PageDecision
	if p.mode.NeedsRender() {
		rendered = p.classifyRender(doc)
	}

	out := make([]detect.CombinedDecision, n)
	for i := 0; i < n; i++ {
		var r *detect.PageDecision
		if rendered != nil {
			r = rendered[i]
		}
		c, err := detect.Combine(structural[i], r, p.mode)
		if err != nil {
			return nil, err
		}
		log.Debug().
			Str("file", doc.Name).
			Int("page", i+1).
			Bool("empty", c.IsEmpty).
			Str("reason", string(c.Reason)).
			Msg("page classified")
		out[i] = c
	}
	return out, nil
}

// classifyRender rasterizes every page once. Pages that cannot be rendered
// get a conservative non-empty decision.
func (p *Processor) classifyRender(doc *pdfdoc.Document) []*detect.PageDecision {
	n := doc.PageCount()
	out := make([]*detect.PageDecision, n)
	failAll := func(err error) []*detect.PageDecision {
		for i := range out {
			d := detect.RenderFailed(i, err)
			out[i] = &d
		}
		return out
	}

	data, err := doc.Bytes()
	if err != nil {
		return failAll(err)
	}
	r, err := p.opener.OpenBytes(data)
	if err != nil {
		return failAll(err)
	}
	defer r.Close()

	opts := detect.RenderOptions{
		Region: detect.SampleRegion{
			Top:    p.cfg.Detection.SampleMargin[0],
			Left:   p.cfg.Detection.SampleMargin[1],
			Right:  p.cfg.Detection.SampleMargin[2],
			Bottom: p.cfg.Detection.SampleMargin[3],
		},
		WhiteThreshold: uint8(p.cfg.Detection.WhiteThreshold),
		InkThreshold:   p.cfg.Detection.InkThreshold,
	}
	for i := 0; i < n; i++ {
		img, err := render.Page(r, i, p.cfg.Detection.RenderDPI)
		var d detect.PageDecision
		if err != nil {
			d = detect.RenderFailed(i, err)
		} else {
			d = detect.ClassifyRender(detect.RenderedPage{Index: i, Image: img, DPI: p.cfg.Detection.RenderDPI}, opts)
		}
		out[i] = &d
	}
	return out
}

// stampPages runs the stamping pass on the output document.
func (p *Processor) stampPages(out *pdfdoc.Document, summary *StampSummary) error {
	if p.opener == nil {
		return &StampError{Err: render.ErrUnavailable}
	}
	spec := stamp.Spec{
		Box: stamp.Box{
			X: p.cfg.Stamp.Box[0],
			Y: p.cfg.Stamp.Box[1],
			W: p.cfg.Stamp.Box[2],
			H: p.cfg.Stamp.Box[3],
		},
		Font:   p.cfg.Stamp.Font,
		Size:   p.cfg.Stamp.Size,
		Format: p.cfg.Stamp.Format,
		Force:  p.cfg.Stamp.Force,
	}
	params := stamp.Params{
		DPI:            p.cfg.Detection.RenderDPI,
		WhiteThreshold: uint8(p.cfg.Detection.WhiteThreshold),
		InkThreshold:   p.cfg.Detection.InkThreshold,
	}
	outcomes, err := stamp.Stamp(out, p.opener, spec, params)
	summary.Outcomes = outcomes
	summary.Applied, summary.Forced, summary.Skipped = stamp.Counts(outcomes)
	for _, o := range outcomes {
		metrics.IncStamp(string(o.Action))
	}
	if err != nil {
		return &StampError{Err: err}
	}
	return nil
}

// Run processes paths with the configured number of workers. Results keep
// the order of paths regardless of completion order.
func (p *Processor) Run(ctx context.Context, paths []string) []FileResult {
	results := make([]FileResult, len(paths))
	workers := p.cfg.Run.Workers
	if workers <= 0 {
		workers = 1
	}
	if workers > len(paths) {
		workers = len(paths)
	}

	jobs := make(chan int)
	done := make(chan struct{})
	for w := 0; w < workers; w++ {
		go func(id int) {
			defer func() { done <- struct{}{} }()
			for i := range jobs {
				log.Debug().Int("worker", id).Str("file", paths[i]).Msg("processing file")
				results[i] = p.ProcessFile(ctx, paths[i])
			}
		}(w)
	}
	for i := range paths {
		jobs <- i
	}
	close(jobs)
	for w := 0; w < workers; w++ {
		<-done
	}
	return results
}
