package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	cfgpkg "github.com/local/pdfeditor/internal/config"
	"github.com/local/pdfeditor/internal/detect"
	logpkg "github.com/local/pdfeditor/internal/logger"
	"github.com/local/pdfeditor/internal/metrics"
	"github.com/local/pdfeditor/internal/orchestrator"
	"github.com/local/pdfeditor/internal/render"
	"github.com/local/pdfeditor/internal/report"
)

const (
	exitOK     = 0
	exitFailed = 2
)

// errRunFailed signals a completed run with failed files or run errors.
var errRunFailed = errors.New("run finished with failures")

func execute() int {
	if err := cfgpkg.LoadDotEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "pdfeditor: %v\n", err)
		return exitFailed
	}
	cmd := newRootCmd(cfgpkg.FromEnv())
	if err := cmd.Execute(); err != nil {
		if !errors.Is(err, errRunFailed) {
			fmt.Fprintf(os.Stderr, "pdfeditor: error: %v\n", err)
		}
		return exitFailed
	}
	return exitOK
}

// quadFlag is a comma-separated quad given on the command line.
type quadFlag struct {
	value *[4]float64
	set   *bool
	raw   string
}

func (q *quadFlag) String() string { return q.raw }
func (q *quadFlag) Type() string   { return "quad" }

func (q *quadFlag) Set(s string) error {
	v, err := cfgpkg.ParseQuad(s)
	if err != nil {
		return err
	}
	*q.value = v
	if q.set != nil {
		*q.set = true
	}
	q.raw = s
	return nil
}

func newRootCmd(cfg cfgpkg.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pdfeditor [path]",
		Short: "Remove empty pages from PDF files",
		Long: `pdfeditor scans a directory (or a single file) for PDFs, classifies every
page as empty or non-empty, and writes <name>.edited.pdf next to the source
(or into --out) with the empty pages removed. Outlines and named destinations
pointing at removed pages are pruned. Page numbers can optionally be stamped
onto the output pages. Sources are never modified.

Exit status is 2 when any file failed or the run recorded errors.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	f := cmd.Flags()
	f.StringVar(&cfg.Run.Path, "path", cfg.Run.Path, "directory or PDF file to process")
	f.StringVar(&cfg.Run.OutDir, "out", cfg.Run.OutDir, "directory for edited PDFs (default: next to each source)")
	f.StringVar(&cfg.Run.ReportDir, "report-dir", cfg.Run.ReportDir, "directory for run reports")
	f.BoolVar(&cfg.Run.Recursive, "recursive", cfg.Run.Recursive, "scan subdirectories")
	f.IntVar(&cfg.Run.Workers, "workers", cfg.Run.Workers, "files processed in parallel")
	f.BoolVar(&cfg.Run.WriteWhenUnchanged, "write-when-unchanged", cfg.Run.WriteWhenUnchanged, "write a copy even when no page is removed")
	f.BoolVar(&cfg.Run.DryRun, "dry-run", cfg.Run.DryRun, "classify and plan without writing")
	f.BoolVar(&cfg.Run.CaptureWarnings, "capture-warnings", cfg.Run.CaptureWarnings, "record PDF library warnings per file")
	f.BoolVar(&cfg.Run.StrictWarnings, "strict-warnings", cfg.Run.StrictWarnings, "fail a file when the PDF library reports warnings")
	f.BoolVar(&cfg.Run.Debug, "debug", cfg.Run.Debug, "write <name>.debug.json per file into the report dir")
	f.StringVar(&cfg.Run.MetricsFile, "metrics-file", cfg.Run.MetricsFile, "write prometheus metrics to this textfile")

	f.StringVar(&cfg.Detection.Mode, "mode", cfg.Detection.Mode, "detection mode: structural, render or both")
	f.BoolVar(&cfg.Detection.TreatAnnotationsAsEmpty, "treat-annotations-as-empty", cfg.Detection.TreatAnnotationsAsEmpty, "treat annotation-only pages as empty")
	f.Float64Var(&cfg.Detection.RenderDPI, "render-dpi", cfg.Detection.RenderDPI, "rendering resolution for pixel sampling")
	f.Float64Var(&cfg.Detection.InkThreshold, "ink-threshold", cfg.Detection.InkThreshold, "ink ratio at or below which a rendered page is empty")
	f.IntVar(&cfg.Detection.WhiteThreshold, "white-threshold", cfg.Detection.WhiteThreshold, "channel value at or above which a pixel is background")
	f.Var(&quadFlag{value: &cfg.Detection.SampleMargin}, "render-sample-margin", "margins excluded from sampling, inches: top,left,right,bottom")

	f.BoolVar(&cfg.Stamp.Enabled, "stamp-page-numbers", cfg.Stamp.Enabled, "stamp page numbers onto output pages")
	f.Var(&quadFlag{value: &cfg.Stamp.Box, set: &cfg.Stamp.HasBox}, "pagenum-box", "page-number box, inches from bottom-left: x,y,w,h")
	f.StringVar(&cfg.Stamp.Font, "pagenum-font", cfg.Stamp.Font, "standard PDF font for page numbers")
	f.Float64Var(&cfg.Stamp.Size, "pagenum-size", cfg.Stamp.Size, "page-number font size in points")
	f.StringVar(&cfg.Stamp.Format, "pagenum-format", cfg.Stamp.Format, "label format with {page}, {roman} or {ROMAN}")
	f.BoolVar(&cfg.Stamp.Force, "stamp-page-numbers-force", cfg.Stamp.Force, "stamp even when the box already holds ink")

	f.StringVar(&cfg.Logging.Level, "log-level", cfg.Logging.Level, "log level")
	f.BoolVar(&cfg.Logging.Pretty, "log-pretty", cfg.Logging.Pretty, "human-readable console logs")
	f.StringVar(&cfg.Logging.File, "log-file", cfg.Logging.File, "also write JSON logs to this rotating file")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		if len(args) == 1 {
			cfg.Run.Path = args[0]
		}
		return run(cmd.Context(), cfg)
	}
	return cmd
}

func run(parent context.Context, cfg cfgpkg.Config) error {
	if parent == nil {
		parent = context.Background()
	}
	_ = logpkg.Init(logpkg.Options{
		Level:      cfg.Logging.Level,
		Pretty:     cfg.Logging.Pretty,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
		Compress:   cfg.Logging.Compress,
	})
	defer logpkg.Close()
	metrics.Init()

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// nil when the binary was built without a renderer
	opener, _ := render.Default()

	var (
		runWarnings []string
		runErrors   []string
		results     []orchestrator.FileResult
		mode        detect.Mode
	)
	proc, err := orchestrator.New(cfg, opener)
	if err != nil {
		runErrors = append(runErrors, err.Error())
		log.Error().Err(err).Msg("invalid configuration")
	} else {
		mode = proc.Mode()
		runWarnings = append(runWarnings, proc.Warnings()...)
		paths, err := orchestrator.Discover(cfg.Run.Path, cfg.Run.Recursive)
		if err != nil {
			runErrors = append(runErrors, err.Error())
			log.Error().Err(err).Str("path", cfg.Run.Path).Msg("input discovery failed")
		} else {
			log.Info().Int("files", len(paths)).Str("mode", string(mode)).Int("workers", cfg.Run.Workers).Msg("run started")
			results = proc.Run(ctx, paths)
		}
	}
	if err := ctx.Err(); err != nil {
		runErrors = append(runErrors, fmt.Sprintf("run interrupted: %v", err))
	}

	rep := report.New(cfg, mode, results, runWarnings, runErrors)
	if cfg.Run.Debug {
		debugDir := filepath.Join(cfg.Run.ReportDir, "debug")
		for i := range rep.Files {
			path, err := report.WriteDebug(debugDir, rep.ID, rep.Files[i])
			if err != nil {
				log.Warn().Err(err).Str("file", rep.Files[i].InputPath).Msg("debug artifact not written")
				continue
			}
			rep.Files[i].DebugPath = path
		}
	}
	jsonPath, textPath, err := report.Write(rep, cfg.Run.ReportDir)
	if err != nil {
		log.Error().Err(err).Msg("failed to write run report")
		return err
	}

	if cfg.Run.MetricsFile != "" {
		if err := metrics.WriteTextfile(cfg.Run.MetricsFile); err != nil {
			log.Warn().Err(err).Str("path", cfg.Run.MetricsFile).Msg("metrics textfile not written")
		}
	}

	for _, e := range runErrors {
		fmt.Fprintf(os.Stderr, "pdfeditor: error: %s\n", e)
	}
	fmt.Printf("pdfeditor: processed %d file(s)\n", len(results))
	fmt.Printf("pdfeditor: reports written to %s and %s\n", jsonPath, textPath)

	log.Info().
		Str("run_id", rep.ID).
		Int("failed", rep.Totals.FilesFailed).
		Int("changed", rep.Totals.FilesChanged).
		Int("pages_removed", rep.Totals.PagesRemoved).
		Msg("run finished")
	if rep.Failed() {
		return errRunFailed
	}
	return nil
}
