// Package report writes run reports and per-file debug artifacts.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/rs/zerolog/log"

	"github.com/local/pdfeditor/internal/config"
	"github.com/local/pdfeditor/internal/detect"
	"github.com/local/pdfeditor/internal/orchestrator"
	"github.com/local/pdfeditor/internal/render"
)

const fitzModule = "github.com/gen2brain/go-fitz"

// Totals aggregates file results.
type Totals struct {
	FilesFound      int `json:"files_found"`
	FilesProcessed  int `json:"files_processed"`
	FilesFailed     int `json:"files_failed"`
	FilesWritten    int `json:"files_written"`
	FilesChanged    int `json:"files_changed"`
	FilesUnchanged  int `json:"files_unchanged"`
	FilesDryRun     int `json:"files_dry_run"`
	PagesOriginal   int `json:"pages_original_total"`
	PagesRemoved    int `json:"pages_removed_total"`
	PagesOutput     int `json:"pages_output_total"`
	StructuralEmpty int `json:"structural_empty_pages"`
	RenderEmpty     int `json:"render_empty_pages"`
	BothEmpty       int `json:"both_empty_pages"`
	LibraryWarnings int `json:"library_warnings_total"`
	PagesStamped    int `json:"pages_stamped_total"`
	StampsSkipped   int `json:"stamps_skipped_total"`
}

// Environment describes where the run happened.
type Environment struct {
	User          string `json:"user"`
	Host          string `json:"host"`
	GoVersion     string `json:"go_version"`
	PdfcpuVersion string `json:"pdfcpu_version"`
	RenderBackend string `json:"render_backend"`
}

// Run is the complete run report.
type Run struct {
	ID             string                    `json:"run_id"`
	TimestampLocal time.Time                 `json:"timestamp_local"`
	TimestampUTC   time.Time                 `json:"timestamp_utc"`
	Environment    Environment               `json:"environment"`
	EffectiveMode  detect.Mode               `json:"effective_mode"`
	Config         config.Config             `json:"config"`
	Files          []orchestrator.FileResult `json:"files"`
	Totals         Totals                    `json:"totals"`
	Warnings       []string                  `json:"warnings"`
	Errors         []string                  `json:"errors"`
}

// New assembles a run report stamped with the current time.
func New(cfg config.Config, mode detect.Mode, files []orchestrator.FileResult, warnings, errs []string) *Run {
	now := time.Now()
	if files == nil {
		files = []orchestrator.FileResult{}
	}
	return &Run{
		ID:             uuid.NewString(),
		TimestampLocal: now,
		TimestampUTC:   now.UTC(),
		Environment:    CurrentEnvironment(),
		EffectiveMode:  mode,
		Config:         cfg,
		Files:          files,
		Totals:         Tally(files),
		Warnings:       append([]string{}, warnings...),
		Errors:         append([]string{}, errs...),
	}
}

// Failed reports whether any file failed or the run recorded errors.
func (r *Run) Failed() bool {
	return r.Totals.FilesFailed > 0 || len(r.Errors) > 0
}

// Tally computes totals over files.
func Tally(files []orchestrator.FileResult) Totals {
	t := Totals{FilesFound: len(files)}
	for _, f := range files {
		switch f.Status {
		case orchestrator.StatusFailed:
			t.FilesFailed++
		case orchestrator.StatusChanged:
			t.FilesChanged++
		case orchestrator.StatusUnchanged:
			t.FilesUnchanged++
		case orchestrator.StatusDryRun:
			t.FilesDryRun++
		}
		if f.Status != orchestrator.StatusFailed {
			t.FilesProcessed++
		}
		if f.OutputPath != "" {
			t.FilesWritten++
		}
		t.PagesOriginal += f.PagesOriginal
		t.PagesRemoved += f.PagesRemoved
		t.PagesOutput += f.PagesOutput
		t.StructuralEmpty += f.Summary.StructuralEmpty
		t.RenderEmpty += f.Summary.RenderEmpty
		t.BothEmpty += f.Summary.BothEmpty
		t.LibraryWarnings += len(f.LibraryWarnings)
		t.PagesStamped += f.Stamping.Applied + f.Stamping.Forced
		t.StampsSkipped += f.Stamping.Skipped
	}
	return t
}

// CurrentEnvironment captures user, host and library versions.
func CurrentEnvironment() Environment {
	env := Environment{
		GoVersion:     runtime.Version(),
		PdfcpuVersion: model.VersionStr,
		RenderBackend: "not available",
	}
	if u, err := user.Current(); err == nil {
		env.User = u.Username
	}
	if h, err := os.Hostname(); err == nil {
		env.Host = h
	}
	if render.Available() {
		env.RenderBackend = "go-fitz " + moduleVersion(fitzModule)
	}
	return env
}

func moduleVersion(path string) string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "(unknown)"
	}
	for _, dep := range info.Deps {
		if dep.Path == path {
			return dep.Version
		}
	}
	return "(unknown)"
}

// Write stores the run as run_report_<ts>.json and run_report_<ts>.txt in
// dir and returns both paths.
func Write(r *Run, dir string) (jsonPath, textPath string, err error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", "", fmt.Errorf("create report dir: %w", err)
	}
	stamp := r.TimestampLocal.Format("20060102_150405")
	jsonPath = filepath.Join(dir, "run_report_"+stamp+".json")
	textPath = filepath.Join(dir, "run_report_"+stamp+".txt")

	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", "", fmt.Errorf("encode run report: %w", err)
	}
	if err := os.WriteFile(jsonPath, append(data, '\n'), 0o644); err != nil {
		return "", "", fmt.Errorf("write run report: %w", err)
	}
	if err := os.WriteFile(textPath, []byte(Text(r)), 0o644); err != nil {
		return "", "", fmt.Errorf("write run report: %w", err)
	}
	log.Info().Str("run_id", r.ID).Str("json", jsonPath).Str("text", textPath).Msg("run report written")
	return jsonPath, textPath, nil
}

// Text renders the human-readable report.
func Text(r *Run) string {
	var b strings.Builder
	line := func(format string, args ...any) {
		fmt.Fprintf(&b, format, args...)
		b.WriteByte('\n')
	}
	cfg := r.Config

	line("PDFEditor Run Report")
	line("")
	line("Run ID:            %s", r.ID)
	line("Timestamp (local): %s", r.TimestampLocal.Format(time.RFC3339))
	line("Timestamp (UTC):   %s", r.TimestampUTC.Format(time.RFC3339))
	line("User:              %s", r.Environment.User)
	line("Host:              %s", r.Environment.Host)
	line("Go:                %s", r.Environment.GoVersion)
	line("pdfcpu:            %s", r.Environment.PdfcpuVersion)
	line("Renderer:          %s", r.Environment.RenderBackend)
	line("")
	line("Config:")
	line("  path=%s", cfg.Run.Path)
	line("  out=%s", cfg.Run.OutDir)
	line("  report_dir=%s", cfg.Run.ReportDir)
	line("  mode=%s", cfg.Detection.Mode)
	line("  effective_mode=%s", r.EffectiveMode)
	line("  render_dpi=%v", cfg.Detection.RenderDPI)
	line("  ink_threshold=%v", cfg.Detection.InkThreshold)
	line("  white_threshold=%d", cfg.Detection.WhiteThreshold)
	line("  render_sample_margin=%v", cfg.Detection.SampleMargin)
	line("  treat_annotations_as_empty=%t", cfg.Detection.TreatAnnotationsAsEmpty)
	line("  recursive=%t", cfg.Run.Recursive)
	line("  workers=%d", cfg.Run.Workers)
	line("  write_when_unchanged=%t", cfg.Run.WriteWhenUnchanged)
	line("  dry_run=%t", cfg.Run.DryRun)
	line("  strict_warnings=%t", cfg.Run.StrictWarnings)
	line("  stamp_page_numbers=%t", cfg.Stamp.Enabled)
	if cfg.Stamp.Enabled {
		line("  pagenum_box=%v", cfg.Stamp.Box)
		line("  pagenum_font=%s size=%v format=%s force=%t", cfg.Stamp.Font, cfg.Stamp.Size, cfg.Stamp.Format, cfg.Stamp.Force)
	}
	line("")
	line("Totals:")
	t := r.Totals
	line("  files_found=%d", t.FilesFound)
	line("  files_processed=%d", t.FilesProcessed)
	line("  files_failed=%d", t.FilesFailed)
	line("  files_written=%d", t.FilesWritten)
	line("  files_changed=%d", t.FilesChanged)
	line("  files_unchanged=%d", t.FilesUnchanged)
	line("  files_dry_run=%d", t.FilesDryRun)
	line("  pages_original_total=%d", t.PagesOriginal)
	line("  pages_removed_total=%d", t.PagesRemoved)
	line("  pages_output_total=%d", t.PagesOutput)
	line("  structural_empty_pages=%d", t.StructuralEmpty)
	line("  render_empty_pages=%d", t.RenderEmpty)
	line("  both_empty_pages=%d", t.BothEmpty)
	line("  library_warnings_total=%d", t.LibraryWarnings)
	if cfg.Stamp.Enabled {
		line("  pages_stamped_total=%d", t.PagesStamped)
		line("  stamps_skipped_total=%d", t.StampsSkipped)
	}

	if len(r.Warnings) > 0 {
		line("")
		line("Run warnings:")
		for _, w := range r.Warnings {
			line("  - %s", w)
		}
	}
	if len(r.Errors) > 0 {
		line("")
		line("Run errors:")
		for _, e := range r.Errors {
			line("  - %s", e)
		}
	}

	line("")
	line("Files:")
	if len(r.Files) == 0 {
		line("(no PDF files found)")
		return b.String()
	}
	line("%-10s %7s %7s input", "status", "removed", "output")
	for _, f := range r.Files {
		line("%-10s %7d %7d %s", f.Status, f.PagesRemoved, f.PagesOutput, f.InputPath)
	}
	for _, f := range r.Files {
		line("")
		line("[%s] %s", f.Status, f.InputPath)
		out := f.OutputPath
		if out == "" {
			out = "-"
		}
		line("  output=%s", out)
		line("  pages_original=%d pages_removed=%d pages_output=%d", f.PagesOriginal, f.PagesRemoved, f.PagesOutput)
		line("  empty=%d non_empty=%d", f.Summary.Empty, f.Summary.NonEmpty)
		line("  library_warnings=%d", len(f.LibraryWarnings))
		if f.DebugPath != "" {
			line("  debug=%s", f.DebugPath)
		}
		for _, w := range f.Warnings {
			line("  warning: %s", w)
		}
		for _, e := range f.Errors {
			line("  error: %s", e)
		}
	}
	return b.String()
}
