package report

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/local/pdfeditor/internal/config"
	"github.com/local/pdfeditor/internal/detect"
	"github.com/local/pdfeditor/internal/orchestrator"
	"github.com/local/pdfeditor/internal/pdfwarn"
)

func sampleFiles() []orchestrator.FileResult {
	return []orchestrator.FileResult{
		{
			InputPath:     "/in/a.pdf",
			OutputPath:    "/in/a.edited.pdf",
			Status:        orchestrator.StatusChanged,
			PagesOriginal: 4,
			PagesRemoved:  1,
			PagesOutput:   3,
			Summary:       detect.Summary{Empty: 1, NonEmpty: 3, StructuralEmpty: 1, RenderEmpty: 1, BothEmpty: 1},
			Decisions: []detect.CombinedDecision{
				{PageDecision: detect.PageDecision{PageIndex: 0, Reason: detect.ReasonNonEmpty}},
			},
			LibraryWarnings: []pdfwarn.Event{{Source: pdfwarn.SourceLibrary, Message: "xref repaired"}},
			Stamping:        orchestrator.StampSummary{Enabled: true, Applied: 2, Forced: 1},
			Warnings:        []string{},
			Errors:          []string{},
		},
		{InputPath: "/in/b.pdf", Status: orchestrator.StatusUnchanged, PagesOriginal: 2, PagesOutput: 2},
		{InputPath: "/in/c.pdf", Status: orchestrator.StatusFailed, ErrorCode: orchestrator.CodeNotPDF, Errors: []string{"not_pdf: not a PDF document"}},
		{InputPath: "/in/d.pdf", Status: orchestrator.StatusDryRun, PagesOriginal: 3, PagesRemoved: 2, PagesOutput: 1},
	}
}

func TestTally(t *testing.T) {
	got := Tally(sampleFiles())
	want := Totals{
		FilesFound:      4,
		FilesProcessed:  3,
		FilesFailed:     1,
		FilesWritten:    1,
		FilesChanged:    1,
		FilesUnchanged:  1,
		FilesDryRun:     1,
		PagesOriginal:   9,
		PagesRemoved:    3,
		PagesOutput:     6,
		StructuralEmpty: 1,
		RenderEmpty:     1,
		BothEmpty:       1,
		LibraryWarnings: 1,
		PagesStamped:    3,
	}
	if got != want {
		t.Errorf("Tally = %+v\nwant %+v", got, want)
	}
}

func TestRunFailed(t *testing.T) {
	r := New(config.Config{}, detect.ModeStructural, sampleFiles(), nil, nil)
	if !r.Failed() {
		t.Error("run with a failed file should fail")
	}
	r = New(config.Config{}, detect.ModeStructural, nil, nil, []string{"no input"})
	if !r.Failed() {
		t.Error("run with errors should fail")
	}
	r = New(config.Config{}, detect.ModeStructural, sampleFiles()[:2], []string{"degraded"}, nil)
	if r.Failed() {
		t.Error("clean run should not fail")
	}
}

func TestWriteReports(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "reports")
	cfg := config.Config{
		Detection: config.DetectionConfig{Mode: "both", RenderDPI: 72},
		Run:       config.RunConfig{Path: "/in", Workers: 1},
	}
	r := New(cfg, detect.ModeStructural, sampleFiles(), []string{"page renderer unavailable; mode both degraded to structural"}, nil)

	jsonPath, textPath, err := Write(r, dir)
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if !strings.HasPrefix(filepath.Base(jsonPath), "run_report_") || filepath.Ext(jsonPath) != ".json" {
		t.Errorf("unexpected json path %s", jsonPath)
	}
	if strings.TrimSuffix(jsonPath, ".json") != strings.TrimSuffix(textPath, ".txt") {
		t.Errorf("report names differ: %s %s", jsonPath, textPath)
	}

	data, err := os.ReadFile(jsonPath)
	if err != nil {
		t.Fatal(err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("report is not valid JSON: %v", err)
	}
	if decoded["run_id"] != r.ID || decoded["effective_mode"] != "structural" {
		t.Errorf("unexpected header %v %v", decoded["run_id"], decoded["effective_mode"])
	}
	files, ok := decoded["files"].([]any)
	if !ok || len(files) != 4 {
		t.Fatalf("files = %v", decoded["files"])
	}
	first := files[0].(map[string]any)
	if first["status"] != "changed" || first["output_path"] != "/in/a.edited.pdf" {
		t.Errorf("first file = %v", first)
	}
	if cfgOut := decoded["config"].(map[string]any)["run"].(map[string]any); cfgOut["path"] != "/in" {
		t.Errorf("config = %v", cfgOut)
	}

	text, err := os.ReadFile(textPath)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{
		"PDFEditor Run Report",
		"effective_mode=structural",
		"files_failed=1",
		"Run warnings:",
		"[failed] /in/c.pdf",
		"  error: not_pdf: not a PDF document",
		"  output=-",
	} {
		if !strings.Contains(string(text), want) {
			t.Errorf("text report missing %q", want)
		}
	}
}

func TestTextNoFiles(t *testing.T) {
	r := New(config.Config{}, detect.ModeStructural, nil, nil, nil)
	if !strings.Contains(Text(r), "(no PDF files found)") {
		t.Error("expected empty file table marker")
	}
}

func TestEnvironment(t *testing.T) {
	env := CurrentEnvironment()
	if env.GoVersion == "" || env.PdfcpuVersion == "" || env.RenderBackend == "" {
		t.Errorf("incomplete environment %+v", env)
	}
}

func TestWriteDebug(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "debug")
	res := sampleFiles()[0]

	path, err := WriteDebug(dir, "run-1", res)
	if err != nil {
		t.Fatalf("WriteDebug failed: %v", err)
	}
	if path != filepath.Join(dir, "a.debug.json") {
		t.Errorf("path = %s", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var d Debug
	if err := json.Unmarshal(data, &d); err != nil {
		t.Fatalf("artifact is not valid JSON: %v", err)
	}
	if d.RunID != "run-1" || len(d.Decisions) != 1 || len(d.LibraryWarnings) != 1 {
		t.Errorf("unexpected artifact %+v", d)
	}
}
