package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	cfgpkg "github.com/local/pdfeditor/internal/config"
	"github.com/local/pdfeditor/internal/pdftest"
)

func baseConfig(t *testing.T) (cfgpkg.Config, string) {
	t.Helper()
	dir := t.TempDir()
	cfg := cfgpkg.FromEnv()
	cfg.Detection.Mode = "structural"
	cfg.Run.Path = filepath.Join(dir, "in")
	cfg.Run.ReportDir = filepath.Join(dir, "reports")
	cfg.Run.MetricsFile = filepath.Join(dir, "metrics", "pdfeditor.prom")
	cfg.Logging.Pretty = false
	if err := os.MkdirAll(cfg.Run.Path, 0o755); err != nil {
		t.Fatal(err)
	}
	return cfg, dir
}

func reportFiles(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read report dir: %v", err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	return names
}

func TestRunWritesOutputsAndReports(t *testing.T) {
	cfg, _ := baseConfig(t)
	cfg.Run.Debug = true
	pdftest.Write(t, cfg.Run.Path, "scan.pdf", pdftest.Doc{Pages: pdftest.Pages(pdftest.TextContent, "")})

	if err := run(context.Background(), cfg); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(cfg.Run.Path, "scan.edited.pdf")); err != nil {
		t.Errorf("edited output missing: %v", err)
	}
	names := reportFiles(t, cfg.Run.ReportDir)
	if len(names) != 2 {
		t.Fatalf("expected json and text reports, got %v", names)
	}
	if _, err := os.Stat(filepath.Join(cfg.Run.ReportDir, "debug", "scan.debug.json")); err != nil {
		t.Errorf("debug artifact missing: %v", err)
	}
	if _, err := os.Stat(cfg.Run.MetricsFile); err != nil {
		t.Errorf("metrics textfile missing: %v", err)
	}
}

func TestRunFailsOnBadFile(t *testing.T) {
	cfg, _ := baseConfig(t)
	if err := os.WriteFile(filepath.Join(cfg.Run.Path, "broken.pdf"), []byte("not a pdf"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := run(context.Background(), cfg); !errors.Is(err, errRunFailed) {
		t.Fatalf("expected errRunFailed, got %v", err)
	}
	if names := reportFiles(t, cfg.Run.ReportDir); len(names) != 2 {
		t.Errorf("reports not written: %v", names)
	}
}

func TestRunInvalidConfigStillReports(t *testing.T) {
	cfg, _ := baseConfig(t)
	cfg.Stamp.Force = true
	if err := run(context.Background(), cfg); !errors.Is(err, errRunFailed) {
		t.Fatalf("expected errRunFailed, got %v", err)
	}
	names := reportFiles(t, cfg.Run.ReportDir)
	for _, n := range names {
		if strings.HasSuffix(n, ".txt") {
			data, _ := os.ReadFile(filepath.Join(cfg.Run.ReportDir, n))
			if !strings.Contains(string(data), "Run errors:") {
				t.Errorf("text report lacks run errors:\n%s", data)
			}
			return
		}
	}
	t.Fatalf("no text report in %v", names)
}

func TestFlagsOverrideConfig(t *testing.T) {
	cfg, _ := baseConfig(t)
	cmd := newRootCmd(cfg)
	err := cmd.ParseFlags([]string{
		"--mode", "render",
		"--render-sample-margin", "0.5,0.5,0.5,1",
		"--pagenum-box", "4,0.25,0.5,0.3",
		"--workers", "4",
	})
	if err != nil {
		t.Fatalf("ParseFlags failed: %v", err)
	}
	f := cmd.Flags()
	if v, _ := f.GetString("mode"); v != "render" {
		t.Errorf("mode = %s", v)
	}
	if v, _ := f.GetInt("workers"); v != 4 {
		t.Errorf("workers = %d", v)
	}
	if err := cmd.ParseFlags([]string{"--pagenum-box", "1,2,3"}); err == nil {
		t.Error("expected error for a three-value box")
	}
}
