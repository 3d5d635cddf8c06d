package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/local/pdfeditor/internal/detect"
	"github.com/local/pdfeditor/internal/orchestrator"
	"github.com/local/pdfeditor/internal/pdfwarn"
	"github.com/local/pdfeditor/internal/stamp"
)

// Debug is the per-file diagnostic artifact.
type Debug struct {
	RunID           string                    `json:"run_id"`
	InputPath       string                    `json:"input_path"`
	Status          string                    `json:"status"`
	Decisions       []detect.CombinedDecision `json:"page_decisions"`
	StampOutcomes   []stamp.Outcome           `json:"stamp_outcomes,omitempty"`
	LibraryWarnings []pdfwarn.Event           `json:"library_warnings"`
	RewriteWarnings []pdfwarn.Event           `json:"rewrite_warnings,omitempty"`
}

// DebugPath returns dir/<stem>.debug.json for input.
func DebugPath(dir, input string) string {
	base := filepath.Base(input)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(dir, stem+".debug.json")
}

// WriteDebug stores the artifact for res under dir and returns its path.
// An existing artifact with the same name is replaced.
func WriteDebug(dir, runID string, res orchestrator.FileResult) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create debug dir: %w", err)
	}
	d := Debug{
		RunID:           runID,
		InputPath:       res.InputPath,
		Status:          res.Status,
		Decisions:       res.Decisions,
		StampOutcomes:   res.Stamping.Outcomes,
		LibraryWarnings: res.LibraryWarnings,
		RewriteWarnings: res.RewriteWarnings,
	}
	if d.LibraryWarnings == nil {
		d.LibraryWarnings = []pdfwarn.Event{}
	}
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode debug artifact: %w", err)
	}
	path := DebugPath(dir, res.InputPath)
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return "", fmt.Errorf("write debug artifact: %w", err)
	}
	return path, nil
}
