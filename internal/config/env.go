package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pdfcpu/pdfcpu/pkg/font"

	"github.com/local/pdfeditor/internal/detect"
)

// ErrInvalid marks run-level configuration errors.
var ErrInvalid = errors.New("invalid configuration")

// LoggingConfig holds logging-related configuration.
type LoggingConfig struct {
	Level      string `json:"level"`
	Pretty     bool   `json:"pretty"`
	File       string `json:"file"`
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
	MaxAgeDays int    `json:"max_age_days"`
	Compress   bool   `json:"compress"`
}

// DetectionConfig selects and tunes the page classifiers.
type DetectionConfig struct {
	Mode                    string  `json:"mode"`
	TreatAnnotationsAsEmpty bool    `json:"treat_annotations_as_empty"`
	RenderDPI               float64 `json:"render_dpi"`
	InkThreshold            float64 `json:"ink_threshold"`
	WhiteThreshold          int     `json:"white_threshold"`
	// SampleMargin is top, left, right, bottom in inches.
	SampleMargin [4]float64 `json:"render_sample_margin"`
}

// StampConfig controls page-number stamping.
type StampConfig struct {
	Enabled bool `json:"enabled"`
	// Box is x, y, width, height in inches from the bottom-left corner.
	Box    [4]float64 `json:"box"`
	HasBox bool       `json:"-"`
	Font   string     `json:"font"`
	Size   float64    `json:"size"`
	Format string     `json:"format"`
	Force  bool       `json:"force"`
}

// RunConfig covers inputs, outputs and per-file policy.
type RunConfig struct {
	Path               string `json:"path"`
	OutDir             string `json:"out_dir"`
	ReportDir          string `json:"report_dir"`
	Recursive          bool   `json:"recursive"`
	Workers            int    `json:"workers"`
	WriteWhenUnchanged bool   `json:"write_when_unchanged"`
	DryRun             bool   `json:"dry_run"`
	CaptureWarnings    bool   `json:"capture_warnings"`
	StrictWarnings     bool   `json:"strict_warnings"`
	Debug              bool   `json:"debug"`
	MetricsFile        string `json:"metrics_file"`
}

// Config is the top-level configuration.
type Config struct {
	Logging   LoggingConfig   `json:"logging"`
	Detection DetectionConfig `json:"detection"`
	Stamp     StampConfig     `json:"stamp"`
	Run       RunConfig       `json:"run"`
}

// LoadDotEnv loads variables from the given files, or .env when none are
// given. Missing files are ignored; variables already set are kept.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// FromEnv loads configuration from environment with sensible defaults.
// Malformed quads fall back to their defaults here; flags are validated by
// Validate.
func FromEnv() Config {
	cfg := Config{}

	// Logging defaults
	cfg.Logging = LoggingConfig{
		Level:      getEnv("LOG_LEVEL", "info"),
		Pretty:     parseBool(getEnv("LOG_PRETTY", devDefaultPretty())),
		File:       getEnv("LOG_FILE", ""),
		MaxSizeMB:  parseInt(getEnv("LOG_MAX_SIZE_MB", "100"), 100),
		MaxBackups: parseInt(getEnv("LOG_MAX_BACKUPS", "10"), 10),
		MaxAgeDays: parseInt(getEnv("LOG_MAX_AGE_DAYS", "30"), 30),
		Compress:   parseBool(getEnv("LOG_COMPRESS", "true")),
	}

	// Detection defaults
	cfg.Detection = DetectionConfig{
		Mode:                    getEnv("PDFEDITOR_MODE", string(detect.ModeBoth)),
		TreatAnnotationsAsEmpty: parseBool(getEnv("PDFEDITOR_TREAT_ANNOTATIONS_AS_EMPTY", "true")),
		RenderDPI:               parseFloat(getEnv("PDFEDITOR_RENDER_DPI", "72"), 72),
		InkThreshold:            parseFloat(getEnv("PDFEDITOR_INK_THRESHOLD", "0.0005"), 0.0005),
		WhiteThreshold:          parseInt(getEnv("PDFEDITOR_WHITE_THRESHOLD", "250"), 250),
	}
	if q, err := ParseQuad(getEnv("PDFEDITOR_RENDER_SAMPLE_MARGIN", "0,0,0,0")); err == nil {
		cfg.Detection.SampleMargin = q
	}

	// Stamp defaults
	cfg.Stamp = StampConfig{
		Enabled: parseBool(getEnv("PDFEDITOR_STAMP_PAGE_NUMBERS", "false")),
		Font:    getEnv("PDFEDITOR_PAGENUM_FONT", "Helvetica"),
		Size:    parseFloat(getEnv("PDFEDITOR_PAGENUM_SIZE", "10"), 10),
		Format:  getEnv("PDFEDITOR_PAGENUM_FORMAT", "{page}"),
		Force:   parseBool(getEnv("PDFEDITOR_STAMP_PAGE_NUMBERS_FORCE", "false")),
	}
	if v := getEnv("PDFEDITOR_PAGENUM_BOX", ""); v != "" {
		if q, err := ParseQuad(v); err == nil {
			cfg.Stamp.Box, cfg.Stamp.HasBox = q, true
		}
	}

	// Run defaults
	cfg.Run = RunConfig{
		Path:               getEnv("PDFEDITOR_PATH", "."),
		OutDir:             getEnv("PDFEDITOR_OUT", ""),
		ReportDir:          getEnv("PDFEDITOR_REPORT_DIR", "reports"),
		Recursive:          parseBool(getEnv("PDFEDITOR_RECURSIVE", "false")),
		Workers:            parseInt(getEnv("PDFEDITOR_WORKERS", "1"), 1),
		WriteWhenUnchanged: parseBool(getEnv("PDFEDITOR_WRITE_WHEN_UNCHANGED", "false")),
		DryRun:             parseBool(getEnv("PDFEDITOR_DRY_RUN", "false")),
		CaptureWarnings:    parseBool(getEnv("PDFEDITOR_CAPTURE_WARNINGS", "true")),
		StrictWarnings:     parseBool(getEnv("PDFEDITOR_STRICT_WARNINGS", "false")),
		Debug:              parseBool(getEnv("PDFEDITOR_DEBUG", "false")),
		MetricsFile:        getEnv("PDFEDITOR_METRICS_FILE", ""),
	}

	return cfg
}

// Validate checks run-level configuration. Any error is fatal for the run
// and matches ErrInvalid.
func (c Config) Validate() error {
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...)))
	}

	if _, err := detect.ParseMode(c.Detection.Mode); err != nil {
		bad("%v", err)
	}
	if c.Detection.RenderDPI <= 0 {
		bad("render dpi must be positive, got %v", c.Detection.RenderDPI)
	}
	if c.Detection.InkThreshold < 0 || c.Detection.InkThreshold > 1 {
		bad("ink threshold must be within [0,1], got %v", c.Detection.InkThreshold)
	}
	if c.Detection.WhiteThreshold < 0 || c.Detection.WhiteThreshold > 255 {
		bad("white threshold must be within [0,255], got %d", c.Detection.WhiteThreshold)
	}
	for _, v := range c.Detection.SampleMargin {
		if v < 0 {
			bad("sample margins must be non-negative, got %v", c.Detection.SampleMargin)
			break
		}
	}

	if c.Stamp.Force && !c.Stamp.Enabled {
		bad("forced stamping requires page-number stamping to be enabled")
	}
	if c.Stamp.Enabled {
		if !c.Stamp.HasBox {
			bad("page-number stamping requires a page-number box")
		}
		for _, v := range c.Stamp.Box {
			if v < 0 {
				bad("page-number box values must be non-negative, got %v", c.Stamp.Box)
				break
			}
		}
		if c.Stamp.Box[2] <= 0 || c.Stamp.Box[3] <= 0 {
			bad("page-number box needs a positive width and height, got %v", c.Stamp.Box)
		}
		if !font.IsCoreFont(c.Stamp.Font) {
			bad("page-number font %q is not a standard PDF font", c.Stamp.Font)
		}
		if c.Stamp.Size <= 0 {
			bad("page-number size must be positive, got %v", c.Stamp.Size)
		}
	}

	if c.Run.Workers < 1 {
		bad("workers must be at least 1, got %d", c.Run.Workers)
	}
	if strings.TrimSpace(c.Run.Path) == "" {
		bad("input path is required")
	}
	return errors.Join(errs...)
}

// ParseQuad parses four comma-separated non-negative numbers.
func ParseQuad(s string) ([4]float64, error) {
	var q [4]float64
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return q, fmt.Errorf("%w: expected 4 comma-separated values, got %d in %q", ErrInvalid, len(parts), s)
	}
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return q, fmt.Errorf("%w: value %q is not a number", ErrInvalid, strings.TrimSpace(p))
		}
		if v < 0 {
			return q, fmt.Errorf("%w: value %v must be non-negative", ErrInvalid, v)
		}
		q[i] = v
	}
	return q, nil
}

// Helpers
func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseInt(s string, def int) int {
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}

func parseFloat(s string, def float64) float64 {
	if s == "" {
		return def
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return def
}

func parseBool(s string) bool {
	v := strings.ToLower(strings.TrimSpace(s))
	return v == "1" || v == "true" || v == "yes" || v == "on"
}

func devDefaultPretty() string {
	env := strings.ToLower(os.Getenv("ENVIRONMENT"))
	if env == "dev" || env == "development" || env == "local" {
		return "true"
	}
	return "false"
}
