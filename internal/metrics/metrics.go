package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registry = prometheus.NewRegistry()
	once     sync.Once

	filesProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pdfeditor",
			Name:      "files_processed_total",
			Help:      "Total files processed by status",
		},
		[]string{"status"},
	)

	fileDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "pdfeditor",
			Name:      "file_duration_seconds",
			Help:      "Duration of per-file processing by status",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"status"},
	)

	pagesClassified = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pdfeditor",
			Name:      "pages_classified_total",
			Help:      "Pages classified by combined reason",
		},
		[]string{"reason", "empty"},
	)

	pagesRemoved = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "pdfeditor",
			Name:      "pages_removed_total",
			Help:      "Total pages removed from written outputs",
		},
	)

	referencesDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pdfeditor",
			Name:      "references_dropped_total",
			Help:      "Outline entries and named destinations dropped, by kind",
		},
		[]string{"kind"},
	)

	stampActions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pdfeditor",
			Name:      "stamp_actions_total",
			Help:      "Page-number stamping outcomes by action",
		},
		[]string{"action"},
	)

	libraryWarnings = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "pdfeditor",
			Name:      "library_warnings_total",
			Help:      "Warnings captured from the PDF library",
		},
	)
)

// Init registers collectors. It is safe to call more than once.
func Init() {
	once.Do(func() {
		registry.MustRegister(filesProcessed, fileDuration, pagesClassified, pagesRemoved, referencesDropped, stampActions, libraryWarnings)
	})
}

// WriteTextfile writes the current values in the node exporter textfile format.
func WriteTextfile(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create metrics dir: %w", err)
		}
	}
	return prometheus.WriteToTextfile(path, registry)
}

func ObserveFile(status string, dur time.Duration) {
	filesProcessed.WithLabelValues(status).Inc()
	fileDuration.WithLabelValues(status).Observe(dur.Seconds())
}

func IncPage(reason string, empty bool) {
	pagesClassified.WithLabelValues(reason, boolToStr(empty)).Inc()
}

func AddPagesRemoved(n int) {
	pagesRemoved.Add(float64(n))
}

func AddOutlinesDropped(n int) {
	referencesDropped.WithLabelValues("outline").Add(float64(n))
}

func AddDestinationsDropped(n int) {
	referencesDropped.WithLabelValues("destination").Add(float64(n))
}

// AddOutlineLinksLost counts kept outline entries whose link was dropped.
func AddOutlineLinksLost(n int) {
	referencesDropped.WithLabelValues("outline_link").Add(float64(n))
}

func IncStamp(action string) {
	stampActions.WithLabelValues(action).Inc()
}

func AddLibraryWarnings(n int) {
	libraryWarnings.Add(float64(n))
}

func boolToStr(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
