package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/local/pdfeditor/internal/pdfdoc"
	"github.com/local/pdfeditor/internal/render"
	"github.com/local/pdfeditor/internal/rewrite"
)

// Per-file error codes recorded in results.
const (
	CodeEncrypted         = "encrypted"
	CodeReadError         = "read_error"
	CodeNotPDF            = "not_pdf"
	CodeRewriteError      = "rewrite_error"
	CodeStampError        = "stamp_error"
	CodeStrictWarning     = "strict_warning"
	CodeRenderUnavailable = "render_unavailable"
	CodeAllPagesEmpty     = "all_pages_empty"
	CodeCancelled         = "cancelled"
)

// StampError wraps a failure inside the stamping pass.
type StampError struct {
	Err error
}

func (e *StampError) Error() string {
	return fmt.Sprintf("stamp page numbers: %v", e.Err)
}

func (e *StampError) Unwrap() error { return e.Err }

// StrictWarningError reports captured library warnings under strict mode.
type StrictWarningError struct {
	Count int
}

func (e *StrictWarningError) Error() string {
	return fmt.Sprintf("%d library warning(s) captured in strict mode", e.Count)
}

// classify maps a per-file error to its code.
func classify(err error) string {
	if err == nil {
		return ""
	}

	var stampErr *StampError
	if errors.As(err, &stampErr) {
		if errors.Is(err, render.ErrUnavailable) {
			return CodeRenderUnavailable
		}
		return CodeStampError
	}

	var strictErr *StrictWarningError
	if errors.As(err, &strictErr) {
		return CodeStrictWarning
	}

	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return CodeCancelled
	case errors.Is(err, pdfdoc.ErrEncrypted):
		return CodeEncrypted
	case errors.Is(err, pdfdoc.ErrNotPDF):
		return CodeNotPDF
	case errors.Is(err, pdfdoc.ErrUnreadable):
		return CodeReadError
	case errors.Is(err, render.ErrUnavailable):
		return CodeRenderUnavailable
	case errors.Is(err, rewrite.ErrNothingRetained):
		return CodeAllPagesEmpty
	}
	return CodeRewriteError
}
