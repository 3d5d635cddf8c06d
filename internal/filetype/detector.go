package filetype

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog/log"
)

// PDFMIMEType is the MIME type reported for PDF documents.
const PDFMIMEType = "application/pdf"

// FileTypeInfo contains detected file type information
type FileTypeInfo struct {
	MIMEType    string
	Extension   string
	Supported   bool
	Description string
}

// Detector handles file type detection using magic bytes
type Detector struct{}

// New creates a new file type detector
func New() *Detector {
	return &Detector{}
}

// Detect detects the actual file type using magic bytes, not filename
func (d *Detector) Detect(filePath string) (*FileTypeInfo, error) {
	mtype, err := mimetype.DetectFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to detect file type: %w", err)
	}
	info := d.classify(mtype)
	log.Debug().Str("mime", info.MIMEType).Str("ext", info.Extension).Str("file", filePath).Msg("detected file type")
	if !info.Supported && strings.EqualFold(filepath.Ext(filePath), ".pdf") {
		log.Warn().Str("file", filePath).Str("mime", info.MIMEType).Msg("file has .pdf extension but is not a PDF")
	}
	return info, nil
}

// DetectBytes is Detect for in-memory content.
func (d *Detector) DetectBytes(data []byte) *FileTypeInfo {
	return d.classify(mimetype.Detect(data))
}

// classify determines whether the detected type can be processed
func (d *Detector) classify(mtype *mimetype.MIME) *FileTypeInfo {
	info := &FileTypeInfo{
		MIMEType:  mtype.String(),
		Extension: mtype.Extension(),
	}
	switch {
	case mtype.Is(PDFMIMEType):
		info.Supported = true
		info.Description = "PDF document"
	default:
		info.Description = fmt.Sprintf("Unsupported file type: %s", info.MIMEType)
	}
	return info
}

// IsPDF reports whether data starts like a PDF document.
func IsPDF(data []byte) bool {
	return New().DetectBytes(data).Supported
}
