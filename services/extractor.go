package services

import (
	"fmt"
	"strings"

	"docqa-platform/models"
	"docqa-platform/utils"
)

// ExtractedDoc is the plain-text form of one file.
type ExtractedDoc struct {
	Text      string
	PageCount int
	// PageBreaks holds the rune offset at which each page starts, one entry
	// per page. Empty when the format has no page attribution.
	PageBreaks []int
}

// Extractor converts raw file bytes into plain text.
type Extractor struct {
	maxPages int
}

// NewExtractor creates an extractor with the configured page cap.
func NewExtractor(maxPages int) *Extractor {
	return &Extractor{maxPages: maxPages}
}

// Extract dispatches on file type. The returned text is never empty; files
// with no extractable text fail with an empty_document error.
func (e *Extractor) Extract(fileType string, data []byte) (*ExtractedDoc, error) {
	var (
		doc *ExtractedDoc
		err error
	)
	switch fileType {
	case models.FileTypePDF:
		doc, err = e.extractPDF(data)
	case models.FileTypeDOCX:
		doc, err = e.extractDOCX(data)
	case models.FileTypeTXT, models.FileTypeMD:
		doc, err = e.extractPlainText(data)
	default:
		return nil, utils.NewDomainError(utils.CodeFileValidationType,
			fmt.Sprintf("unsupported file type %q", fileType))
	}
	if err != nil {
		return nil, err
	}

	if doc.PageCount > e.maxPages {
		return nil, utils.NewDomainError(utils.CodePageLimitExceeded,
			fmt.Sprintf("document has %d pages, limit is %d", doc.PageCount, e.maxPages))
	}
	if strings.TrimSpace(doc.Text) == "" {
		return nil, utils.NewDomainError(utils.CodeEmptyDocument,
			"no extractable text content")
	}
	return doc, nil
}

// PageNumberAt maps a rune offset in the extracted text to its 1-based page
// number, or nil when the document has no page attribution.
func (d *ExtractedDoc) PageNumberAt(runeOffset int) *int {
	if len(d.PageBreaks) == 0 {
		return nil
	}
	page := 1
	for i, start := range d.PageBreaks {
		if runeOffset >= start {
			page = i + 1
		} else {
			break
		}
	}
	return &page
}

// normalizeText collapses Windows and legacy Mac line endings and strips
// NUL bytes that some extractors leak.
func normalizeText(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = strings.ReplaceAll(s, "\x00", "")
	return s
}
