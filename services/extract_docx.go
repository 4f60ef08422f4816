package services

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/fumiama/go-docx"

	"docqa-platform/utils"
)

// DOCX has no fixed pagination, so page count is estimated from text volume.
const docxRunesPerPage = 1800

// extractDOCX pulls paragraph and table text out of a .docx archive.
// Rendered page boundaries are unknown, so page numbers are estimated from
// text volume.
func (e *Extractor) extractDOCX(data []byte) (out *ExtractedDoc, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = utils.WrapDomainError(utils.CodeExtractionFailed,
				"unable to parse docx", fmt.Errorf("docx parser panic: %v", r))
		}
	}()

	doc, err := docx.Parse(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, utils.WrapDomainError(utils.CodeExtractionFailed, "unable to parse docx", err)
	}

	var sb strings.Builder
	for _, item := range doc.Document.Body.Items {
		switch block := item.(type) {
		case *docx.Paragraph:
			text := strings.TrimSpace(block.String())
			if text != "" {
				sb.WriteString(text)
				sb.WriteString("\n")
			}
		case *docx.Table:
			text := strings.TrimSpace(block.String())
			if text != "" {
				sb.WriteString(text)
				sb.WriteString("\n")
			}
		}
	}

	text := normalizeText(sb.String())
	runes := utf8.RuneCountInString(text)
	pages := (runes + docxRunesPerPage - 1) / docxRunesPerPage
	if pages < 1 {
		pages = 1
	}

	return &ExtractedDoc{
		Text:       text,
		PageCount:  pages,
		PageBreaks: estimatedPageBreaks(pages, docxRunesPerPage),
	}, nil
}

// estimatedPageBreaks fabricates evenly spaced page starts for formats that
// carry no rendered pagination.
func estimatedPageBreaks(pages, runesPerPage int) []int {
	breaks := make([]int, pages)
	for i := range breaks {
		breaks[i] = i * runesPerPage
	}
	return breaks
}
