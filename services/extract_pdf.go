package services

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"unicode/utf8"

	fallbackpdf "github.com/dslipak/pdf"
	"github.com/ledongthuc/pdf"

	"docqa-platform/utils"
)

// extractPDF reads text page by page so chunk offsets can be mapped back to
// page numbers. If the primary parser cannot read the file, a fallback
// parser extracts the full text without page attribution.
func (e *Extractor) extractPDF(data []byte) (*ExtractedDoc, error) {
	doc, err := extractPDFPaged(data)
	if err == nil {
		return doc, nil
	}
	slog.Warn("pdf parse failed, trying fallback parser", "error", err)

	doc, fallbackErr := extractPDFFallback(data)
	if fallbackErr != nil {
		return nil, utils.WrapDomainError(utils.CodeExtractionFailed,
			"unable to parse pdf", fmt.Errorf("primary: %v, fallback: %w", err, fallbackErr))
	}
	return doc, nil
}

func extractPDFPaged(data []byte) (doc *ExtractedDoc, err error) {
	// The parser panics on some malformed files.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pdf parser panic: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, err
	}

	numPages := reader.NumPage()
	if numPages == 0 {
		return nil, fmt.Errorf("pdf has no pages")
	}

	var (
		sb     strings.Builder
		breaks = make([]int, 0, numPages)
		offset int
	)
	fonts := make(map[string]*pdf.Font)
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		breaks = append(breaks, offset)
		if page.V.IsNull() {
			continue
		}

		text, err := page.GetPlainText(fonts)
		if err != nil {
			slog.Warn("pdf page text extraction failed", "page", i, "error", err)
			continue
		}
		text = normalizeText(text)
		sb.WriteString(text)
		offset += utf8.RuneCountInString(text)
		if !strings.HasSuffix(text, "\n") {
			sb.WriteString("\n")
			offset++
		}
	}

	return &ExtractedDoc{
		Text:       sb.String(),
		PageCount:  numPages,
		PageBreaks: breaks,
	}, nil
}

func extractPDFFallback(data []byte) (doc *ExtractedDoc, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("fallback pdf parser panic: %v", r)
		}
	}()

	reader, err := fallbackpdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, err
	}

	textReader, err := reader.GetPlainText()
	if err != nil {
		return nil, err
	}
	raw, err := io.ReadAll(textReader)
	if err != nil {
		return nil, err
	}

	// Page boundaries are lost on this path, so chunks carry no page number.
	return &ExtractedDoc{
		Text:      normalizeText(string(raw)),
		PageCount: reader.NumPage(),
	}, nil
}
