package services

import (
	"strings"
	"unicode/utf8"

	"github.com/saintfish/chardet"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/transform"

	"docqa-platform/utils"
)

// extractPlainText handles .txt and .md. Non-UTF-8 input is detected and
// transcoded; markdown markup is kept verbatim since it reads fine as text.
func (e *Extractor) extractPlainText(data []byte) (*ExtractedDoc, error) {
	text, err := decodeToUTF8(data)
	if err != nil {
		return nil, utils.WrapDomainError(utils.CodeExtractionFailed, "unable to decode text file", err)
	}

	// Strip a UTF-8 BOM if present.
	text = strings.TrimPrefix(text, "\uFEFF")
	text = normalizeText(text)

	// Plain text is a single logical page, so every chunk maps to page 1.
	return &ExtractedDoc{Text: text, PageCount: 1, PageBreaks: []int{0}}, nil
}

func decodeToUTF8(data []byte) (string, error) {
	if utf8.Valid(data) {
		return string(data), nil
	}

	detector := chardet.NewTextDetector()
	result, err := detector.DetectBest(data)
	if err != nil {
		return "", err
	}

	enc, err := htmlindex.Get(strings.ToLower(result.Charset))
	if err != nil {
		return "", err
	}

	decoded, _, err := transform.Bytes(enc.NewDecoder(), data)
	if err != nil {
		return "", err
	}
	return string(decoded), nil
}
