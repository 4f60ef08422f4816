package services

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"docqa-platform/models"
	"docqa-platform/utils"
)

// FileValidator checks one incoming file against format and size limits and
// computes its content hash in a single streaming pass.
type FileValidator struct {
	maxFileBytes int64
}

// NewFileValidator creates a validator with the configured size cap.
func NewFileValidator(maxFileBytes int64) *FileValidator {
	return &FileValidator{maxFileBytes: maxFileBytes}
}

// ValidationResult is the outcome of a successful validation.
type ValidationResult struct {
	FileType    string
	ByteSize    int64
	ContentHash string
}

// Validate checks the file's extension and size, then streams it once to
// compute the SHA-256 content hash. The hash covers raw bytes, so the same
// file uploaded under different names still collides.
func (v *FileValidator) Validate(file IncomingFile) (*ValidationResult, error) {
	fileType, err := fileTypeOf(file.Filename)
	if err != nil {
		return nil, err
	}

	if file.Size == 0 {
		return nil, utils.NewDomainError(utils.CodeFileValidationEmpty,
			fmt.Sprintf("file %q is empty", file.Filename))
	}
	if file.Size > v.maxFileBytes {
		return nil, utils.NewDomainError(utils.CodeFileValidationSize,
			fmt.Sprintf("file %q is %d bytes, limit is %d", file.Filename, file.Size, v.maxFileBytes))
	}

	r, err := file.Open()
	if err != nil {
		return nil, utils.WrapDomainError(utils.CodeInternal, "open uploaded file", err)
	}
	defer r.Close()

	hasher := sha256.New()
	// Read one byte past the cap so undeclared oversize streams still fail.
	n, err := io.Copy(hasher, io.LimitReader(r, v.maxFileBytes+1))
	if err != nil {
		return nil, utils.WrapDomainError(utils.CodeInternal, "read uploaded file", err)
	}
	if n == 0 {
		return nil, utils.NewDomainError(utils.CodeFileValidationEmpty,
			fmt.Sprintf("file %q is empty", file.Filename))
	}
	if n > v.maxFileBytes {
		return nil, utils.NewDomainError(utils.CodeFileValidationSize,
			fmt.Sprintf("file %q exceeds the %d byte limit", file.Filename, v.maxFileBytes))
	}

	return &ValidationResult{
		FileType:    fileType,
		ByteSize:    n,
		ContentHash: hex.EncodeToString(hasher.Sum(nil)),
	}, nil
}

func fileTypeOf(filename string) (string, error) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
	if ext == "markdown" {
		ext = models.FileTypeMD
	}
	if !models.IsSupportedFileType(ext) {
		return "", utils.NewDomainError(utils.CodeFileValidationType,
			fmt.Sprintf("unsupported file type %q, supported: pdf, docx, txt, md", ext))
	}
	return ext, nil
}
