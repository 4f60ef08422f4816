package utils

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// ErrorCode is a stable machine-readable error identifier.
type ErrorCode string

const (
	CodeBatchTooLarge        ErrorCode = "batch_too_large"
	CodeFileValidationType   ErrorCode = "file_validation_type"
	CodeFileValidationSize   ErrorCode = "file_validation_size"
	CodeFileValidationEmpty  ErrorCode = "file_validation_empty"
	CodeDuplicateDocument    ErrorCode = "duplicate_document"
	CodeExtractionFailed     ErrorCode = "extraction_failed"
	CodePageLimitExceeded    ErrorCode = "page_limit_exceeded"
	CodeEmptyDocument        ErrorCode = "empty_document"
	CodeEmbeddingFailed      ErrorCode = "embedding_failed"
	CodeVectorStoreFailed    ErrorCode = "vector_store_failed"
	CodeDimensionMismatch    ErrorCode = "dimension_mismatch"
	CodeTokenizerUnavailable ErrorCode = "tokenizer_unavailable"
	CodeGenerationFailed     ErrorCode = "generation_failed"
	CodeInvalidQuery         ErrorCode = "invalid_query"
	CodeNotFound             ErrorCode = "not_found"
	CodeRateLimited          ErrorCode = "rate_limit_exceeded"
	CodeProviderUnavailable  ErrorCode = "provider_unavailable"
	CodeInternal             ErrorCode = "internal_error"
)

// DomainError carries a stable code plus a human message across layers.
type DomainError struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *DomainError) Unwrap() error { return e.Err }

// NewDomainError creates a DomainError.
func NewDomainError(code ErrorCode, message string) *DomainError {
	return &DomainError{Code: code, Message: message}
}

// WrapDomainError creates a DomainError wrapping a cause.
func WrapDomainError(code ErrorCode, message string, err error) *DomainError {
	return &DomainError{Code: code, Message: message, Err: err}
}

// CodeOf extracts the domain error code from err, or CodeInternal.
func CodeOf(err error) ErrorCode {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// statusFor maps error codes to HTTP statuses.
func statusFor(code ErrorCode) int {
	switch code {
	case CodeBatchTooLarge, CodeFileValidationType, CodeFileValidationSize,
		CodeFileValidationEmpty, CodeDuplicateDocument, CodePageLimitExceeded,
		CodeEmptyDocument, CodeInvalidQuery:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeRateLimited:
		return http.StatusTooManyRequests
	case CodeProviderUnavailable, CodeEmbeddingFailed, CodeVectorStoreFailed,
		CodeGenerationFailed:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// ErrorResponse is the standardized error payload.
type ErrorResponse struct {
	ErrorCode ErrorCode   `json:"error_code"`
	Message   string      `json:"message"`
	Details   interface{} `json:"details,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	RequestID string      `json:"request_id,omitempty"`
}

// RespondWithError sends a standardized error response.
func RespondWithError(c *gin.Context, statusCode int, code ErrorCode, message string, details interface{}) {
	requestID, _ := c.Get("request_id")
	rid, _ := requestID.(string)
	c.JSON(statusCode, ErrorResponse{
		ErrorCode: code,
		Message:   message,
		Details:   details,
		Timestamp: time.Now().UTC(),
		RequestID: rid,
	})
}

// RespondWithDomainError maps a core error onto the wire. Internal causes are
// logged by the caller, never leaked to clients.
func RespondWithDomainError(c *gin.Context, err error) {
	var de *DomainError
	if errors.As(err, &de) {
		RespondWithError(c, statusFor(de.Code), de.Code, de.Message, nil)
		return
	}
	RespondWithError(c, http.StatusInternalServerError, CodeInternal, "internal server error", nil)
}

// RespondWithBadRequest sends a 400 Bad Request error.
func RespondWithBadRequest(c *gin.Context, message string, details interface{}) {
	RespondWithError(c, http.StatusBadRequest, "bad_request", message, details)
}

// RespondWithNotFound sends a 404 Not Found error.
func RespondWithNotFound(c *gin.Context, message string) {
	RespondWithError(c, http.StatusNotFound, CodeNotFound, message, nil)
}

// RespondWithInternalError sends a 500 Internal Server Error.
func RespondWithInternalError(c *gin.Context, message string) {
	RespondWithError(c, http.StatusInternalServerError, CodeInternal, message, nil)
}
