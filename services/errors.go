package services

import (
	"errors"
	"fmt"

	"github.com/upb/rag-gateway/internal/gateway"
	"github.com/upb/rag-gateway/internal/retry"
)

// ErrorType represents the type/category of error
type ErrorType string

const (
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeNotFound   ErrorType = "not_found"
	ErrorTypeEmbedding  ErrorType = "embedding"
	ErrorTypeSearch     ErrorType = "search"
	ErrorTypeCompletion ErrorType = "completion"
	ErrorTypeInternal   ErrorType = "internal"
)

// DomainError represents a structured error with additional context
type DomainError struct {
	Type    ErrorType
	Message string
	Err     error
	Details map[string]interface{}
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Type == t.Type
}

// WithDetail adds a detail to the error
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// NewDomainError creates a new domain error
func NewDomainError(errType ErrorType, message string, err error) *DomainError {
	return &DomainError{
		Type:    errType,
		Message: message,
		Err:     err,
		Details: make(map[string]interface{}),
	}
}

// Domain error variables

var (
	// Validation Errors
	ErrEmptyQuery = NewDomainError(ErrorTypeValidation, "query cannot be empty", nil)

	// Not Found Errors
	ErrClientNotFound = NewDomainError(ErrorTypeNotFound, "client not found", nil)
)

// Stage error constructors. Each pipeline stage wraps its underlying
// failure (network, timeout, exhausted retries, malformed response) so the
// cause chain stays reachable through errors.As.

// NewEmbeddingError wraps a failure of the embedding stage
func NewEmbeddingError(message string, err error) *DomainError {
	return NewDomainError(ErrorTypeEmbedding, message, err)
}

// NewSearchError wraps a failure of the vector search stage
func NewSearchError(message string, err error) *DomainError {
	return NewDomainError(ErrorTypeSearch, message, err)
}

// NewCompletionError wraps a failure of the chat completion stage
func NewCompletionError(message string, err error) *DomainError {
	return NewDomainError(ErrorTypeCompletion, message, err)
}

// Error type checking helper functions

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type == ErrorTypeValidation
	}
	return false
}

// IsNotFoundError checks if an error is a not found error
func IsNotFoundError(err error) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type == ErrorTypeNotFound
	}
	return false
}

// IsStageError checks if an error came from one of the pipeline stages
func IsStageError(err error) bool {
	switch GetErrorType(err) {
	case ErrorTypeEmbedding, ErrorTypeSearch, ErrorTypeCompletion:
		return true
	}
	return false
}

// IsUpstreamUnavailable reports whether the cause chain ends in an
// exhausted retry budget, a timeout, or a transport-level failure, i.e. the
// upstream service could not be reached. A NetworkError carrying an HTTP
// status means the upstream answered and does not count.
func IsUpstreamUnavailable(err error) bool {
	var exhausted *retry.ExhaustedError
	if errors.As(err, &exhausted) {
		return true
	}
	var timeoutErr *gateway.TimeoutError
	if errors.As(err, &timeoutErr) {
		return true
	}
	var netErr *gateway.NetworkError
	return errors.As(err, &netErr) && netErr.Status == 0
}

// GetErrorType returns the ErrorType of a domain error, or empty string if not a domain error
func GetErrorType(err error) ErrorType {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type
	}
	return ""
}

// GetErrorDetails returns the details map of a domain error, or nil if not a domain error
func GetErrorDetails(err error) map[string]interface{} {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Details
	}
	return nil
}
