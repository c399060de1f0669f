// Package errors provides the coded error type used across the query pipeline.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Error codes. The first four make up the pipeline's error taxonomy.
const (
	CodeNoValidTargets  = "NO_VALID_TARGETS"
	CodeCacheNotFound   = "CACHE_NOT_FOUND"
	CodeTransport       = "TRANSPORT_ERROR"
	CodeTranslation     = "TRANSLATION_ERROR"
	CodeInvalidRequest  = "INVALID_REQUEST"
	CodeUnauthenticated = "UNAUTHENTICATED"
	CodeUnimplemented   = "UNIMPLEMENTED"
	CodeInternal        = "INTERNAL_ERROR"
)

// noValidTargetsNotice is the fixed user-facing message for CodeNoValidTargets.
const noValidTargetsNotice = "no valid query targets: every target needs a cache name, a format, a query and, for time series, a time column"

// GridError is an error with a code, a human-readable message and optional details.
type GridError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
	Cause   error                  `json:"-"`
}

// Error implements the error interface.
func (e *GridError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *GridError) Unwrap() error {
	return e.Cause
}

// Is matches any GridError carrying the same code.
func (e *GridError) Is(target error) bool {
	t, ok := target.(*GridError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// WithDetails replaces the error details.
func (e *GridError) WithDetails(details map[string]interface{}) *GridError {
	e.Details = details
	return e
}

// WithDetail adds a single detail to the error.
func (e *GridError) WithDetail(key string, value interface{}) *GridError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// Sentinels for errors.Is comparisons. Do not mutate them; use the constructors.
var (
	ErrNoValidTargets = &GridError{Code: CodeNoValidTargets, Message: noValidTargetsNotice}
	ErrCacheNotFound  = &GridError{Code: CodeCacheNotFound, Message: "cache not found"}
	ErrTransport      = &GridError{Code: CodeTransport, Message: "grid request failed"}
	ErrTranslation    = &GridError{Code: CodeTranslation, Message: "grid response could not be translated"}
)

// New creates a new GridError with the given code and message.
func New(code, message string) *GridError {
	return &GridError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an error with a GridError.
func Wrap(err error, code, message string) *GridError {
	if err == nil {
		return nil
	}
	return &GridError{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// Wrapf wraps an error with a formatted message.
func Wrapf(err error, code, format string, args ...interface{}) *GridError {
	if err == nil {
		return nil
	}
	return &GridError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   err,
	}
}

// NoValidTargets returns the batch-level error raised when validation leaves nothing to run.
func NoValidTargets(submitted int) *GridError {
	return New(CodeNoValidTargets, noValidTargetsNotice).WithDetail("submitted", submitted)
}

// CacheNotFound returns the aggregate error for a batch whose caches failed the existence check.
// causes holds the per-cache reason, keyed by cache name.
func CacheNotFound(missing []string, causes map[string]string) *GridError {
	err := New(CodeCacheNotFound, fmt.Sprintf("cache not found: %s", strings.Join(missing, ", ")))
	err.WithDetail("caches", missing)
	if len(causes) > 0 {
		err.WithDetail("causes", causes)
	}
	return err
}

// IsNoValidTargets reports whether err carries CodeNoValidTargets.
func IsNoValidTargets(err error) bool {
	return hasCode(err, CodeNoValidTargets)
}

// IsCacheNotFound reports whether err carries CodeCacheNotFound.
func IsCacheNotFound(err error) bool {
	return hasCode(err, CodeCacheNotFound)
}

// IsTransport reports whether err carries CodeTransport.
func IsTransport(err error) bool {
	return hasCode(err, CodeTransport)
}

// IsInvalidRequest checks if an error is an invalid request error.
func IsInvalidRequest(err error) bool {
	return hasCode(err, CodeInvalidRequest)
}

func hasCode(err error, code string) bool {
	var gridErr *GridError
	if errors.As(err, &gridErr) {
		return gridErr.Code == code
	}
	return false
}

// GetCode extracts the error code from an error.
func GetCode(err error) string {
	var gridErr *GridError
	if errors.As(err, &gridErr) {
		return gridErr.Code
	}
	return CodeInternal
}

// GetMessage extracts the error message from an error.
func GetMessage(err error) string {
	var gridErr *GridError
	if errors.As(err, &gridErr) {
		return gridErr.Message
	}
	return err.Error()
}
