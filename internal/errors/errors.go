package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// ErrorCode represents a Reel error code.
type ErrorCode string

const (
	ErrCapacityExceeded ErrorCode = "CAPACITY_EXCEEDED" // 409
	ErrClipNotFound     ErrorCode = "CLIP_NOT_FOUND"    // 404
	ErrProjectNotFound  ErrorCode = "PROJECT_NOT_FOUND" // 404
	ErrFileNotFound     ErrorCode = "FILE_NOT_FOUND"    // 404
	ErrValidation       ErrorCode = "VALIDATION_ERROR"  // 400
	ErrInvalidRequest   ErrorCode = "INVALID_REQUEST"   // 400
	ErrConnection       ErrorCode = "CONNECTION_ERROR"  // 502
	ErrGenerationFailed ErrorCode = "GENERATION_FAILED" // 502
	ErrInternal         ErrorCode = "INTERNAL"          // 500
)

// ReelError represents a structured error with code, status, and details.
type ReelError struct {
	Code    ErrorCode
	Status  int
	Message string
	Details map[string]any
}

// Error implements the error interface.
func (e *ReelError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewCapacityExceeded creates a 409 error when the duration budget has no room for another clip.
func NewCapacityExceeded(max, total float64) *ReelError {
	return &ReelError{
		Code:    ErrCapacityExceeded,
		Status:  409,
		Message: fmt.Sprintf("maximum duration reached: %.1fs used of %gs", total, max),
		Details: map[string]any{"max_seconds": max, "total_seconds": total},
	}
}

// NewClipNotFound creates a 404 error for an id that is not in the collection.
func NewClipNotFound(id string) *ReelError {
	return &ReelError{
		Code:    ErrClipNotFound,
		Status:  404,
		Message: fmt.Sprintf("clip not found: %s", id),
		Details: map[string]any{"clip_id": id},
	}
}

// NewProjectNotFound creates a 404 error for a saved project that does not exist.
func NewProjectNotFound(id string) *ReelError {
	return &ReelError{
		Code:    ErrProjectNotFound,
		Status:  404,
		Message: fmt.Sprintf("project not found: %s", id),
		Details: map[string]any{"project_id": id},
	}
}

// NewFileNotFound creates a 404 error for a missing file path.
func NewFileNotFound(path string) *ReelError {
	return &ReelError{
		Code:    ErrFileNotFound,
		Status:  404,
		Message: fmt.Sprintf("file not found: %s", path),
		Details: map[string]any{"path": path},
	}
}

// NewValidation creates a 400 error for missing or invalid user input.
// field may be empty when the failure is not tied to a single input.
func NewValidation(field, msg string) *ReelError {
	e := &ReelError{
		Code:    ErrValidation,
		Status:  400,
		Message: msg,
	}
	if field != "" {
		e.Details = map[string]any{"field": field}
	}
	return e
}

// NewInvalidRequest creates a 400 error for malformed request parameters.
func NewInvalidRequest(msg string) *ReelError {
	return &ReelError{
		Code:    ErrInvalidRequest,
		Status:  400,
		Message: msg,
	}
}

// NewConnection creates a 502 error for a push channel or transport failure.
func NewConnection(err error) *ReelError {
	msg := "connection error"
	if err != nil {
		msg = fmt.Sprintf("connection error: %v", err)
	}
	return &ReelError{
		Code:    ErrConnection,
		Status:  502,
		Message: msg,
	}
}

// NewGenerationFailed creates a 502 error when the backend rejects or fails a generation.
func NewGenerationFailed(msg string) *ReelError {
	return &ReelError{
		Code:    ErrGenerationFailed,
		Status:  502,
		Message: msg,
	}
}

// NewInternal creates a 500 error for unexpected internal errors.
func NewInternal(err error) *ReelError {
	msg := "internal error"
	if err != nil {
		msg = err.Error()
	}
	return &ReelError{
		Code:    ErrInternal,
		Status:  500,
		Message: msg,
	}
}

// Is checks if an error (or anything it wraps) is a ReelError with the given code.
func Is(err error, code ErrorCode) bool {
	var rErr *ReelError
	if stderrors.As(err, &rErr) {
		return rErr.Code == code
	}
	return false
}

// CodeOf returns the code of a ReelError, or ErrInternal for any other non-nil error.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	var rErr *ReelError
	if stderrors.As(err, &rErr) {
		return rErr.Code
	}
	return ErrInternal
}

// MessageOf returns the message of a ReelError without its code prefix,
// keeping any context added by wrapping. Other errors return err.Error().
func MessageOf(err error) string {
	if err == nil {
		return ""
	}
	var rErr *ReelError
	if !stderrors.As(err, &rErr) {
		return err.Error()
	}
	if err == error(rErr) {
		return rErr.Message
	}
	return strings.Replace(err.Error(), rErr.Error(), rErr.Message, 1)
}
