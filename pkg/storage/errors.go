package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"syscall"
	"time"
)

// ErrorKind is the closed set of storage failure categories. Every raw
// filesystem failure is classified into exactly one kind before it leaves
// this package; no raw system error ever reaches a caller.
type ErrorKind string

const (
	KindFileNotFound            ErrorKind = "FILE_NOT_FOUND"
	KindAccessDenied            ErrorKind = "ACCESS_DENIED"
	KindInsufficientPermissions ErrorKind = "INSUFFICIENT_PERMISSIONS"
	KindStorageFull             ErrorKind = "STORAGE_FULL"
	KindQuotaExceeded           ErrorKind = "QUOTA_EXCEEDED"
	KindFileTooLarge            ErrorKind = "FILE_TOO_LARGE"
	KindInvalidFormat           ErrorKind = "INVALID_FORMAT"
	KindValidationFailed        ErrorKind = "VALIDATION_FAILED"
	KindCorruptionDetected      ErrorKind = "CORRUPTION_DETECTED"
	KindOperationTimeout        ErrorKind = "OPERATION_TIMEOUT"
	KindConcurrentAccess        ErrorKind = "CONCURRENT_ACCESS"
	KindFileExists              ErrorKind = "FILE_EXISTS"
	KindTooManyOpenFiles        ErrorKind = "TOO_MANY_OPEN_FILES"
	KindIOError                 ErrorKind = "IO_ERROR"
)

// userMessages holds the fixed, non-leaking message shown for each kind.
// Raw system error text never appears here; it travels only in the
// structured Details for server-side logs.
var userMessages = map[ErrorKind]string{
	KindFileNotFound:            "The requested file could not be found",
	KindAccessDenied:            "Access to the requested file was denied",
	KindInsufficientPermissions: "The storage system lacks permission to complete this operation",
	KindStorageFull:             "Storage capacity has been exhausted",
	KindQuotaExceeded:           "The storage quota for this area has been exceeded",
	KindFileTooLarge:            "The file exceeds the maximum allowed size",
	KindInvalidFormat:           "The file format is not supported",
	KindValidationFailed:        "The request contained invalid or missing fields",
	KindCorruptionDetected:      "The stored file failed an integrity check",
	KindOperationTimeout:        "The storage operation timed out",
	KindConcurrentAccess:        "The file is in use by another operation",
	KindFileExists:              "A file with this name already exists",
	KindTooManyOpenFiles:        "The storage system is temporarily overloaded",
	KindIOError:                 "An internal storage error occurred",
}

// httpStatus maps each kind to the status code the boundary layer relays.
var httpStatus = map[ErrorKind]int{
	KindFileNotFound:            404,
	KindAccessDenied:            403,
	KindInsufficientPermissions: 403,
	KindStorageFull:             507,
	KindQuotaExceeded:           507,
	KindFileTooLarge:            413,
	KindInvalidFormat:           415,
	KindValidationFailed:        400,
	KindCorruptionDetected:      500,
	KindOperationTimeout:        504,
	KindConcurrentAccess:        409,
	KindFileExists:              409,
	KindTooManyOpenFiles:        503,
	KindIOError:                 500,
}

// StorageError is a classified storage failure. Kind drives retry policy
// and the boundary status code; Details carries structured internal
// context (paths, sizes, owner ids) that is never echoed to end users.
type StorageError struct {
	Kind    ErrorKind
	Message string
	Details map[string]interface{}
	Cause   error
}

// Error implements the error interface with the internal representation.
func (e *StorageError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the underlying cause for errors.Is/errors.As.
func (e *StorageError) Unwrap() error {
	return e.Cause
}

// UserMessage returns the fixed user-facing message for this error's kind.
func (e *StorageError) UserMessage() string {
	if msg, ok := userMessages[e.Kind]; ok {
		return msg
	}
	return userMessages[KindIOError]
}

// HTTPStatus returns the status code the boundary layer should answer with.
func (e *StorageError) HTTPStatus() int {
	if status, ok := httpStatus[e.Kind]; ok {
		return status
	}
	return 500
}

// WithDetail attaches one structured context field and returns the error.
func (e *StorageError) WithDetail(key string, value interface{}) *StorageError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// ErrorResponse is the wire shape the HTTP boundary relays verbatim.
type ErrorResponse struct {
	Status int       `json:"status"`
	Body   ErrorBody `json:"body"`
}

// ErrorBody is the JSON body of an error response. Details is meant for
// server-side logging; handlers may strip it for unauthenticated callers.
type ErrorBody struct {
	Error     ErrorKind              `json:"error"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// ToResponse builds the boundary-layer representation of this error.
func (e *StorageError) ToResponse() ErrorResponse {
	return ErrorResponse{
		Status: e.HTTPStatus(),
		Body: ErrorBody{
			Error:     e.Kind,
			Message:   e.UserMessage(),
			Details:   e.Details,
			Timestamp: time.Now().UTC(),
		},
	}
}

// NewError creates a StorageError of the given kind.
func NewError(kind ErrorKind, message string, cause error) *StorageError {
	return &StorageError{
		Kind:    kind,
		Message: message,
		Cause:   cause,
	}
}

// NewValidationError creates a VALIDATION_FAILED error for a bad request
// field.
func NewValidationError(field, problem string) *StorageError {
	return (&StorageError{
		Kind:    KindValidationFailed,
		Message: fmt.Sprintf("invalid %s: %s", field, problem),
	}).WithDetail("field", field)
}

// ErrorClassifier maps raw I/O failures into the closed ErrorKind taxonomy.
// Classification happens once per failure; the retry policy then keys off
// the kind so that no call site hand-rolls its own recovery.
type ErrorClassifier struct{}

// NewErrorClassifier creates a new error classifier.
func NewErrorClassifier() *ErrorClassifier {
	return &ErrorClassifier{}
}

// Classify analyzes an error and returns a standardized StorageError.
// Errors that are already classified pass through unchanged so context
// attached at the call site survives the retry loop.
func (ec *ErrorClassifier) Classify(err error, operation, path string) *StorageError {
	if err == nil {
		return nil
	}

	var storageErr *StorageError
	if errors.As(err, &storageErr) {
		return storageErr
	}

	serr := &StorageError{
		Kind:    classifyRaw(err),
		Message: fmt.Sprintf("%s failed", operation),
		Cause:   err,
		Details: map[string]interface{}{
			"operation": operation,
			// Raw text goes into structured context only, never the
			// user-facing message.
			"cause": err.Error(),
		},
	}
	if path != "" {
		serr.Details["path"] = path
	}
	return serr
}

func classifyRaw(err error) ErrorKind {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return KindFileNotFound
	case errors.Is(err, fs.ErrPermission):
		return KindAccessDenied
	case errors.Is(err, fs.ErrExist):
		return KindFileExists
	case errors.Is(err, syscall.ENOSPC), errors.Is(err, syscall.EDQUOT):
		return KindStorageFull
	case errors.Is(err, syscall.EMFILE), errors.Is(err, syscall.ENFILE):
		return KindTooManyOpenFiles
	case errors.Is(err, syscall.EBUSY), errors.Is(err, syscall.ETXTBSY):
		return KindConcurrentAccess
	case errors.Is(err, syscall.EFBIG):
		return KindFileTooLarge
	case errors.Is(err, context.DeadlineExceeded), os.IsTimeout(err):
		return KindOperationTimeout
	}

	// Fall back to message inspection for errors that arrive without a
	// recognizable sentinel (wrapped by third-party code, serialized
	// across process boundaries, ...).
	switch {
	case isNotFoundError(err):
		return KindFileNotFound
	case isPermissionError(err):
		return KindAccessDenied
	case isOutOfSpaceError(err):
		return KindStorageFull
	case isTimeoutError(err):
		return KindOperationTimeout
	case isBusyError(err):
		return KindConcurrentAccess
	default:
		return KindIOError
	}
}

func isNotFoundError(err error) bool {
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "not found") ||
		strings.Contains(errStr, "no such file") ||
		strings.Contains(errStr, "does not exist")
}

func isPermissionError(err error) bool {
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "permission denied") ||
		strings.Contains(errStr, "access denied") ||
		strings.Contains(errStr, "operation not permitted")
}

func isOutOfSpaceError(err error) bool {
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "no space left") ||
		strings.Contains(errStr, "disk full") ||
		strings.Contains(errStr, "quota exceeded")
}

func isTimeoutError(err error) bool {
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "timed out") ||
		strings.Contains(errStr, "deadline exceeded")
}

func isBusyError(err error) bool {
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "resource busy") ||
		strings.Contains(errStr, "file is locked") ||
		strings.Contains(errStr, "in use")
}
