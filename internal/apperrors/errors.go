// Package apperrors provides structured application errors used to classify
// job failures and map them to HTTP status codes.
package apperrors

import (
	"errors"
	"fmt"
)

// Sentinel errors for classification via errors.Is().
var (
	ErrValidation   = errors.New("validation error")
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrConnectivity = errors.New("endpoint unreachable")
	ErrUpload       = errors.New("upload failed")
	ErrPublish      = errors.New("publish failed")
	ErrUnavailable  = errors.New("temporarily unavailable")
	ErrInternal     = errors.New("internal error")
)

// Error provides structured error with context.
type Error struct {
	Sentinel error  // Wrapped sentinel for errors.Is() classification
	Message  string // Human-readable message
	Field    string // For validation errors (e.g., "epochs", "output")
	Resource string // For not found/conflict (e.g., "bucket")
	Op       string // Operation that failed (e.g., "s3.headBucket")
	Cause    error  // Underlying error
}

// Error returns the human-readable error message.
func (e *Error) Error() string {
	return e.Message
}

// Unwrap exposes both the sentinel and the underlying cause, so errors.Is
// matches the class as well as a more specific cause (e.g. ErrConnectivity
// inside an upload failure).
func (e *Error) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Sentinel}
	}
	return []error{e.Sentinel, e.Cause}
}

// Validation creates a validation error for a specific field.
func Validation(field, message string) error {
	return &Error{
		Sentinel: ErrValidation,
		Message:  message,
		Field:    field,
	}
}

// NotFound creates a not found error for a resource.
func NotFound(resource, id string) error {
	return &Error{
		Sentinel: ErrNotFound,
		Message:  fmt.Sprintf("%s %s not found", resource, id),
		Resource: resource,
	}
}

// Conflict creates a conflict error for a resource.
func Conflict(resource, reason string) error {
	return &Error{
		Sentinel: ErrConflict,
		Message:  reason,
		Resource: resource,
	}
}

// Unavailable reports a resource that cannot take work right now.
func Unavailable(resource, reason string) error {
	return &Error{
		Sentinel: ErrUnavailable,
		Message:  reason,
		Resource: resource,
	}
}

// Connectivity marks an error as "the remote endpoint could not be reached".
func Connectivity(op, endpoint string, cause error) error {
	return &Error{
		Sentinel: ErrConnectivity,
		Message:  fmt.Sprintf("%s: could not connect to %s: %v", op, endpoint, cause),
		Resource: endpoint,
		Op:       op,
		Cause:    cause,
	}
}

// Upload wraps a failed object upload.
func Upload(bucket, key string, cause error) error {
	return &Error{
		Sentinel: ErrUpload,
		Message:  fmt.Sprintf("upload %s/%s: %v", bucket, key, cause),
		Resource: bucket + "/" + key,
		Op:       "upload",
		Cause:    cause,
	}
}

// Publish wraps a failed publish on the message bus.
func Publish(subject string, cause error) error {
	return &Error{
		Sentinel: ErrPublish,
		Message:  fmt.Sprintf("publish to %s: %v", subject, cause),
		Resource: subject,
		Op:       "publish",
		Cause:    cause,
	}
}

// Internal creates an internal error wrapping an underlying cause.
func Internal(op string, cause error) error {
	return &Error{
		Sentinel: ErrInternal,
		Message:  fmt.Sprintf("%s: %v", op, cause),
		Op:       op,
		Cause:    cause,
	}
}
