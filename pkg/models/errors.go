package models

import (
	"errors"
	"fmt"
)

// ErrorCode is the machine-checkable category attached to every externally
// reported failure.
type ErrorCode string

const (
	CodeNotFound   ErrorCode = "not_found"
	CodeForbidden  ErrorCode = "forbidden"
	CodeValidation ErrorCode = "validation"
	CodeUpstream   ErrorCode = "upstream_failure"
	CodeConfig     ErrorCode = "configuration"
	CodeInternal   ErrorCode = "internal"
)

// Error pairs a category with a human-readable message.
type Error struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Upstream wraps a remote-provider failure.
func Upstream(message string, err error) error {
	return &Error{Code: CodeUpstream, Message: message, Err: err}
}

// Validation reports malformed input.
func Validation(message string) error {
	return &Error{Code: CodeValidation, Message: message}
}

// CodeOf extracts the category from an error chain. Unrecognized errors are
// reported as internal.
func CodeOf(err error) ErrorCode {
	var me *Error
	if errors.As(err, &me) {
		return me.Code
	}
	return CodeInternal
}

// Sentinel errors for asset and progress operations.
var (
	// Not found
	ErrLessonNotFound = &Error{Code: CodeNotFound, Message: "lesson not found"}
	ErrCourseNotFound = &Error{Code: CodeNotFound, Message: "course not found"}
	ErrAssetNotFound  = &Error{Code: CodeNotFound, Message: "video asset not found"}
	ErrNoSourceFound  = &Error{Code: CodeNotFound, Message: "no archived source for this lesson"}

	// Authorization
	ErrNotEnrolled = &Error{Code: CodeForbidden, Message: "user is not enrolled in this course"}

	// Validation
	ErrMissingLessonID      = &Error{Code: CodeValidation, Message: "lessonId is required"}
	ErrMissingRemoteVideoID = &Error{Code: CodeValidation, Message: "remoteVideoId is required"}
	ErrLessonNotInCourse    = &Error{Code: CodeValidation, Message: "lesson does not belong to this course"}
	ErrFileTooLarge         = &Error{Code: CodeValidation, Message: "uploaded file exceeds the size limit"}
	ErrInvalidContentType   = &Error{Code: CodeValidation, Message: "invalid content type"}
	ErrMissingFile          = &Error{Code: CodeValidation, Message: "video file is required"}

	// Configuration
	ErrProviderNotConfigured = &Error{Code: CodeConfig, Message: "video provider library is not configured"}
)
