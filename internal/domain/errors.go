package domain

import (
	"fmt"
)

type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"-"`
	Err        error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Is matches on Code so that errors.Is(err, ErrCameraUnavailable) holds for
// copies produced by WithError.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

func (e *AppError) WithError(err error) *AppError {
	return &AppError{
		Code:       e.Code,
		Message:    e.Message,
		StatusCode: e.StatusCode,
		Err:        err,
	}
}

// Pre-defined errors
var (
	ErrInternal = &AppError{
		Code:       "INTERNAL_ERROR",
		Message:    "An unexpected error occurred",
		StatusCode: 500,
	}

	ErrValidationFailed = &AppError{
		Code:       "VALIDATION_FAILED",
		Message:    "Request validation failed",
		StatusCode: 422,
	}

	ErrInvalidIdentity = &AppError{
		Code:       "INVALID_IDENTITY",
		Message:    "user_id is missing or cannot be used as a file name",
		StatusCode: 400,
	}

	// Device errors

	ErrCameraUnavailable = &AppError{
		Code:       "CAMERA_UNAVAILABLE",
		Message:    "camera could not be opened",
		StatusCode: 500,
	}

	ErrFrameRead = &AppError{
		Code:       "FRAME_READ_FAILED",
		Message:    "error while reading frame",
		StatusCode: 500,
	}

	// Policy rejections

	ErrMultipleSubjects = &AppError{
		Code:       "MULTIPLE_SUBJECTS",
		Message:    "multiple persons in picture",
		StatusCode: 400,
	}

	ErrNoSubject = &AppError{
		Code:       "NO_SUBJECT",
		Message:    "no person in picture",
		StatusCode: 400,
	}

	ErrRateLimitExceeded = &AppError{
		Code:       "RATE_LIMIT_EXCEEDED",
		Message:    "too many camera requests",
		StatusCode: 429,
	}

	// Reference image state

	ErrNoReference = &AppError{
		Code:       "NO_REFERENCE",
		Message:    "control image not found",
		StatusCode: 404,
	}
)
