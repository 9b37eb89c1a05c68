package utils

import (
	"errors"
	"net/http"
)

type AppError struct {
	Code    string
	Message string
	Origin  error // Original error that caused this error, if any
}

func (appErr *AppError) Error() string {
	if appErr.Origin != nil {
		return appErr.Message + ": " + appErr.Origin.Error()
	}
	return appErr.Message
}

// Unwrap exposes the origin to errors.Is and errors.As.
func (appErr *AppError) Unwrap() error {
	return appErr.Origin
}

// Standard error codes for the application
const (
	// Resource errors
	ErrNotFound     = "NOT_FOUND"
	ErrInvalidInput = "INVALID_INPUT"

	// User-specific errors
	ErrUserNotFound = "USER_NOT_FOUND"

	// Thread operation errors
	ErrCreation = "CREATION_ERROR"
	ErrFetch    = "FETCH_ERROR"
	ErrComment  = "COMMENT_ERROR"

	ErrDatabase = "database_error"
)

// Messages used as the prefix of thread operation errors.
const (
	creationMessage = "Error creating thread"
	fetchMessage    = "Error fetching thread"
	commentMessage  = "Error adding comment"
)

// Error creation helper functions
func NewAppError(code string, message string, originalErr error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Origin:  originalErr,
	}
}

func NewUserNotFoundError(userId string) *AppError {
	return &AppError{
		Code:    ErrUserNotFound,
		Message: "User not found: " + userId,
	}
}

func NewThreadNotFoundError() *AppError {
	return &AppError{
		Code:    ErrNotFound,
		Message: "Thread not found",
	}
}

func NewCreationError(cause error) *AppError {
	return NewAppError(ErrCreation, creationMessage, cause)
}

func NewFetchError(cause error) *AppError {
	return NewAppError(ErrFetch, fetchMessage, cause)
}

func NewCommentError(cause error) *AppError {
	return NewAppError(ErrComment, commentMessage, cause)
}

// IsErrorCode reports whether err, or any error it wraps, is an AppError with code.
func IsErrorCode(err error, code string) bool {
	for err != nil {
		var appErr *AppError
		if !errors.As(err, &appErr) {
			return false
		}
		if appErr.Code == code {
			return true
		}
		err = appErr.Origin
	}
	return false
}

// AppErrorToHTTPStatus converts an AppError code to an HTTP status code.
func AppErrorToHTTPStatus(errorCode string) int {
	switch errorCode {
	case ErrNotFound, ErrUserNotFound:
		return http.StatusNotFound
	case ErrInvalidInput:
		return http.StatusBadRequest
	case ErrDatabase, ErrCreation, ErrFetch, ErrComment:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// HTTPStatus picks the status for err, preferring the most specific code in
// the chain. Wrapping codes such as COMMENT_ERROR fall through to whatever
// they wrap.
func HTTPStatus(err error) int {
	for _, code := range []string{ErrNotFound, ErrUserNotFound, ErrInvalidInput} {
		if IsErrorCode(err, code) {
			return AppErrorToHTTPStatus(code)
		}
	}
	return http.StatusInternalServerError
}
