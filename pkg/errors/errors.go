package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrDocumentNotFound = errors.New("document not found")
	ErrDocumentExists   = errors.New("document already exists")
	ErrInvalidInput     = errors.New("invalid input")
	ErrEngineClosed     = errors.New("index engine closed")
	ErrInternal         = errors.New("internal error")
	ErrTimeout          = errors.New("operation timed out")
)

// Query expansion failures. All of them are recoverable per query: the
// caller falls back to the unexpanded query.
var (
	ErrInvalidParameter = errors.New("invalid feedback parameter")
	ErrEmptyFeedbackSet = errors.New("no feedback documents found")
	ErrMissingDefault   = errors.New("missing default feedback parameter")
	ErrDegenerateInput  = errors.New("degenerate feedback input")
	ErrNonConvergence   = errors.New("weight estimation did not converge")
)

type AppError struct {
	Err        error
	Message    string
	StatusCode int
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(sentinel error, statusCode int, message string) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    message,
		StatusCode: statusCode,
	}
}

func Newf(sentinel error, statusCode int, format string, args ...any) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    fmt.Sprintf(format, args...),
		StatusCode: statusCode,
	}
}

func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrDocumentNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrDocumentExists):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrInvalidParameter):
		return http.StatusBadRequest
	case errors.Is(err, ErrEmptyFeedbackSet),
		errors.Is(err, ErrDegenerateInput),
		errors.Is(err, ErrNonConvergence):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrEngineClosed), errors.Is(err, ErrTimeout):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}

}
