package constants

import (
	"errors"
	"fmt"
	"net/http"
)

// Errors
var (
	ErrNotFound       = errors.New("not found")
	ErrSchemaNotFound = fmt.Errorf("schema %w", ErrNotFound)
	ErrValidation     = errors.New("validation failed")
	ErrConflict       = errors.New("document update conflict")
	ErrIndexMissing   = errors.New("no usable index")
	ErrUnavailable    = errors.New("document store unavailable")
	ErrPartialBulk    = errors.New("bulk write partially failed")
)

// Error is the structured failure returned by create, update and delete calls.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Code returns the numeric code for err, 500 when it matches no known condition.
func Code(err error) int {
	var structured *Error
	switch {
	case err == nil:
		return 0
	case errors.As(err, &structured):
		return structured.Code
	case errors.Is(err, ErrPartialBulk):
		return http.StatusMultiStatus
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrIndexMissing):
		return http.StatusFailedDependency
	case errors.Is(err, ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Wrap converts err into an *Error. It returns nil for a nil error and err itself when
// it already is structured.
func Wrap(err error) error {
	if err == nil {
		return nil
	}
	var structured *Error
	if errors.As(err, &structured) {
		return err
	}
	return &Error{Code: Code(err), Message: err.Error(), Err: err}
}

// Validationf builds a validation error that wraps ErrValidation.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
