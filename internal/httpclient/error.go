package httpclient

import (
	goerrors "errors"
	"fmt"

	ierr "github.com/flexprice/ebilling/internal/errors"
)

// Error represents an HTTP client error
type Error struct {
	*ierr.InternalError
	StatusCode int
	Response   []byte
	Headers    map[string]string
}

func (e *Error) Unwrap() error {
	return e.InternalError
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: status %d", e.InternalError.Error(), e.StatusCode)
}

// NewError creates a new HTTP client error
func NewError(statusCode int, response []byte, headers map[string]string) *Error {
	return &Error{
		InternalError: ierr.New(ierr.ErrCodeHTTPClient, "http client error"),
		StatusCode:    statusCode,
		Response:      response,
		Headers:       headers,
	}
}

// IsHTTPError checks if an error is an HTTP client error
func IsHTTPError(err error) (*Error, bool) {
	var httpErr *Error
	if goerrors.As(err, &httpErr) {
		return httpErr, true
	}
	return nil, false
}
