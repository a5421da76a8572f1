package gateway

import (
	"errors"
	"fmt"
	"net/http"
)

// RequestError is returned when the server answers with a status outside 200–299.
type RequestError struct {
	Method     string
	Path       string
	StatusCode int
	// Message is the server's message when it sent one, otherwise the operation fallback.
	Message string
}

func (e *RequestError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return e.Message
}

// NetworkError is returned when the request could not be completed at all.
type NetworkError struct {
	Method string
	Path   string
	Err    error
}

func (e *NetworkError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%s %s: %v", e.Method, e.Path, e.Err)
}

// Unwrap exposes the transport cause, so errors.Is(err, context.DeadlineExceeded) works.
func (e *NetworkError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// StatusCode extracts the HTTP status from a RequestError, or 0.
func StatusCode(err error) int {
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return reqErr.StatusCode
	}
	return 0
}

// IsNotFound reports whether err is a 404 RequestError.
func IsNotFound(err error) bool {
	return StatusCode(err) == http.StatusNotFound
}

// IsNetwork reports whether err is a NetworkError.
func IsNetwork(err error) bool {
	var netErr *NetworkError
	return errors.As(err, &netErr)
}
