package api

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind classifies a failed backend call.
type ErrorKind string

const (
	KindTransport ErrorKind = "transport"
	KindTimeout   ErrorKind = "timeout"
	KindStatus    ErrorKind = "status"
	KindDecode    ErrorKind = "decode"
)

// Error is returned by every Client method that fails.
type Error struct {
	Kind       ErrorKind
	Method     string
	Path       string
	StatusCode int
	Body       string
	Err        error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindStatus:
		if e.Body != "" {
			return fmt.Sprintf("%s %s: API returned %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
		}
		return fmt.Sprintf("%s %s: API returned %d", e.Method, e.Path, e.StatusCode)
	case KindDecode:
		return fmt.Sprintf("%s %s: failed to parse response: %v", e.Method, e.Path, e.Err)
	case KindTimeout:
		return fmt.Sprintf("%s %s: request timed out: %v", e.Method, e.Path, e.Err)
	default:
		return fmt.Sprintf("%s %s: API request failed: %v", e.Method, e.Path, e.Err)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Notice is the short, user-facing text shown in a toast for this error.
func (e *Error) Notice() string {
	switch {
	case e.Kind == KindTimeout:
		return "Request timeout - AI operation taking too long"
	case e.StatusCode == http.StatusInternalServerError:
		return "Server error occurred"
	case e.StatusCode == http.StatusNotFound:
		return "Resource not found"
	default:
		return "Request failed"
	}
}

// IsNotFound reports whether err is a 404 from the backend.
func IsNotFound(err error) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// Notice returns the toast text for any error, falling back to a generic message.
func Notice(err error) string {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Notice()
	}
	return "Request failed"
}
