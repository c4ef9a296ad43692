// Package apperr defines the typed failures surfaced by the playlist
// resolver, the stream proxy and the service layer, and their HTTP mapping.
package apperr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ValidationError reports bad or missing input. No network call was made.
type ValidationError struct {
	Msg     string
	Details []string
}

func (e *ValidationError) Error() string {
	if len(e.Details) == 0 {
		return e.Msg
	}
	return e.Msg + ": " + strings.Join(e.Details, "; ")
}

// Validation builds a ValidationError from a format string.
func Validation(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// FetchError reports an unreachable remote source or a non-success response.
// Status is the upstream HTTP status, or 0 when no response was received.
type FetchError struct {
	URL    string
	Status int
	Err    error
}

func (e *FetchError) Error() string {
	switch {
	case e.Status != 0:
		return fmt.Sprintf("fetch %s: upstream returned %d", e.URL, e.Status)
	case e.Err != nil:
		return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
	}
	return "fetch " + e.URL + ": failed"
}

func (e *FetchError) Unwrap() error { return e.Err }

// TimeoutError reports a remote source that did not answer in time.
type TimeoutError struct {
	URL string
	Err error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("fetch %s: timed out", e.URL)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

// NotFoundError reports a missing entity.
type NotFoundError struct {
	Kind string
	ID   any
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %v not found", e.Kind, e.ID)
}

// ConflictError reports an operation that collides with one already in flight.
type ConflictError struct {
	Msg string
}

func (e *ConflictError) Error() string { return e.Msg }

// FromTransport classifies a client transport error for url.
// Deadline errors become TimeoutError, everything else FetchError.
func FromTransport(url string, err error) error {
	if err == nil {
		return nil
	}
	if isTimeout(err) {
		return &TimeoutError{URL: url, Err: err}
	}
	return &FetchError{URL: url, Err: err}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var te interface{ Timeout() bool }
	return errors.As(err, &te) && te.Timeout()
}

// HTTPStatus maps err to a response status code.
func HTTPStatus(err error) int {
	var (
		ve *ValidationError
		fe *FetchError
		te *TimeoutError
		ne *NotFoundError
		ce *ConflictError
	)
	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &ve):
		return http.StatusBadRequest
	case errors.As(err, &te):
		return http.StatusGatewayTimeout
	case errors.As(err, &fe):
		return http.StatusBadGateway
	case errors.As(err, &ne):
		return http.StatusNotFound
	case errors.As(err, &ce):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// Details returns the diagnostic list carried by a ValidationError, if any.
func Details(err error) []string {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Details
	}
	return nil
}
