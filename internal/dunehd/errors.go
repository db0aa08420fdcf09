package dunehd

import (
	"errors"
	"fmt"
)

// HTTPError is a non-2xx answer from the player's web server.
type HTTPError struct {
	Command    Command
	StatusCode int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("dunehd command %s failed: http %d", e.Command, e.StatusCode)
}

// TimeoutError indicates a request timed out.
type TimeoutError struct {
	Command Command
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("dunehd command %s timed out", e.Command)
}

// UnreachableError indicates the device could not be reached.
type UnreachableError struct {
	Command Command
	Err     error
}

func (e *UnreachableError) Error() string {
	return fmt.Sprintf("dunehd command %s unreachable: %v", e.Command, e.Err)
}

func (e *UnreachableError) Unwrap() error {
	return e.Err
}

// ParseError indicates the response body was not a valid status document.
type ParseError struct {
	Command Command
	Err     error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("dunehd command %s: invalid status: %v", e.Command, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// IsTransportError reports whether err came from talking to the device
// rather than from the caller's context being cancelled.
func IsTransportError(err error) bool {
	var timeout *TimeoutError
	var unreachable *UnreachableError
	var httpErr *HTTPError
	var parseErr *ParseError
	return errors.As(err, &timeout) || errors.As(err, &unreachable) ||
		errors.As(err, &httpErr) || errors.As(err, &parseErr)
}
