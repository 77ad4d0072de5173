// ABOUTME: Error types for stream transports
// ABOUTME: Defines sentinel errors and the OpenError returned for unusable URLs
package stream

import (
	"errors"
	"fmt"
)

var (
	// ErrNotReady is returned by StartPlayback before the transport is Ready
	ErrNotReady = errors.New("stream not ready")

	// ErrClosed is returned by channel operations after the transport closed
	ErrClosed = errors.New("stream closed")

	// ErrEndOfStream marks a server closing the stream
	ErrEndOfStream = errors.New("end of stream")

	// ErrUnsupportedScheme is wrapped by OpenError for non-HTTP URLs
	ErrUnsupportedScheme = errors.New("unsupported URL scheme")
)

// OpenError reports a URL that can never be opened
type OpenError struct {
	URL string
	Err error
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("open %q: %v", e.URL, e.Err)
}

func (e *OpenError) Unwrap() error {
	return e.Err
}

// StatusError reports a non-success HTTP response
type StatusError struct {
	Code   int
	Status string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected HTTP status: %s", e.Status)
}
