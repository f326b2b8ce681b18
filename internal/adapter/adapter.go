package adapter

import (
	"context"
	"errors"
	"fmt"
)

// ErrUpstreamUnavailable reports that no stream could be established with the
// provider. No fragment was produced when this error is returned.
var ErrUpstreamUnavailable = errors.New("upstream unavailable")

// Request describes a single generation call.
type Request struct {
	Prompt      string
	Model       string
	Temperature float64
	MaxTokens   int
}

// ChunkStream yields text fragments one at a time. Recv returns io.EOF once
// the sequence is exhausted; any other error terminates the stream.
type ChunkStream interface {
	Recv() (string, error)
	Close() error
}

// Provider opens chunk streams against a text generator. A nil error from
// OpenStream means the stream is established.
type Provider interface {
	Name() string
	OpenStream(ctx context.Context, req Request) (ChunkStream, error)
}

// UnavailableError is returned when every attempt to open a stream failed.
type UnavailableError struct {
	Provider string
	Attempts int
	Err      error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("%s: %s after %d attempt(s): %v", e.Provider, ErrUpstreamUnavailable, e.Attempts, e.Err)
}

func (e *UnavailableError) Unwrap() []error {
	return []error{ErrUpstreamUnavailable, e.Err}
}

// StatusError carries the HTTP status returned by an upstream when a stream
// could not be opened.
type StatusError struct {
	StatusCode int
	Err        error
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream status %d: %v", e.StatusCode, e.Err)
}

func (e *StatusError) Unwrap() error { return e.Err }
