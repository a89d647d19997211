// Package errdefs holds the error taxonomy shared by the ingestion path.
//
// Every error returned across the RPC boundary wraps exactly one of these
// sentinels so callers can branch with errors.Is regardless of how much
// context was added on the way out.
package errdefs

import "errors"

var (
	// ErrAdmissionDenied is returned when a connection ceiling is reached.
	ErrAdmissionDenied = errors.New("admission denied: connection ceiling reached")
	// ErrUnknownClient is returned for ids that are not (or no longer) registered.
	ErrUnknownClient = errors.New("unknown client")
	// ErrBackpressure signals a full ingestion queue. Producers should slow down.
	ErrBackpressure = errors.New("backpressure: ingestion queue is full")
	// ErrMalformed marks a rejected request or sample.
	ErrMalformed = errors.New("malformed input")
	// ErrShuttingDown is returned for work submitted after shutdown began.
	ErrShuttingDown = errors.New("server is shutting down")
)
