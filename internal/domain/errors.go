package domain

import (
	"errors"
	"fmt"
)

// Domain errors are returned by the public API and can be checked with errors.Is.
var (
	// ErrAlreadyRunning is returned when Start() is called on a running instance.
	ErrAlreadyRunning = errors.New("rtcshare: already running")

	// ErrNotRunning is returned when Stop() is called on a stopped instance.
	ErrNotRunning = errors.New("rtcshare: not running")

	// ErrShutdownTimeout is returned when graceful shutdown times out.
	ErrShutdownTimeout = errors.New("rtcshare: shutdown timeout")

	// ErrInvalidConfig is returned when configuration validation fails.
	ErrInvalidConfig = errors.New("rtcshare: invalid configuration")

	// ErrMalformedFrame is returned for frames without a header line or
	// with a header that is not valid JSON, and for bad multipart markers.
	ErrMalformedFrame = errors.New("rtcshare: malformed frame")

	// ErrUnexpectedMessage is returned when a message type is not valid in
	// the current session state. The session is closed.
	ErrUnexpectedMessage = errors.New("rtcshare: unexpected message type")

	// ErrUnavailable is the access-layer "no data" outcome.
	ErrUnavailable = errors.New("rtcshare: unavailable")

	// ErrNotInitialized is returned by record streams whose header could
	// not be read. It matches ErrUnavailable.
	ErrNotInitialized = fmt.Errorf("%w: record stream not initialized", ErrUnavailable)

	// ErrEndianness is returned when a binary container's first frame size
	// is implausibly large.
	ErrEndianness = errors.New("rtcshare: frame size sanity check failed, possible endianness mismatch")

	// ErrClosed is returned by components used after Close.
	ErrClosed = errors.New("rtcshare: closed")

	// ErrNotConnected is returned when a request is issued on a session
	// that is not acknowledged.
	ErrNotConnected = errors.New("rtcshare: not connected")

	// ErrInvalidRequest is returned for application requests of unknown
	// type or with missing fields.
	ErrInvalidRequest = errors.New("rtcshare: invalid request")
)

// ChunkFetchError reports a failed fetch of one chunk. It matches
// ErrUnavailable.
type ChunkFetchError struct {
	Path  string
	Index int64
	Err   error
}

func (e *ChunkFetchError) Error() string {
	return fmt.Sprintf("fetch chunk %d of %s: %v", e.Index, e.Path, e.Err)
}

// Unwrap exposes the cause.
func (e *ChunkFetchError) Unwrap() error { return e.Err }

// Is reports ErrUnavailable as a match.
func (e *ChunkFetchError) Is(target error) bool { return target == ErrUnavailable }

// RemoteError carries the error string sent back by the remote side of a
// request.
type RemoteError struct {
	Message string
}

func (e *RemoteError) Error() string {
	return "remote: " + e.Message
}
