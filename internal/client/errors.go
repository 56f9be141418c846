package client

import (
	"errors"
	"fmt"

	"github.com/roach88/almanac/internal/ir"
)

var (
	// ErrTimeout is returned when the worker does not answer within the
	// request timeout.
	ErrTimeout = errors.New("request timed out")

	// ErrWorkerStopped is returned when the worker stops before answering,
	// or rejects a request because it is shutting down.
	ErrWorkerStopped = errors.New("worker stopped")

	// ErrClosed is returned by calls on a closed Client.
	ErrClosed = errors.New("client closed")
)

// RemoteError is an ERROR response from the worker.
type RemoteError struct {
	ID      int64
	Kind    ir.ErrorKind
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// KindOf returns the wire error kind of err, or "" if err is not a RemoteError.
func KindOf(err error) ir.ErrorKind {
	var re *RemoteError
	if errors.As(err, &re) {
		return re.Kind
	}
	return ""
}

// IsNotInitialized reports whether the worker rejected the request because
// INIT has not completed.
func IsNotInitialized(err error) bool {
	return KindOf(err) == ir.KindNotInitialized
}

// IsInitializationError reports whether INIT failed to restore the snapshot.
func IsInitializationError(err error) bool {
	return KindOf(err) == ir.KindInitialization
}
