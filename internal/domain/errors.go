package domain

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrIndexNotBuilt signals that no index artifacts exist locally yet.
	ErrIndexNotBuilt = errors.New("index not built")
	// ErrIndexCorrupt signals an unreadable or inconsistent index artifact.
	ErrIndexCorrupt = errors.New("index corrupt")
	// ErrChecksumMismatch signals artifact bytes that do not match the manifest.
	ErrChecksumMismatch = errors.New("checksum mismatch")
	// ErrNoDocuments signals a build where no document parsed successfully.
	ErrNoDocuments = errors.New("no documents parsed successfully")
	// ErrAlreadyRunning signals reindex lock contention.
	ErrAlreadyRunning = errors.New("reindex already running")
	// ErrUnsupportedFormat signals a document the readers cannot handle.
	ErrUnsupportedFormat = errors.New("unsupported format")
	// ErrEmptyDocument signals a document that produced no text.
	ErrEmptyDocument = errors.New("empty text after parsing")
	// ErrVectorDimMismatch signals a vector dimension mismatch.
	ErrVectorDimMismatch = errors.New("vector dimension mismatch")
	// ErrModelMismatch signals artifacts built by a different embedding model.
	ErrModelMismatch = errors.New("embedding model mismatch")
	// ErrEmbeddingProviderError signals an embedding provider failure.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
	// ErrTimeout signals a backend call that exceeded its deadline. Retriable.
	ErrTimeout = errors.New("timeout")
	// ErrNotPublished signals a store without a finalized manifest.
	ErrNotPublished = errors.New("not yet published")
	// ErrConcurrentPublish signals that HEAD moved during a commit.
	ErrConcurrentPublish = errors.New("concurrent publish detected")
	// ErrNotFound signals a missing resource.
	ErrNotFound = errors.New("not found")
)

// TimeoutError wraps a deadline failure with the operation that timed out.
type TimeoutError struct {
	Op  string
	Err error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Op, ErrTimeout.Error(), e.Err)
}

// Unwrap exposes both ErrTimeout and the underlying cause.
func (e *TimeoutError) Unwrap() []error { return []error{ErrTimeout, e.Err} }

// WrapTimeout converts a context deadline into a TimeoutError and passes other errors through.
func WrapTimeout(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &TimeoutError{Op: op, Err: err}
	}
	return err
}

// IsRetriable reports whether a failed call may succeed when repeated.
func IsRetriable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrTimeout),
		errors.Is(err, ErrEmbeddingProviderError),
		errors.Is(err, ErrConcurrentPublish),
		errors.Is(err, ErrAlreadyRunning):
		return true
	}
	return false
}
