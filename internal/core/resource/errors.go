package resource

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownKind   = errors.New("resource kind not registered")
	ErrInvalidKind   = errors.New("invalid resource kind")
	ErrDuplicateKind = errors.New("resource kind already registered")
	// ErrAssetNotFound is the expected outcome when no mount holds the path.
	// Callers usually fall back to a default resource.
	ErrAssetNotFound = errors.New("asset not found")
	// ErrLoadFailed is matched by every *LoadError.
	ErrLoadFailed        = errors.New("resource load failed")
	ErrRefCountUnderflow = errors.New("resource released more times than acquired")
	ErrHandleFailed      = errors.New("resource handle failed to load")
	ErrHandleReleased    = errors.New("resource handle released")
	ErrHandleNotReady    = errors.New("resource handle still loading")
	ErrPayloadType       = errors.New("resource payload has unexpected type")
	ErrManagerClosed     = errors.New("resource manager closed")
)

// LoadError is delivered to every caller waiting on a failed load of Key.
type LoadError struct {
	Key   Key
	Cause error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load %s: %v", e.Key, e.Cause)
}

func (e *LoadError) Unwrap() []error {
	return []error{ErrLoadFailed, e.Cause}
}
