package vfs

import "errors"

var (
	// ErrInvalidPath marks a malformed logical path: empty, absolute, or one
	// that climbs out of the mount with "..". It is a caller bug.
	ErrInvalidPath = errors.New("invalid logical path")
	// ErrNotFound is the expected outcome when no mount holds the path.
	ErrNotFound = errors.New("path not found in any mount")

	ErrMountNotFound  = errors.New("mount not found")
	ErrDuplicateMount = errors.New("mount name already in use")
	ErrInvalidRoot    = errors.New("invalid mount root")
)
