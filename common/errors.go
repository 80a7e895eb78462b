package common

import "errors"

var (
	// ErrKeyNotFound is returned by Engine.Get when no live entry exists for
	// a digest. Engine.Delete of a missing key is not an error.
	ErrKeyNotFound = errors.New("kvdb: key not found")
	// ErrDiskFull is returned when growing the device would exceed a
	// configured disk budget.
	ErrDiskFull = errors.New("kvdb: disk full")

	// ErrClosed is returned by any Engine method called after Close.
	ErrClosed = errors.New("kvdb: engine closed")
	// ErrKeyEmpty rejects the zero-length key, which has no meaningful
	// digest-bucket placement.
	ErrKeyEmpty = errors.New("kvdb: key cannot be empty")
)
