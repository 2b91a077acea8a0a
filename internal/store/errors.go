package store

import "errors"

var (
	// ErrClosed is returned by operations on a closed Store.
	ErrClosed = errors.New("store: closed")

	// ErrEmptyKey is returned when a Store is created without a key.
	ErrEmptyKey = errors.New("store: key is required")
)
