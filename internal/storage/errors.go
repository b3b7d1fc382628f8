package storage

import "errors"

// ErrNotFound is returned when no usable cache entry exists.
var ErrNotFound = errors.New("not found")
