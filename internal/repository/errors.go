package repository

import "errors"

// ErrNotFound indicates the requested record does not exist in the backing store.
var ErrNotFound = errors.New("record not found")
