package stores

import "errors"

// ErrBackend wraps any failure of the underlying key/value store.
var ErrBackend = errors.New("token store backend unavailable")
