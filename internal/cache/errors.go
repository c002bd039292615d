package cache

import "errors"

// ErrUnknownGroup is returned by Get for a key with no registered fetcher.
var ErrUnknownGroup = errors.New("unknown query group")
