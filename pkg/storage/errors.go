package storage

import "errors"

// ErrNotFound is wrapped into a descriptive error by every lookup method
// that fails to find its row. Handlers in pkg/protocol match against it
// with errors.Is to decide between a tagged NO and a connection-closing
// BYE.
var ErrNotFound = errors.New("not found")
