package appcred

import "errors"

// Hashing errors.
var (
	ErrUnhashableKey = errors.New("unhashable key: could not derive credential hash")
)
