package httpapi

import "errors"

// Errors surfaced only at the HTTP layer — spec.md §7 names these alongside
// the registry/appcred sentinels but they have no meaning below the HTTP
// adapter (IncorrectKey is IncorrectKey only at /connect; InvalidSockType
// only makes sense once a role is being derived from a query parameter).
var (
	ErrMissingParams  = errors.New("required query parameter missing")
	ErrIncorrectKey   = errors.New("key verification failed at connect")
	ErrInvalidSockType = errors.New("sock_type missing or not host/client for a hostclient registration")
)
