package registry

import "errors"

// Registry-level errors, surfaced by the HTTP adapters.
var (
	ErrMissingRegistrationType = errors.New("reg_type missing or unrecognized")
	ErrIncorrectLengthID       = errors.New("id_req must be exactly 8 characters")
	ErrInUseID                 = errors.New("requested id is already in use")
	ErrInvalidKey              = errors.New("key verification failed")
	ErrNotFound                = errors.New("registration not found")
)
