package chaincode

import "errors"

// Error kinds surfaced by every contract operation. Callers match with
// errors.Is; the off-chain relay maps them to HTTP status codes.
var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrNotFound        = errors.New("not found")
	ErrAlreadyExists   = errors.New("already exists")
	ErrInvalidState    = errors.New("invalid state")
	ErrOutOfRange      = errors.New("out of range")
	ErrUnauthorized    = errors.New("unauthorized")
)
