package gate

import "errors"

// Sentinel errors returned by Gate.Authorize. Policies may return their own errors.
var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrForbidden       = errors.New("forbidden")
	ErrInvalidCode     = errors.New("invalid permission code")
)
