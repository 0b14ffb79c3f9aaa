package auth

import "errors"

// Credential failure taxonomy. The HTTP gate maps each value to its own
// machine-readable 401 code, so callers must be able to tell them apart
// with errors.Is; none of them is retryable.
var (
	ErrMissingCredential = errors.New("auth: missing credential")
	ErrExpired           = errors.New("auth: token expired")
	ErrInvalid           = errors.New("auth: invalid token")
	ErrRevoked           = errors.New("auth: token revoked")
	ErrPermissionDenied  = errors.New("auth: permission denied")

	ErrNotFound = errors.New("auth: not found")
)
