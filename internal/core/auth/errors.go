package auth

import "errors"

// Missing and invalid keys map to Unauthenticated without confirming whether
// a key exists. Revoked keys map to PermissionDenied.
var (
	ErrMissingKey       = errors.New("API key required in x-api-key metadata")
	ErrInvalidKeyFormat = errors.New("invalid API key format")
	ErrUnknownKey       = errors.New("unknown secret ID")
	ErrInvalidKey       = errors.New("invalid API key")
	ErrKeyRevoked       = errors.New("API key has been revoked")
	ErrStore            = errors.New("key store unavailable")
)
