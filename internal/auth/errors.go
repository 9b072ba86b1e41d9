package auth

import "errors"

var (
	// ErrAuthenticationRequired means no credential was supplied at all.
	ErrAuthenticationRequired = errors.New("auth: authentication required")

	// ErrInvalidCredential covers malformed, forged, wrong-secret and
	// revoked credentials. Verification failures are deliberately not
	// distinguished further to avoid a guessing oracle.
	ErrInvalidCredential = errors.New("auth: invalid credential")

	// ErrExpiredCredential means the credential was valid once but is past
	// its validity window.
	ErrExpiredCredential = errors.New("auth: expired credential")
)
