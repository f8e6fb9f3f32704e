// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import (
	"errors"
	"fmt"
)

// Common sentinels across repo/service layers.
var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrValidation indicates malformed or rejected input.
	ErrValidation = errors.New("validation failed")

	// ErrAlreadyExists indicates a unique constraint violation (e.g., email taken).
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidCredentials indicates a failed email/password check. Unknown
	// email and wrong password are deliberately indistinguishable.
	ErrInvalidCredentials = errors.New("invalid email or password")

	// ErrInvalidToken indicates a token with a bad signature or an unknown/consumed refresh record.
	ErrInvalidToken = errors.New("invalid token")

	// ErrTokenExpired indicates a token past its expiry.
	ErrTokenExpired = errors.New("token expired")

	// ErrNotLinked indicates the account has no stored external-platform credentials.
	ErrNotLinked = errors.New("external platform not linked")

	// ErrDecryption indicates a tampered or malformed ciphertext bundle.
	ErrDecryption = errors.New("decryption failed")

	// ErrCsrf indicates a missing or invalid anti-forgery token.
	ErrCsrf = errors.New("invalid csrf token")

	// ErrRateLimited indicates too many failed login attempts.
	ErrRateLimited = errors.New("too many attempts, try again later")
)

// ExternalError wraps a third-party API or token-exchange failure.
// Terminal marks the credential as revoked upstream; the caller must
// prompt re-linking instead of retrying.
type ExternalError struct {
	Terminal bool
	Err      error
}

func (e *ExternalError) Error() string {
	if e.Terminal {
		return fmt.Sprintf("external service: credential revoked: %v", e.Err)
	}
	return fmt.Sprintf("external service: %v", e.Err)
}

func (e *ExternalError) Unwrap() error { return e.Err }

// IsAuthentication reports whether err belongs to the authentication
// category (invalid, expired, or not-linked).
func IsAuthentication(err error) bool {
	return errors.Is(err, ErrInvalidCredentials) ||
		errors.Is(err, ErrInvalidToken) ||
		errors.Is(err, ErrTokenExpired) ||
		errors.Is(err, ErrNotLinked)
}
