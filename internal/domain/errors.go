package domain

import "errors"

// Sentinel errors shared by repositories, services and handlers.
// Callers branch on them with errors.Is; wrapping adds context only.
var (
	ErrDuplicateTenant    = errors.New("tenant already exists")
	ErrDuplicateUser      = errors.New("user already exists")
	ErrTenantNotFound     = errors.New("tenant not found")
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidAPIKey      = errors.New("invalid api key")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrTokenExpired       = errors.New("token expired")
	ErrTokenInvalid       = errors.New("token invalid")
	ErrSessionRevoked     = errors.New("session revoked")
	ErrCorruptDigest      = errors.New("corrupt password digest")
	ErrHashingFailure     = errors.New("password hashing failed")
	ErrStoreUnavailable   = errors.New("record store unavailable")

	ErrValidation      = errors.New("validation failed")
	ErrForbidden       = errors.New("forbidden")
	ErrTooManyAttempts = errors.New("too many failed attempts")
)
