// Package common defines shared constants, sentinel errors and small helpers
// used across the Geosnap client layers. Callers should use errors.Is to
// match these values.
package common

import (
	"errors"
	"fmt"
)

var (
	// Session errors.
	ErrAuthExpired              = errors.New("authentication expired")
	ErrRefreshRaceLost          = errors.New("refresh superseded by a newer credential")
	ErrUnauthorized             = errors.New("unauthorized")
	ErrInvalidState             = errors.New("invalid session state")
	ErrMissingAuthorizationCode = errors.New("missing authorization code")

	// Secure storage errors.
	ErrNoCredential = errors.New("no credential stored")
	ErrStorage      = errors.New("secure storage failure")

	// Transport errors.
	ErrNetworkUnavailable = errors.New("network unavailable")
	ErrRejected           = errors.New("request rejected")

	// Upload errors.
	ErrCompressionFailed     = errors.New("compression failed")
	ErrInvalidUploadResponse = errors.New("invalid upload response")
	ErrPartialUploadFailure  = errors.New("partial upload failure")
	ErrSignatureExpired      = errors.New("upload signature expired")
	ErrUploadInterrupted     = errors.New("upload interrupted")

	// Queue errors.
	ErrRetryExhausted = errors.New("retry exhausted")
	ErrDuplicateJob   = errors.New("duplicate upload job")
	ErrQueued         = errors.New("upload queued for retry")
)

// PartialUploadError reports that the backend photo record exists
// but its media never reached storage (or was never confirmed).
type PartialUploadError struct {
	PhotoID string
	Cause   error
}

func (e *PartialUploadError) Error() string {
	return fmt.Sprintf("%s: photo %s has metadata without media: %v", ErrPartialUploadFailure, e.PhotoID, e.Cause)
}

func (e *PartialUploadError) Is(target error) bool {
	return target == ErrPartialUploadFailure
}

func (e *PartialUploadError) Unwrap() error {
	return e.Cause
}

// IsRetryable reports whether err is a transient condition worth replaying later.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrNetworkUnavailable)
}
