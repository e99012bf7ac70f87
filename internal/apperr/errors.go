// Package apperr defines the error kinds shared across the vault packages.
package apperr

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidJSON is returned when no parseable JSON object could be
	// extracted from a response or it does not match the expected shape.
	ErrInvalidJSON = errors.New("invalid JSON")

	// ErrOutsideVault is returned when a path resolves outside the vault root.
	ErrOutsideVault = errors.New("path outside vault")

	// ErrPartialBatch is returned when a batch stopped mid-way. Some
	// operations may already have been applied.
	ErrPartialBatch = errors.New("partial batch failure")

	// ErrCaptureTime is returned when a capture timestamp cannot be
	// normalized to a calendar date.
	ErrCaptureTime = errors.New("capture time unresolvable")

	// ErrInvalidOperation is returned for malformed file operations.
	ErrInvalidOperation = errors.New("invalid operation")
)

// Stable kind names reported to callers.
const (
	KindInvalidJSON      = "invalid_json"
	KindOutsideVault     = "path_outside_vault"
	KindPartialBatch     = "partial_batch"
	KindCaptureTime      = "capture_time_unresolvable"
	KindInvalidOperation = "invalid_operation"
	KindNotFound         = "not_found"
	KindFilesystem       = "filesystem"
)

// Kind classifies err into one of the stable kind names. Errors that match
// no sentinel are reported as filesystem errors.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidJSON):
		return KindInvalidJSON
	case errors.Is(err, ErrOutsideVault):
		return KindOutsideVault
	case errors.Is(err, ErrPartialBatch):
		return KindPartialBatch
	case errors.Is(err, ErrCaptureTime):
		return KindCaptureTime
	case errors.Is(err, ErrInvalidOperation):
		return KindInvalidOperation
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	default:
		return KindFilesystem
	}
}

// IsClientError reports whether err was caused by caller input rather than
// by the filesystem. Client errors leave the vault untouched.
func IsClientError(err error) bool {
	switch Kind(err) {
	case KindInvalidJSON, KindOutsideVault, KindCaptureTime, KindInvalidOperation:
		return true
	}
	return false
}
