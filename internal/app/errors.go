/**
 * @description
 * Sentinel errors returned by the credits service and their mapping to stable API error codes.
 */
package app

import "errors"

var (
	ErrUnauthenticated        = errors.New("unauthenticated")
	ErrInvalidRequest         = errors.New("invalid request")
	ErrUnknownPackage         = errors.New("unknown credit package")
	ErrSessionNotFound        = errors.New("checkout session not found")
	ErrSessionOwnerMismatch   = errors.New("checkout session belongs to another user")
	ErrInvalidSessionMetadata = errors.New("checkout session metadata is invalid")
	ErrProviderUnavailable    = errors.New("payment provider unavailable")
	ErrLedgerWriteFailed      = errors.New("failed to record credit grant")
	ErrProfileNotFound        = errors.New("profile not found")
)

// ErrorCode maps a service error to the stable code returned to clients.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrUnauthenticated):
		return "unauthenticated"
	case errors.Is(err, ErrInvalidRequest):
		return "invalid_request"
	case errors.Is(err, ErrUnknownPackage):
		return "unknown_package"
	case errors.Is(err, ErrSessionNotFound):
		return "session_not_found"
	case errors.Is(err, ErrSessionOwnerMismatch):
		return "session_owner_mismatch"
	case errors.Is(err, ErrInvalidSessionMetadata):
		return "invalid_session_metadata"
	case errors.Is(err, ErrProviderUnavailable):
		return "provider_unavailable"
	case errors.Is(err, ErrProfileNotFound):
		return "profile_not_found"
	case errors.Is(err, ErrLedgerWriteFailed):
		return "ledger_write_failed"
	default:
		return "internal_error"
	}
}
