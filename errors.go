package hubauth

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by the Engine matches exactly one of these
// with errors.Is, except storage and cancellation failures which match
// ErrBackendUnavailable.
var (
	// ErrAlreadyExists reports a username or role name collision.
	ErrAlreadyExists = errors.New("already exists")
	// ErrNotFound reports an unknown role, session or identity.
	ErrNotFound = errors.New("not found")
	// ErrInsufficientAccessRights reports an authorization or delegation denial.
	ErrInsufficientAccessRights = errors.New("insufficient access rights")
	// ErrInvalidArgument reports malformed input or an unresolvable rights update.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrInvalidToken reports an unknown or expired session secret.
	ErrInvalidToken = errors.New("invalid token")
	// ErrBanned reports a blocked actor or address.
	ErrBanned = errors.New("banned")
	// ErrInvalidCredentials is the single failure for every authentication miss.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrBackendUnavailable wraps storage failures and timeouts.
	ErrBackendUnavailable = errors.New("backend unavailable")
	// ErrRateLimited reports an exhausted login or registration budget.
	ErrRateLimited = errors.New("rate limited")
	// ErrEngineNotReady is returned by methods called on a nil Engine.
	ErrEngineNotReady = errors.New("engine not initialized")
)

var (
	ErrUserAlreadyExists = fmt.Errorf("user %w", ErrAlreadyExists)
	ErrRoleAlreadyExists = fmt.Errorf("role %w", ErrAlreadyExists)

	ErrUserNotFound    = fmt.Errorf("user %w", ErrNotFound)
	ErrRoleNotFound    = fmt.Errorf("role %w", ErrNotFound)
	ErrBanNotFound     = fmt.Errorf("active ban %w", ErrNotFound)
	ErrSessionNotFound = fmt.Errorf("session %w", ErrNotFound)
	// ErrSessionExpired is returned when the presented secret matched an
	// expired session. The session is gone once this is returned.
	ErrSessionExpired = fmt.Errorf("%w: expired", ErrSessionNotFound)

	ErrInvalidUsername = fmt.Errorf("%w: username", ErrInvalidArgument)
	ErrInvalidPassword = fmt.Errorf("%w: password", ErrInvalidArgument)
	ErrInvalidRoleName = fmt.Errorf("%w: role name", ErrInvalidArgument)
	ErrInvalidRights   = fmt.Errorf("%w: rights", ErrInvalidArgument)
	ErrRightsRequired  = fmt.Errorf("%w: rights required for a custom assignment", ErrInvalidArgument)
	ErrInvalidAddress  = fmt.Errorf("%w: network address", ErrInvalidArgument)
	ErrInvalidDuration = fmt.Errorf("%w: ban duration must be > 0", ErrInvalidArgument)
	ErrInvalidBanKind  = fmt.Errorf("%w: ban entity kind", ErrInvalidArgument)
	ErrInvalidReason   = fmt.Errorf("%w: ban reason", ErrInvalidArgument)

	ErrUserBanned    = fmt.Errorf("user %w", ErrBanned)
	ErrAddressBanned = fmt.Errorf("address %w", ErrBanned)

	ErrLoginRateLimited        = fmt.Errorf("login %w", ErrRateLimited)
	ErrRegistrationRateLimited = fmt.Errorf("registration %w", ErrRateLimited)

	// ErrRevocationFailed is returned by Ban when the address ban committed
	// but the resource revoker failed. The ban stays in force.
	ErrRevocationFailed = errors.New("address resource revocation failed")
)

var errorKinds = []error{
	ErrAlreadyExists,
	ErrNotFound,
	ErrInsufficientAccessRights,
	ErrInvalidArgument,
	ErrInvalidToken,
	ErrBanned,
	ErrInvalidCredentials,
	ErrBackendUnavailable,
	ErrRateLimited,
	ErrRevocationFailed,
}

func isDomainError(err error) bool {
	for _, kind := range errorKinds {
		if errors.Is(err, kind) {
			return true
		}
	}
	return false
}

// backendError passes domain errors through and wraps everything else,
// including context cancellation, in ErrBackendUnavailable.
func backendError(err error) error {
	if err == nil || isDomainError(err) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrBackendUnavailable, err)
}
