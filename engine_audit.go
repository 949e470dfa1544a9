package hubauth

import (
	"context"
	"errors"
)

const (
	auditEventLoginSuccess         = "login_success"
	auditEventLoginFailure         = "login_failure"
	auditEventLoginRateLimited     = "login_rate_limited"
	auditEventLoginBanned          = "login_banned"
	auditEventRegistration         = "registration"
	auditEventUserCreated          = "user_created"
	auditEventAccessRightsUpdated  = "access_rights_updated"
	auditEventAccessRightsDenied   = "access_rights_denied"
	auditEventRoleCreated          = "role_created"
	auditEventRoleUpdated          = "role_updated"
	auditEventRoleDeleted          = "role_deleted"
	auditEventLogoutSession        = "logout_session"
	auditEventLogoutAll            = "logout_all"
	auditEventBanAdded             = "ban_added"
	auditEventBanRemoved           = "ban_removed"
	auditEventBanExpired           = "ban_expired"
	auditEventAddressRevocation    = "address_resources_revoked"
	auditEventAuthorizationDenied  = "authorization_denied"
	auditEventOwnerBootstrapped    = "owner_bootstrapped"
	auditEventPasswordHashUpgraded = "password_hash_upgraded"
	auditEventBackendUnavailable   = "backend_unavailable"
)

// AuditErrorCode is the stable error label written to AuditEvent.Error.
type AuditErrorCode string

const (
	auditErrInvalidCredentials AuditErrorCode = "invalid_credentials"
	auditErrRateLimited        AuditErrorCode = "rate_limited"
	auditErrInvalidToken       AuditErrorCode = "invalid_token"
	auditErrBanned             AuditErrorCode = "banned"
	auditErrForbidden          AuditErrorCode = "insufficient_access_rights"
	auditErrInvalidArgument    AuditErrorCode = "invalid_argument"
	auditErrNotFound           AuditErrorCode = "not_found"
	auditErrDuplicate          AuditErrorCode = "duplicate"
	auditErrRevocationFailed   AuditErrorCode = "revocation_failed"
	auditErrUnavailable        AuditErrorCode = "backend_unavailable"
	auditErrInternal           AuditErrorCode = "internal_error"
)

var auditLevels = map[string]string{
	auditEventLoginFailure:        AuditLevelWarning,
	auditEventLoginRateLimited:    AuditLevelWarning,
	auditEventLoginBanned:         AuditLevelWarning,
	auditEventAccessRightsUpdated: AuditLevelWarning,
	auditEventAccessRightsDenied:  AuditLevelWarning,
	auditEventRoleDeleted:         AuditLevelWarning,
	auditEventBanAdded:            AuditLevelWarning,
	auditEventAuthorizationDenied: AuditLevelWarning,
	auditEventAddressRevocation:   AuditLevelWarning,
	auditEventBackendUnavailable:  AuditLevelError,
}

// emitAudit queues one audit event. When the buffer is full it drops at once
// under Audit.DropIfFull and otherwise waits at most Audit.BlockTimeout. The
// wait is not cancelled with ctx, so entries for committed changes are not
// lost when the caller goes away.
func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	actor string,
	subject string,
	message string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	level := auditLevels[eventType]
	if level == "" {
		level = AuditLevelInfo
	}
	if errors.Is(err, ErrBackendUnavailable) {
		level = AuditLevelError
	}

	source := AuditSourceUser
	if actor == "" || actor == SystemActor {
		source = AuditSourceSystem
		actor = SystemActor
	}

	event := AuditEvent{
		Timestamp: e.now().UTC(),
		EventType: eventType,
		Level:     level,
		Source:    source,
		Actor:     actor,
		Subject:   subject,
		IP:        clientIPFromContext(ctx),
		Success:   success,
		Message:   message,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(context.WithoutCancel(ctx), event)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrRateLimited):
		return auditErrRateLimited
	case errors.Is(err, ErrInvalidToken):
		return auditErrInvalidToken
	case errors.Is(err, ErrBanned):
		return auditErrBanned
	case errors.Is(err, ErrInsufficientAccessRights):
		return auditErrForbidden
	case errors.Is(err, ErrInvalidArgument):
		return auditErrInvalidArgument
	case errors.Is(err, ErrNotFound):
		return auditErrNotFound
	case errors.Is(err, ErrAlreadyExists):
		return auditErrDuplicate
	case errors.Is(err, ErrRevocationFailed):
		return auditErrRevocationFailed
	case errors.Is(err, ErrBackendUnavailable):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}
