package hubauth

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/serverhub/hubauth/permission"
)

// Authorize decides whether a request may use req.Capability.
//
// Denials are reported in a fixed order: a banned address (ErrAddressBanned),
// then an unknown or expired token (ErrInvalidToken), then a banned user
// (ErrUserBanned), then missing rights (ErrInsufficientAccessRights). Storage
// failures return ErrBackendUnavailable and never authorize.
func (e *Engine) Authorize(ctx context.Context, req AuthRequest) (Principal, error) {
	if e == nil {
		return Principal{}, ErrEngineNotReady
	}
	start := time.Now()
	defer e.metricObserve(MetricAuthorizeLatency, start)

	principal, err := e.authorize(ctx, req)
	if err != nil {
		e.recordDenial(ctx, req, principal.Username, err)
		return Principal{}, err
	}
	e.metricInc(MetricAuthorizeAllowed)
	return principal, nil
}

func (e *Engine) authorize(ctx context.Context, req AuthRequest) (Principal, error) {
	if !req.Capability.Valid() {
		return Principal{}, ErrInvalidRights
	}

	// The address check and the session scan are independent; run them
	// together and apply their results in order.
	var (
		addressErr error
		info       SessionInfo
		sessionErr error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		addressErr = e.checkAddress(gctx, req.Address)
		return nil
	})
	g.Go(func() error {
		info, sessionErr = e.ResolveSession(gctx, req.Token)
		return nil
	})
	_ = g.Wait()

	if addressErr != nil {
		return Principal{}, addressErr
	}
	if sessionErr != nil {
		if errors.Is(sessionErr, ErrNotFound) {
			return Principal{}, ErrInvalidToken
		}
		return Principal{}, sessionErr
	}

	var (
		blocked bool
		user    User
	)
	g, gctx = errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		blocked, err = e.IsBlocked(gctx, info.Username, BanUser)
		return err
	})
	g.Go(func() error {
		var err error
		user, err = e.User(gctx, info.Username)
		if errors.Is(err, ErrUserNotFound) {
			return ErrInvalidToken
		}
		return err
	})
	if err := g.Wait(); err != nil {
		return Principal{}, err
	}

	if blocked {
		return Principal{Username: info.Username}, ErrUserBanned
	}
	if !user.Permissions.Has(req.Capability) {
		return Principal{Username: info.Username}, ErrInsufficientAccessRights
	}

	return Principal{
		Username:    user.Username,
		Assignment:  user.Assignment,
		Permissions: user.Permissions,
		Session:     info,
	}, nil
}

// AuthorizeGrant authorizes req for ModifyAccess (plus req.Capability) and
// then checks that the principal may hand out target.
func (e *Engine) AuthorizeGrant(ctx context.Context, req AuthRequest, target permission.Set) (Principal, error) {
	if e == nil {
		return Principal{}, ErrEngineNotReady
	}

	req.Capability = req.Capability.Union(permission.ModifyAccess)
	principal, err := e.Authorize(ctx, req)
	if err != nil {
		return Principal{}, err
	}
	if !permission.CanGrant(principal.Permissions, target) {
		e.metricInc(MetricAccessRightsDenied)
		e.emitAudit(ctx, auditEventAccessRightsDenied, false, principal.Username, "", "", ErrInsufficientAccessRights, func() map[string]string {
			return map[string]string{"requested": target.Describe()}
		})
		return Principal{}, ErrInsufficientAccessRights
	}
	return principal, nil
}

// AuditLog returns up to limit recent audit events, newest first. It returns
// an empty list when no AuditReader is configured. Callers gate it on
// ViewLogs.
func (e *Engine) AuditLog(ctx context.Context, limit int) ([]AuditEvent, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	if limit <= 0 {
		return nil, ErrInvalidArgument
	}
	if e.auditLog == nil {
		return []AuditEvent{}, nil
	}

	ctx, cancel := e.opContext(ctx)
	defer cancel()

	events, err := e.auditLog.Recent(ctx, limit)
	if err != nil {
		return nil, e.storageError(err)
	}
	return events, nil
}

// recordDenial counts a denial. username is empty when the request never
// resolved to an identity.
func (e *Engine) recordDenial(ctx context.Context, req AuthRequest, username string, err error) {
	switch {
	case errors.Is(err, ErrBanned):
		e.metricInc(MetricAuthorizeBanned)
	case errors.Is(err, ErrInvalidToken):
		e.metricInc(MetricAuthorizeInvalidToken)
		return
	case errors.Is(err, ErrInsufficientAccessRights):
		e.metricInc(MetricAuthorizeDenied)
	default:
		return
	}

	e.emitAudit(ctx, auditEventAuthorizationDenied, false, username, req.Address, "", err, func() map[string]string {
		return map[string]string{"capability": req.Capability.Describe()}
	})
}
