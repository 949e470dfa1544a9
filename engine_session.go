package hubauth

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/serverhub/hubauth/session"
)

// IssueSession creates a session for username and returns its plaintext
// secret. The secret is never stored or logged and cannot be recovered.
func (e *Engine) IssueSession(ctx context.Context, username string) (string, SessionInfo, error) {
	if e == nil {
		return "", SessionInfo{}, ErrEngineNotReady
	}
	if err := validateUsername(username); err != nil {
		return "", SessionInfo{}, err
	}

	ctx, cancel := e.opContext(ctx)
	defer cancel()

	secret, info, err := e.sessions.Issue(ctx, username)
	if err != nil {
		return "", SessionInfo{}, e.storageError(err)
	}
	e.metricInc(MetricSessionCreated)
	return secret, info, nil
}

// ResolveSession returns the session a presented secret belongs to. Unknown
// secrets return ErrSessionNotFound. A secret whose session has expired
// returns ErrSessionExpired, and the session is deleted before returning, so
// a second call reports plain ErrSessionNotFound.
func (e *Engine) ResolveSession(ctx context.Context, secret string) (SessionInfo, error) {
	if e == nil {
		return SessionInfo{}, ErrEngineNotReady
	}

	ctx, cancel := e.opContext(ctx)
	defer cancel()

	start := time.Now()
	info, err := e.sessions.Resolve(ctx, secret)
	e.metricObserve(MetricSessionResolveLatency, start)

	switch {
	case err == nil:
		return info, nil
	case errors.Is(err, session.ErrExpired):
		e.metricInc(MetricSessionExpired)
		return SessionInfo{}, ErrSessionExpired
	case errors.Is(err, session.ErrNotFound):
		return SessionInfo{}, ErrSessionNotFound
	default:
		return SessionInfo{}, e.storageError(err)
	}
}

// RevokeSession ends the session identified by secret. A secret that does
// not resolve to a live session returns ErrInvalidToken.
func (e *Engine) RevokeSession(ctx context.Context, secret string) error {
	if e == nil {
		return ErrEngineNotReady
	}

	opCtx, cancel := e.opContext(ctx)
	defer cancel()

	info, err := e.sessions.Revoke(opCtx, secret)
	return e.sessionRevoked(ctx, info, err)
}

// RevokeSessionByID ends the session with the given ID. Use it for requests
// that were already authorized, where Principal.Session.ID is known, to avoid
// a second scan over the stored hashes. An unknown or expired ID returns
// ErrInvalidToken.
func (e *Engine) RevokeSessionByID(ctx context.Context, id string) error {
	if e == nil {
		return ErrEngineNotReady
	}

	opCtx, cancel := e.opContext(ctx)
	defer cancel()

	info, err := e.sessions.RevokeID(opCtx, id)
	return e.sessionRevoked(ctx, info, err)
}

func (e *Engine) sessionRevoked(ctx context.Context, info SessionInfo, err error) error {
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return ErrInvalidToken
		}
		return e.storageError(err)
	}

	e.metricInc(MetricLogout)
	e.emitAudit(ctx, auditEventLogoutSession, true, info.Username, info.Username, "", nil, func() map[string]string {
		return map[string]string{"session_id": info.ID}
	})
	return nil
}

// RevokeAllSessions ends every session of username and returns how many were
// removed. Removing zero sessions is not an error.
func (e *Engine) RevokeAllSessions(ctx context.Context, username string) (int, error) {
	if e == nil {
		return 0, ErrEngineNotReady
	}

	opCtx, cancel := e.opContext(ctx)
	defer cancel()

	removed, err := e.sessions.RevokeAll(opCtx, username)
	if err != nil {
		return 0, e.storageError(err)
	}

	e.metricInc(MetricLogoutAll)
	e.emitAudit(ctx, auditEventLogoutAll, true, username, username, "", nil, func() map[string]string {
		return map[string]string{"removed": strconv.Itoa(removed)}
	})
	return removed, nil
}

// Sessions lists the live sessions of username, oldest first.
func (e *Engine) Sessions(ctx context.Context, username string) ([]SessionInfo, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	ctx, cancel := e.opContext(ctx)
	defer cancel()

	list, err := e.sessions.ForUser(ctx, username)
	if err != nil {
		return nil, e.storageError(err)
	}
	return list, nil
}

// SessionCount returns the number of stored sessions, including expired
// ones not yet purged.
func (e *Engine) SessionCount(ctx context.Context) (int, error) {
	if e == nil {
		return 0, ErrEngineNotReady
	}

	ctx, cancel := e.opContext(ctx)
	defer cancel()

	n, err := e.sessions.Count(ctx)
	if err != nil {
		return 0, e.storageError(err)
	}
	return n, nil
}

// PurgeExpiredSessions deletes every expired session. Resolution only cleans
// up the sessions it matches, so long-running hubs call this periodically to
// keep the resolution scan short.
func (e *Engine) PurgeExpiredSessions(ctx context.Context) (int, error) {
	if e == nil {
		return 0, ErrEngineNotReady
	}

	ctx, cancel := e.opContext(ctx)
	defer cancel()

	n, err := e.sessions.PurgeExpired(ctx)
	for range n {
		e.metricInc(MetricSessionsPurged)
	}
	if err != nil {
		return n, e.storageError(err)
	}
	return n, nil
}
