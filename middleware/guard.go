package middleware

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/serverhub/hubauth"
	"github.com/serverhub/hubauth/permission"
)

type principalContextKey struct{}

// PrincipalFromContext returns the principal stored by a guard.
func PrincipalFromContext(ctx context.Context) (hubauth.Principal, bool) {
	p, ok := ctx.Value(principalContextKey{}).(hubauth.Principal)
	return p, ok
}

// Guard rejects requests whose session does not hold capability.
func Guard(engine *hubauth.Engine, capability permission.Set) func(http.Handler) http.Handler {
	return guard(func(ctx context.Context, req hubauth.AuthRequest) (hubauth.Principal, error) {
		req.Capability = capability
		return engine.Authorize(ctx, req)
	}, engine != nil)
}

// RequireSession rejects requests without a live, unbanned session.
func RequireSession(engine *hubauth.Engine) func(http.Handler) http.Handler {
	return Guard(engine, permission.None)
}

// RequireGrant rejects requests whose principal may not grant target.
func RequireGrant(engine *hubauth.Engine, target permission.Set) func(http.Handler) http.Handler {
	return guard(func(ctx context.Context, req hubauth.AuthRequest) (hubauth.Principal, error) {
		return engine.AuthorizeGrant(ctx, req, target)
	}, engine != nil)
}

type authorizeFunc func(ctx context.Context, req hubauth.AuthRequest) (hubauth.Principal, error)

func guard(authorize authorizeFunc, ready bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !ready {
				http.Error(w, "service unavailable", http.StatusServiceUnavailable)
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			address := ClientIP(r)
			ctx := hubauth.WithClientIP(r.Context(), address)

			principal, err := authorize(ctx, hubauth.AuthRequest{Token: token, Address: address})
			if err != nil {
				status := statusFor(err)
				http.Error(w, strings.ToLower(http.StatusText(status)), status)
				return
			}

			ctx = context.WithValue(ctx, principalContextKey{}, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ClientIP returns the host part of r.RemoteAddr. Run a proxy-aware
// middleware such as chi's RealIP first when the hub sits behind a proxy.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, hubauth.ErrBackendUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, hubauth.ErrBanned), errors.Is(err, hubauth.ErrInsufficientAccessRights):
		return http.StatusForbidden
	default:
		return http.StatusUnauthorized
	}
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := value[len(bearer):]
	if token == "" {
		return "", false
	}

	return token, true
}
