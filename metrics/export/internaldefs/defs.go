package internaldefs

import (
	"github.com/serverhub/hubauth"
)

// CounterDef names one engine counter.
type CounterDef struct {
	ID   hubauth.MetricID
	Name string
	Help string
}

// HistogramDef names one engine latency histogram.
type HistogramDef struct {
	ID   hubauth.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter.
var CounterDefs = []CounterDef{
	{ID: hubauth.MetricLoginSuccess, Name: "hubauth_login_success_total", Help: "Successful logins."},
	{ID: hubauth.MetricLoginFailure, Name: "hubauth_login_failure_total", Help: "Logins rejected for bad credentials."},
	{ID: hubauth.MetricLoginRateLimited, Name: "hubauth_login_rate_limited_total", Help: "Logins rejected by the throttle."},
	{ID: hubauth.MetricLoginBanned, Name: "hubauth_login_banned_total", Help: "Logins rejected by a user or address ban."},
	{ID: hubauth.MetricRegistrationSuccess, Name: "hubauth_registration_success_total", Help: "Successful self registrations."},
	{ID: hubauth.MetricRegistrationRateLimited, Name: "hubauth_registration_rate_limited_total", Help: "Registrations rejected by the per-address budget."},
	{ID: hubauth.MetricUserCreated, Name: "hubauth_user_created_total", Help: "Created identities."},
	{ID: hubauth.MetricUserDuplicate, Name: "hubauth_user_duplicate_total", Help: "Identity creations rejected as duplicate."},
	{ID: hubauth.MetricAccessRightsUpdated, Name: "hubauth_access_rights_updated_total", Help: "Access right changes applied."},
	{ID: hubauth.MetricAccessRightsDenied, Name: "hubauth_access_rights_denied_total", Help: "Access right changes denied for lack of authority."},
	{ID: hubauth.MetricRoleCreated, Name: "hubauth_role_created_total", Help: "Created roles."},
	{ID: hubauth.MetricRoleUpdated, Name: "hubauth_role_updated_total", Help: "Updated roles."},
	{ID: hubauth.MetricRoleDeleted, Name: "hubauth_role_deleted_total", Help: "Deleted roles."},
	{ID: hubauth.MetricSessionCreated, Name: "hubauth_session_created_total", Help: "Issued sessions."},
	{ID: hubauth.MetricSessionExpired, Name: "hubauth_session_expired_total", Help: "Sessions consumed on resolve after expiry."},
	{ID: hubauth.MetricLogout, Name: "hubauth_logout_total", Help: "Single-session logouts."},
	{ID: hubauth.MetricLogoutAll, Name: "hubauth_logout_all_total", Help: "Logout-all operations."},
	{ID: hubauth.MetricSessionsPurged, Name: "hubauth_sessions_purged_total", Help: "Expired sessions removed by purge."},
	{ID: hubauth.MetricBanAdded, Name: "hubauth_ban_added_total", Help: "Bans issued."},
	{ID: hubauth.MetricBanRemoved, Name: "hubauth_ban_removed_total", Help: "Bans lifted by an operator."},
	{ID: hubauth.MetricBanExpired, Name: "hubauth_ban_expired_total", Help: "Bans deactivated after their unblock time."},
	{ID: hubauth.MetricBanInsertRetry, Name: "hubauth_ban_insert_retry_total", Help: "Ban inserts retried after losing a race."},
	{ID: hubauth.MetricAddressRevocationFailed, Name: "hubauth_address_revocation_failed_total", Help: "Address bans whose resource revocation failed."},
	{ID: hubauth.MetricAuthorizeAllowed, Name: "hubauth_authorize_allowed_total", Help: "Authorized requests."},
	{ID: hubauth.MetricAuthorizeDenied, Name: "hubauth_authorize_denied_total", Help: "Requests denied for missing rights."},
	{ID: hubauth.MetricAuthorizeBanned, Name: "hubauth_authorize_banned_total", Help: "Requests denied by a ban."},
	{ID: hubauth.MetricAuthorizeInvalidToken, Name: "hubauth_authorize_invalid_token_total", Help: "Requests carrying an unknown or expired token."},
	{ID: hubauth.MetricBackendUnavailable, Name: "hubauth_backend_unavailable_total", Help: "Operations failed by Redis or SQL errors."},
}

// HistogramDefs lists every exported latency histogram.
var HistogramDefs = []HistogramDef{
	{ID: hubauth.MetricSessionResolveLatency, Name: "hubauth_session_resolve_latency_seconds", Help: "Session resolution latency."},
	{ID: hubauth.MetricAuthorizeLatency, Name: "hubauth_authorize_latency_seconds", Help: "Authorize latency."},
}

// BucketCount is the number of engine histogram buckets, +Inf included.
const BucketCount = 8

// HistogramBounds are the finite upper bounds in seconds. The last engine
// bucket is +Inf.
var HistogramBounds = [BucketCount - 1]float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1}

// HistogramBoundSuffix names each bucket for exporters without native
// histograms.
var HistogramBoundSuffix = [BucketCount]string{
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"1",
	"inf",
}

// NormalizeBuckets copies raw into a fixed array, padding with zeros.
func NormalizeBuckets(raw []uint64) [BucketCount]uint64 {
	var out [BucketCount]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts to running totals. The last
// element is the sample count.
func CumulativeBuckets(raw [BucketCount]uint64) [BucketCount]uint64 {
	var out [BucketCount]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
