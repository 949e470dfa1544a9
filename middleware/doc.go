// Package middleware exposes HTTP adapters that put hubauth.Engine
// authorization in front of hub endpoints.
//
// # Guards
//
//   - [Guard] requires a live session holding a capability.
//   - [RequireSession] requires a live session and nothing else.
//   - [RequireGrant] requires MODIFY_ACCESS plus the right to hand out a
//     permission set.
//
// Each guard reads the bearer token from the Authorization header and the
// caller address from the request, calls Engine.Authorize, and injects the
// resulting principal into the request context.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Engine calls. It does NOT
// decide anything itself; every decision comes from Engine.Authorize.
//
// # What this package must NOT do
//
//   - Resolve sessions or read bans directly (delegates to Engine).
//   - Access Redis or SQL.
//   - Leak the reason for a denial beyond the status code.
package middleware
