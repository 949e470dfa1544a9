// Package hubauth is the identity, permission, session and ban authority of a
// game-server hub. Every privileged hub operation passes through an [Engine]:
// a ban check, then session resolution, then a capability check, and for
// rights changes a delegation check.
//
// Engine methods are safe to call from multiple goroutines after
// initialization through [Builder.Build].
//
// # Architecture boundaries
//
// hubauth is the public surface. It exposes [Engine], [Builder], [Config] and
// value types (User, Role, Block, Principal, SessionInfo). Capabilities live in
// the permission package, relational rows behind the store.Store interface,
// session records in the session package, and throttling and audit dispatch
// under internal/.
//
// Roles, identities and bans are mutated inside one store transaction per
// operation. Sessions live in Redis. Every call into either backend is bounded
// by Config.Storage.OperationTimeout and a failure surfaces as
// [ErrBackendUnavailable]; the gate never fails open.
//
// # What this package must NOT do
//
//   - Expose Redis clients, SQL, or password and secret hashes in its public API.
//   - Log or persist plaintext session secrets or passwords.
//   - Perform I/O in Builder methods other than Build.
//   - Import any sub-package that re-imports hubauth (no import cycles).
//
// # Performance contract
//
// Authorize costs one session resolution, which compares the presented secret
// against every stored session hash, plus three short transactions. Login adds
// one Argon2id verification. Call [Engine.PurgeExpiredSessions] periodically to
// keep the stored session count close to the live one.
package hubauth
