// Package session provides Redis-backed hub sessions: opaque random secrets
// whose bcrypt hashes are stored with an absolute expiry.
//
// # Storage layout
//
//	{prefix}:records        HASH  record ID -> binary record
//	{prefix}:user:<name>    SET   record IDs owned by <name>
//
// Issuance writes both keys in one MULTI. Full logout runs a Lua script that
// drops every record of the user and the index set atomically.
//
// # Resolution cost
//
// Secrets are salted before hashing, so there is no index from secret to
// record. [Store.Resolve] reads all records in one HGETALL and bcrypt-compares
// the presented secret against each of them. The scan is linear in the number
// of stored sessions and is kept that way: a deterministic hash or plaintext
// index would let anyone with read access to Redis replay sessions.
//
// # What this package must NOT do
//
//   - Import hubauth, permission, or store (no upward imports).
//   - Make authorization decisions.
//   - Persist or log plaintext secrets.
package session
