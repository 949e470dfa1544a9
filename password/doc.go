// Package password hashes hub account passwords with Argon2id.
//
// # Output format
//
// Hashes are encoded in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// Every hash carries its own random salt, so two accounts with the same
// password never share a stored value. [Argon2.NeedsUpgrade] reports hashes
// produced under weaker parameters so the caller can re-hash after a
// successful login.
//
// # Enumeration resistance
//
// [Argon2.VerifyDummy] performs a full verification against a precomputed hash
// that never matches. Authentication paths call it for unknown usernames so the
// unknown-user and wrong-password cases cost the same.
//
// # What this package must NOT do
//
//   - Store or retrieve passwords.
//   - Import any other hubauth package.
//   - Log plaintext passwords or hash parameters at runtime.
package password
