// Package rate provides Redis-backed fixed-window throttles for hub logins and
// registrations.
//
// # Window semantics
//
// Fixed-window counters: INCR + conditional EXPIRE on first hit. Key suffixes
// under the configured prefix:
//   - lu:<username>: failed logins per username
//   - la:<address>: failed logins per client address
//   - reg:<address>: registrations per client address
//
// # What this package must NOT do
//
//   - Decide what counts as a failure; the Engine records failures.
//   - Be imported outside the hubauth module.
package rate
