// Package internal contains helper utilities that are private to hubauth,
// including secure random secret generation.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher and Sink implementations)
//   - rate: Redis-backed fixed-window throttling for login and registration
//
// # What this package must NOT do
//
//   - Export types that appear in the public hubauth API.
//   - Be imported by any package outside the hubauth module.
package internal
