// Package permission provides the fixed-width capability bitmask used by hubauth
// authorization checks, the delegation rules between two sets, and the tagged
// role assignment carried by every identity.
//
// # Capabilities
//
// Five capabilities are defined, one bit each: BanUnban, ModifyAccess,
// AccessOtherServers, ViewLogs, and CreateRoles. [FullAccess] is the value with
// every defined bit set and short-circuits [Set.Has] and [Set.Describe].
// No capability implies another; sets combine through OR, AND and AND-NOT only.
//
// # Delegation
//
// [CanGrant] is the single delegation rule: the actor must hold ModifyAccess and
// every bit of the target set. An actor can never hand out a bit it does not hold.
//
// # Architecture boundaries
//
// This package is a pure in-memory value package with no I/O.
//
// # What this package must NOT do
//
//   - Access Redis, databases, or the network.
//   - Import hubauth, session, or store.
//   - Grow the capability set at runtime.
package permission
