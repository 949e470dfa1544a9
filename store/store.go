// Package store defines the transactional row interface the hub authority
// runs its role, identity and ban logic against. It carries no SQL; see
// store/sqlstore for the database/sql implementation.
package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNoRecord is returned when a point lookup or targeted update finds no row.
	ErrNoRecord = errors.New("store: no record")
	// ErrConflict is returned when a write violates a uniqueness constraint.
	ErrConflict = errors.New("store: conflict")
)

// Role is a stored role row.
type Role struct {
	Name        string
	Permissions uint32
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// User is a stored identity row. Role holds either a role name or the custom
// label written by the permission package.
type User struct {
	Username     string
	PasswordHash string
	Role         string
	Permissions  uint32
	CreatedAt    time.Time
}

// Ban is a stored block row. A nil UnblockAt means permanent.
type Ban struct {
	ID         string
	EntityName string
	EntityKind string
	Reason     string
	IssuedBy   string
	CreatedAt  time.Time
	UnblockAt  *time.Time
	Active     bool
}

// Tx is the set of row operations available inside one transaction.
//
// Lookups with forUpdate set lock the returned row until the transaction ends
// on backends that support row locks; other backends serialize writers at
// the transaction level.
type Tx interface {
	InsertRole(ctx context.Context, role Role) error
	GetRole(ctx context.Context, name string, forUpdate bool) (Role, error)
	ListRoles(ctx context.Context) ([]Role, error)
	// UpdateRole replaces the row called name with role. Renames are
	// permitted; a rename onto an existing name returns ErrConflict.
	UpdateRole(ctx context.Context, name string, role Role) error
	DeleteRole(ctx context.Context, name string) (bool, error)

	InsertUser(ctx context.Context, user User) error
	GetUser(ctx context.Context, username string, forUpdate bool) (User, error)
	UpdateUserAccess(ctx context.Context, username, role string, permissions uint32) error
	UpdateUserPassword(ctx context.Context, username, passwordHash string) error
	// SyncRoleMembers rewrites every user assigned to oldName so it carries
	// newName and permissions. It returns the number of rows touched.
	SyncRoleMembers(ctx context.Context, oldName, newName string, permissions uint32) (int64, error)

	InsertBan(ctx context.Context, ban Ban) error
	ActiveBan(ctx context.Context, entityName, entityKind string, forUpdate bool) (Ban, error)
	ListActiveBans(ctx context.Context) ([]Ban, error)
	DeactivateBans(ctx context.Context, entityName, entityKind string) (int64, error)
}

// Store runs fn inside one transaction. The transaction commits when fn
// returns nil and rolls back otherwise.
type Store interface {
	InTx(ctx context.Context, fn func(Tx) error) error
	Ping(ctx context.Context) error
	Close() error
}
