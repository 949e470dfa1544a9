package hubauth

import (
	"context"
	"time"

	"github.com/serverhub/hubauth/permission"
	"github.com/serverhub/hubauth/session"
)

// SystemActor is the actor recorded for changes the hub makes on its own,
// such as bootstrap, lazy ban expiry, and bans issued without a user.
const SystemActor = "system"

// DefaultRole is assigned to identities created without an explicit role.
const DefaultRole = "user"

// Base role names created by Engine.CreateBaseRoles.
const (
	RoleOwner     = "owner"
	RoleAdmin     = "admin"
	RoleModerator = "moderator"
	RoleUser      = "user"
)

// BaseRoles lists the roles every hub starts with.
var BaseRoles = []Role{
	{Name: RoleOwner, Permissions: permission.FullAccess},
	{Name: RoleAdmin, Permissions: permission.BanUnban | permission.ViewLogs | permission.ModifyAccess},
	{Name: RoleModerator, Permissions: permission.BanUnban | permission.ViewLogs},
	{Name: RoleUser, Permissions: permission.None},
}

// Role is a named permission set.
type Role struct {
	Name        string
	Permissions permission.Set
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// User is an identity as seen by callers. The password hash never leaves the
// Engine.
type User struct {
	Username    string
	Assignment  permission.Assignment
	Permissions permission.Set
	CreatedAt   time.Time
}

// NewUser describes an identity to create. An empty Role means DefaultRole.
// When Role does not name an existing role the identity gets a custom
// assignment carrying Rights.
type NewUser struct {
	Username string `validate:"required,hubname"`
	Password string `validate:"required"`
	Role     string `validate:"omitempty,hubname"`
	Rights   permission.Set
}

// AccessUpdate changes the assignment of an identity. Role is tried first;
// if it is nil or names no role, Rights becomes a custom assignment.
type AccessUpdate struct {
	Role   *string
	Rights *permission.Set
}

// RoleUpdate changes a role. Nil fields are left as they are.
type RoleUpdate struct {
	NewName     *string
	Permissions *permission.Set
}

// SessionInfo is the metadata of one session. It never carries the secret.
type SessionInfo = session.Info

// LoginResult is returned by Login and Register. Token is the plaintext
// session secret and is only ever returned here.
type LoginResult struct {
	Token   string
	Session SessionInfo
	User    User
}

// BanKind says what a block applies to.
type BanKind string

const (
	BanUser    BanKind = "user"
	BanAddress BanKind = "address"
)

// Valid reports whether k is a known kind.
func (k BanKind) Valid() bool {
	return k == BanUser || k == BanAddress
}

// BanRequest describes a block to add. A nil Duration means permanent. An
// empty IssuedBy records SystemActor.
type BanRequest struct {
	EntityName string  `validate:"required,max=255"`
	Kind       BanKind `validate:"required,oneof=user address"`
	Reason     string  `validate:"max=512"`
	IssuedBy   string
	Duration   *time.Duration
}

// Block is a stored ban. A nil UnblockAt means permanent.
type Block struct {
	ID         string
	EntityName string
	Kind       BanKind
	Reason     string
	IssuedBy   string
	CreatedAt  time.Time
	UnblockAt  *time.Time
	Active     bool
}

// Permanent reports whether the block never expires on its own.
func (b Block) Permanent() bool {
	return b.UnblockAt == nil
}

// AuthRequest is one request to the authorization gate. Address is the
// caller's network address and may be empty for internal callers.
type AuthRequest struct {
	Token      string
	Address    string
	Capability permission.Set
}

// Principal is the identity an authorized request acts as.
type Principal struct {
	Username    string
	Assignment  permission.Assignment
	Permissions permission.Set
	Session     SessionInfo
}

// ResourceRevoker releases resources bound to a network address when the
// address is banned. The hub uses it to drop servers registered from that
// address.
type ResourceRevoker interface {
	RevokeAddress(ctx context.Context, address string) error
}

// ResourceRevokerFunc adapts a function to ResourceRevoker.
type ResourceRevokerFunc func(ctx context.Context, address string) error

// RevokeAddress calls f(ctx, address).
func (f ResourceRevokerFunc) RevokeAddress(ctx context.Context, address string) error {
	return f(ctx, address)
}

type noopRevoker struct{}

func (noopRevoker) RevokeAddress(context.Context, string) error { return nil }
