package hubauth

import (
	"context"
	"errors"
	"testing"

	"github.com/serverhub/hubauth/permission"
)

func TestCreateBaseRolesIsIdempotent(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	if err := e.CreateBaseRoles(ctx); err != nil {
		t.Fatalf("second CreateBaseRoles: %v", err)
	}

	roles, err := e.ListRoles(ctx)
	if err != nil {
		t.Fatalf("list roles: %v", err)
	}
	want := map[string]permission.Set{
		RoleOwner:     permission.FullAccess,
		RoleAdmin:     permission.BanUnban | permission.ViewLogs | permission.ModifyAccess,
		RoleModerator: permission.BanUnban | permission.ViewLogs,
		RoleUser:      permission.None,
	}
	if len(roles) != len(want) {
		t.Fatalf("expected %d roles, got %d", len(want), len(roles))
	}
	for _, r := range roles {
		if want[r.Name] != r.Permissions {
			t.Fatalf("role %s has %s, want %s", r.Name, r.Permissions, want[r.Name])
		}
	}
}

func TestCreateRoleDuplicate(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	if err := e.CreateRole(ctx, SystemActor, "helper", permission.ViewLogs); err != nil {
		t.Fatalf("create role: %v", err)
	}
	err := e.CreateRole(ctx, SystemActor, "helper", permission.BanUnban)
	if !errors.Is(err, ErrRoleAlreadyExists) || !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("expected ErrRoleAlreadyExists, got %v", err)
	}

	perms, err := e.RolePermissions(ctx, "helper")
	if err != nil || perms != permission.ViewLogs {
		t.Fatalf("expected original permissions kept, got %s %v", perms, err)
	}
}

func TestCreateRoleRejectsReservedAndMalformedNames(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	for _, name := range []string{"", "custom", "has space", "x/y"} {
		if err := e.CreateRole(ctx, SystemActor, name, permission.None); !errors.Is(err, ErrInvalidArgument) {
			t.Fatalf("name %q: expected ErrInvalidArgument, got %v", name, err)
		}
	}
	if err := e.CreateRole(ctx, SystemActor, "wide", permission.Set(1<<10)); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected undefined bits rejected, got %v", err)
	}
}

func TestUpdateRoleRenameCollision(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	if err := e.CreateRole(ctx, SystemActor, "helper", permission.ViewLogs); err != nil {
		t.Fatalf("create role: %v", err)
	}

	err := e.UpdateRole(ctx, SystemActor, "helper", RoleUpdate{
		NewName:     strPtr(RoleAdmin),
		Permissions: setPtr(permission.BanUnban),
	})
	if !errors.Is(err, ErrRoleAlreadyExists) {
		t.Fatalf("expected ErrRoleAlreadyExists, got %v", err)
	}

	perms, err := e.RolePermissions(ctx, "helper")
	if err != nil || perms != permission.ViewLogs {
		t.Fatalf("helper must be untouched after failed rename, got %s %v", perms, err)
	}
	admin, err := e.RolePermissions(ctx, RoleAdmin)
	if err != nil || admin != permission.BanUnban|permission.ViewLogs|permission.ModifyAccess {
		t.Fatalf("admin must be untouched, got %s %v", admin, err)
	}
}

func TestUpdateRoleUnknown(t *testing.T) {
	e := newTestEngine(t)
	err := e.UpdateRole(context.Background(), SystemActor, "ghost", RoleUpdate{Permissions: setPtr(permission.ViewLogs)})
	if !errors.Is(err, ErrRoleNotFound) || !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrRoleNotFound, got %v", err)
	}
}

func TestUpdateRolePropagatesToMembers(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	if err := e.CreateRole(ctx, SystemActor, "helper", permission.ViewLogs); err != nil {
		t.Fatalf("create role: %v", err)
	}
	mustCreateUser(t, e, "dave", "helper")

	err := e.UpdateRole(ctx, SystemActor, "helper", RoleUpdate{
		NewName:     strPtr("steward"),
		Permissions: setPtr(permission.ViewLogs | permission.BanUnban),
	})
	if err != nil {
		t.Fatalf("update role: %v", err)
	}

	dave, err := e.User(ctx, "dave")
	if err != nil {
		t.Fatalf("user: %v", err)
	}
	name, ok := dave.Assignment.RoleName()
	if !ok || name != "steward" {
		t.Fatalf("expected dave assigned to steward, got %s", dave.Assignment)
	}
	if dave.Permissions != permission.ViewLogs|permission.BanUnban {
		t.Fatalf("expected dave to carry updated permissions, got %s", dave.Permissions)
	}
	if _, err := e.RolePermissions(ctx, "helper"); !errors.Is(err, ErrRoleNotFound) {
		t.Fatalf("old name should be gone, got %v", err)
	}
}

func TestUpdateRoleToEmptyPermissions(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	if err := e.CreateRole(ctx, SystemActor, "helper", permission.ViewLogs); err != nil {
		t.Fatalf("create role: %v", err)
	}
	if err := e.UpdateRole(ctx, SystemActor, "helper", RoleUpdate{Permissions: setPtr(permission.None)}); err != nil {
		t.Fatalf("update role: %v", err)
	}
	perms, err := e.RolePermissions(ctx, "helper")
	if err != nil || perms != permission.None {
		t.Fatalf("expected empty permissions, got %s %v", perms, err)
	}
}

func TestDeleteRoleIsUnconditional(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	if err := e.CreateRole(ctx, SystemActor, "helper", permission.ViewLogs); err != nil {
		t.Fatalf("create role: %v", err)
	}
	mustCreateUser(t, e, "erin", "helper")

	if err := e.DeleteRole(ctx, SystemActor, "helper"); err != nil {
		t.Fatalf("delete role: %v", err)
	}
	if err := e.DeleteRole(ctx, SystemActor, "helper"); err != nil {
		t.Fatalf("deleting a missing role should succeed: %v", err)
	}

	erin, err := e.User(ctx, "erin")
	if err != nil {
		t.Fatalf("user: %v", err)
	}
	if erin.Permissions != permission.ViewLogs {
		t.Fatalf("member keeps stored rights after delete, got %s", erin.Permissions)
	}
}

func TestRoleChangesRequireCreateRoles(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	mustCreateUser(t, e, "olivia", RoleOwner)
	mustCreateUser(t, e, "adam", RoleAdmin)

	if err := e.CreateRole(ctx, "adam", "helper", permission.ViewLogs); !errors.Is(err, ErrInsufficientAccessRights) {
		t.Fatalf("admin lacks CREATE_ROLES, got %v", err)
	}
	if err := e.CreateRole(ctx, "olivia", "helper", permission.ViewLogs); err != nil {
		t.Fatalf("owner create role: %v", err)
	}
	if err := e.DeleteRole(ctx, "adam", "helper"); !errors.Is(err, ErrInsufficientAccessRights) {
		t.Fatalf("admin delete should be denied, got %v", err)
	}
	if err := e.CreateRole(ctx, "nobody", "other", permission.None); !errors.Is(err, ErrInsufficientAccessRights) {
		t.Fatalf("unknown actor should be denied, got %v", err)
	}
}

func TestRoleChangesCannotEscalate(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	_, err := e.CreateUser(ctx, NewUser{
		Username: "builder",
		Password: "correct-horse-battery",
		Role:     "none-such",
		Rights:   permission.CreateRoles | permission.ViewLogs,
	})
	if err != nil {
		t.Fatalf("create builder: %v", err)
	}

	if err := e.CreateRole(ctx, "builder", "banners", permission.BanUnban); !errors.Is(err, ErrInsufficientAccessRights) {
		t.Fatalf("expected escalation denied, got %v", err)
	}
	if err := e.CreateRole(ctx, "builder", "readers", permission.ViewLogs); err != nil {
		t.Fatalf("subset role should be allowed: %v", err)
	}
	err = e.UpdateRole(ctx, "builder", "readers", RoleUpdate{Permissions: setPtr(permission.FullAccess)})
	if !errors.Is(err, ErrInsufficientAccessRights) {
		t.Fatalf("expected escalation through update denied, got %v", err)
	}
}
