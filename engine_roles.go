package hubauth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/serverhub/hubauth/permission"
	"github.com/serverhub/hubauth/store"
)

// CreateBaseRoles creates owner, admin, moderator and user. Roles that
// already exist are left untouched, so calling it on every start is safe.
func (e *Engine) CreateBaseRoles(ctx context.Context) error {
	if e == nil {
		return ErrEngineNotReady
	}

	for _, role := range BaseRoles {
		err := e.CreateRole(ctx, SystemActor, role.Name, role.Permissions)
		if err != nil && !errors.Is(err, ErrRoleAlreadyExists) {
			return err
		}
	}
	return nil
}

// CreateRole adds a role. A non-system actor must hold CreateRoles and every
// bit of perms.
func (e *Engine) CreateRole(ctx context.Context, actor, name string, perms permission.Set) error {
	if e == nil {
		return ErrEngineNotReady
	}
	if err := validateRoleName(name); err != nil {
		return err
	}
	if !perms.Valid() || name == permission.CustomLabel {
		return ErrInvalidArgument
	}

	now := e.now()
	err := e.inTx(ctx, func(tx store.Tx) error {
		if err := requireRoleAuthority(ctx, tx, actor, perms); err != nil {
			return err
		}
		err := tx.InsertRole(ctx, store.Role{
			Name:        name,
			Permissions: perms.Raw(),
			CreatedAt:   now,
			UpdatedAt:   now,
		})
		if errors.Is(err, store.ErrConflict) {
			return ErrRoleAlreadyExists
		}
		return err
	})
	if err != nil {
		if !errors.Is(err, ErrRoleAlreadyExists) || actor != SystemActor {
			e.emitAudit(ctx, auditEventRoleCreated, false, actor, name, "", err, nil)
		}
		return err
	}

	e.metricInc(MetricRoleCreated)
	e.emitAudit(ctx, auditEventRoleCreated, true, actor, name,
		fmt.Sprintf("created role '%s' with permissions '%s'", name, perms.Describe()), nil, nil)
	return nil
}

// UpdateRole renames a role and/or replaces its permissions. Identities
// assigned to the role follow the change in the same transaction.
func (e *Engine) UpdateRole(ctx context.Context, actor, name string, update RoleUpdate) error {
	if e == nil {
		return ErrEngineNotReady
	}
	if update.NewName == nil && update.Permissions == nil {
		return nil
	}
	if update.NewName != nil {
		if err := validateRoleName(*update.NewName); err != nil {
			return err
		}
		if *update.NewName == permission.CustomLabel {
			return ErrInvalidRoleName
		}
	}
	if update.Permissions != nil && !update.Permissions.Valid() {
		return ErrInvalidRights
	}

	var changes []string
	err := e.inTx(ctx, func(tx store.Tx) error {
		changes = changes[:0]

		current, err := tx.GetRole(ctx, name, true)
		if errors.Is(err, store.ErrNoRecord) {
			return ErrRoleNotFound
		}
		if err != nil {
			return err
		}

		next := current
		if update.NewName != nil && *update.NewName != name {
			if _, err := tx.GetRole(ctx, *update.NewName, false); err == nil {
				return ErrRoleAlreadyExists
			} else if !errors.Is(err, store.ErrNoRecord) {
				return err
			}
			next.Name = *update.NewName
			changes = append(changes, fmt.Sprintf("renamed to '%s'", next.Name))
		}
		if update.Permissions != nil {
			next.Permissions = update.Permissions.Raw()
			changes = append(changes, fmt.Sprintf("permissions updated to '%s'", update.Permissions.Describe()))
		}

		if err := requireRoleAuthority(ctx, tx, actor, permission.Set(next.Permissions)); err != nil {
			return err
		}
		if len(changes) == 0 {
			return nil
		}

		next.UpdatedAt = e.now()
		if err := tx.UpdateRole(ctx, name, next); err != nil {
			if errors.Is(err, store.ErrConflict) {
				return ErrRoleAlreadyExists
			}
			return err
		}
		_, err = tx.SyncRoleMembers(ctx, name, next.Name, next.Permissions)
		return err
	})
	if err != nil {
		e.emitAudit(ctx, auditEventRoleUpdated, false, actor, name, "", err, nil)
		return err
	}
	if len(changes) == 0 {
		return nil
	}

	e.metricInc(MetricRoleUpdated)
	e.emitAudit(ctx, auditEventRoleUpdated, true, actor, name,
		fmt.Sprintf("role '%s' %s", name, strings.Join(changes, ", ")), nil, nil)
	return nil
}

// DeleteRole removes a role. Identities still naming it keep their stored
// rights; deleting a missing role is not an error.
func (e *Engine) DeleteRole(ctx context.Context, actor, name string) error {
	if e == nil {
		return ErrEngineNotReady
	}

	var deleted bool
	err := e.inTx(ctx, func(tx store.Tx) error {
		if err := requireRoleAuthority(ctx, tx, actor, permission.None); err != nil {
			return err
		}
		var err error
		deleted, err = tx.DeleteRole(ctx, name)
		return err
	})
	if err != nil {
		e.emitAudit(ctx, auditEventRoleDeleted, false, actor, name, "", err, nil)
		return err
	}
	if !deleted {
		return nil
	}

	e.metricInc(MetricRoleDeleted)
	e.emitAudit(ctx, auditEventRoleDeleted, true, actor, name,
		fmt.Sprintf("deleted role '%s'", name), nil, nil)
	return nil
}

// RolePermissions returns the permissions of the named role.
func (e *Engine) RolePermissions(ctx context.Context, name string) (permission.Set, error) {
	if e == nil {
		return permission.None, ErrEngineNotReady
	}

	var perms permission.Set
	err := e.inTx(ctx, func(tx store.Tx) error {
		row, err := tx.GetRole(ctx, name, false)
		if errors.Is(err, store.ErrNoRecord) {
			return ErrRoleNotFound
		}
		if err != nil {
			return err
		}
		perms = permission.Set(row.Permissions)
		return nil
	})
	return perms, err
}

// ListRoles returns every role ordered by name.
func (e *Engine) ListRoles(ctx context.Context) ([]Role, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	var roles []Role
	err := e.inTx(ctx, func(tx store.Tx) error {
		rows, err := tx.ListRoles(ctx)
		if err != nil {
			return err
		}
		roles = make([]Role, 0, len(rows))
		for _, row := range rows {
			roles = append(roles, roleFromRow(row))
		}
		return nil
	})
	return roles, err
}

// requireRoleAuthority checks, inside tx, that actor may manage roles
// carrying perms. The actor row stays locked until tx ends. The system actor
// always may.
func requireRoleAuthority(ctx context.Context, tx store.Tx, actor string, perms permission.Set) error {
	if actor == "" || actor == SystemActor {
		return nil
	}

	row, err := tx.GetUser(ctx, actor, true)
	if errors.Is(err, store.ErrNoRecord) {
		return ErrInsufficientAccessRights
	}
	if err != nil {
		return err
	}

	held := permission.Set(row.Permissions)
	if !held.Has(permission.CreateRoles) || perms.Without(held) != permission.None {
		return ErrInsufficientAccessRights
	}
	return nil
}

func roleFromRow(row store.Role) Role {
	return Role{
		Name:        row.Name,
		Permissions: permission.Set(row.Permissions),
		CreatedAt:   row.CreatedAt,
		UpdatedAt:   row.UpdatedAt,
	}
}
