package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/serverhub/hubauth/store"
)

type tx struct {
	tx      *sql.Tx
	dialect dialect
}

type scanner interface {
	Scan(dest ...any) error
}

func (t *tx) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	res, err := t.tx.ExecContext(ctx, t.dialect.rebind(query), args...)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}
	return res, nil
}

func (t *tx) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return t.tx.QueryRowContext(ctx, t.dialect.rebind(query), args...)
}

func (t *tx) lock(forUpdate bool) string {
	if forUpdate {
		return t.dialect.forUpdate
	}
	return ""
}

func millis(ts time.Time) int64 {
	return ts.UnixMilli()
}

func fromMillis(v int64) time.Time {
	return time.UnixMilli(v).UTC()
}

func noRecord(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNoRecord
	}
	return err
}

func mustAffect(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNoRecord
	}
	return nil
}

// Roles

const roleColumns = `name, permissions, created_at, updated_at`

func scanRole(row scanner) (store.Role, error) {
	var (
		r                store.Role
		perms            int64
		created, updated int64
	)
	if err := row.Scan(&r.Name, &perms, &created, &updated); err != nil {
		return store.Role{}, err
	}
	r.Permissions = uint32(perms)
	r.CreatedAt = fromMillis(created)
	r.UpdatedAt = fromMillis(updated)
	return r, nil
}

func (t *tx) InsertRole(ctx context.Context, role store.Role) error {
	_, err := t.exec(ctx,
		`INSERT INTO roles (`+roleColumns+`) VALUES (?, ?, ?, ?)`,
		role.Name, int64(role.Permissions), millis(role.CreatedAt), millis(role.UpdatedAt),
	)
	return err
}

func (t *tx) GetRole(ctx context.Context, name string, forUpdate bool) (store.Role, error) {
	row := t.queryRow(ctx, `SELECT `+roleColumns+` FROM roles WHERE name = ?`+t.lock(forUpdate), name)
	r, err := scanRole(row)
	return r, noRecord(err)
}

func (t *tx) ListRoles(ctx context.Context) ([]store.Role, error) {
	rows, err := t.tx.QueryContext(ctx, `SELECT `+roleColumns+` FROM roles ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.Role
	for rows.Next() {
		r, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (t *tx) UpdateRole(ctx context.Context, name string, role store.Role) error {
	res, err := t.exec(ctx,
		`UPDATE roles SET name = ?, permissions = ?, updated_at = ? WHERE name = ?`,
		role.Name, int64(role.Permissions), millis(role.UpdatedAt), name,
	)
	if err != nil {
		return err
	}
	return mustAffect(res)
}

func (t *tx) DeleteRole(ctx context.Context, name string) (bool, error) {
	res, err := t.exec(ctx, `DELETE FROM roles WHERE name = ?`, name)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Users

const userColumns = `username, password_hash, role, permissions, created_at`

func scanUser(row scanner) (store.User, error) {
	var (
		u       store.User
		perms   int64
		created int64
	)
	if err := row.Scan(&u.Username, &u.PasswordHash, &u.Role, &perms, &created); err != nil {
		return store.User{}, err
	}
	u.Permissions = uint32(perms)
	u.CreatedAt = fromMillis(created)
	return u, nil
}

func (t *tx) InsertUser(ctx context.Context, user store.User) error {
	_, err := t.exec(ctx,
		`INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?)`,
		user.Username, user.PasswordHash, user.Role, int64(user.Permissions), millis(user.CreatedAt),
	)
	return err
}

func (t *tx) GetUser(ctx context.Context, username string, forUpdate bool) (store.User, error) {
	row := t.queryRow(ctx, `SELECT `+userColumns+` FROM users WHERE username = ?`+t.lock(forUpdate), username)
	u, err := scanUser(row)
	return u, noRecord(err)
}

func (t *tx) UpdateUserAccess(ctx context.Context, username, role string, permissions uint32) error {
	res, err := t.exec(ctx,
		`UPDATE users SET role = ?, permissions = ? WHERE username = ?`,
		role, int64(permissions), username,
	)
	if err != nil {
		return err
	}
	return mustAffect(res)
}

func (t *tx) UpdateUserPassword(ctx context.Context, username, passwordHash string) error {
	res, err := t.exec(ctx, `UPDATE users SET password_hash = ? WHERE username = ?`, passwordHash, username)
	if err != nil {
		return err
	}
	return mustAffect(res)
}

func (t *tx) SyncRoleMembers(ctx context.Context, oldName, newName string, permissions uint32) (int64, error) {
	res, err := t.exec(ctx,
		`UPDATE users SET role = ?, permissions = ? WHERE role = ?`,
		newName, int64(permissions), oldName,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Bans

const banColumns = `id, entity_name, entity_kind, reason, issued_by, created_at, unblock_at, active`

func scanBan(row scanner) (store.Ban, error) {
	var (
		b         store.Ban
		created   int64
		unblockAt sql.NullInt64
	)
	if err := row.Scan(&b.ID, &b.EntityName, &b.EntityKind, &b.Reason, &b.IssuedBy, &created, &unblockAt, &b.Active); err != nil {
		return store.Ban{}, err
	}
	b.CreatedAt = fromMillis(created)
	if unblockAt.Valid {
		ts := fromMillis(unblockAt.Int64)
		b.UnblockAt = &ts
	}
	return b, nil
}

func (t *tx) InsertBan(ctx context.Context, ban store.Ban) error {
	var unblockAt sql.NullInt64
	if ban.UnblockAt != nil {
		unblockAt = sql.NullInt64{Int64: millis(*ban.UnblockAt), Valid: true}
	}
	_, err := t.exec(ctx,
		`INSERT INTO bans (`+banColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		ban.ID, ban.EntityName, ban.EntityKind, ban.Reason, ban.IssuedBy, millis(ban.CreatedAt), unblockAt, ban.Active,
	)
	return err
}

func (t *tx) ActiveBan(ctx context.Context, entityName, entityKind string, forUpdate bool) (store.Ban, error) {
	row := t.queryRow(ctx,
		`SELECT `+banColumns+` FROM bans WHERE entity_name = ? AND entity_kind = ? AND active = ?`+t.lock(forUpdate),
		entityName, entityKind, true,
	)
	b, err := scanBan(row)
	return b, noRecord(err)
}

func (t *tx) ListActiveBans(ctx context.Context) ([]store.Ban, error) {
	rows, err := t.tx.QueryContext(ctx,
		t.dialect.rebind(`SELECT `+banColumns+` FROM bans WHERE active = ? ORDER BY created_at`), true)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.Ban
	for rows.Next() {
		b, err := scanBan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (t *tx) DeactivateBans(ctx context.Context, entityName, entityKind string) (int64, error) {
	res, err := t.exec(ctx,
		`UPDATE bans SET active = ? WHERE entity_name = ? AND entity_kind = ? AND active = ?`,
		false, entityName, entityKind, true,
	)
	if err != nil {
		return 0, fmt.Errorf("deactivate bans: %w", err)
	}
	return res.RowsAffected()
}
