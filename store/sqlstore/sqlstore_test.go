package sqlstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/serverhub/hubauth/internal/audit"
	"github.com/serverhub/hubauth/store"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), DriverSQLite, filepath.Join(t.TempDir(), "hub.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hub.db")
	first, err := Open(context.Background(), DriverSQLite, path)
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := Open(context.Background(), DriverSQLite, path)
	require.NoError(t, err)
	require.NoError(t, second.Close())
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), "mysql", "")
	require.Error(t, err)
}

func TestRoleCRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.UnixMilli(1_700_000_000_000).UTC()

	err := s.InTx(ctx, func(tx store.Tx) error {
		return tx.InsertRole(ctx, store.Role{Name: "moderator", Permissions: 9, CreatedAt: now, UpdatedAt: now})
	})
	require.NoError(t, err)

	err = s.InTx(ctx, func(tx store.Tx) error {
		return tx.InsertRole(ctx, store.Role{Name: "moderator", Permissions: 1, CreatedAt: now, UpdatedAt: now})
	})
	require.ErrorIs(t, err, store.ErrConflict)

	err = s.InTx(ctx, func(tx store.Tx) error {
		if err := tx.InsertRole(ctx, store.Role{Name: "helper", CreatedAt: now, UpdatedAt: now}); err != nil {
			return err
		}
		return tx.UpdateRole(ctx, "helper", store.Role{Name: "moderator", UpdatedAt: now})
	})
	require.ErrorIs(t, err, store.ErrConflict)

	err = s.InTx(ctx, func(tx store.Tx) error {
		got, err := tx.GetRole(ctx, "moderator", true)
		require.NoError(t, err)
		require.Equal(t, uint32(9), got.Permissions)
		require.True(t, got.CreatedAt.Equal(now))

		_, err = tx.GetRole(ctx, "helper", false)
		require.ErrorIs(t, err, store.ErrNoRecord, "rolled back insert must not persist")

		require.ErrorIs(t, tx.UpdateRole(ctx, "ghost", store.Role{Name: "ghost"}), store.ErrNoRecord)

		deleted, err := tx.DeleteRole(ctx, "moderator")
		require.NoError(t, err)
		require.True(t, deleted)

		deleted, err = tx.DeleteRole(ctx, "moderator")
		require.NoError(t, err)
		require.False(t, deleted)
		return nil
	})
	require.NoError(t, err)
}

func TestUserRowsAndRoleSync(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	err := s.InTx(ctx, func(tx store.Tx) error {
		for _, name := range []string{"alice", "bob"} {
			if err := tx.InsertUser(ctx, store.User{Username: name, PasswordHash: "h", Role: "moderator", Permissions: 9, CreatedAt: now}); err != nil {
				return err
			}
		}
		return tx.InsertUser(ctx, store.User{Username: "carol", PasswordHash: "h", Role: "custom", Permissions: 8, CreatedAt: now})
	})
	require.NoError(t, err)

	err = s.InTx(ctx, func(tx store.Tx) error {
		return tx.InsertUser(ctx, store.User{Username: "alice", PasswordHash: "x", Role: "user", CreatedAt: now})
	})
	require.ErrorIs(t, err, store.ErrConflict)

	err = s.InTx(ctx, func(tx store.Tx) error {
		n, err := tx.SyncRoleMembers(ctx, "moderator", "mod", 1)
		require.NoError(t, err)
		require.Equal(t, int64(2), n)

		alice, err := tx.GetUser(ctx, "alice", false)
		require.NoError(t, err)
		require.Equal(t, "mod", alice.Role)
		require.Equal(t, uint32(1), alice.Permissions)

		carol, err := tx.GetUser(ctx, "carol", true)
		require.NoError(t, err)
		require.Equal(t, "custom", carol.Role)

		require.NoError(t, tx.UpdateUserAccess(ctx, "carol", "admin", 11))
		require.NoError(t, tx.UpdateUserPassword(ctx, "carol", "new-hash"))
		require.ErrorIs(t, tx.UpdateUserAccess(ctx, "nobody", "admin", 11), store.ErrNoRecord)

		_, err = tx.GetUser(ctx, "nobody", false)
		require.ErrorIs(t, err, store.ErrNoRecord)
		return nil
	})
	require.NoError(t, err)
}

func TestOnlyOneActiveBanPerEntity(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()
	unblock := now.Add(time.Minute)

	first := store.Ban{ID: "b1", EntityName: "203.0.113.5", EntityKind: "address", Reason: "spam", IssuedBy: "system", CreatedAt: now, UnblockAt: &unblock, Active: true}
	require.NoError(t, s.InTx(ctx, func(tx store.Tx) error { return tx.InsertBan(ctx, first) }))

	second := first
	second.ID = "b2"
	err := s.InTx(ctx, func(tx store.Tx) error { return tx.InsertBan(ctx, second) })
	require.ErrorIs(t, err, store.ErrConflict)

	err = s.InTx(ctx, func(tx store.Tx) error {
		n, err := tx.DeactivateBans(ctx, first.EntityName, first.EntityKind)
		require.NoError(t, err)
		require.Equal(t, int64(1), n)
		return tx.InsertBan(ctx, second)
	})
	require.NoError(t, err)

	err = s.InTx(ctx, func(tx store.Tx) error {
		active, err := tx.ActiveBan(ctx, first.EntityName, first.EntityKind, true)
		require.NoError(t, err)
		require.Equal(t, "b2", active.ID)
		require.NotNil(t, active.UnblockAt)
		require.Equal(t, unblock.UnixMilli(), active.UnblockAt.UnixMilli())

		list, err := tx.ListActiveBans(ctx)
		require.NoError(t, err)
		require.Len(t, list, 1)

		_, err = tx.ActiveBan(ctx, "bob", "user", false)
		require.ErrorIs(t, err, store.ErrNoRecord)
		return nil
	})
	require.NoError(t, err)
}

func TestAuditSinkRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	sink := NewAuditSink(s, nil)

	base := time.UnixMilli(1_700_000_000_000).UTC()
	sink.Emit(ctx, audit.Event{ID: "a1", Timestamp: base, EventType: "role_created", Level: audit.LevelInfo, Source: audit.SourceUser, Actor: "owner", Success: true})
	sink.Emit(ctx, audit.Event{ID: "a2", Timestamp: base.Add(time.Second), EventType: "ban_added", Level: audit.LevelWarning, Source: audit.SourceSystem, Subject: "bob", Metadata: map[string]string{"kind": "user"}})

	events, err := sink.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.Equal(t, "a2", events[0].ID)
	require.Equal(t, "user", events[0].Metadata["kind"])
	require.Equal(t, "owner", events[1].Actor)
	require.True(t, events[1].Timestamp.Equal(base))
}

func TestRebind(t *testing.T) {
	require.Equal(t, "a = ? AND b = ?", sqliteDialect.rebind("a = ? AND b = ?"))
	require.Equal(t, "a = $1 AND b = $2", postgresDialect.rebind("a = ? AND b = ?"))
}
