package sqlstore

import (
	"context"
	"fmt"
)

// Timestamps are unix milliseconds in BIGINT columns so both dialects
// scan them the same way.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS roles (
		name TEXT PRIMARY KEY,
		permissions BIGINT NOT NULL,
		created_at BIGINT NOT NULL,
		updated_at BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS users (
		username TEXT PRIMARY KEY,
		password_hash TEXT NOT NULL,
		role TEXT NOT NULL,
		permissions BIGINT NOT NULL,
		created_at BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_users_role ON users(role)`,
	`CREATE TABLE IF NOT EXISTS bans (
		id TEXT PRIMARY KEY,
		entity_name TEXT NOT NULL,
		entity_kind TEXT NOT NULL,
		reason TEXT NOT NULL,
		issued_by TEXT NOT NULL,
		created_at BIGINT NOT NULL,
		unblock_at BIGINT,
		active BOOLEAN NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_bans_one_active ON bans(entity_name, entity_kind) WHERE active`,
	`CREATE TABLE IF NOT EXISTS audit_log (
		id TEXT PRIMARY KEY,
		event_type TEXT NOT NULL,
		level TEXT NOT NULL,
		source TEXT NOT NULL,
		actor TEXT NOT NULL,
		subject TEXT NOT NULL,
		ip TEXT NOT NULL,
		success BOOLEAN NOT NULL,
		message TEXT NOT NULL,
		error TEXT NOT NULL,
		metadata TEXT NOT NULL,
		created_at BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_log_created ON audit_log(created_at)`,
}

func (s *Store) migrate(ctx context.Context) error {
	for i, stmt := range migrations {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("sqlstore: migration %d: %w", i, err)
		}
	}
	return nil
}
