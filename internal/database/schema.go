package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// SchemaVersion is the contract version the repositories are written against.
// Bump it together with a new entry in migrations.
const SchemaVersion = 1

// ErrSchemaMismatch is returned by CheckSchema when the database does not
// carry the expected contract.
var ErrSchemaMismatch = errors.New("database schema mismatch")

// contract lists, per table, the columns the repositories read and write.
var contract = map[string][]string{
	"users":          {"id", "email", "password_hash", "email_confirmed", "metadata", "app_metadata", "created_at", "updated_at"},
	"refresh_tokens": {"id", "user_id", "token_hash", "expires_at", "revoked_at", "created_at"},
	"items":          {"id", "title", "description", "status", "user_id", "claimed_by", "created_at", "deleted_at", "deleted_by", "deleted_reason"},
	"conversations":  {"id", "item_id", "scope_key", "sender_id", "receiver_id", "created_at", "deleted_at", "deleted_by", "deleted_reason"},
	"messages":       {"id", "conversation_id", "message", "user_id", "created_at", "isread", "deleted_at", "deleted_by", "original_message"},
}

var mysqlSchema = []string{
	`CREATE TABLE IF NOT EXISTS schema_version (
		version INT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS users (
		id              VARCHAR(36)  NOT NULL PRIMARY KEY,
		email           VARCHAR(255) NOT NULL,
		password_hash   VARCHAR(255) NOT NULL,
		email_confirmed BOOLEAN      NOT NULL DEFAULT TRUE,
		metadata        JSON         NOT NULL,
		app_metadata    JSON         NOT NULL,
		created_at      DATETIME(6)  NOT NULL,
		updated_at      DATETIME(6)  NOT NULL,
		UNIQUE KEY uq_users_email (email)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS refresh_tokens (
		id         BIGINT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY,
		user_id    VARCHAR(36)  NOT NULL,
		token_hash CHAR(64)     NOT NULL,
		expires_at DATETIME(6)  NOT NULL,
		revoked_at DATETIME(6)  NULL,
		created_at DATETIME(6)  NOT NULL,
		UNIQUE KEY uq_refresh_tokens_hash (token_hash),
		KEY idx_refresh_tokens_user (user_id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS items (
		id             BIGINT       NOT NULL AUTO_INCREMENT PRIMARY KEY,
		title          VARCHAR(255) NOT NULL,
		description    TEXT         NOT NULL,
		status         VARCHAR(16)  NOT NULL,
		user_id        VARCHAR(36)  NULL,
		claimed_by     VARCHAR(36)  NULL,
		created_at     DATETIME(6)  NOT NULL,
		deleted_at     DATETIME(6)  NULL,
		deleted_by     VARCHAR(64)  NULL,
		deleted_reason VARCHAR(255) NULL,
		KEY idx_items_user (user_id),
		KEY idx_items_claimed_by (claimed_by)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS conversations (
		id             VARCHAR(36)  NOT NULL PRIMARY KEY,
		item_id        BIGINT       NULL,
		scope_key      VARCHAR(32)  NOT NULL,
		sender_id      VARCHAR(36)  NOT NULL,
		receiver_id    VARCHAR(36)  NOT NULL,
		created_at     DATETIME(6)  NOT NULL,
		deleted_at     DATETIME(6)  NULL,
		deleted_by     VARCHAR(64)  NULL,
		deleted_reason VARCHAR(255) NULL,
		UNIQUE KEY uq_conversations_scope (scope_key, sender_id, receiver_id),
		KEY idx_conversations_item (item_id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS messages (
		id               BIGINT      NOT NULL AUTO_INCREMENT PRIMARY KEY,
		conversation_id  VARCHAR(36) NOT NULL,
		message          TEXT        NOT NULL,
		user_id          VARCHAR(36) NOT NULL,
		created_at       DATETIME(6) NOT NULL,
		isread           BOOLEAN     NOT NULL DEFAULT FALSE,
		deleted_at       DATETIME(6) NULL,
		deleted_by       VARCHAR(64) NULL,
		original_message TEXT        NULL,
		KEY idx_messages_conversation (conversation_id, created_at),
		CONSTRAINT fk_messages_conversation FOREIGN KEY (conversation_id) REFERENCES conversations(id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS users (
		id              TEXT     PRIMARY KEY,
		email           TEXT     NOT NULL UNIQUE,
		password_hash   TEXT     NOT NULL,
		email_confirmed BOOLEAN  NOT NULL DEFAULT 1,
		metadata        TEXT     NOT NULL,
		app_metadata    TEXT     NOT NULL,
		created_at      DATETIME NOT NULL,
		updated_at      DATETIME NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS refresh_tokens (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id    TEXT     NOT NULL,
		token_hash TEXT     NOT NULL UNIQUE,
		expires_at DATETIME NOT NULL,
		revoked_at DATETIME,
		created_at DATETIME NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS items (
		id             INTEGER PRIMARY KEY AUTOINCREMENT,
		title          TEXT     NOT NULL,
		description    TEXT     NOT NULL,
		status         TEXT     NOT NULL CHECK (status IN ('lost', 'found')),
		user_id        TEXT,
		claimed_by     TEXT,
		created_at     DATETIME NOT NULL,
		deleted_at     DATETIME,
		deleted_by     TEXT,
		deleted_reason TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS conversations (
		id             TEXT     PRIMARY KEY,
		item_id        INTEGER,
		scope_key      TEXT     NOT NULL,
		sender_id      TEXT     NOT NULL,
		receiver_id    TEXT     NOT NULL,
		created_at     DATETIME NOT NULL,
		deleted_at     DATETIME,
		deleted_by     TEXT,
		deleted_reason TEXT,
		UNIQUE (scope_key, sender_id, receiver_id)
	)`,
	`CREATE TABLE IF NOT EXISTS messages (
		id               INTEGER PRIMARY KEY AUTOINCREMENT,
		conversation_id  TEXT     NOT NULL REFERENCES conversations(id),
		message          TEXT     NOT NULL,
		user_id          TEXT     NOT NULL,
		created_at       DATETIME NOT NULL,
		isread           BOOLEAN  NOT NULL DEFAULT 0,
		deleted_at       DATETIME,
		deleted_by       TEXT,
		original_message TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_conversations_item ON conversations(item_id)`,
}

// migrations holds statements applied after the base schema, keyed by the
// version they move the database to. Version 1 is the base schema itself.
var migrations = map[int][]string{}

// EnsureSchema creates every table of the contract when missing, applies
// pending migrations and records the resulting version.
func EnsureSchema(ctx context.Context, db *sql.DB, d Dialect) error {
	stmts := mysqlSchema
	if d == SQLite {
		stmts = sqliteSchema
	}
	for i, s := range stmts {
		if _, err := db.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("creating schema (statement %d): %w", i+1, err)
		}
	}

	current, err := version(ctx, db)
	if err != nil {
		return err
	}
	if current == 0 {
		if _, err := db.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", 1); err != nil {
			return fmt.Errorf("recording schema version: %w", err)
		}
		current = 1
	}
	for v := current + 1; v <= SchemaVersion; v++ {
		for i, m := range migrations[v] {
			if _, err := db.ExecContext(ctx, m); err != nil {
				return fmt.Errorf("running migration %d.%d: %w", v, i+1, err)
			}
		}
		if _, err := db.ExecContext(ctx, "UPDATE schema_version SET version = ?", v); err != nil {
			return fmt.Errorf("recording schema version: %w", err)
		}
	}
	return nil
}

// CheckSchema verifies once at startup that the database carries the
// expected contract version and every column the repositories use.
func CheckSchema(ctx context.Context, db *sql.DB) error {
	v, err := version(ctx, db)
	if err != nil {
		return err
	}
	if v != SchemaVersion {
		return fmt.Errorf("%w: version %d, want %d", ErrSchemaMismatch, v, SchemaVersion)
	}
	for table, cols := range contract {
		q := "SELECT " + strings.Join(cols, ", ") + " FROM " + table + " WHERE 1=0"
		rows, err := db.QueryContext(ctx, q)
		if err != nil {
			return fmt.Errorf("%w: table %s: %v", ErrSchemaMismatch, table, err)
		}
		rows.Close()
	}
	return nil
}

func version(ctx context.Context, db *sql.DB) (int, error) {
	var v sql.NullInt64
	err := db.QueryRowContext(ctx, "SELECT MAX(version) FROM schema_version").Scan(&v)
	if err != nil {
		return 0, fmt.Errorf("%w: reading schema version: %v", ErrSchemaMismatch, err)
	}
	return int(v.Int64), nil
}
