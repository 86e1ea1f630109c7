package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	_ "github.com/jackc/pgx/v5/stdlib" // registers "pgx"
	_ "github.com/lib/pq"              // registers "postgres"
	_ "github.com/mattn/go-sqlite3"    // registers "sqlite3"
)

// Supported driver names.
const (
	DriverPostgres = "postgres"
	DriverPgx      = "pgx"
	DriverSQLite   = "sqlite3"
)

// Connect opens the database, verifies the connection and runs migrations.
func Connect(ctx context.Context, driver, dsn string) (*sqlx.DB, error) {
	switch driver {
	case DriverPostgres, DriverPgx, DriverSQLite:
	default:
		return nil, fmt.Errorf("unsupported db driver %q", driver)
	}

	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if driver == DriverSQLite {
		// every new connection to an in-memory sqlite database is a new database
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	if err := Migrate(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return db, nil
}

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS contacts (
        id BIGSERIAL PRIMARY KEY,
        user_id BIGINT NOT NULL,
        phone_number VARCHAR(32) NOT NULL UNIQUE,
        name VARCHAR(255),
        profile_picture VARCHAR(512),
        last_message_at TIMESTAMPTZ,
        is_blocked BOOLEAN NOT NULL DEFAULT FALSE,
        metadata JSONB,
        created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
    );`,
	`CREATE INDEX IF NOT EXISTS contacts_user_last_message_idx ON contacts (user_id, last_message_at);`,
	`CREATE TABLE IF NOT EXISTS conversations (
        id BIGSERIAL PRIMARY KEY,
        user_id BIGINT NOT NULL,
        contact_id BIGINT NOT NULL REFERENCES contacts(id) ON DELETE CASCADE,
        last_message_at TIMESTAMPTZ,
        unread_count INT NOT NULL DEFAULT 0 CHECK (unread_count >= 0),
        is_archived BOOLEAN NOT NULL DEFAULT FALSE,
        is_pinned BOOLEAN NOT NULL DEFAULT FALSE,
        created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
        UNIQUE(user_id, contact_id)
    );`,
	`CREATE INDEX IF NOT EXISTS conversations_user_last_message_idx ON conversations (user_id, last_message_at);`,
	`CREATE INDEX IF NOT EXISTS conversations_user_archived_idx ON conversations (user_id, is_archived);`,
	`CREATE TABLE IF NOT EXISTS messages (
        id BIGSERIAL PRIMARY KEY,
        conversation_id BIGINT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
        external_message_id VARCHAR(128) UNIQUE,
        direction VARCHAR(16) NOT NULL CHECK (direction IN ('inbound', 'outbound')),
        type VARCHAR(16) NOT NULL CHECK (type IN ('text', 'image', 'audio', 'video', 'document', 'sticker', 'location')),
        content TEXT,
        metadata JSONB,
        status VARCHAR(16) NOT NULL DEFAULT 'sent' CHECK (status IN ('sent', 'delivered', 'read', 'failed')),
        sent_at TIMESTAMPTZ NOT NULL,
        delivered_at TIMESTAMPTZ,
        read_at TIMESTAMPTZ,
        created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
    );`,
	`CREATE INDEX IF NOT EXISTS messages_conversation_sent_idx ON messages (conversation_id, sent_at);`,
	`CREATE INDEX IF NOT EXISTS messages_conversation_direction_idx ON messages (conversation_id, direction);`,
}

// Migrate applies the schema. Statements are idempotent.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	if db.DriverName() == DriverSQLite {
		if _, err := db.ExecContext(ctx, `PRAGMA foreign_keys = ON;`); err != nil {
			return err
		}
	}
	for _, m := range migrations {
		if _, err := db.ExecContext(ctx, dialect(db.DriverName(), m)); err != nil {
			return err
		}
	}
	return nil
}

func dialect(driver, stmt string) string {
	if driver != DriverSQLite {
		return stmt
	}
	stmt = strings.ReplaceAll(stmt, "BIGSERIAL PRIMARY KEY", "INTEGER PRIMARY KEY AUTOINCREMENT")
	stmt = strings.ReplaceAll(stmt, "TIMESTAMPTZ", "DATETIME")
	stmt = strings.ReplaceAll(stmt, "JSONB", "TEXT")
	return stmt
}
