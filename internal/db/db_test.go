package db

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectSQLiteRunsMigrations(t *testing.T) {
	ctx := context.Background()
	database, err := Connect(ctx, DriverSQLite, ":memory:")
	require.NoError(t, err)
	defer database.Close()

	var tables []string
	require.NoError(t, database.SelectContext(ctx, &tables,
		`SELECT name FROM sqlite_master WHERE type='table' AND name IN ('contacts','conversations','messages') ORDER BY name`))
	assert.Equal(t, []string{"contacts", "conversations", "messages"}, tables)

	// running again must be a no-op
	require.NoError(t, Migrate(ctx, database))
}

func TestConnectRejectsUnknownDriver(t *testing.T) {
	_, err := Connect(context.Background(), "mysql", "dsn")
	require.Error(t, err)
}

func TestDialectRewritesForSQLite(t *testing.T) {
	stmt := `id BIGSERIAL PRIMARY KEY, at TIMESTAMPTZ, meta JSONB`
	assert.Equal(t, `id INTEGER PRIMARY KEY AUTOINCREMENT, at DATETIME, meta TEXT`, dialect(DriverSQLite, stmt))
	assert.Equal(t, stmt, dialect(DriverPostgres, stmt))
}

func TestSQLiteEnforcesConstraints(t *testing.T) {
	ctx := context.Background()
	database, err := Connect(ctx, DriverSQLite, ":memory:")
	require.NoError(t, err)
	defer database.Close()

	_, err = database.ExecContext(ctx, `INSERT INTO conversations (user_id, contact_id) VALUES (1, 999)`)
	assert.Error(t, err, "foreign key to contacts must be enforced")

	_, err = database.ExecContext(ctx, `INSERT INTO contacts (user_id, phone_number) VALUES (1, '+1')`)
	require.NoError(t, err)
	_, err = database.ExecContext(ctx, `INSERT INTO contacts (user_id, phone_number) VALUES (2, '+1')`)
	assert.Error(t, err, "phone number must be unique")
}
