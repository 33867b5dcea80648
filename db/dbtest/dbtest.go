// Package dbtest opens migrated in-memory databases for store tests.
package dbtest

import (
	"context"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"joinpounce/db"
)

func NewSQLite(t *testing.T) *sqlx.DB {
	t.Helper()

	conn, err := db.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	require.NoError(t, db.MigrateUp(context.Background(), conn, db.BackendSQLite))
	return conn
}
