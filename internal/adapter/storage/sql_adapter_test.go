package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/scrap-lifecycle/internal/port"
)

func sqliteConfig(t *testing.T) DBConfig {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "lifecycle.db") + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	return DBConfig{Dialect: DialectSQLite, DSN: dsn}
}

func newSQLiteStore(t *testing.T, clock *testClock) port.Store {
	t.Helper()
	ctx := context.Background()

	db, err := Open(ctx, sqliteConfig(t))
	require.NoError(t, err)
	require.NoError(t, Migrate(ctx, db, DialectSQLite, nil))

	adapter := NewSQLAdapter(db, DialectSQLite, clock.Now)
	t.Cleanup(func() { _ = adapter.Close() })
	return adapter
}

func TestSQLAdapter_SQLite(t *testing.T) {
	runStoreSuite(t, newSQLiteStore)
}

func TestMigrate_SQLite(t *testing.T) {
	ctx := context.Background()
	db, err := Open(ctx, sqliteConfig(t))
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, Migrate(ctx, db, DialectSQLite, nil))
	// second run is a no-op
	require.NoError(t, Migrate(ctx, db, DialectSQLite, nil))

	v, err := MigrationVersion(ctx, db, DialectSQLite)
	require.NoError(t, err)
	assert.Equal(t, int64(2), v)
}

func TestParseDialect(t *testing.T) {
	tests := []struct {
		in      string
		want    Dialect
		wantErr bool
	}{
		{"mysql", DialectMySQL, false},
		{"Postgres", DialectPostgres, false},
		{"pgx", DialectPostgres, false},
		{"sqlite3", DialectSQLite, false},
		{" sqlite ", DialectSQLite, false},
		{"oracle", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDialect(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRebind(t *testing.T) {
	pg := &sqlRepo{dialect: DialectPostgres}
	assert.Equal(t, "UPDATE t SET a = $1 WHERE id = $2 AND version = $3",
		pg.rebind("UPDATE t SET a = ? WHERE id = ? AND version = ?"))

	my := &sqlRepo{dialect: DialectMySQL}
	assert.Equal(t, "SELECT ? FROM t", my.rebind("SELECT ? FROM t"))
}

func TestOpen_UnsupportedDialect(t *testing.T) {
	_, err := Open(context.Background(), DBConfig{Dialect: "oracle"})
	assert.Error(t, err)
}
